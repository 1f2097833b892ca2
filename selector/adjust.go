package selector

import (
	"context"

	"go.quadlink.org/quadlink"
)

// adjustment names for metrics and log attribution
const (
	adjustStability  = "stability"
	adjustSaturation = "saturation"
	adjustDiversity  = "diversity"
	adjustContinuity = "continuity"
)

// applyAdjustments computes the adjusted priority for every candidate.
// The four rules are independently conditional and additive, applied in
// fixed order. Candidates are processed in input order; the feeder's
// (priority, tiebreaker) descending sort is the stable contract that
// makes the first-come diversity bonus reproducible.
func (sl *Selector) applyAdjustments(
	ctx context.Context,
	candidates []quadlink.Candidate,
	existingAuthors map[string]bool,
	existing []adjustedCandidate,
	departed map[string]bool,
) []adjustedCandidate {
	// category histogram over incumbent streams only
	categoryCounts := map[string]int{}
	for i := range existing {
		categoryCounts[existing[i].Stream.Metadata.Category]++
	}

	seenNewCategories := map[string]bool{}

	adjusted := make([]adjustedCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		author := candidate.Stream.Key()
		category := candidate.Stream.Metadata.Category
		priority := candidate.Priority
		isExisting := existingAuthors[author]

		if isExisting {
			priority += sl.cfg.StabilityBonus
			sl.traceAdjustment(ctx, adjustStability, &candidate, sl.cfg.StabilityBonus, priority)
		}

		// incumbents are not penalized for their own presence
		if count, saturated := categoryCounts[category]; saturated && !isExisting {
			penalty := sl.saturationPenalty(count)
			priority -= penalty
			sl.traceAdjustment(ctx, adjustSaturation, &candidate, -penalty, priority)
		}

		// one bonus per new category, first candidate in input order
		if _, shown := categoryCounts[category]; !shown && !seenNewCategories[category] {
			seenNewCategories[category] = true
			priority += sl.cfg.DiversityBonus
			sl.traceAdjustment(ctx, adjustDiversity, &candidate, sl.cfg.DiversityBonus, priority)
		}

		if !isExisting && departed[category] {
			priority += sl.cfg.CategoryContinuityBonus
			sl.traceAdjustment(ctx, adjustContinuity, &candidate, sl.cfg.CategoryContinuityBonus, priority)
		}

		prevSlot := noSlot
		if slot, ok := sl.prevSlots[author]; ok && isExisting {
			prevSlot = slot
		}

		adjusted = append(adjusted, adjustedCandidate{
			Candidate:        candidate,
			adjustedPriority: priority,
			prevSlot:         prevSlot,
		})
	}

	return adjusted
}

// saturationPenalty grades the penalty by how many incumbent streams
// already show the category: a third of the diversity bonus per
// incumbent, capped at the full bonus from three up.
func (sl *Selector) saturationPenalty(count int) int {
	switch {
	case count <= 1:
		return sl.cfg.DiversityBonus / 3
	case count == 2:
		return 2 * sl.cfg.DiversityBonus / 3
	default:
		return sl.cfg.DiversityBonus
	}
}

func (sl *Selector) traceAdjustment(ctx context.Context, name string, c *quadlink.Candidate, delta, newPriority int) {
	if sl.metrics != nil {
		sl.metrics.Adjustments.WithLabelValues(name).Inc()
	}
	sl.log.DebugContext(ctx, "priority adjusted",
		"adjustment", name,
		"author", c.Stream.Metadata.Author,
		"category", c.Stream.Metadata.Category,
		"delta", delta,
		"newPriority", newPriority)
}
