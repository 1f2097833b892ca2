package selector

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"go.quadlink.org/quadlink"
)

// Selector owns the selection state between cycles. It is not safe for
// concurrent use; the daemon drives cycles sequentially.
type Selector struct {
	log     *slog.Logger
	metrics *Metrics
	cfg     Config

	// memory from the previous cycle, replaced wholesale every cycle
	prevCategories map[string]string // author -> category
	prevSlots      map[string]int    // author -> slot (0-3)
	prevQuad       *quadlink.Quad

	changed bool
}

// New creates a selector with empty memory. metrics may be nil.
func New(cfg Config, log *slog.Logger, metrics *Metrics) *Selector {
	return &Selector{
		log:            log,
		metrics:        metrics,
		cfg:            cfg,
		prevCategories: map[string]string{},
		prevSlots:      map[string]int{},
	}
}

// Changed reports whether the most recent BuildQuad produced a quad
// that differs from the previous cycle's.
func (sl *Selector) Changed() bool {
	return sl.changed
}

// BuildQuad runs one selection cycle: adjust priorities, pick the top
// four unique authors, and place them into slots, preserving incumbent
// positions. It never fails; an empty candidate list yields an empty
// quad and clears the occupancy memory.
func (sl *Selector) BuildQuad(ctx context.Context, candidates []quadlink.Candidate) quadlink.Quad {
	start := time.Now()

	// last occurrence wins if the feed let a duplicate author through
	candidateMap := make(map[string]quadlink.Candidate, len(candidates))
	for _, c := range candidates {
		candidateMap[c.Stream.Key()] = c
	}

	existing := sl.existingStreams(candidateMap)
	existingAuthors := make(map[string]bool, len(existing))
	for i := range existing {
		existingAuthors[existing[i].Stream.Key()] = true
	}
	departed := sl.departedCategories(existingAuthors)

	sl.log.DebugContext(ctx, "quad selection started",
		"totalCandidates", len(candidates),
		"existingStreams", len(existing),
		"departedCategories", setKeys(departed))

	adjusted := sl.applyAdjustments(ctx, candidates, existingAuthors, existing, departed)

	// priority dominates; the tiebreaker only resolves exact ties
	sort.SliceStable(adjusted, func(i, j int) bool {
		if adjusted[i].adjustedPriority != adjusted[j].adjustedPriority {
			return adjusted[i].adjustedPriority > adjusted[j].adjustedPriority
		}
		return adjusted[i].Tiebreaker > adjusted[j].Tiebreaker
	})

	selected := selectTopN(adjusted, quadlink.QuadSize)
	quad := place(selected, existing)

	sl.logChanges(ctx, quad, selected)

	sl.changed = sl.prevQuad == nil || *sl.prevQuad != quad
	sl.updateMemory(quad, selected)

	if sl.metrics != nil {
		sl.metrics.CycleDuration.Observe(time.Since(start).Seconds())
		sl.metrics.CandidatesEvaluated.Add(float64(len(candidates)))
		sl.metrics.SlotsOccupied.Set(float64(len(selected)))
		if sl.changed {
			sl.metrics.QuadChanges.Inc()
		}
	}

	return quad
}

// existingStreams returns the candidates whose author held a quad slot
// last cycle and is still present this cycle, with that slot recorded.
func (sl *Selector) existingStreams(candidateMap map[string]quadlink.Candidate) []adjustedCandidate {
	if len(sl.prevSlots) == 0 {
		return nil
	}

	existing := make([]adjustedCandidate, 0, quadlink.QuadSize)
	for author, slot := range sl.prevSlots {
		if c, ok := candidateMap[author]; ok {
			existing = append(existing, adjustedCandidate{
				Candidate:        c,
				adjustedPriority: c.Priority,
				prevSlot:         slot,
			})
		}
	}
	return existing
}

// departedCategories returns the categories represented last cycle
// only by authors that dropped out, excluding categories a remaining
// incumbent still covers.
func (sl *Selector) departedCategories(existingAuthors map[string]bool) map[string]bool {
	if len(sl.prevCategories) == 0 {
		return nil
	}

	departed := map[string]bool{}
	for author, category := range sl.prevCategories {
		if !existingAuthors[author] {
			departed[category] = true
		}
	}
	for author, category := range sl.prevCategories {
		if existingAuthors[author] {
			delete(departed, category)
		}
	}
	return departed
}

// selectTopN walks the sorted candidates, greedily taking unique
// authors. Fewer than n picks is valid.
func selectTopN(sorted []adjustedCandidate, n int) []adjustedCandidate {
	selected := make([]adjustedCandidate, 0, n)
	seen := map[string]bool{}

	for i := range sorted {
		author := sorted[i].Stream.Key()
		if seen[author] {
			continue
		}
		seen[author] = true
		selected = append(selected, sorted[i])
		if len(selected) == n {
			break
		}
	}
	return selected
}

// updateMemory replaces both memory maps with this cycle's winners.
func (sl *Selector) updateMemory(quad quadlink.Quad, selected []adjustedCandidate) {
	categories := make(map[string]string, len(selected))
	urlToAuthor := make(map[string]string, len(selected))
	for i := range selected {
		categories[selected[i].Stream.Key()] = selected[i].Stream.Metadata.Category
		urlToAuthor[selected[i].Stream.OutputURL()] = selected[i].Stream.Key()
	}

	slots := make(map[string]int, len(selected))
	for slot, url := range quad.Slots() {
		if url == "" {
			continue
		}
		if author, ok := urlToAuthor[url]; ok {
			slots[author] = slot
		}
	}

	sl.prevCategories = categories
	sl.prevSlots = slots
	sl.prevQuad = &quad
}

func setKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
