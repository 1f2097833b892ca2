package selector

import (
	"context"
	"sort"

	"go.quadlink.org/quadlink"
)

// logChanges emits the per-cycle change summary: authors by slot and,
// when the previous cycle had occupancy, the added/removed author
// sets. Purely derived for observability; it never affects state.
func (sl *Selector) logChanges(ctx context.Context, quad quadlink.Quad, selected []adjustedCandidate) {
	summary := sl.summarize(quad, selected)

	if sl.metrics != nil {
		sl.metrics.StreamChurn.WithLabelValues("added").Add(float64(len(summary.added)))
		sl.metrics.StreamChurn.WithLabelValues("removed").Add(float64(len(summary.removed)))
	}

	if len(summary.added) > 0 || len(summary.removed) > 0 {
		sl.log.InfoContext(ctx, "quad",
			"streams", summary.authors,
			"added", summary.added,
			"removed", summary.removed)
		return
	}
	sl.log.InfoContext(ctx, "quad", "streams", summary.authors)
}

func (sl *Selector) summarize(quad quadlink.Quad, selected []adjustedCandidate) changeSummary {
	urlToAuthor := make(map[string]string, len(selected))
	winners := make(map[string]bool, len(selected))
	for i := range selected {
		urlToAuthor[selected[i].Stream.OutputURL()] = selected[i].Stream.Metadata.Author
		winners[selected[i].Stream.Key()] = true
	}

	var summary changeSummary
	for _, url := range quad.Slots() {
		if url == "" {
			continue
		}
		if author, ok := urlToAuthor[url]; ok {
			summary.authors = append(summary.authors, author)
		}
	}

	if len(sl.prevSlots) == 0 {
		return summary
	}

	for author := range winners {
		if _, ok := sl.prevSlots[author]; !ok {
			summary.added = append(summary.added, author)
		}
	}
	for author := range sl.prevSlots {
		if !winners[author] {
			summary.removed = append(summary.removed, author)
		}
	}
	sort.Strings(summary.added)
	sort.Strings(summary.removed)

	return summary
}
