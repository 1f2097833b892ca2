package selector

import (
	"sort"

	"go.quadlink.org/quadlink"
)

// place assigns the winners to the four output slots. Incumbent
// winners keep the exact slot they held last cycle; the remaining
// winners fill the vacated slots in (category, author) order so two
// cycles with the same candidate set always produce the same layout.
func place(selected, existing []adjustedCandidate) quadlink.Quad {
	var slots [quadlink.QuadSize]string

	winnerURLs := make(map[string]string, len(selected))
	for i := range selected {
		winnerURLs[selected[i].Stream.Key()] = selected[i].Stream.OutputURL()
	}

	placed := make(map[string]bool, len(existing))
	for i := range existing {
		author := existing[i].Stream.Key()
		url, won := winnerURLs[author]
		if !won || existing[i].prevSlot == noSlot {
			continue
		}
		slots[existing[i].prevSlot] = url
		placed[author] = true
	}

	newWinners := make([]adjustedCandidate, 0, len(selected))
	for i := range selected {
		if !placed[selected[i].Stream.Key()] {
			newWinners = append(newWinners, selected[i])
		}
	}
	sort.Slice(newWinners, func(i, j int) bool {
		a, b := &newWinners[i].Stream.Metadata, &newWinners[j].Stream.Metadata
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Author < b.Author
	})

	next := 0
	for i := range slots {
		if slots[i] != "" || next >= len(newWinners) {
			continue
		}
		slots[i] = newWinners[next].Stream.OutputURL()
		next++
	}

	return quadlink.QuadFromSlots(slots)
}
