package selector

import (
	"go.quadlink.org/quadlink"
)

// noSlot marks a candidate that did not occupy a quad slot last cycle.
const noSlot = -1

// Config holds the scoring knobs. The config loader guarantees
// StabilityBonus >= DiversityBonus+1; the selector trusts that.
type Config struct {
	DiversityBonus          int
	StabilityBonus          int
	CategoryContinuityBonus int
}

// adjustedCandidate is a candidate with its adjusted priority and, for
// streams that were in the quad last cycle, the slot they held.
type adjustedCandidate struct {
	quadlink.Candidate
	adjustedPriority int
	prevSlot         int
}

// changeSummary describes one cycle's output relative to the previous
// cycle, for logging only.
type changeSummary struct {
	// authors in slot order, empty slots omitted
	authors []string
	added   []string
	removed []string
}
