// Package selector implements the quad selection algorithm for quadlink.
//
// The selector picks four live streams from the scored candidate list each
// cycle and assigns them to the four fixed output slots, balancing raw
// priority against churn and category spread.
//
// # Priority Adjustments
//
// Each candidate's base priority is adjusted, in fixed order:
//   - Stability bonus: streams already in the quad get a bonus so the
//     layout does not reshuffle on small priority swings
//   - Saturation penalty: new entrants in a category the quad already
//     shows are penalized on a graduated scale
//   - Diversity bonus: the first candidate in a category the quad does
//     not show yet gets a one-time bonus
//   - Continuity bonus: replacements for a category that just dropped
//     out of the quad get a small boost
//
// The adjusted candidates are sorted by (priority, tiebreaker) descending
// and the top four unique authors win.
//
// # Slot Placement
//
// Winners that were already in the quad keep their previous slot; new
// winners fill the vacated slots in (category, author) order so the same
// candidate set always produces the same layout.
//
// # State
//
// The selector remembers exactly one prior cycle: the winners' categories
// and slot positions. Both maps are replaced wholesale at the end of every
// cycle.
//
// # Usage
//
//	sel := selector.New(selector.Config{...}, log, metrics)
//	quad := sel.BuildQuad(ctx, candidates)
package selector
