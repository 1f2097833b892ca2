package quadlink

// QuadSize is the number of output slots in a quad layout.
const QuadSize = 4

// Quad is the four-slot output selection. Slot identity is meaningful
// and persists across cycles: an empty string means the slot is
// unoccupied. The JSON field names match the QuadStream update API.
type Quad struct {
	Stream1 string `json:"stream1"`
	Stream2 string `json:"stream2"`
	Stream3 string `json:"stream3"`
	Stream4 string `json:"stream4"`
}

// QuadFromSlots builds a Quad from slot-indexed URLs.
func QuadFromSlots(slots [QuadSize]string) Quad {
	return Quad{
		Stream1: slots[0],
		Stream2: slots[1],
		Stream3: slots[2],
		Stream4: slots[3],
	}
}

// Slots returns the slot URLs in fixed slot order.
func (q Quad) Slots() [QuadSize]string {
	return [QuadSize]string{q.Stream1, q.Stream2, q.Stream3, q.Stream4}
}

// IsEmpty reports whether no slot is occupied.
func (q Quad) IsEmpty() bool {
	return q == Quad{}
}
