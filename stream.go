package quadlink

import "strings"

// Metadata holds the stream information reported by the platform.
type Metadata struct {
	Author   string `json:"author"`
	Category string `json:"category"`
	Title    string `json:"title"`
}

// Stream is a live stream with its metadata. MasterURL is the
// playlist URL preferred for playback when available.
type Stream struct {
	URL       string   `json:"url"`
	Metadata  Metadata `json:"metadata"`
	MasterURL string   `json:"master_url,omitempty"`
}

// Key returns the case-normalized author identity used for
// deduplication and selection maps.
func (s *Stream) Key() string {
	return strings.ToLower(s.Metadata.Author)
}

// OutputURL returns the URL to put in a quad slot, preferring the
// master playlist over the front-facing URL.
func (s *Stream) OutputURL() string {
	if s.MasterURL != "" {
		return s.MasterURL
	}
	return s.URL
}

// Candidate is a stream with the priority and per-cycle tiebreaker
// used by the selector. The tiebreaker is drawn fresh every cycle and
// only resolves exact priority ties.
type Candidate struct {
	Stream     Stream
	Priority   int
	Tiebreaker float64
}
