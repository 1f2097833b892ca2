package feeder

import (
	"context"

	"go.quadlink.org/quadlink"
)

// Resolver turns a channel name or URL into a live stream with
// metadata. A nil stream with a nil error means the channel is
// offline or unavailable; errors are reserved for unexpected
// failures, which the feeder also treats as "candidate absent".
type Resolver interface {
	Resolve(ctx context.Context, channel string) (*quadlink.Stream, error)
}
