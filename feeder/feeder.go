// Package feeder produces the scored candidate list for the selector:
// it resolves the configured channels in parallel, applies the ruleset
// filters, deduplicates by normalized URL and assigns each accepted
// stream its group priority and a fresh random tiebreaker.
package feeder

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"go.quadlink.org/quadlink"
	"go.quadlink.org/quadlink/config"
	"go.quadlink.org/quadlink/logger"
)

// DefaultMaxConcurrent bounds parallel stream resolution per cycle.
const DefaultMaxConcurrent = 4

// Feeder resolves and scores stream candidates once per cycle.
type Feeder struct {
	cfg           *config.Config
	resolver      Resolver
	filter        *Filter
	maxConcurrent int
}

// New creates a feeder for the given configuration.
func New(ctx context.Context, cfg *config.Config, resolver Resolver) *Feeder {
	return &Feeder{
		cfg:           cfg,
		resolver:      resolver,
		filter:        NewFilter(ctx, cfg),
		maxConcurrent: DefaultMaxConcurrent,
	}
}

// Candidates processes all priority groups, highest priority first,
// and returns the accepted candidates sorted by (priority, tiebreaker)
// descending. That ordering is the stable input contract the
// selector's first-come diversity bonus relies on.
func (f *Feeder) Candidates(ctx context.Context) ([]quadlink.Candidate, error) {
	log := logger.FromContext(ctx)

	levels := make([]int, 0, len(f.cfg.Priorities))
	for level := range f.cfg.Priorities {
		levels = append(levels, level)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(levels)))

	seenURLs := map[string]bool{}

	var all []quadlink.Candidate
	for _, level := range levels {
		groups := f.cfg.Priorities[level]
		log.DebugContext(ctx, "processing priority level", "priority", level, "groups", len(groups))

		candidates, err := f.processLevel(ctx, level, groups, seenURLs)
		if err != nil {
			return nil, err
		}
		all = append(all, candidates...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority > all[j].Priority
		}
		return all[i].Tiebreaker > all[j].Tiebreaker
	})

	log.DebugContext(ctx, "stream processing complete",
		"totalCandidates", len(all), "priorities", len(levels))

	return all, nil
}

type entry struct {
	url      string
	rulesets []string
}

// processLevel resolves one priority level's channels in parallel but
// applies filtering and deduplication sequentially in config order, so
// the output does not depend on goroutine scheduling.
func (f *Feeder) processLevel(ctx context.Context, priority int, groups []config.StreamGroup, seenURLs map[string]bool) ([]quadlink.Candidate, error) {
	log := logger.FromContext(ctx)

	var entries []entry
	for _, group := range groups {
		for _, url := range group.URLs {
			entries = append(entries, entry{url: url, rulesets: group.Rulesets})
		}
	}

	resolved := make([]*quadlink.Stream, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxConcurrent)
	for i := range entries {
		g.Go(func() error {
			stream, err := f.resolver.Resolve(gctx, entries[i].url)
			if err != nil {
				// a failed candidate is simply absent this cycle
				log.ErrorContext(gctx, "error resolving stream", "url", entries[i].url, "err", err)
				return nil
			}
			resolved[i] = stream
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]quadlink.Candidate, 0, len(entries))
	for i, stream := range resolved {
		if stream == nil {
			continue
		}

		if ok, reason, ruleset := f.filter.Apply(stream, entries[i].rulesets); !ok {
			log.DebugContext(ctx, "stream rejected",
				"author", stream.Metadata.Author,
				"reason", reason,
				"ruleset", ruleset)
			continue
		}

		effectivePriority := priority
		if isHosted(stream) {
			if f.cfg.SkipHosted {
				log.DebugContext(ctx, "skipping hosted stream",
					"author", stream.Metadata.Author, "url", stream.URL)
				continue
			}
			effectivePriority -= f.cfg.HostedOffset
			log.DebugContext(ctx, "hosted stream priority reduced",
				"author", stream.Metadata.Author,
				"originalPriority", priority,
				"newPriority", effectivePriority)
		}

		normalized := normalizeURL(stream.URL)
		if seenURLs[normalized] {
			log.DebugContext(ctx, "duplicate stream", "author", stream.Metadata.Author, "url", normalized)
			continue
		}
		seenURLs[normalized] = true

		candidates = append(candidates, quadlink.Candidate{
			Stream:     *stream,
			Priority:   effectivePriority,
			Tiebreaker: rand.Float64(),
		})

		log.DebugContext(ctx, "stream accepted",
			"author", stream.Metadata.Author,
			"category", stream.Metadata.Category,
			"priority", effectivePriority)
	}

	log.DebugContext(ctx, "priority level complete",
		"priority", priority, "successful", len(candidates), "total", len(entries))

	return candidates, nil
}

// isHosted reports whether the stream's channel is hosting someone
// else: the author in the URL tail does not match the metadata author.
func isHosted(stream *quadlink.Stream) bool {
	trimmed := strings.TrimRight(stream.URL, "/")
	idx := strings.LastIndex(trimmed, "/")
	urlAuthor := strings.ToLower(trimmed[idx+1:])
	return urlAuthor != stream.Key()
}

// normalizeURL canonicalizes a URL for per-cycle deduplication.
func normalizeURL(url string) string {
	return strings.TrimRight(strings.ToLower(url), "/")
}
