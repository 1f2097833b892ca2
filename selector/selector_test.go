package selector

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.quadlink.org/quadlink"
)

func testConfig() Config {
	return Config{
		DiversityBonus:          25,
		StabilityBonus:          30,
		CategoryContinuityBonus: 10,
	}
}

func newTestSelector() *Selector {
	return New(testConfig(), slog.Default(), nil)
}

func makeCandidate(author, category string, priority int) quadlink.Candidate {
	return quadlink.Candidate{
		Stream: quadlink.Stream{
			URL: "https://twitch.tv/" + strings.ToLower(author),
			Metadata: quadlink.Metadata{
				Author:   author,
				Category: category,
				Title:    "Test Stream",
			},
		},
		Priority:   priority,
		Tiebreaker: 0.5,
	}
}

func TestBuildQuadBasic(t *testing.T) {
	ctx := context.Background()

	t.Run("empty candidates", func(t *testing.T) {
		sl := newTestSelector()
		quad := sl.BuildQuad(ctx, nil)
		assert.True(t, quad.IsEmpty())
		assert.Empty(t, sl.prevSlots)
		assert.Empty(t, sl.prevCategories)
	})

	t.Run("empty candidates clear occupancy", func(t *testing.T) {
		sl := newTestSelector()
		sl.BuildQuad(ctx, []quadlink.Candidate{makeCandidate("streamer1", "Games", 100)})
		require.Len(t, sl.prevSlots, 1)

		quad := sl.BuildQuad(ctx, nil)
		assert.True(t, quad.IsEmpty())
		assert.Empty(t, sl.prevSlots)
	})

	t.Run("single candidate", func(t *testing.T) {
		sl := newTestSelector()
		quad := sl.BuildQuad(ctx, []quadlink.Candidate{makeCandidate("streamer1", "Games", 100)})

		assert.Equal(t, "https://twitch.tv/streamer1", quad.Stream1)
		assert.Equal(t, "", quad.Stream2)
		assert.Equal(t, "", quad.Stream3)
		assert.Equal(t, "", quad.Stream4)
	})

	t.Run("four candidates", func(t *testing.T) {
		sl := newTestSelector()
		quad := sl.BuildQuad(ctx, []quadlink.Candidate{
			makeCandidate("streamer1", "Games", 100),
			makeCandidate("streamer2", "Games", 90),
			makeCandidate("streamer3", "Games", 80),
			makeCandidate("streamer4", "Games", 70),
		})

		assert.Equal(t, "https://twitch.tv/streamer1", quad.Stream1)
		assert.Equal(t, "https://twitch.tv/streamer2", quad.Stream2)
		assert.Equal(t, "https://twitch.tv/streamer3", quad.Stream3)
		assert.Equal(t, "https://twitch.tv/streamer4", quad.Stream4)
	})

	t.Run("more than four candidates", func(t *testing.T) {
		sl := newTestSelector()
		sl.BuildQuad(ctx, []quadlink.Candidate{
			makeCandidate("streamer1", "Games", 100),
			makeCandidate("streamer2", "Games", 90),
			makeCandidate("streamer3", "Games", 80),
			makeCandidate("streamer4", "Games", 70),
			makeCandidate("streamer5", "Games", 60),
		})

		assert.Len(t, sl.prevSlots, 4)
		assert.NotContains(t, sl.prevSlots, "streamer5")
	})

	t.Run("duplicate authors picked once", func(t *testing.T) {
		sl := newTestSelector()
		quad := sl.BuildQuad(ctx, []quadlink.Candidate{
			makeCandidate("Streamer1", "Games", 100),
			makeCandidate("streamer1", "Games", 90),
			makeCandidate("streamer2", "Games", 80),
		})

		assert.Len(t, sl.prevSlots, 2)
		urls := quad.Slots()
		assert.NotEqual(t, urls[0], urls[1])
	})
}

// The documented scoring example: A=125 (first Games), B=115 (first
// Music), C=80 (second Games, no penalty without incumbents), D=95
// (first Art). Winners ranked A,B,D,C.
func TestBuildQuadScoringExample(t *testing.T) {
	ctx := context.Background()
	sl := newTestSelector()

	quad := sl.BuildQuad(ctx, []quadlink.Candidate{
		makeCandidate("A", "Games", 100),
		makeCandidate("B", "Music", 90),
		makeCandidate("C", "Games", 80),
		makeCandidate("D", "Art", 70),
	})

	// only four candidates, all selected
	require.Len(t, sl.prevSlots, 4)

	// no incumbents: placement is by (category, author) ascending
	assert.Equal(t, "https://twitch.tv/d", quad.Stream1) // Art
	assert.Equal(t, "https://twitch.tv/a", quad.Stream2) // Games, A
	assert.Equal(t, "https://twitch.tv/c", quad.Stream3) // Games, C
	assert.Equal(t, "https://twitch.tv/b", quad.Stream4) // Music
}

func TestBuildQuadIdempotent(t *testing.T) {
	ctx := context.Background()
	sl := newTestSelector()

	candidates := []quadlink.Candidate{
		makeCandidate("streamer1", "Games", 100),
		makeCandidate("streamer2", "Music", 90),
		makeCandidate("streamer3", "Art", 80),
		makeCandidate("streamer4", "Talk", 70),
	}

	quad1 := sl.BuildQuad(ctx, candidates)
	assert.True(t, sl.Changed())

	quad2 := sl.BuildQuad(ctx, candidates)
	assert.Equal(t, quad1, quad2)
	assert.False(t, sl.Changed())
}

func TestStabilityBonus(t *testing.T) {
	ctx := context.Background()

	t.Run("incumbent beats higher-priority newcomer", func(t *testing.T) {
		sl := newTestSelector()
		sl.BuildQuad(ctx, []quadlink.Candidate{
			makeCandidate("streamer1", "Games", 100),
			makeCandidate("streamer2", "Games", 90),
		})

		// streamer1: 90 + 30 stability = 120 > 110
		sl.BuildQuad(ctx, []quadlink.Candidate{
			makeCandidate("streamer3", "Games", 110),
			makeCandidate("streamer1", "Games", 90),
		})

		assert.Contains(t, sl.prevSlots, "streamer1")
	})

	t.Run("stability dominance at one priority below", func(t *testing.T) {
		// incumbent P beats a brand-new category at P-1 because
		// stabilityBonus >= diversityBonus+1
		sl := newTestSelector()
		sl.BuildQuad(ctx, []quadlink.Candidate{
			makeCandidate("incumbent", "Games", 100),
			makeCandidate("filler1", "Music", 90),
			makeCandidate("filler2", "Art", 80),
			makeCandidate("filler3", "Talk", 70),
		})

		sl.BuildQuad(ctx, []quadlink.Candidate{
			makeCandidate("incumbent", "Games", 100),
			makeCandidate("filler1", "Music", 100),
			makeCandidate("filler2", "Art", 100),
			makeCandidate("filler3", "Talk", 100),
			makeCandidate("newcomer", "Cooking", 99),
		})

		assert.Contains(t, sl.prevSlots, "incumbent")
		assert.NotContains(t, sl.prevSlots, "newcomer")
	})
}

func TestSlotPreservation(t *testing.T) {
	ctx := context.Background()

	t.Run("positions survive priority swaps", func(t *testing.T) {
		sl := newTestSelector()
		quad1 := sl.BuildQuad(ctx, []quadlink.Candidate{
			makeCandidate("streamer1", "Games", 100),
			makeCandidate("streamer2", "Games", 90),
		})

		quad2 := sl.BuildQuad(ctx, []quadlink.Candidate{
			makeCandidate("streamer2", "Games", 100),
			makeCandidate("streamer1", "Games", 90),
		})

		assert.Equal(t, quad1.Stream1, quad2.Stream1)
		assert.Equal(t, quad1.Stream2, quad2.Stream2)
	})

	t.Run("additions fill vacancies without moving incumbents", func(t *testing.T) {
		sl := newTestSelector()
		quad1 := sl.BuildQuad(ctx, []quadlink.Candidate{
			makeCandidate("streamer1", "Games", 100),
			makeCandidate("streamer2", "Music", 90),
		})
		require.Equal(t, "", quad1.Stream3)
		require.Equal(t, "", quad1.Stream4)

		quad2 := sl.BuildQuad(ctx, []quadlink.Candidate{
			makeCandidate("streamer1", "Games", 100),
			makeCandidate("streamer2", "Music", 90),
			makeCandidate("streamer3", "Art", 80),
		})

		assert.Equal(t, quad1.Stream1, quad2.Stream1)
		assert.Equal(t, quad1.Stream2, quad2.Stream2)
		assert.Equal(t, "https://twitch.tv/streamer3", quad2.Stream3)
	})

	t.Run("vacated slot goes to a new winner", func(t *testing.T) {
		sl := newTestSelector()
		quad1 := sl.BuildQuad(ctx, []quadlink.Candidate{
			makeCandidate("streamer1", "Games", 100),
			makeCandidate("streamer2", "Music", 90),
			makeCandidate("streamer3", "Art", 80),
			makeCandidate("streamer4", "Talk", 70),
		})

		// cycle 1 places by (category, author):
		// Art, Games, Music, Talk
		require.Equal(t, "https://twitch.tv/streamer2", quad1.Stream3)

		// streamer2 drops out, streamer5 replaces it in its slot
		quad2 := sl.BuildQuad(ctx, []quadlink.Candidate{
			makeCandidate("streamer1", "Games", 100),
			makeCandidate("streamer3", "Art", 80),
			makeCandidate("streamer4", "Talk", 70),
			makeCandidate("streamer5", "Cooking", 60),
		})

		assert.Equal(t, quad1.Stream1, quad2.Stream1)
		assert.Equal(t, quad1.Stream2, quad2.Stream2)
		assert.Equal(t, quad1.Stream4, quad2.Stream4)
		assert.Equal(t, "https://twitch.tv/streamer5", quad2.Stream3)
	})
}

func TestBuildQuadUniqueAuthors(t *testing.T) {
	ctx := context.Background()
	sl := newTestSelector()

	quad := sl.BuildQuad(ctx, []quadlink.Candidate{
		makeCandidate("ALPHA", "Games", 100),
		makeCandidate("alpha", "Music", 95),
		makeCandidate("Beta", "Art", 90),
		makeCandidate("beta", "Talk", 85),
		makeCandidate("gamma", "IRL", 80),
	})

	occupied := map[string]bool{}
	for _, url := range quad.Slots() {
		if url == "" {
			continue
		}
		assert.False(t, occupied[url], "duplicate url %s", url)
		occupied[url] = true
	}
	assert.Len(t, sl.prevSlots, 3)
}
