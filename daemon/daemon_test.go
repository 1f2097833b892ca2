package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.quadlink.org/quadlink"
	"go.quadlink.org/quadlink/config"
)

type fakeFeed struct {
	candidates []quadlink.Candidate
	err        error
	calls      int
}

func (f *fakeFeed) Candidates(context.Context) ([]quadlink.Candidate, error) {
	f.calls++
	return f.candidates, f.err
}

type fakePublisher struct {
	loggedIn bool
	loginErr error

	updates  []quadlink.Quad
	webhooks []string
}

func (p *fakePublisher) LoggedIn() bool { return p.loggedIn }

func (p *fakePublisher) Login(context.Context) error {
	if p.loginErr != nil {
		return p.loginErr
	}
	p.loggedIn = true
	return nil
}

func (p *fakePublisher) UpdateQuad(_ context.Context, quad quadlink.Quad) error {
	p.updates = append(p.updates, quad)
	return nil
}

func (p *fakePublisher) SendWebhook(_ context.Context, url string, _ *quadlink.Quad) error {
	p.webhooks = append(p.webhooks, url)
	return nil
}

func writeDaemonConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
credentials:
  username: quaduser
  secret: quadsecret
priorities:
  100:
    - urls: [https://twitch.tv/alpha]
` + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func candidate(author, category string, priority int) quadlink.Candidate {
	return quadlink.Candidate{
		Stream: quadlink.Stream{
			URL: "https://twitch.tv/" + author,
			Metadata: quadlink.Metadata{
				Author:   author,
				Category: category,
			},
		},
		Priority:   priority,
		Tiebreaker: 0.5,
	}
}

// newTestDaemon wires a daemon around the fakes, running in one-shot
// mode without the health server.
func newTestDaemon(t *testing.T, configPath string, feed *fakeFeed, pub *fakePublisher) *Daemon {
	t.Helper()
	d := New(Options{
		ConfigPath: configPath,
		Interval:   time.Hour,
		OneShot:    true,
	})
	d.newFeed = func(context.Context, *config.Config) CandidateSource { return feed }
	d.newClient = func(*config.Config) (Publisher, error) { return pub, nil }
	return d
}

func TestRunOneShot(t *testing.T) {
	t.Run("builds and publishes a quad", func(t *testing.T) {
		feed := &fakeFeed{candidates: []quadlink.Candidate{
			candidate("alpha", "Games", 100),
			candidate("beta", "Music", 90),
		}}
		pub := &fakePublisher{}
		d := newTestDaemon(t, writeDaemonConfig(t, ""), feed, pub)

		require.NoError(t, d.Run(context.Background()))

		assert.True(t, pub.loggedIn)
		require.Len(t, pub.updates, 1)
		assert.Equal(t, "https://twitch.tv/alpha", pub.updates[0].Stream1)
		assert.Equal(t, "https://twitch.tv/beta", pub.updates[0].Stream2)
		assert.Empty(t, pub.webhooks, "webhook disabled by default")
	})

	t.Run("webhook fires when enabled", func(t *testing.T) {
		feed := &fakeFeed{candidates: []quadlink.Candidate{candidate("alpha", "Games", 100)}}
		pub := &fakePublisher{}
		path := writeDaemonConfig(t, `
webhook:
  enabled: true
  url: https://hooks.example.com/quad
`)
		d := newTestDaemon(t, path, feed, pub)

		require.NoError(t, d.Run(context.Background()))
		assert.Equal(t, []string{"https://hooks.example.com/quad"}, pub.webhooks)
	})

	t.Run("missing config exits on cancel", func(t *testing.T) {
		feed := &fakeFeed{}
		pub := &fakePublisher{}
		d := newTestDaemon(t, filepath.Join(t.TempDir(), "config.yaml"), feed, pub)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.NoError(t, d.Run(ctx))
		assert.Zero(t, feed.calls)
	})
}

func TestCycle(t *testing.T) {
	ctx := context.Background()

	// prime a daemon through one successful run, then drive cycles
	// directly against the retained components
	prime := func(t *testing.T, feed *fakeFeed, pub *fakePublisher) (*Daemon, *config.Config) {
		t.Helper()
		d := newTestDaemon(t, writeDaemonConfig(t, ""), feed, pub)
		require.NoError(t, d.Run(ctx))

		cfg, err := config.Parse(ctx, []byte(`
credentials:
  username: quaduser
  secret: quadsecret
priorities: {}
`))
		require.NoError(t, err)
		return d, cfg
	}

	t.Run("unchanged quad skips the update", func(t *testing.T) {
		feed := &fakeFeed{candidates: []quadlink.Candidate{candidate("alpha", "Games", 100)}}
		pub := &fakePublisher{}
		d, cfg := prime(t, feed, pub)
		require.Len(t, pub.updates, 1)

		done, err := d.cycle(ctx, cfg)
		require.NoError(t, err)
		assert.True(t, done)
		assert.Len(t, pub.updates, 1, "same candidates, no second update")
	})

	t.Run("changed quad updates again", func(t *testing.T) {
		feed := &fakeFeed{candidates: []quadlink.Candidate{candidate("alpha", "Games", 100)}}
		pub := &fakePublisher{}
		d, cfg := prime(t, feed, pub)

		feed.candidates = []quadlink.Candidate{candidate("beta", "Music", 100)}
		done, err := d.cycle(ctx, cfg)
		require.NoError(t, err)
		assert.True(t, done)
		require.Len(t, pub.updates, 2)
		assert.Equal(t, "https://twitch.tv/beta", pub.updates[1].Stream1)
	})

	t.Run("zero candidates keeps selector memory", func(t *testing.T) {
		feed := &fakeFeed{candidates: []quadlink.Candidate{candidate("alpha", "Games", 100)}}
		pub := &fakePublisher{}
		d, cfg := prime(t, feed, pub)

		// a blip: nothing resolvable this cycle
		feed.candidates = nil
		done, err := d.cycle(ctx, cfg)
		require.NoError(t, err)
		assert.False(t, done)
		assert.Len(t, pub.updates, 1, "no update pushed for the blip")

		// alpha returns and must still be the unchanged incumbent
		feed.candidates = []quadlink.Candidate{candidate("alpha", "Games", 100)}
		done, err = d.cycle(ctx, cfg)
		require.NoError(t, err)
		assert.True(t, done)
		assert.Len(t, pub.updates, 1, "incumbency preserved across the outage")
	})

	t.Run("feed error propagates", func(t *testing.T) {
		feed := &fakeFeed{candidates: []quadlink.Candidate{candidate("alpha", "Games", 100)}}
		pub := &fakePublisher{}
		d, cfg := prime(t, feed, pub)

		feed.err = errors.New("resolver down")
		done, err := d.cycle(ctx, cfg)
		require.Error(t, err)
		assert.False(t, done)
	})
}
