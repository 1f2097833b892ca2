// Package daemon drives the quadlink cycle: load config, gather
// candidates, build the quad and push it to QuadStream on a timer.
package daemon

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"go.quadlink.org/quadlink"
	"go.quadlink.org/quadlink/config"
	"go.quadlink.org/quadlink/feeder"
	"go.quadlink.org/quadlink/health"
	"go.quadlink.org/quadlink/logger"
	"go.quadlink.org/quadlink/quadstream"
	"go.quadlink.org/quadlink/selector"
	"go.quadlink.org/quadlink/version"
)

// retryInterval is how long to wait after a failed config load, login
// or cycle before trying again.
const retryInterval = 30 * time.Second

// CandidateSource produces the scored candidate list once per cycle.
type CandidateSource interface {
	Candidates(ctx context.Context) ([]quadlink.Candidate, error)
}

// Publisher pushes quads and webhook notifications to the display
// service.
type Publisher interface {
	LoggedIn() bool
	Login(ctx context.Context) error
	UpdateQuad(ctx context.Context, quad quadlink.Quad) error
	SendWebhook(ctx context.Context, webhookURL string, quad *quadlink.Quad) error
}

// Options configure a Daemon.
type Options struct {
	ConfigPath string        // explicit config path; empty means search
	Interval   time.Duration // time between cycles
	OneShot    bool          // run one cycle and exit
	HealthPort int           // 0 disables the health server
}

// Daemon owns the cycle loop and the components it drives.
type Daemon struct {
	opts     Options
	loader   *config.Loader
	registry *prometheus.Registry
	health   *health.Server

	feed       CandidateSource
	sel        *selector.Selector
	client     Publisher
	selMetrics *selector.Metrics

	// component constructors, replaceable in tests
	newFeed   func(ctx context.Context, cfg *config.Config) CandidateSource
	newClient func(cfg *config.Config) (Publisher, error)
}

// New creates a daemon.
func New(opts Options) *Daemon {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}

	registry := prometheus.NewRegistry()
	version.RegisterMetric("quadlink", registry)

	d := &Daemon{
		opts:       opts,
		loader:     config.NewLoader(opts.ConfigPath),
		registry:   registry,
		selMetrics: selector.NewMetrics(registry),
	}

	d.newFeed = func(ctx context.Context, cfg *config.Config) CandidateSource {
		resolver := feeder.NewTwitchResolver(cfg.ProxyPlaylist, cfg.LowLatency)
		return feeder.New(ctx, cfg, resolver)
	}
	d.newClient = func(cfg *config.Config) (Publisher, error) {
		return quadstream.New(cfg.Credentials.Username, cfg.Credentials.Secret)
	}

	return d
}

// Run executes the main loop until the context is canceled (or, in
// one-shot mode, after the first completed cycle).
func (d *Daemon) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	log.InfoContext(ctx, "quadlink starting",
		"version", version.Version(),
		"interval", d.opts.Interval,
		"oneShot", d.opts.OneShot)

	g, ctx := errgroup.WithContext(ctx)

	if d.opts.HealthPort > 0 {
		d.health = health.NewServer(log, d.registry)
		g.Go(func() error {
			return d.health.ListenAndServe(ctx, d.opts.HealthPort)
		})
	}

	g.Go(func() error {
		return d.loop(ctx)
	})

	return g.Wait()
}

func (d *Daemon) loop(ctx context.Context) error {
	log := logger.FromContext(ctx)

	var watch <-chan struct{}
	configured := false

	for {
		if ctx.Err() != nil {
			return nil
		}

		cfg, err := d.loader.Load(ctx)
		if err != nil {
			if d.health != nil {
				d.health.MarkNotReady()
			}
			log.ErrorContext(ctx, "failed to load config, retrying", "err", err, "retryIn", retryInterval)
			if !sleep(ctx, retryInterval) {
				return nil
			}
			continue
		}

		if !configured {
			configured = true
			log = logger.Configure(cfg.Logging.Level, cfg.Logging.Format)
			ctx = logger.NewContext(ctx, log)

			if ch, err := d.loader.Watch(ctx); err == nil {
				watch = ch
			} else {
				log.DebugContext(ctx, "config watch unavailable, relying on per-cycle reload", "err", err)
			}
		}

		if d.health != nil {
			d.health.MarkReady()
		}

		if d.feed == nil || d.sel == nil {
			d.feed = d.newFeed(ctx, cfg)
			d.sel = selector.New(selector.Config{
				DiversityBonus:          cfg.DiversityBonus,
				StabilityBonus:          cfg.StabilityBonus,
				CategoryContinuityBonus: cfg.CategoryContinuityBonus,
			}, log, d.selMetrics)
		}

		if d.client == nil {
			client, err := d.newClient(cfg)
			if err != nil {
				return err
			}
			d.client = client
		}
		// covers both the first start and a session the server revoked
		if !d.client.LoggedIn() {
			if err := d.client.Login(ctx); err != nil {
				log.ErrorContext(ctx, "quadstream login failed, retrying", "err", err, "retryIn", retryInterval)
				if !sleep(ctx, retryInterval) {
					return nil
				}
				continue
			}
		}

		done, err := d.cycle(ctx, cfg)
		if err != nil {
			log.ErrorContext(ctx, "cycle failed", "err", err)
			if !sleep(ctx, retryInterval) {
				return nil
			}
			continue
		}
		if done && d.opts.OneShot {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-watch:
			log.InfoContext(ctx, "config changed, starting cycle early")
		case <-time.After(d.opts.Interval):
		}
	}
}

// cycle runs one selection round. It reports whether a quad was
// actually built, which is what one-shot mode waits for.
func (d *Daemon) cycle(ctx context.Context, cfg *config.Config) (bool, error) {
	id := ulid.Make()
	log := logger.FromContext(ctx).With("cycle", id.String())
	ctx = logger.NewContext(ctx, log)

	candidates, err := d.feed.Candidates(ctx)
	if err != nil {
		return false, err
	}
	if len(candidates) == 0 {
		// keep the selector memory; the incumbents may only be
		// unreachable for a moment
		log.InfoContext(ctx, "no stream candidates available")
		return false, nil
	}

	quad := d.sel.BuildQuad(ctx, candidates)
	if quad.IsEmpty() {
		log.InfoContext(ctx, "quad is empty, skipping update")
		return false, nil
	}

	if !d.sel.Changed() {
		log.DebugContext(ctx, "quad unchanged, skipping update")
		return true, nil
	}

	if err := d.client.UpdateQuad(ctx, quad); err != nil {
		log.ErrorContext(ctx, "quadstream update failed", "err", err)
		return true, nil
	}

	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		if err := d.client.SendWebhook(ctx, cfg.Webhook.URL, &quad); err != nil {
			log.WarnContext(ctx, "webhook failed", "url", cfg.Webhook.URL, "err", err)
		}
	}

	return true, nil
}

// sleep waits for d or context cancellation, reporting false when the
// context ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
