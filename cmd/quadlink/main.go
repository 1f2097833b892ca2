package main

import (
	"context"
	"fmt"
	"time"

	rootcmd "go.quadlink.org/quadlink/cmd"
	"go.quadlink.org/quadlink/config"
	"go.quadlink.org/quadlink/daemon"
	"go.quadlink.org/quadlink/feeder"
	"go.quadlink.org/quadlink/logger"
	"go.quadlink.org/quadlink/selector"
	"go.quadlink.org/quadlink/version"
)

// CLI is the quadlink command tree.
type CLI struct {
	Config string `help:"Path to config.yaml (default: search standard paths)" type:"path"`

	Server  ServerCmd  `cmd:"" help:"Run the curation daemon continuously"`
	Once    OnceCmd    `cmd:"" help:"Run a single cycle and exit"`
	Check   CheckCmd   `cmd:"" help:"Resolve candidates and print the selection without updating"`
	Version VersionCmd `cmd:"" help:"Print version and build information"`
}

type (
	ServerCmd struct {
		Interval   time.Duration `default:"30s" help:"Time between quad updates"`
		HealthPort int           `default:"8080" help:"Health and metrics server port"`
	}
	OnceCmd struct {
		Interval time.Duration `default:"30s" help:"Retry pacing for a failed cycle"`
	}
	CheckCmd   struct{}
	VersionCmd struct{}
)

func main() {
	rootcmd.Run(&CLI{}, "quadlink", "curate four live streams into a quad layout")
}

func (cmd ServerCmd) Run(ctx context.Context, cli *CLI) error {
	d := daemon.New(daemon.Options{
		ConfigPath: cli.Config,
		Interval:   cmd.Interval,
		HealthPort: cmd.HealthPort,
	})
	return d.Run(logger.NewContext(ctx, logger.Setup()))
}

func (cmd OnceCmd) Run(ctx context.Context, cli *CLI) error {
	d := daemon.New(daemon.Options{
		ConfigPath: cli.Config,
		Interval:   cmd.Interval,
		OneShot:    true,
	})
	return d.Run(logger.NewContext(ctx, logger.Setup()))
}

// Run resolves the configured channels and prints the quad that one
// cycle would produce, without logging in or pushing anything.
func (cmd CheckCmd) Run(ctx context.Context, cli *CLI) error {
	log := logger.Setup()
	ctx = logger.NewContext(ctx, log)

	cfg, err := config.NewLoader(cli.Config).Load(ctx)
	if err != nil {
		return err
	}

	resolver := feeder.NewTwitchResolver(cfg.ProxyPlaylist, cfg.LowLatency)
	feed := feeder.New(ctx, cfg, resolver)

	candidates, err := feed.Candidates(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("no stream candidates available")
		return nil
	}

	sel := selector.New(selector.Config{
		DiversityBonus:          cfg.DiversityBonus,
		StabilityBonus:          cfg.StabilityBonus,
		CategoryContinuityBonus: cfg.CategoryContinuityBonus,
	}, log, nil)

	quad := sel.BuildQuad(ctx, candidates)
	for i, url := range quad.Slots() {
		if url == "" {
			url = "(empty)"
		}
		fmt.Printf("stream%d: %s\n", i+1, url)
	}
	return nil
}

func (cmd VersionCmd) Run(ctx context.Context, cli *CLI) error {
	fmt.Printf("quadlink %s\n", version.Version())
	return nil
}
