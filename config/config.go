// Package config loads and validates the quadlink YAML configuration.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"go.quadlink.org/quadlink/logger"
)

// Credentials for the QuadStream API. Username and secret can be
// inline, read from a file (either "username:secret" or the secret
// alone), or taken from the QL_USERNAME/QL_SECRET environment.
type Credentials struct {
	Username string `yaml:"username"`
	Secret   string `yaml:"secret"`
	File     string `yaml:"file"`
}

// Filters are regex patterns applied to stream categories and titles.
// Allow patterns, when present for a field, take precedence over the
// block patterns for that field.
type Filters struct {
	AllowCategories []string `yaml:"allow_categories"`
	AllowTitles     []string `yaml:"allow_titles"`
	BlockCategories []string `yaml:"block_categories"`
	BlockTitles     []string `yaml:"block_titles"`
}

// Ruleset is a named collection of filters referenced by stream groups.
type Ruleset struct {
	Name    string  `yaml:"name"`
	Filters Filters `yaml:"filters"`
}

// StreamGroup is a set of channels sharing a priority level and rulesets.
type StreamGroup struct {
	URLs     []string `yaml:"urls"`
	Rulesets []string `yaml:"rulesets"`
}

// Webhook notification settings.
type Webhook struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Timeout int    `yaml:"timeout"`
}

// Logging settings.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the main application configuration.
type Config struct {
	Credentials Credentials           `yaml:"credentials"`
	Rulesets    []Ruleset             `yaml:"rulesets"`
	Priorities  map[int][]StreamGroup `yaml:"priorities"`

	DiversityBonus          int `yaml:"diversity_bonus"`
	StabilityBonus          int `yaml:"stability_bonus"`
	CategoryContinuityBonus int `yaml:"category_continuity_bonus"`

	SkipHosted   bool `yaml:"skip_hosted"`
	HostedOffset int  `yaml:"hosted_offset"`

	Webhook Webhook `yaml:"webhook"`
	Logging Logging `yaml:"logging"`

	ProxyPlaylist string `yaml:"proxy_playlist"`
	LowLatency    bool   `yaml:"low_latency"`
}

var validLogFormats = map[string]bool{"json": true, "text": true, "console": true}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true,
	"warning": true, "error": true, "critical": true,
}

func defaults() Config {
	return Config{
		DiversityBonus:          25,
		StabilityBonus:          30,
		CategoryContinuityBonus: 10,
		SkipHosted:              true,
		HostedOffset:            50,
		Webhook:                 Webhook{Timeout: 10},
		Logging:                 Logging{Level: "info", Format: "json"},
		ProxyPlaylist:           "https://eu.luminous.dev",
		LowLatency:              true,
	}
}

// Parse unmarshals a YAML config and validates it.
func Parse(ctx context.Context, data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(ctx); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate(ctx context.Context) error {
	log := logger.FromContext(ctx)

	if err := cfg.Credentials.resolve(); err != nil {
		return err
	}

	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level %q", cfg.Logging.Level)
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if !validLogFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid log format %q", cfg.Logging.Format)
	}

	// A stable incumbent must win a priority tie against a
	// newly-diverse candidate, otherwise the quad oscillates between
	// them every cycle. Adjust rather than fail.
	if cfg.StabilityBonus < cfg.DiversityBonus+1 {
		adjusted := cfg.DiversityBonus + 1
		log.WarnContext(ctx, "adjusted stability_bonus to prevent oscillation",
			"configured", cfg.StabilityBonus,
			"adjusted", adjusted,
			"diversity_bonus", cfg.DiversityBonus)
		cfg.StabilityBonus = adjusted
	}

	return nil
}

func (c *Credentials) resolve() error {
	if c.File != "" {
		path := c.File
		if strings.HasPrefix(path, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("read credentials from %s: %w", c.File, err)
			}
			path = filepath.Join(home, path[2:])
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read credentials from %s: %w", c.File, err)
		}
		text := strings.TrimSpace(string(content))
		if username, secret, ok := strings.Cut(text, ":"); ok {
			c.Username = username
			c.Secret = secret
		} else {
			// secret only; username must come from config or env
			c.Secret = text
		}
	}

	if v := os.Getenv("QL_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("QL_SECRET"); v != "" {
		c.Secret = v
	}

	if c.Username == "" || c.Secret == "" {
		return fmt.Errorf("both username and secret required (inline, via 'file', or QL_USERNAME/QL_SECRET)")
	}

	return nil
}

// GetRuleset returns the named ruleset, or nil when not configured.
func (cfg *Config) GetRuleset(name string) *Ruleset {
	for i := range cfg.Rulesets {
		if cfg.Rulesets[i].Name == name {
			return &cfg.Rulesets[i]
		}
	}
	return nil
}
