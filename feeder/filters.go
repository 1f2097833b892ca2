package feeder

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.quadlink.org/quadlink"
	"go.quadlink.org/quadlink/config"
	"go.quadlink.org/quadlink/logger"
)

// RejectReason is a machine-readable filter rejection reason.
type RejectReason string

const (
	RejectCategoryAllowMiss  RejectReason = "CATEGORY_ALLOW_MISS"
	RejectCategoryBlockMatch RejectReason = "CATEGORY_BLOCK_MATCH"
	RejectTitleAllowMiss     RejectReason = "TITLE_ALLOW_MISS"
	RejectTitleBlockMatch    RejectReason = "TITLE_BLOCK_MATCH"
)

// Filter checks streams against the configured rulesets. Patterns are
// compiled once at construction; invalid patterns are skipped with a
// warning and never match.
type Filter struct {
	cfg      *config.Config
	patterns map[string]*regexp.Regexp
}

// NewFilter compiles all ruleset patterns.
func NewFilter(ctx context.Context, cfg *config.Config) *Filter {
	log := logger.FromContext(ctx)

	patterns := map[string]*regexp.Regexp{}
	compile := func(exprs []string) {
		for _, expr := range exprs {
			if _, done := patterns[expr]; done {
				continue
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				log.WarnContext(ctx, "invalid regex pattern", "pattern", expr, "err", err)
				re = nil
			}
			patterns[expr] = re
		}
	}
	for _, rs := range cfg.Rulesets {
		compile(rs.Filters.AllowCategories)
		compile(rs.Filters.AllowTitles)
		compile(rs.Filters.BlockCategories)
		compile(rs.Filters.BlockTitles)
	}

	return &Filter{cfg: cfg, patterns: patterns}
}

type attributedPattern struct {
	pattern string
	ruleset string
}

// Apply checks the stream against the named rulesets. For each of
// category and title: when any allow patterns exist the value must
// match one of them, otherwise block patterns reject on match. Returns
// the rejection reason and the ruleset(s) responsible.
func (f *Filter) Apply(stream *quadlink.Stream, rulesetNames []string) (bool, RejectReason, string) {
	var rulesets []*config.Ruleset
	for _, name := range rulesetNames {
		if rs := f.cfg.GetRuleset(name); rs != nil {
			rulesets = append(rulesets, rs)
		}
	}
	if len(rulesets) == 0 {
		return true, "", ""
	}

	var allowCategories, allowTitles, blockCategories, blockTitles []attributedPattern
	for _, rs := range rulesets {
		for _, p := range rs.Filters.AllowCategories {
			allowCategories = append(allowCategories, attributedPattern{p, rs.Name})
		}
		for _, p := range rs.Filters.AllowTitles {
			allowTitles = append(allowTitles, attributedPattern{p, rs.Name})
		}
		for _, p := range rs.Filters.BlockCategories {
			blockCategories = append(blockCategories, attributedPattern{p, rs.Name})
		}
		for _, p := range rs.Filters.BlockTitles {
			blockTitles = append(blockTitles, attributedPattern{p, rs.Name})
		}
	}

	category := stream.Metadata.Category
	title := stream.Metadata.Title

	if len(allowCategories) > 0 {
		if !f.matchesAny(category, allowCategories) {
			return false, RejectCategoryAllowMiss, sources(allowCategories)
		}
	} else if name := f.findMatch(category, blockCategories); name != "" {
		return false, RejectCategoryBlockMatch, name
	}

	if len(allowTitles) > 0 {
		if !f.matchesAny(title, allowTitles) {
			return false, RejectTitleAllowMiss, sources(allowTitles)
		}
	} else if name := f.findMatch(title, blockTitles); name != "" {
		return false, RejectTitleBlockMatch, name
	}

	return true, "", ""
}

func (f *Filter) matchesAny(text string, patterns []attributedPattern) bool {
	for _, ap := range patterns {
		if re := f.patterns[ap.pattern]; re != nil && re.MatchString(text) {
			return true
		}
	}
	return false
}

// findMatch returns the name of the ruleset whose pattern matched.
func (f *Filter) findMatch(text string, patterns []attributedPattern) string {
	for _, ap := range patterns {
		if re := f.patterns[ap.pattern]; re != nil && re.MatchString(text) {
			return ap.ruleset
		}
	}
	return ""
}

// sources lists the rulesets contributing to an allowlist miss.
func sources(patterns []attributedPattern) string {
	set := map[string]bool{}
	for _, ap := range patterns {
		set[ap.ruleset] = true
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
