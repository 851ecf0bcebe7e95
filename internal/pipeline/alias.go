package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
)

// AliasStage maps alias path prefixes onto their canonical prefixes. At most
// one rule applies per request: the one with the longest source prefix.
type AliasStage struct {
	rules          []domain.AliasRule
	redirectStatus int
	logger         *slog.Logger
}

// NewAliasStage creates the alias stage. All rules must share one mode, and
// source prefixes must be unique; violations are configuration errors.
func NewAliasStage(rules []domain.AliasRule, redirectStatus int, logger *slog.Logger) (*AliasStage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if redirectStatus == 0 {
		redirectStatus = http.StatusPermanentRedirect
	}
	if redirectStatus != http.StatusMovedPermanently && redirectStatus != http.StatusPermanentRedirect {
		return nil, fmt.Errorf("alias redirect status %d must be 301 or 308", redirectStatus)
	}

	sorted := make([]domain.AliasRule, len(rules))
	for i, rule := range rules {
		rule.SourcePrefix = trimTrailingSlash(rule.SourcePrefix)
		rule.TargetPrefix = trimTrailingSlash(rule.TargetPrefix)
		sorted[i] = rule
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].SourcePrefix) > len(sorted[j].SourcePrefix)
	})

	seen := make(map[string]bool, len(sorted))
	for i, rule := range sorted {
		if rule.Mode != domain.AliasTransparent && rule.Mode != domain.AliasRedirect {
			return nil, fmt.Errorf("alias %q: unknown mode %q", rule.SourcePrefix, rule.Mode)
		}
		if i > 0 && rule.Mode != sorted[0].Mode {
			return nil, fmt.Errorf("alias %q: mode %q mixes with %q", rule.SourcePrefix, rule.Mode, sorted[0].Mode)
		}
		if seen[rule.SourcePrefix] {
			return nil, fmt.Errorf("alias %q: duplicate source prefix", rule.SourcePrefix)
		}
		seen[rule.SourcePrefix] = true
		if domain.HasPathPrefix(rule.TargetPrefix, rule.SourcePrefix) {
			return nil, fmt.Errorf("alias %q: target %q would loop", rule.SourcePrefix, rule.TargetPrefix)
		}
	}

	return &AliasStage{rules: sorted, redirectStatus: redirectStatus, logger: logger}, nil
}

// Name implements ports.Stage.
func (s *AliasStage) Name() string { return "alias" }

// Rules returns the rules in match order.
func (s *AliasStage) Rules() []domain.AliasRule {
	out := make([]domain.AliasRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Process implements ports.Stage.
func (s *AliasStage) Process(ctx context.Context, rc *domain.RequestContext) (*ports.StageOutput, error) {
	for _, rule := range s.rules {
		if !rule.Matches(rc.CanonicalPath) {
			continue
		}

		rewritten := rule.Rewrite(rc.CanonicalPath)

		if rule.Mode == domain.AliasRedirect {
			location := rewritten
			if rc.RawQuery != "" {
				location += "?" + rc.RawQuery
			}
			s.logger.DebugContext(ctx, "redirecting alias path",
				slog.String("request_id", rc.RequestID),
				slog.String("from", rc.CanonicalPath),
				slog.String("to", location),
			)
			return ports.Respond(&ports.Response{
				Status: s.redirectStatus,
				Header: http.Header{"Location": {location}},
			}), nil
		}

		s.logger.DebugContext(ctx, "rewrote alias path",
			slog.String("request_id", rc.RequestID),
			slog.String("from", rc.CanonicalPath),
			slog.String("to", rewritten),
		)
		rc.CanonicalPath = rewritten
		return ports.Continue(), nil
	}

	return ports.Continue(), nil
}
