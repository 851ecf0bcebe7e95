package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the cross-field rules that must hold
// before the pipeline is built. Any failure aborts startup.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Errorf("config %s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.Join(msgs...)
		}
		return fmt.Errorf("validate config: %w", err)
	}

	if c.CORS.AllowCredentials && slices.Contains(c.CORS.AllowedOrigins, domain.WildcardOrigin) {
		return errors.New("config cors: wildcard origin cannot be combined with allow_credentials")
	}

	if err := c.validateAliases(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Routes))
	for _, rg := range c.Routes {
		if seen[rg.Prefix] {
			return fmt.Errorf("config routes: duplicate prefix %q", rg.Prefix)
		}
		seen[rg.Prefix] = true
	}

	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return errors.New("config storage: sqlite.path required")
		}
	case "postgres":
		if c.Storage.Database.DSN == "" {
			return errors.New("config storage: database.dsn required for postgres")
		}
	}

	return nil
}

func (c *Config) validateAliases() error {
	sources := make(map[string]bool, len(c.Aliases.Rules))
	for _, rule := range c.Aliases.Rules {
		// Two rules with the same source would tie on specificity.
		if sources[rule.Source] {
			return fmt.Errorf("config aliases: duplicate source prefix %q", rule.Source)
		}
		sources[rule.Source] = true

		if domain.HasPathPrefix(rule.Target, rule.Source) {
			return fmt.Errorf("config aliases: target %q falls under source %q and would loop", rule.Target, rule.Source)
		}
	}
	return nil
}

// OriginPolicy builds the immutable origin policy.
func (c *Config) OriginPolicy() *domain.OriginPolicy {
	return &domain.OriginPolicy{
		AllowedOrigins:     slices.Clone(c.CORS.AllowedOrigins),
		CredentialsAllowed: c.CORS.AllowCredentials,
		AllowedMethods:     slices.Clone(c.CORS.AllowedMethods),
		AllowedHeaders:     slices.Clone(c.CORS.AllowedHeaders),
		ExposedHeaders:     slices.Clone(c.CORS.ExposedHeaders),
		MaxAgeSeconds:      c.CORS.MaxAge,
	}
}

// AliasRules builds the alias rule set. All rules share the deployment's mode.
func (c *Config) AliasRules() []domain.AliasRule {
	mode := domain.AliasMode(c.Aliases.Mode)
	rules := make([]domain.AliasRule, 0, len(c.Aliases.Rules))
	for _, r := range c.Aliases.Rules {
		rules = append(rules, domain.AliasRule{
			SourcePrefix: r.Source,
			TargetPrefix: r.Target,
			Mode:         mode,
		})
	}
	return rules
}

// MissingSecrets lists settings the payment and domain collaborators need
// but that were left empty. They are reported, not enforced.
func (c *Config) MissingSecrets() []string {
	var missing []string
	if c.Payment.WebhookSecret == "" {
		missing = append(missing, "payment.webhook_secret")
	}
	if c.Domain.UpstreamURL == "" {
		for _, rg := range c.Routes {
			if rg.Upstream == "" {
				missing = append(missing, "domain.upstream_url")
				break
			}
		}
	}
	return missing
}
