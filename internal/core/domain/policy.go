package domain

import (
	"slices"
	"strings"
)

// WildcardOrigin allows any origin when credentials are not allowed.
const WildcardOrigin = "*"

// OriginPolicy is the process-wide cross-origin policy. It is built once at
// startup and only read afterwards.
type OriginPolicy struct {
	AllowedOrigins     []string
	CredentialsAllowed bool
	AllowedMethods     []string
	AllowedHeaders     []string
	ExposedHeaders     []string
	MaxAgeSeconds      int
}

// HasWildcard reports whether the allow-list contains the wildcard marker.
func (p *OriginPolicy) HasWildcard() bool {
	return slices.Contains(p.AllowedOrigins, WildcardOrigin)
}

// Permits reports whether origin may proceed. A wildcard only counts when
// credentials are not allowed.
func (p *OriginPolicy) Permits(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range p.AllowedOrigins {
		if allowed == WildcardOrigin {
			if !p.CredentialsAllowed {
				return true
			}
			continue
		}
		if allowed == origin {
			return true
		}
	}
	return false
}

// AliasMode selects how an alias rule is applied.
type AliasMode string

const (
	// AliasTransparent rewrites the path in-process; the client never sees it.
	AliasTransparent AliasMode = "transparent"
	// AliasRedirect answers with a permanent redirect to the rewritten path.
	AliasRedirect AliasMode = "redirect"
)

// AliasRule maps SourcePrefix onto TargetPrefix.
type AliasRule struct {
	SourcePrefix string
	TargetPrefix string
	Mode         AliasMode
}

// Matches reports whether path falls under the rule's source prefix on a
// segment boundary and is not already under the target prefix.
func (a AliasRule) Matches(path string) bool {
	return HasPathPrefix(path, a.SourcePrefix) && !HasPathPrefix(path, a.TargetPrefix)
}

// Rewrite replaces the source prefix of path with the target prefix.
func (a AliasRule) Rewrite(path string) string {
	return a.TargetPrefix + strings.TrimPrefix(path, a.SourcePrefix)
}

// HasPathPrefix reports whether path equals prefix or continues it with a
// '/' segment separator. "/admin" matches "/admin/x" but not "/administrator".
func HasPathPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
