package auth

import (
	"strings"

	"github.com/chordmind/apigw/internal/util"
)

// PublicPaths matches request paths that bypass authentication.
type PublicPaths struct {
	prefixes []string
}

// NewPublicPaths creates a matcher. Prefixes match whole path segments:
// "/health" covers "/health" and "/health/services" but not "/healthz".
func NewPublicPaths(prefixes []string) *PublicPaths {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return &PublicPaths{prefixes: cleaned}
}

// Match reports whether path is public. A path with "." or ".." segments
// is never public: the backend may resolve it to a protected resource.
func (p *PublicPaths) Match(path string) bool {
	if util.HasDotSegment(path) {
		return false
	}
	for _, prefix := range p.prefixes {
		if util.PathHasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Prefixes returns a copy of the configured prefixes.
func (p *PublicPaths) Prefixes() []string {
	return append([]string(nil), p.prefixes...)
}
