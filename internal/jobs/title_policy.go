package jobs

import "strings"

// PlaceholderSentinel is the value some scrapers emit when a list page does
// not expose the real title.
const PlaceholderSentinel = "(unknown)"

// Default garbage-title substrings: listing-page boilerplate that was
// accidentally captured as a title by earlier scrapes.
var defaultGarbagePatterns = []string{
	"annonces trouv",
	"offres et demandes",
	"offres disponibles",
}

// TitlePolicy decides which stored titles are placeholders eligible for
// healing on a later sighting. The pattern list is configuration, not a set
// of buried literals, so the quality bar can be tuned per deployment.
type TitlePolicy struct {
	sentinel string
	patterns []string
}

// NewTitlePolicy builds a policy with the given extra garbage patterns on
// top of the defaults. Patterns match case-insensitively as substrings.
func NewTitlePolicy(extra ...string) TitlePolicy {
	patterns := make([]string, 0, len(defaultGarbagePatterns)+len(extra))
	for _, p := range defaultGarbagePatterns {
		patterns = append(patterns, strings.ToLower(p))
	}
	for _, p := range extra {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return TitlePolicy{sentinel: PlaceholderSentinel, patterns: patterns}
}

// IsPlaceholder reports whether a stored title should be replaced when a
// better one arrives.
func (tp TitlePolicy) IsPlaceholder(title string) bool {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" || trimmed == tp.sentinel {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, pattern := range tp.patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Heal returns the title a record should carry after a new sighting: the
// incoming title only when the stored one is a placeholder and the incoming
// one is not. A once-good title is never overwritten by later noise.
func (tp TitlePolicy) Heal(stored, incoming string) string {
	if tp.IsPlaceholder(stored) && !tp.IsPlaceholder(incoming) {
		return incoming
	}
	return stored
}
