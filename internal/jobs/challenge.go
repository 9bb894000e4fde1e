package jobs

import "strings"

// Markers that identify anti-bot interstitials and block pages in extracted
// body text. Matching is case-insensitive substring.
var challengeMarkers = []string{
	"just a moment",
	"verifying you are human",
	"cloudflare",
	"access denied",
	"blocked",
	"captcha",
}

// LooksBlocked reports whether extracted page text reads like a challenge or
// block page rather than real content. Empty text is not blocked; it is a
// separate terminal state.
func LooksBlocked(text string) bool {
	t := strings.ToLower(text)
	if t == "" {
		return false
	}
	for _, m := range challengeMarkers {
		if strings.Contains(t, m) {
			return true
		}
	}
	return false
}
