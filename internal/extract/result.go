// Package extract turns posting URLs into cached readable text. Every URL
// ends in exactly one terminal state; failures are recorded, not raised.
package extract

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wfekih/jobradar/internal/jobs"
)

// Result is the outcome of one fetch attempt against one URL. Status is
// always set; Err carries detail only for blocked and error outcomes.
type Result struct {
	URL    string
	Text   string
	Method jobs.FetchMethod
	Status jobs.FetchStatus
	Err    string
	// Duration covers the transport attempt that produced this outcome.
	Duration time.Duration
}

// HTTP status codes treated as bot blocks rather than plain errors. They
// route the URL to the browser fallback.
var blockedStatusCodes = map[int]struct{}{
	403: {},
	429: {},
	503: {},
	520: {},
	522: {},
	523: {},
	524: {},
}

// BlockedStatusCode reports whether an HTTP status signals a bot block.
func BlockedStatusCode(code int) bool {
	_, ok := blockedStatusCodes[code]
	return ok
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// CleanText collapses runs of whitespace to single spaces and trims.
func CleanText(text string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " "))
}

// Truncate caps text at maxChars bytes. A cap landing inside a multi-byte
// rune backs up to the previous rune boundary so the result stays valid
// UTF-8. maxChars <= 0 disables the cap.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// Classify assigns the terminal state for fetched text. Challenge markers
// win over length: a short block page is blocked, not empty.
func Classify(text string, minChars int) jobs.FetchStatus {
	if jobs.LooksBlocked(text) {
		return jobs.FetchBlocked
	}
	if len(text) < minChars {
		return jobs.FetchEmpty
	}
	return jobs.FetchOK
}
