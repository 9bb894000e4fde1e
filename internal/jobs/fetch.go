package jobs

import "time"

// FetchStatus is the terminal state of one text-extraction attempt. Fetch
// functions return it as data; per-URL failures are never raised as errors.
type FetchStatus string

// Terminal fetch states persisted in the text cache.
const (
	FetchOK      FetchStatus = "ok"
	FetchBlocked FetchStatus = "blocked"
	FetchEmpty   FetchStatus = "empty"
	FetchError   FetchStatus = "error"
)

// FetchMethod records which transport produced a cache entry.
type FetchMethod string

// Transports used by the extraction engine.
const (
	MethodHTTP       FetchMethod = "http"
	MethodCDP        FetchMethod = "cdp"
	MethodCDPOpenTab FetchMethod = "cdp-open-tab"
)

// TextEntry is one row of the text cache, keyed by canonical URL. At most
// one row exists per canonical URL; refetches overwrite in place.
type TextEntry struct {
	URLCanon  string
	URL       string
	Text      string
	Method    FetchMethod
	Status    FetchStatus
	FetchedAt time.Time
	Error     string
}

// Satisfied reports whether a cached entry already carries usable text, so
// extraction can skip the URL when not refreshing.
func (e TextEntry) Satisfied() bool {
	return e.Status == FetchOK && e.Text != ""
}

// Decision is the LLM screening verdict for a posting.
type Decision string

// Screening verdicts.
const (
	DecisionYes   Decision = "yes"
	DecisionMaybe Decision = "maybe"
	DecisionNo    Decision = "no"
)

// ScoreEntry is one row of the score cache, keyed by canonical URL (the raw
// URL is retained for spreadsheet matching). Reasons is kept to a single
// short line for spreadsheet use.
type ScoreEntry struct {
	URLCanon  string
	URL       string
	Score     float64
	Decision  Decision
	Reasons   []string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
