// Package sheets defines the spreadsheet collaborator the pipeline writes
// postings into. The transport to a real spreadsheet lives outside this
// module; here is the fixed row schema plus an in-memory implementation
// used for tests and dry runs.
package sheets

import (
	"context"
	"strconv"
	"strings"

	"github.com/wfekih/jobradar/internal/jobs"
)

// Column order of the jobs tab, A through L.
var Header = []string{
	"source",
	"labels",
	"title",
	"company",
	"location",
	"date_added",
	"url",
	"decision",
	"notes",
	"llm_score",
	"llm_decision",
	"llm_reasons",
}

// Row is one jobs-tab row. All fields are strings because the sheet is
// the system of record humans edit by hand.
type Row struct {
	Source      string
	Labels      string
	Title       string
	Company     string
	Location    string
	DateAdded   string
	URL         string
	Decision    string
	Notes       string
	LLMScore    string
	LLMDecision string
	LLMReasons  string
}

// NeedsScore reports whether the row is waiting on an LLM verdict.
func (r Row) NeedsScore() bool {
	return strings.TrimSpace(r.URL) != "" && strings.TrimSpace(r.LLMScore) == ""
}

// Values renders the row in column order A..L.
func (r Row) Values() []string {
	return []string{
		r.Source, r.Labels, r.Title, r.Company, r.Location, r.DateAdded,
		r.URL, r.Decision, r.Notes, r.LLMScore, r.LLMDecision, r.LLMReasons,
	}
}

// RowFromValues builds a row from a possibly short value slice, the way
// spreadsheet APIs return trailing-empty rows.
func RowFromValues(values []string) Row {
	at := func(i int) string {
		if i < len(values) {
			return values[i]
		}
		return ""
	}
	return Row{
		Source:      at(0),
		Labels:      at(1),
		Title:       at(2),
		Company:     at(3),
		Location:    at(4),
		DateAdded:   at(5),
		URL:         at(6),
		Decision:    at(7),
		Notes:       at(8),
		LLMScore:    at(9),
		LLMDecision: at(10),
		LLMReasons:  at(11),
	}
}

// ScoreUpdate carries one LLM verdict into the sheet's J:L columns,
// matched to a row by exact URL.
type ScoreUpdate struct {
	URL      string
	Score    float64
	Decision jobs.Decision
	Reasons  string
}

// Sheet is the narrow spreadsheet contract the pipeline needs.
type Sheet interface {
	// Rows returns the data rows in sheet order, header excluded.
	Rows(ctx context.Context) ([]Row, error)
	Append(ctx context.Context, rows []Row) error
	// UpdateScores writes verdicts into matching rows and reports how
	// many rows changed. URLs with no matching row are skipped.
	UpdateScores(ctx context.Context, updates []ScoreUpdate) (int, error)
}

// FormatScore renders a score the way it should appear in the sheet.
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
