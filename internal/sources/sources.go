// Package sources holds the per-site scraper adapters. Each adapter
// normalizes one job board into postings; identity assignment and
// filtering happen downstream.
package sources

import (
	"context"

	"github.com/wfekih/jobradar/internal/jobs"
)

// Adapter scrapes one source. ExternalID must be unique and stable within
// the source; adapters fall back to the posting URL when the site exposes
// no real ID. Title is an empty string, never a placeholder, when unknown.
// The date label describes the batch's freshness for the sheet's
// date_added column ("15 mars 2025", "rss", ...).
type Adapter interface {
	Name() string
	Scrape(ctx context.Context) (postings []jobs.Posting, dateLabel string, err error)
}
