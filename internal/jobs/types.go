// Package jobs defines the core posting and record types shared across the
// scraping, identity, extraction and scoring subsystems.
package jobs

import (
	"strings"
	"time"
)

// Posting is one job advertisement as seen during a single scrape pass,
// before durable identity assignment. ExternalID is the identifier the
// source itself uses; adapters fall back to the posting URL when the source
// has no stable ID. Title must be an empty string, not a placeholder, when
// unknown.
type Posting struct {
	Source     string
	ExternalID string
	Title      string
	Company    string
	Location   string
	URL        string
	PostedAt   *time.Time
}

// Fingerprint returns a stable fallback correlation key built from all
// fields. It is not the primary key; identity is (Source, ExternalID).
func (p Posting) Fingerprint() string {
	parts := []string{
		p.Source,
		p.ExternalID,
		p.Title,
		p.Company,
		p.Location,
		p.URL,
	}
	for i, part := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(part))
	}
	return strings.Join(parts, "|")
}

// Record is the persisted form of a posting. A record is created on the
// first sighting of a (Source, ExternalID) pair and only ever touched after
// that: LastSeenAt advances on every sighting and metadata may be healed,
// but records are never deleted. FirstSeenAt <= LastSeenAt always holds.
type Record struct {
	Source      string
	ExternalID  string
	Title       string
	Company     string
	Location    string
	URL         string
	PostedAt    *time.Time
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}
