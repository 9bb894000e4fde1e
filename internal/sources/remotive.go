package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wfekih/jobradar/internal/jobs"
)

// RemotiveConfig controls the Remotive public-API adapter. Remotive notes
// that public API results can lag by about a day.
type RemotiveConfig struct {
	APIURL    string
	UserAgent string
	Timeout   time.Duration
}

// Remotive scrapes remote postings from Remotive's JSON API.
type Remotive struct {
	cfg    RemotiveConfig
	client *http.Client
}

// NewRemotive builds the adapter.
func NewRemotive(cfg RemotiveConfig) *Remotive {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://remotive.com/api/remote-jobs"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Remotive{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Name implements Adapter.
func (r *Remotive) Name() string { return "remotive" }

type remotiveJob struct {
	ID              json.Number `json:"id"`
	URL             string      `json:"url"`
	Title           string      `json:"title"`
	CompanyName     string      `json:"company_name"`
	Location        string      `json:"candidate_required_location"`
	PublicationDate string      `json:"publication_date"`
}

type remotiveResponse struct {
	Jobs []remotiveJob `json:"jobs"`
}

// Scrape implements Adapter.
func (r *Remotive) Scrape(ctx context.Context) ([]jobs.Posting, string, error) {
	const dateLabel = "api (may be delayed ~24h)"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.APIURL, nil)
	if err != nil {
		return nil, dateLabel, fmt.Errorf("build remotive request: %w", err)
	}
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, dateLabel, fmt.Errorf("fetch remotive: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, dateLabel, fmt.Errorf("remotive status %d", resp.StatusCode)
	}

	var payload remotiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, dateLabel, fmt.Errorf("decode remotive response: %w", err)
	}

	out := make([]jobs.Posting, 0, len(payload.Jobs))
	for _, j := range payload.Jobs {
		url := strings.TrimSpace(j.URL)
		if url == "" {
			continue
		}
		id := strings.TrimSpace(j.ID.String())
		if id == "" {
			id = url
		}
		location := strings.TrimSpace(j.Location)
		if location == "" {
			location = "remote"
		}
		out = append(out, jobs.Posting{
			Source:     r.Name(),
			ExternalID: id,
			Title:      strings.TrimSpace(j.Title),
			Company:    strings.TrimSpace(j.CompanyName),
			Location:   location,
			URL:        url,
			PostedAt:   parseISOTime(j.PublicationDate),
		})
	}
	return out, dateLabel, nil
}

// parseISOTime handles Remotive's naive ISO timestamps as well as proper
// RFC 3339. Unparseable values come back nil rather than failing the batch.
func parseISOTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
