package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wfekih/jobradar/internal/jobs"
)

// RemoteOKConfig controls the RemoteOK RSS adapter.
type RemoteOKConfig struct {
	FeedURL   string
	UserAgent string
	Timeout   time.Duration
}

// RemoteOK scrapes RemoteOK's public RSS feed. The feed carries far fewer
// fields than the site itself, so locations are always "remote" and the
// item link doubles as the external ID.
type RemoteOK struct {
	cfg    RemoteOKConfig
	client *http.Client
}

// NewRemoteOK builds the adapter.
func NewRemoteOK(cfg RemoteOKConfig) *RemoteOK {
	if cfg.FeedURL == "" {
		cfg.FeedURL = "https://remoteok.com/remote-jobs.rss"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &RemoteOK{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Name implements Adapter.
func (r *RemoteOK) Name() string { return "remoteok" }

type remoteokItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	Company string `xml:"company"`
	PubDate string `xml:"pubDate"`
}

type remoteokFeed struct {
	Items []remoteokItem `xml:"channel>item"`
}

// Scrape implements Adapter.
func (r *RemoteOK) Scrape(ctx context.Context) ([]jobs.Posting, string, error) {
	const dateLabel = "rss"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.FeedURL, nil)
	if err != nil {
		return nil, dateLabel, fmt.Errorf("build remoteok request: %w", err)
	}
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, dateLabel, fmt.Errorf("fetch remoteok feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, dateLabel, fmt.Errorf("remoteok status %d", resp.StatusCode)
	}

	var feed remoteokFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, dateLabel, fmt.Errorf("decode remoteok feed: %w", err)
	}

	out := make([]jobs.Posting, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		out = append(out, jobs.Posting{
			Source:     r.Name(),
			ExternalID: link,
			Title:      strings.TrimSpace(item.Title),
			Company:    strings.TrimSpace(item.Company),
			Location:   "remote",
			URL:        link,
			PostedAt:   parseRFC2822Time(item.PubDate),
		})
	}
	return out, dateLabel, nil
}

// parseRFC2822Time parses RSS pubDate values, with and without a numeric
// zone. Unparseable values come back nil.
func parseRFC2822Time(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
