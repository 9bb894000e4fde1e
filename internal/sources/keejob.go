package sources

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/wfekih/jobradar/internal/clock"
	"github.com/wfekih/jobradar/internal/jobs"
)

const keejobBase = "https://www.keejob.com"

var (
	keejobIDRE   = regexp.MustCompile(`^/offres-emploi/(\d+)/`)
	keejobDateRE = regexp.MustCompile(`(?i)\b(\d{1,2})\s+([a-zéûôîàç]+)\s+(\d{4})\b`)

	frenchMonths = [...]string{
		"janvier", "février", "mars", "avril", "mai", "juin",
		"juillet", "août", "septembre", "octobre", "novembre", "décembre",
	}
)

// KeejobConfig controls the Keejob listing scraper.
type KeejobConfig struct {
	// ListURLTemplate takes one %d verb for the page number.
	ListURLTemplate string
	MaxPages        int
	Timeout         time.Duration

	// TodayOnly keeps only postings stamped with today's date label and
	// stops paging at the first page without one.
	TodayOnly bool

	UserAgent string
}

// Keejob scrapes the Keejob listing pages. Postings carry no usable
// timestamp beyond a French day label, so PostedAt stays nil and the
// date label only drives the today-only cutoff.
type Keejob struct {
	cfg   KeejobConfig
	clock clock.Clock
	base  *colly.Collector
}

// NewKeejob builds the adapter. clk may be nil for the system clock.
func NewKeejob(cfg KeejobConfig, clk clock.Clock) *Keejob {
	if cfg.ListURLTemplate == "" {
		cfg.ListURLTemplate = keejobBase + "/offres-emploi/?search=1&page=%d"
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Keejob{cfg: cfg, clock: clk, base: colly.NewCollector(colly.Async(false))}
}

// Name implements Adapter.
func (k *Keejob) Name() string { return "keejob" }

type keejobListing struct {
	id       string
	title    string
	company  string
	location string
	date     string
	url      string
}

// Scrape implements Adapter. Pages are walked in order until an empty
// page, the page cap, or (with TodayOnly) a page with no posting stamped
// today.
func (k *Keejob) Scrape(ctx context.Context) ([]jobs.Posting, string, error) {
	todayFR := k.todayLabel()

	var out []jobs.Posting
	for page := 1; page <= k.cfg.MaxPages; page++ {
		listings, err := k.scrapePage(ctx, page)
		if err != nil {
			return nil, todayFR, fmt.Errorf("keejob page %d: %w", page, err)
		}
		if len(listings) == 0 {
			break
		}

		if k.cfg.TodayOnly {
			anyToday := false
			for _, l := range listings {
				if l.date == todayFR {
					anyToday = true
					break
				}
			}
			if !anyToday {
				break
			}
		}

		for _, l := range listings {
			if k.cfg.TodayOnly && l.date != todayFR {
				continue
			}
			out = append(out, jobs.Posting{
				Source:     k.Name(),
				ExternalID: l.id,
				Title:      l.title,
				Company:    l.company,
				Location:   l.location,
				URL:        l.url,
			})
		}
	}
	return out, todayFR, nil
}

func (k *Keejob) scrapePage(ctx context.Context, page int) ([]keejobListing, error) {
	var (
		listings []keejobListing
		fetchErr error
	)

	c := k.base.Clone()
	if k.cfg.UserAgent != "" {
		c.UserAgent = k.cfg.UserAgent
	}
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(k.cfg.Timeout)
	c.OnHTML("article", func(e *colly.HTMLElement) {
		if l, ok := parseListing(e.DOM, e.Request.URL); ok {
			listings = append(listings, l)
		}
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	pageURL := fmt.Sprintf(k.cfg.ListURLTemplate, page)
	done := make(chan error, 1)
	go func() {
		done <- c.Visit(pageURL)
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, err
		}
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	return listings, nil
}

// parseListing pulls one posting out of a listing card. Keejob puts the
// location on the line right before the date label, so it is recovered
// positionally from the card's text lines.
func parseListing(sel *goquery.Selection, pageURL *url.URL) (keejobListing, bool) {
	titleA := sel.Find("h2 a").First()
	if titleA.Length() == 0 {
		return keejobListing{}, false
	}
	href, _ := titleA.Attr("href")
	m := keejobIDRE.FindStringSubmatch(href)
	if m == nil {
		return keejobListing{}, false
	}

	l := keejobListing{
		id:    m[1],
		title: strings.TrimSpace(titleA.Text()),
		url:   resolveListingURL(pageURL, href),
	}

	sel.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		h, _ := a.Attr("href")
		if !strings.HasPrefix(h, "/offres-emploi/companies/") {
			return true
		}
		if t := strings.TrimSpace(a.Text()); t != "" {
			l.company = t
			return false
		}
		return true
	})

	lines := cardLines(sel)
	dateIdx := -1
	for i, line := range lines {
		if keejobDateRE.MatchString(line) {
			l.date = line
			dateIdx = i
		}
	}
	if dateIdx > 0 {
		l.location = lines[dateIdx-1]
	}
	return l, true
}

// cardLines flattens a card into trimmed, non-empty text lines, one per
// element, mirroring how the listing renders visually.
func cardLines(sel *goquery.Selection) []string {
	var b strings.Builder
	sel.Find("*").Each(func(_ int, el *goquery.Selection) {
		if el.Children().Length() > 0 {
			return
		}
		b.WriteString(strings.TrimSpace(el.Text()))
		b.WriteByte('\n')
	})

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func resolveListingURL(pageURL *url.URL, href string) string {
	href, _, _ = strings.Cut(href, "?")
	if pageURL != nil {
		if ref, err := url.Parse(href); err == nil {
			return pageURL.ResolveReference(ref).String()
		}
	}
	return keejobBase + href
}

// todayLabel renders today's date the way Keejob stamps listings,
// in Tunisia time (UTC+1).
func (k *Keejob) todayLabel() string {
	now := k.clock.Now().In(time.FixedZone("CET", 3600))
	return fmt.Sprintf("%d %s %d", now.Day(), frenchMonths[now.Month()-1], now.Year())
}
