package extract

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/wfekih/jobradar/internal/jobs"
)

// HTTPConfig controls the plain-HTTP fetch path.
type HTTPConfig struct {
	UserAgent    string
	Timeout      time.Duration
	ProbeTimeout time.Duration
	MaxChars     int
	MinTextChars int
}

// HTTPFetcher fetches posting pages over plain HTTP using a Colly collector
// and strips them down to readable text.
type HTTPFetcher struct {
	cfg  HTTPConfig
	base *colly.Collector
}

// NewHTTPFetcher builds a fetcher with a pooled transport shared by clones.
func NewHTTPFetcher(cfg HTTPConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 4 * time.Second
	}
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = 200
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &HTTPFetcher{cfg: cfg, base: c}
}

// Fetch GETs one URL and returns its terminal outcome. Transport failures
// and HTTP errors come back as data on the Result, never as a panic path:
// blocked status codes mark the URL for the browser fallback.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) Result {
	var (
		statusCode int
		body       []byte
		fetchErr   error
	)

	c := f.newCollector(f.cfg.Timeout)
	c.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	if err := f.run(ctx, func() error { return c.Visit(rawURL) }); err != nil {
		fetchErr = err
	}

	switch {
	case fetchErr != nil && statusCode == 0:
		return Result{URL: rawURL, Method: jobs.MethodHTTP, Status: jobs.FetchError, Err: fetchErr.Error()}
	case BlockedStatusCode(statusCode):
		return Result{URL: rawURL, Method: jobs.MethodHTTP, Status: jobs.FetchBlocked, Err: fmt.Sprintf("http %d", statusCode)}
	case statusCode >= 400:
		return Result{URL: rawURL, Method: jobs.MethodHTTP, Status: jobs.FetchError, Err: fmt.Sprintf("http %d", statusCode)}
	}

	text := Truncate(CleanText(htmlToText(body)), f.cfg.MaxChars)
	return Result{URL: rawURL, Text: text, Method: jobs.MethodHTTP, Status: Classify(text, f.cfg.MinTextChars)}
}

// SeemsCloudflare HEADs a URL and reports whether the responding server
// looks like it sits behind Cloudflare. Probe failures report false; the
// URL then just takes the normal HTTP-first path.
func (f *HTTPFetcher) SeemsCloudflare(ctx context.Context, rawURL string) bool {
	var header http.Header

	c := f.newCollector(f.cfg.ProbeTimeout)
	c.OnResponse(func(r *colly.Response) {
		header = r.Headers.Clone()
	})

	if err := f.run(ctx, func() error { return c.Head(rawURL) }); err != nil {
		return false
	}
	if header == nil {
		return false
	}
	if strings.Contains(strings.ToLower(header.Get("Server")), "cloudflare") {
		return true
	}
	for key := range header {
		if strings.HasPrefix(strings.ToLower(key), "cf-") {
			return true
		}
	}
	return false
}

func (f *HTTPFetcher) newCollector(timeout time.Duration) *colly.Collector {
	c := f.base.Clone()
	if f.cfg.UserAgent != "" {
		c.UserAgent = f.cfg.UserAgent
	}
	c.IgnoreRobotsTxt = true
	// Error statuses must reach OnResponse so blocked codes can be told
	// apart from transport failures.
	c.ParseHTTPErrorResponse = true
	c.SetRequestTimeout(timeout)
	return c
}

func (f *HTTPFetcher) run(ctx context.Context, visit func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- visit()
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("http fetch canceled: %w", ctx.Err())
	case err := <-done:
		return err
	}
}

func htmlToText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()
	if sel := doc.Find("body"); sel.Length() > 0 {
		return sel.Text()
	}
	return doc.Text()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
