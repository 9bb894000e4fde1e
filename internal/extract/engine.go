package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wfekih/jobradar/internal/jobs"
	"github.com/wfekih/jobradar/internal/metrics"
	"github.com/wfekih/jobradar/internal/progress"
	"github.com/wfekih/jobradar/internal/urlcanon"
)

// Renderer is the browser fallback. Enabled reports whether a browser is
// configured; when it is not, HTTP failures stay terminal.
type Renderer interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
	Enabled() bool
}

// Cache is the slice of the text store the engine needs.
type Cache interface {
	GetMany(ctx context.Context, urlCanons []string) (map[string]jobs.TextEntry, error)
	Upsert(ctx context.Context, e jobs.TextEntry) error
}

// Config tunes one extraction pass.
type Config struct {
	MaxJobs      int
	HTTPWorkers  int
	MaxChars     int
	MinTextChars int
	DelayNormal  time.Duration
	DelayHeavy   time.Duration
	// BrowserFirstHosts always skip the HTTP attempt.
	BrowserFirstHosts []string
	// ProbeHosts get a HEAD probe first and skip HTTP only when the probe
	// sees Cloudflare in front of them.
	ProbeHosts []string
}

// Stats summarizes one extraction pass.
type Stats struct {
	Candidates int
	Fetched    int
	OK         int
	Blocked    int
	Empty      int
	Errors     int
}

// Engine drives text extraction for batches of posting URLs: cache check,
// transport choice, HTTP worker pool, browser fallback, and recording of
// every terminal outcome.
type Engine struct {
	cfg      Config
	http     *HTTPFetcher
	renderer Renderer
	cache    Cache
	observer progress.Observer
	logger   *zap.Logger

	// sleep is swapped out by tests; inter-request delays are politeness,
	// not correctness.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine wires an extraction engine. renderer may be nil when no browser
// is available; observer may be nil.
func NewEngine(cfg Config, http *HTTPFetcher, renderer Renderer, cache Cache, observer progress.Observer, logger *zap.Logger) *Engine {
	if cfg.HTTPWorkers <= 0 {
		cfg.HTTPWorkers = 2
	}
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = 200
	}
	if observer == nil {
		observer = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Engine{
		cfg:      cfg,
		http:     http,
		renderer: renderer,
		cache:    cache,
		observer: observer,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Run extracts text for the given URLs. Duplicates are dropped with the
// first occurrence kept, the batch is capped at MaxJobs, and URLs whose
// cache entry already holds usable text are skipped unless refresh is set.
// Per-URL failures land in the cache and the stats; Run only errors on
// store failures or context cancellation.
func (e *Engine) Run(ctx context.Context, urls []string, refresh bool) (Stats, error) {
	runID := uuid.New()
	var stats Stats

	urls = dedupe(urls)
	if e.cfg.MaxJobs > 0 && len(urls) > e.cfg.MaxJobs {
		urls = urls[:e.cfg.MaxJobs]
	}

	if !refresh && len(urls) > 0 {
		canons := make([]string, len(urls))
		for i, u := range urls {
			canons[i] = urlcanon.Canonicalize(u)
		}
		existing, err := e.cache.GetMany(ctx, canons)
		if err != nil {
			return stats, fmt.Errorf("load text cache: %w", err)
		}
		kept := urls[:0]
		for _, u := range urls {
			if entry, ok := existing[urlcanon.Canonicalize(u)]; ok && entry.Satisfied() {
				e.observer.Observe(progress.Event{
					RunID: runID, TS: time.Now().UTC(), Stage: progress.StageSkipped,
					URL: u, Note: "cached",
				})
				continue
			}
			kept = append(kept, u)
		}
		urls = kept
	}

	stats.Candidates = len(urls)
	e.observer.Observe(progress.Event{
		RunID: runID, TS: time.Now().UTC(), Stage: progress.StageRunStart,
		Total: len(urls),
	})
	if len(urls) == 0 {
		e.observer.Observe(progress.Event{RunID: runID, TS: time.Now().UTC(), Stage: progress.StageRunDone})
		return stats, nil
	}

	browserFirst, httpFirst := e.splitByStrategy(ctx, urls)

	record := func(res Result) error {
		entry := jobs.TextEntry{
			URLCanon: urlcanon.Canonicalize(res.URL),
			URL:      res.URL,
			Text:     res.Text,
			Method:   res.Method,
			Status:   res.Status,
			Error:    res.Err,
		}
		if err := e.cache.Upsert(ctx, entry); err != nil {
			return err
		}
		stats.Fetched++
		switch res.Status {
		case jobs.FetchOK:
			stats.OK++
		case jobs.FetchBlocked:
			stats.Blocked++
		case jobs.FetchEmpty:
			stats.Empty++
		case jobs.FetchError:
			stats.Errors++
		}
		metrics.ObserveFetch(res.URL, string(res.Method), string(res.Status), res.Duration)
		e.observer.Observe(progress.Event{
			RunID: runID, TS: time.Now().UTC(), Stage: progress.StageFetchDone,
			URL: res.URL, Method: res.Method, Status: res.Status,
			Index: stats.Fetched, Total: stats.Candidates, Note: res.Err,
		})
		return nil
	}

	// Browser-first URLs go one at a time; the shared Chrome is a single
	// session and these hosts throttle hard.
	for i, u := range browserFirst {
		if err := record(e.fetchBrowser(ctx, u)); err != nil {
			return stats, err
		}
		if i < len(browserFirst)-1 {
			if err := e.sleep(ctx, e.delayFor(u)); err != nil {
				return stats, err
			}
		}
	}

	httpResults, err := e.fetchHTTPPool(ctx, httpFirst)
	if err != nil {
		return stats, err
	}

	var fallback []string
	for _, u := range httpFirst {
		res := httpResults[u]
		if res.Status == jobs.FetchOK || e.renderer == nil || !e.renderer.Enabled() {
			if err := record(res); err != nil {
				return stats, err
			}
			continue
		}
		metrics.ObserveBrowserFallback()
		fallback = append(fallback, u)
	}

	for i, u := range fallback {
		if err := record(e.fetchBrowser(ctx, u)); err != nil {
			return stats, err
		}
		if i < len(fallback)-1 {
			if err := e.sleep(ctx, e.delayFor(u)); err != nil {
				return stats, err
			}
		}
	}

	e.observer.Observe(progress.Event{
		RunID: runID, TS: time.Now().UTC(), Stage: progress.StageRunDone,
		Note: fmt.Sprintf("ok=%d blocked=%d empty=%d error=%d", stats.OK, stats.Blocked, stats.Empty, stats.Errors),
	})
	return stats, nil
}

// fetchHTTPPool runs the HTTP-first URLs on a small worker pool. Submission
// is paced with a rate limiter so two workers never hammer a site.
func (e *Engine) fetchHTTPPool(ctx context.Context, urls []string) (map[string]Result, error) {
	results := make(map[string]Result, len(urls))
	if len(urls) == 0 {
		return results, nil
	}

	limit := rate.Inf
	if e.cfg.DelayNormal > 0 {
		limit = rate.Every(e.cfg.DelayNormal)
	}
	limiter := rate.NewLimiter(limit, 1)

	work := make(chan string)
	out := make(chan Result)

	var wg sync.WaitGroup
	for range e.cfg.HTTPWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range work {
				metrics.IncActiveFetchers()
				start := time.Now()
				res := e.http.Fetch(ctx, u)
				res.Duration = time.Since(start)
				metrics.DecActiveFetchers()
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	submitErr := make(chan error, 1)
	go func() {
		defer close(work)
		for _, u := range urls {
			if err := limiter.Wait(ctx); err != nil {
				submitErr <- fmt.Errorf("inter-request delay: %w", err)
				return
			}
			select {
			case work <- u:
			case <-ctx.Done():
				submitErr <- ctx.Err()
				return
			}
		}
		submitErr <- nil
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	for res := range out {
		results[res.URL] = res
	}
	if err := <-submitErr; err != nil {
		return results, fmt.Errorf("submit http fetches: %w", err)
	}
	// Workers bail out mid-batch only when the context dies.
	if len(results) < len(urls) && ctx.Err() != nil {
		return results, fmt.Errorf("http fetch pool: %w", ctx.Err())
	}
	return results, nil
}

func (e *Engine) fetchBrowser(ctx context.Context, rawURL string) Result {
	if e.renderer == nil || !e.renderer.Enabled() {
		return Result{URL: rawURL, Method: jobs.MethodCDP, Status: jobs.FetchError, Err: "browser not configured"}
	}
	start := time.Now()
	text, err := e.renderer.FetchText(ctx, rawURL)
	dur := time.Since(start)
	if err != nil {
		return Result{URL: rawURL, Method: jobs.MethodCDP, Status: jobs.FetchError, Err: err.Error(), Duration: dur}
	}
	text = Truncate(CleanText(text), e.cfg.MaxChars)
	return Result{URL: rawURL, Text: text, Method: jobs.MethodCDP, Status: Classify(text, e.cfg.MinTextChars), Duration: dur}
}

// splitByStrategy partitions URLs into browser-first and HTTP-first while
// preserving order. Probe hosts are HEAD-probed once per URL; without a
// configured browser everything is HTTP-first.
func (e *Engine) splitByStrategy(ctx context.Context, urls []string) (browserFirst, httpFirst []string) {
	if e.renderer == nil || !e.renderer.Enabled() {
		return nil, urls
	}
	for _, u := range urls {
		host := hostOf(u)
		switch {
		case hostMatches(host, e.cfg.BrowserFirstHosts):
			browserFirst = append(browserFirst, u)
		case hostMatches(host, e.cfg.ProbeHosts) && e.http.SeemsCloudflare(ctx, u):
			browserFirst = append(browserFirst, u)
		default:
			httpFirst = append(httpFirst, u)
		}
	}
	return browserFirst, httpFirst
}

func (e *Engine) delayFor(rawURL string) time.Duration {
	host := hostOf(rawURL)
	if hostMatches(host, e.cfg.BrowserFirstHosts) || hostMatches(host, e.cfg.ProbeHosts) {
		return e.cfg.DelayHeavy
	}
	return e.cfg.DelayNormal
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func hostMatches(host string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(host, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := urls[:0:0]
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("inter-request delay: %w", ctx.Err())
	}
}
