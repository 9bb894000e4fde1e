package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wfekih/jobradar/internal/jobs"
	"github.com/wfekih/jobradar/internal/progress"
	"github.com/wfekih/jobradar/internal/urlcanon"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string]jobs.TextEntry
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]jobs.TextEntry)}
}

func (c *memCache) GetMany(_ context.Context, urlCanons []string) (map[string]jobs.TextEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]jobs.TextEntry)
	for _, k := range urlCanons {
		if e, ok := c.entries[k]; ok {
			out[k] = e
		}
	}
	return out, nil
}

func (c *memCache) Upsert(_ context.Context, e jobs.TextEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.URLCanon] = e
	return nil
}

func (c *memCache) get(urlCanon string) (jobs.TextEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[urlCanon]
	return e, ok
}

type fakeRenderer struct {
	mu      sync.Mutex
	enabled bool
	text    string
	err     error
	calls   []string
}

func (r *fakeRenderer) Enabled() bool { return r.enabled }

func (r *fakeRenderer) FetchText(_ context.Context, rawURL string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, rawURL)
	return r.text, r.err
}

func (r *fakeRenderer) called() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []progress.Event
}

func (o *recordingObserver) Observe(evt progress.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, evt)
}

func (o *recordingObserver) stages() []progress.Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]progress.Stage, len(o.events))
	for i, e := range o.events {
		out[i] = e.Stage
	}
	return out
}

func longBody() string {
	return strings.Repeat("Real posting content about Go services. ", 20)
}

func newTestEngine(cfg Config, renderer Renderer, cache Cache, obs progress.Observer) *Engine {
	e := NewEngine(cfg, testFetcher(), renderer, cache, obs, nil)
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e
}

func TestEngineHTTPThenBrowserFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			fmt.Fprintf(w, "<html><body><main>%s</main></body></html>", longBody())
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	renderer := &fakeRenderer{enabled: true, text: longBody()}
	cache := newMemCache()
	obs := &recordingObserver{}
	eng := newTestEngine(Config{MaxChars: 8000, MinTextChars: 200}, renderer, cache, obs)

	okURL := srv.URL + "/ok"
	blockedURL := srv.URL + "/blocked"
	stats, err := eng.Run(context.Background(), []string{okURL, blockedURL}, false)
	require.NoError(t, err)

	require.Equal(t, 2, stats.Candidates)
	require.Equal(t, 2, stats.Fetched)
	require.Equal(t, 2, stats.OK)
	require.Zero(t, stats.Blocked)

	// The blocked URL, and only it, went to the browser.
	require.Equal(t, []string{blockedURL}, renderer.called())

	okEntry, ok := cache.get(urlcanon.Canonicalize(okURL))
	require.True(t, ok)
	require.Equal(t, jobs.MethodHTTP, okEntry.Method)

	fbEntry, ok := cache.get(urlcanon.Canonicalize(blockedURL))
	require.True(t, ok)
	require.Equal(t, jobs.MethodCDP, fbEntry.Method)
	require.Equal(t, jobs.FetchOK, fbEntry.Status)

	stages := obs.stages()
	require.Equal(t, progress.StageRunStart, stages[0])
	require.Equal(t, progress.StageRunDone, stages[len(stages)-1])
}

func TestEngineBlockedStaysBlockedWithoutBrowser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cache := newMemCache()
	eng := newTestEngine(Config{MinTextChars: 200}, nil, cache, nil)

	stats, err := eng.Run(context.Background(), []string{srv.URL}, false)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Blocked)

	entry, ok := cache.get(urlcanon.Canonicalize(srv.URL))
	require.True(t, ok)
	require.Equal(t, jobs.FetchBlocked, entry.Status)
	require.Equal(t, jobs.MethodHTTP, entry.Method)
	require.Equal(t, "http 403", entry.Error)
}

func TestEngineBrowserFirstHostSkipsHTTP(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{enabled: true, text: longBody()}
	cache := newMemCache()
	eng := newTestEngine(Config{
		MinTextChars:      200,
		BrowserFirstHosts: []string{"tanitjobs.com"},
	}, renderer, cache, nil)

	u := "https://www.tanitjobs.com/job/314159"
	stats, err := eng.Run(context.Background(), []string{u}, false)
	require.NoError(t, err)
	require.Equal(t, 1, stats.OK)
	require.Equal(t, []string{u}, renderer.called())

	entry, ok := cache.get(urlcanon.Canonicalize(u))
	require.True(t, ok)
	require.Equal(t, jobs.MethodCDP, entry.Method)
}

func TestEngineSkipsSatisfiedCacheEntries(t *testing.T) {
	t.Parallel()

	u := "https://example.com/jobs/1?utm_source=feed"
	canon := urlcanon.Canonicalize(u)

	cache := newMemCache()
	require.NoError(t, cache.Upsert(context.Background(), jobs.TextEntry{
		URLCanon: canon, URL: u, Text: longBody(),
		Method: jobs.MethodHTTP, Status: jobs.FetchOK,
	}))

	obs := &recordingObserver{}
	eng := newTestEngine(Config{MinTextChars: 200}, nil, cache, obs)

	stats, err := eng.Run(context.Background(), []string{u}, false)
	require.NoError(t, err)
	require.Zero(t, stats.Candidates)
	require.Zero(t, stats.Fetched)
	require.Contains(t, obs.stages(), progress.StageSkipped)
}

func TestEngineRefreshRefetchesSatisfiedEntries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "<html><body>%s</body></html>", longBody())
	}))
	defer srv.Close()

	canon := urlcanon.Canonicalize(srv.URL)
	cache := newMemCache()
	require.NoError(t, cache.Upsert(context.Background(), jobs.TextEntry{
		URLCanon: canon, URL: srv.URL, Text: "stale",
		Method: jobs.MethodHTTP, Status: jobs.FetchOK,
	}))

	eng := newTestEngine(Config{MinTextChars: 200}, nil, cache, nil)
	stats, err := eng.Run(context.Background(), []string{srv.URL}, true)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Fetched)

	entry, _ := cache.get(canon)
	require.NotEqual(t, "stale", entry.Text)
}

func TestFetchPathsRecordDuration(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "<html><body>%s</body></html>", longBody())
	}))
	defer srv.Close()

	eng := newTestEngine(Config{MinTextChars: 200}, &fakeRenderer{enabled: true, text: longBody()}, newMemCache(), nil)

	results, err := eng.fetchHTTPPool(context.Background(), []string{srv.URL})
	require.NoError(t, err)
	require.Positive(t, results[srv.URL].Duration)

	res := eng.fetchBrowser(context.Background(), "https://www.tanitjobs.com/job/1")
	require.Positive(t, res.Duration)
}

func TestEngineDedupesAndCaps(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		fmt.Fprintf(w, "<html><body>%s</body></html>", longBody())
	}))
	defer srv.Close()

	eng := newTestEngine(Config{MinTextChars: 200, MaxJobs: 1}, nil, newMemCache(), nil)
	stats, err := eng.Run(context.Background(), []string{
		srv.URL + "/a", srv.URL + "/a", "", srv.URL + "/b",
	}, false)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Candidates)
	require.Equal(t, 1, stats.Fetched)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, hits)
}
