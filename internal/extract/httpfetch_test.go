package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wfekih/jobradar/internal/jobs"
)

func testFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPConfig{
		UserAgent:    "jobradar-test",
		Timeout:      5 * time.Second,
		ProbeTimeout: 2 * time.Second,
		MaxChars:     8000,
		MinTextChars: 200,
	})
}

func jobPageHTML() string {
	return fmt.Sprintf(`<html><head><script>var tracking = 1;</script><style>.x{}</style></head>
<body><main><h1>Backend Engineer</h1><p>%s</p></main><noscript>enable js</noscript></body></html>`,
		strings.Repeat("Build and run Go services. ", 20))
}

func TestHTTPFetchOK(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "jobradar-test", r.UserAgent())
		fmt.Fprint(w, jobPageHTML())
	}))
	defer srv.Close()

	res := testFetcher().Fetch(context.Background(), srv.URL+"/jobs/1")
	require.Equal(t, jobs.FetchOK, res.Status)
	require.Equal(t, jobs.MethodHTTP, res.Method)
	require.Contains(t, res.Text, "Backend Engineer")
	require.NotContains(t, res.Text, "var tracking")
	require.NotContains(t, res.Text, "enable js")
}

func TestHTTPFetchBlockedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	res := testFetcher().Fetch(context.Background(), srv.URL)
	require.Equal(t, jobs.FetchBlocked, res.Status)
	require.Equal(t, "http 403", res.Err)
	require.Empty(t, res.Text)
}

func TestHTTPFetchErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	res := testFetcher().Fetch(context.Background(), srv.URL)
	require.Equal(t, jobs.FetchError, res.Status)
	require.Equal(t, "http 404", res.Err)
}

func TestHTTPFetchTransportError(t *testing.T) {
	t.Parallel()

	// Nothing listens here.
	res := testFetcher().Fetch(context.Background(), "http://127.0.0.1:1/jobs")
	require.Equal(t, jobs.FetchError, res.Status)
	require.NotEmpty(t, res.Err)
}

func TestHTTPFetchShortPageIsEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body><p>gone</p></body></html>")
	}))
	defer srv.Close()

	res := testFetcher().Fetch(context.Background(), srv.URL)
	require.Equal(t, jobs.FetchEmpty, res.Status)
}

func TestHTTPFetchChallengePageIsBlocked(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body>Just a moment...</body></html>")
	}))
	defer srv.Close()

	res := testFetcher().Fetch(context.Background(), srv.URL)
	require.Equal(t, jobs.FetchBlocked, res.Status)
}

func TestSeemsCloudflareServerHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Server", "cloudflare")
	}))
	defer srv.Close()

	require.True(t, testFetcher().SeemsCloudflare(context.Background(), srv.URL))
}

func TestSeemsCloudflareCFHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("CF-Ray", "8a1b2c3d4e5f")
	}))
	defer srv.Close()

	require.True(t, testFetcher().SeemsCloudflare(context.Background(), srv.URL))
}

func TestSeemsCloudflareNegative(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Server", "nginx")
	}))
	defer srv.Close()

	f := testFetcher()
	require.False(t, f.SeemsCloudflare(context.Background(), srv.URL))
	// Probe failures also report false.
	require.False(t, f.SeemsCloudflare(context.Background(), "http://127.0.0.1:1/"))
}
