package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "tanitjobs.com/job/1", "tanitjobs.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if fetchTotal == nil || scoreTotal == nil || postingsTotal == nil || runsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	before := testutil.ToFloat64(fetchTotal)
	ObserveFetch("https://example.com/jobs/1", "http", "ok", 150*time.Millisecond)
	if got := testutil.ToFloat64(fetchTotal); got != before+1 {
		t.Errorf("expected fetchTotal to grow by 1, got %f -> %f", before, got)
	}
}

func TestObserveFetchRecordsDuration(t *testing.T) {
	Init()

	ObserveFetch("https://example.com/jobs/2", "cdp", "ok", 250*time.Millisecond)
	if got := testutil.CollectAndCount(fetchDurationSeconds); got < 1 {
		t.Errorf("expected fetch duration histogram to have samples, got %d series", got)
	}
}
