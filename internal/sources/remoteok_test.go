package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const remoteokRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>RemoteOK</title>
<item>
<title>Senior Go Engineer</title>
<link>https://remoteok.com/remote-jobs/100001</link>
<company>Initech</company>
<pubDate>Mon, 10 Mar 2025 09:00:00 +0000</pubDate>
</item>
<item>
<title></title>
<link>https://remoteok.com/remote-jobs/100002</link>
<company>Hooli</company>
<pubDate>garbage</pubDate>
</item>
<item>
<title>No link, dropped</title>
<link></link>
</item>
</channel>
</rss>`

func TestRemoteOKScrape(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "jobradar-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(remoteokRSS))
	}))
	defer srv.Close()

	a := NewRemoteOK(RemoteOKConfig{FeedURL: srv.URL, UserAgent: "jobradar-test"})
	postings, dateLabel, err := a.Scrape(context.Background())
	require.NoError(t, err)
	require.Equal(t, "rss", dateLabel)
	require.Len(t, postings, 2)

	first := postings[0]
	require.Equal(t, "remoteok", first.Source)
	require.Equal(t, "https://remoteok.com/remote-jobs/100001", first.ExternalID)
	require.Equal(t, first.URL, first.ExternalID)
	require.Equal(t, "Senior Go Engineer", first.Title)
	require.Equal(t, "Initech", first.Company)
	require.Equal(t, "remote", first.Location)
	require.NotNil(t, first.PostedAt)
	require.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), *first.PostedAt)

	// Missing title stays empty and a bad pubDate just drops the timestamp.
	second := postings[1]
	require.Empty(t, second.Title)
	require.Nil(t, second.PostedAt)
}

func TestRemoteOKScrapeBadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewRemoteOK(RemoteOKConfig{FeedURL: srv.URL})
	_, _, err := a.Scrape(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "remoteok status 503")
}
