package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func keejobArticle(id, title, company, location, date string) string {
	return fmt.Sprintf(`<article>
		<h2><a href="/offres-emploi/%s/%s?source=list">%s</a></h2>
		<a href="/offres-emploi/companies/42/acme">%s</a>
		<div><span>%s</span><span>%s</span></div>
	</article>`, id, "offer", title, company, location, date)
}

func TestKeejobScrapeTodayOnly(t *testing.T) {
	t.Parallel()

	var pagesServed atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, "<html><body>",
				keejobArticle("11111", "Développeur Go", "Acme Tunisie", "Tunis, Tunisie", "15 mars 2025"),
				keejobArticle("22222", "Ingénieur Data", "Globex", "Sousse, Tunisie", "15 mars 2025"),
				keejobArticle("33333", "Stale Posting", "OldCo", "Sfax, Tunisie", "14 mars 2025"),
				"</body></html>")
		default:
			// No posting stamped today ends the walk.
			fmt.Fprint(w, "<html><body>",
				keejobArticle("44444", "Older Posting", "OldCo", "Sfax, Tunisie", "14 mars 2025"),
				"</body></html>")
		}
	}))
	defer srv.Close()

	k := NewKeejob(KeejobConfig{
		ListURLTemplate: srv.URL + "/offres-emploi/?search=1&page=%d",
		MaxPages:        10,
		TodayOnly:       true,
	}, fixedClock{t: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)})

	postings, dateLabel, err := k.Scrape(context.Background())
	require.NoError(t, err)
	require.Equal(t, "15 mars 2025", dateLabel)
	require.Len(t, postings, 2)
	require.Equal(t, int32(2), pagesServed.Load())

	first := postings[0]
	require.Equal(t, "keejob", first.Source)
	require.Equal(t, "11111", first.ExternalID)
	require.Equal(t, "Développeur Go", first.Title)
	require.Equal(t, "Acme Tunisie", first.Company)
	require.Equal(t, "Tunis, Tunisie", first.Location)
	require.Equal(t, srv.URL+"/offres-emploi/11111/offer", first.URL)
	require.Nil(t, first.PostedAt)
}

func TestKeejobScrapeSkipsMalformedCards(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>",
			`<article><h2><a href="/some/other/path">Not a job link</a></h2></article>`,
			`<article><p>No title link at all</p></article>`,
			keejobArticle("55555", "Valid One", "Acme", "Tunis", "15 mars 2025"),
			"</body></html>")
	}))
	defer srv.Close()

	k := NewKeejob(KeejobConfig{
		ListURLTemplate: srv.URL + "/jobs?page=%d",
		MaxPages:        1,
	}, fixedClock{t: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)})

	postings, _, err := k.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, postings, 1)
	require.Equal(t, "55555", postings[0].ExternalID)
}

func TestKeejobScrapeServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	k := NewKeejob(KeejobConfig{ListURLTemplate: srv.URL + "/jobs?page=%d"}, nil)
	_, _, err := k.Scrape(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "keejob page 1")
}

func TestKeejobTodayLabelUsesTunisTime(t *testing.T) {
	t.Parallel()

	// 23:30 UTC is already the next day in Tunis.
	k := NewKeejob(KeejobConfig{}, fixedClock{t: time.Date(2025, 2, 28, 23, 30, 0, 0, time.UTC)})
	require.Equal(t, "1 mars 2025", k.todayLabel())
}
