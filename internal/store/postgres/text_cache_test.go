package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/wfekih/jobradar/internal/jobs"
)

func newTestTextCache(t *testing.T) (*TextCache, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	cache, err := NewTextCacheWithPool(mock, fixedClock{testNow})
	require.NoError(t, err)
	return cache, mock
}

func TestTextCacheUpsertStampsFetchedAt(t *testing.T) {
	t.Parallel()

	cache, mock := newTestTextCache(t)

	e := jobs.TextEntry{
		URLCanon: "https://example.com/jobs/1",
		URL:      "https://example.com/jobs/1?utm_source=x",
		Text:     "long posting body",
		Method:   jobs.MethodHTTP,
		Status:   jobs.FetchOK,
	}

	mock.ExpectExec("INSERT INTO text_cache").
		WithArgs(e.URLCanon, e.URL, e.Text, e.Method, e.Status, "", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, cache.Upsert(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTextCacheUpsertRecordsFailures(t *testing.T) {
	t.Parallel()

	cache, mock := newTestTextCache(t)

	fetchedAt := testNow.Add(-time.Minute)
	e := jobs.TextEntry{
		URLCanon:  "https://blocked.example.com/jobs/2",
		URL:       "https://blocked.example.com/jobs/2",
		Method:    jobs.MethodHTTP,
		Status:    jobs.FetchBlocked,
		Error:     "http status 403",
		FetchedAt: fetchedAt,
	}

	mock.ExpectExec("INSERT INTO text_cache").
		WithArgs(e.URLCanon, e.URL, "", e.Method, e.Status, e.Error, fetchedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, cache.Upsert(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTextCacheGetMissReturnsNil(t *testing.T) {
	t.Parallel()

	cache, mock := newTestTextCache(t)

	mock.ExpectQuery("SELECT (.+) FROM text_cache WHERE url_canon =").
		WithArgs("https://example.com/never-seen").
		WillReturnRows(pgxmock.NewRows([]string{"url_canon", "url", "text", "method", "status", "error", "fetched_at"}))

	got, err := cache.Get(context.Background(), "https://example.com/never-seen")
	require.NoError(t, err)
	require.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTextCacheGetMany(t *testing.T) {
	t.Parallel()

	cache, mock := newTestTextCache(t)

	keys := []string{"https://example.com/jobs/1", "https://example.com/jobs/2"}
	cols := []string{"url_canon", "url", "text", "method", "status", "error", "fetched_at"}
	mock.ExpectQuery("SELECT (.+) FROM text_cache WHERE url_canon = ANY").
		WithArgs(keys).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(keys[0], keys[0], "body", jobs.MethodHTTP, jobs.FetchOK, "", testNow))

	got, err := cache.GetMany(context.Background(), keys)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[keys[0]].Satisfied())
	_, tried := got[keys[1]]
	require.False(t, tried)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTextCacheGetManyEmptyInput(t *testing.T) {
	t.Parallel()

	cache, _ := newTestTextCache(t)

	got, err := cache.GetMany(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
}
