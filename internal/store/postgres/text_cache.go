package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wfekih/jobradar/internal/clock"
	"github.com/wfekih/jobradar/internal/jobs"
)

const textCacheSchemaSQL = `
CREATE TABLE IF NOT EXISTS text_cache (
	url_canon  TEXT        PRIMARY KEY,
	url        TEXT        NOT NULL,
	text       TEXT        NOT NULL,
	method     TEXT        NOT NULL,
	status     TEXT        NOT NULL,
	error      TEXT        NOT NULL DEFAULT '',
	fetched_at TIMESTAMPTZ NOT NULL
)`

const upsertTextSQL = `
INSERT INTO text_cache (url_canon, url, text, method, status, error, fetched_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (url_canon) DO UPDATE SET
	url = EXCLUDED.url,
	text = EXCLUDED.text,
	method = EXCLUDED.method,
	status = EXCLUDED.status,
	error = EXCLUDED.error,
	fetched_at = EXCLUDED.fetched_at`

const selectTextSQL = `
SELECT url_canon, url, text, method, status, error, fetched_at
FROM text_cache WHERE url_canon = $1`

const selectTextManySQL = `
SELECT url_canon, url, text, method, status, error, fetched_at
FROM text_cache WHERE url_canon = ANY($1)`

// TextCache persists extracted posting text keyed by canonical URL. Every
// extraction attempt is recorded, failures included, so a later pass can
// tell "tried and blocked" from "never tried".
type TextCache struct {
	pool  dbPool
	clock clock.Clock
}

// NewTextCache connects a TextCache to Postgres.
func NewTextCache(ctx context.Context, cfg PoolConfig, clk clock.Clock) (*TextCache, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewTextCacheWithPool(pool, clk)
}

// NewTextCacheWithPool constructs a cache from an existing pool (primarily for testing).
func NewTextCacheWithPool(pool dbPool, clk clock.Clock) (*TextCache, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &TextCache{pool: pool, clock: clk}, nil
}

// Close releases the underlying pool resources.
func (c *TextCache) Close() {
	if c == nil || c.pool == nil {
		return
	}
	c.pool.Close()
}

// EnsureSchema creates the text_cache table when missing.
func (c *TextCache) EnsureSchema(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, textCacheSchemaSQL); err != nil {
		return fmt.Errorf("ensure text_cache schema: %w", err)
	}
	return nil
}

// Upsert writes one attempt outcome, overwriting any prior entry for the
// same canonical URL. A zero FetchedAt is stamped with the current time.
func (c *TextCache) Upsert(ctx context.Context, e jobs.TextEntry) error {
	if e.URLCanon == "" {
		return fmt.Errorf("url_canon is required")
	}
	if e.FetchedAt.IsZero() {
		e.FetchedAt = c.clock.Now()
	}
	if _, err := c.pool.Exec(ctx, upsertTextSQL,
		e.URLCanon, e.URL, e.Text, e.Method, e.Status, e.Error, e.FetchedAt,
	); err != nil {
		return fmt.Errorf("upsert text cache %s: %w", e.URLCanon, err)
	}
	return nil
}

// Get returns the cached entry for a canonical URL, or (nil, nil) when the
// URL has never been attempted.
func (c *TextCache) Get(ctx context.Context, urlCanon string) (*jobs.TextEntry, error) {
	var e jobs.TextEntry
	err := c.pool.QueryRow(ctx, selectTextSQL, urlCanon).Scan(
		&e.URLCanon, &e.URL, &e.Text, &e.Method, &e.Status, &e.Error, &e.FetchedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load text cache %s: %w", urlCanon, err)
	}
	return &e, nil
}

// GetMany loads the cached entries for a set of canonical URLs. URLs with no
// entry are simply absent from the result.
func (c *TextCache) GetMany(ctx context.Context, urlCanons []string) (map[string]jobs.TextEntry, error) {
	out := make(map[string]jobs.TextEntry, len(urlCanons))
	if len(urlCanons) == 0 {
		return out, nil
	}
	rows, err := c.pool.Query(ctx, selectTextManySQL, urlCanons)
	if err != nil {
		return nil, fmt.Errorf("load text cache batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e jobs.TextEntry
		if err := rows.Scan(&e.URLCanon, &e.URL, &e.Text, &e.Method, &e.Status, &e.Error, &e.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan text cache entry: %w", err)
		}
		out[e.URLCanon] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate text cache entries: %w", err)
	}
	return out, nil
}
