package postgres

import (
	"context"
	"fmt"

	"github.com/wfekih/jobradar/internal/clock"
	"github.com/wfekih/jobradar/internal/jobs"
)

const jobsSchemaSQL = `
CREATE TABLE IF NOT EXISTS job_records (
	source        TEXT        NOT NULL,
	external_id   TEXT        NOT NULL,
	fingerprint   TEXT        NOT NULL,
	title         TEXT        NOT NULL,
	company       TEXT        NOT NULL,
	location      TEXT        NOT NULL,
	url           TEXT        NOT NULL,
	posted_at     TIMESTAMPTZ,
	first_seen_at TIMESTAMPTZ NOT NULL,
	last_seen_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source, external_id)
);
CREATE INDEX IF NOT EXISTS job_records_first_seen_idx ON job_records (first_seen_at DESC)`

const insertJobSQL = `
INSERT INTO job_records (
	source, external_id, fingerprint, title, company, location, url, posted_at, first_seen_at, last_seen_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
ON CONFLICT (source, external_id) DO NOTHING`

const selectStoredTitleSQL = `
SELECT title FROM job_records WHERE source = $1 AND external_id = $2`

const refreshJobSQL = `
UPDATE job_records SET
	last_seen_at = $1,
	title = $2,
	company = CASE WHEN company = '' THEN $3 ELSE company END,
	location = CASE WHEN location = '' THEN $4 ELSE location END,
	url = $5,
	posted_at = COALESCE(posted_at, $6)
WHERE source = $7 AND external_id = $8`

const selectJobSQL = `
SELECT source, external_id, title, company, location, url, posted_at, first_seen_at, last_seen_at
FROM job_records WHERE source = $1 AND external_id = $2`

const selectRecentJobsSQL = `
SELECT source, external_id, title, company, location, url, posted_at, first_seen_at, last_seen_at
FROM job_records ORDER BY first_seen_at DESC LIMIT $1`

// JobStore is the durable job-identity store. Records are keyed by
// (source, external_id), created on first sighting and refreshed on every
// later one; nothing is ever deleted.
type JobStore struct {
	pool   dbPool
	titles jobs.TitlePolicy
	clock  clock.Clock
}

// NewJobStore connects a JobStore to Postgres.
func NewJobStore(ctx context.Context, cfg PoolConfig, titles jobs.TitlePolicy, clk clock.Clock) (*JobStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewJobStoreWithPool(pool, titles, clk)
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(pool dbPool, titles jobs.TitlePolicy, clk clock.Clock) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &JobStore{pool: pool, titles: titles, clock: clk}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the job_records table when missing.
func (s *JobStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, jobsSchemaSQL); err != nil {
		return fmt.Errorf("ensure job_records schema: %w", err)
	}
	return nil
}

// Upsert records a batch of sighted postings and returns the ones that were
// genuinely new, in input order. Re-sighted records get their last_seen_at
// advanced, empty company/location filled in, the URL refreshed, and a
// placeholder title replaced when the incoming one is real.
func (s *JobStore) Upsert(ctx context.Context, postings []jobs.Posting) ([]jobs.Posting, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("job store is not configured")
	}

	now := s.clock.Now()
	var fresh []jobs.Posting
	for _, p := range postings {
		if p.Source == "" || p.ExternalID == "" {
			return fresh, fmt.Errorf("posting source and external id are required")
		}
		tag, err := s.pool.Exec(ctx, insertJobSQL,
			p.Source, p.ExternalID, p.Fingerprint(),
			p.Title, p.Company, p.Location, p.URL, p.PostedAt, now,
		)
		if err != nil {
			return fresh, fmt.Errorf("insert job %s/%s: %w", p.Source, p.ExternalID, err)
		}
		if tag.RowsAffected() == 1 {
			fresh = append(fresh, p)
			continue
		}

		var stored string
		if err := s.pool.QueryRow(ctx, selectStoredTitleSQL, p.Source, p.ExternalID).Scan(&stored); err != nil {
			return fresh, fmt.Errorf("load stored title %s/%s: %w", p.Source, p.ExternalID, err)
		}
		healed := s.titles.Heal(stored, p.Title)
		if _, err := s.pool.Exec(ctx, refreshJobSQL,
			now, healed, p.Company, p.Location, p.URL, p.PostedAt,
			p.Source, p.ExternalID,
		); err != nil {
			return fresh, fmt.Errorf("refresh job %s/%s: %w", p.Source, p.ExternalID, err)
		}
	}
	return fresh, nil
}

// Get loads one record by identity.
func (s *JobStore) Get(ctx context.Context, source, externalID string) (jobs.Record, error) {
	var rec jobs.Record
	err := s.pool.QueryRow(ctx, selectJobSQL, source, externalID).Scan(
		&rec.Source, &rec.ExternalID, &rec.Title, &rec.Company, &rec.Location,
		&rec.URL, &rec.PostedAt, &rec.FirstSeenAt, &rec.LastSeenAt,
	)
	if err != nil {
		return jobs.Record{}, fmt.Errorf("load job %s/%s: %w", source, externalID, err)
	}
	return rec, nil
}

// Recent returns up to limit records ordered by first sighting, newest first.
func (s *JobStore) Recent(ctx context.Context, limit int) ([]jobs.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, selectRecentJobsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	var out []jobs.Record
	for rows.Next() {
		var rec jobs.Record
		if err := rows.Scan(
			&rec.Source, &rec.ExternalID, &rec.Title, &rec.Company, &rec.Location,
			&rec.URL, &rec.PostedAt, &rec.FirstSeenAt, &rec.LastSeenAt,
		); err != nil {
			return nil, fmt.Errorf("scan job record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job records: %w", err)
	}
	return out, nil
}
