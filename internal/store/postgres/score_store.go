package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wfekih/jobradar/internal/clock"
	"github.com/wfekih/jobradar/internal/jobs"
)

const scoreSchemaSQL = `
CREATE TABLE IF NOT EXISTS llm_scores (
	url_canon  TEXT             PRIMARY KEY,
	url        TEXT             NOT NULL,
	score      DOUBLE PRECISION NOT NULL,
	decision   TEXT             NOT NULL,
	reasons    JSONB            NOT NULL DEFAULT '[]',
	model      TEXT             NOT NULL,
	created_at TIMESTAMPTZ      NOT NULL,
	updated_at TIMESTAMPTZ      NOT NULL
)`

const upsertScoreSQL = `
INSERT INTO llm_scores (url_canon, url, score, decision, reasons, model, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
ON CONFLICT (url_canon) DO UPDATE SET
	url = EXCLUDED.url,
	score = EXCLUDED.score,
	decision = EXCLUDED.decision,
	reasons = EXCLUDED.reasons,
	model = EXCLUDED.model,
	updated_at = EXCLUDED.updated_at`

const selectScoreSQL = `
SELECT url_canon, url, score, decision, reasons, model, created_at, updated_at
FROM llm_scores WHERE url_canon = $1`

const selectScoreManySQL = `
SELECT url_canon, url, score, decision, reasons, model, created_at, updated_at
FROM llm_scores WHERE url_canon = ANY($1)`

// ScoreStore persists LLM screening verdicts keyed by canonical URL, so a
// posting is scored once no matter how many tracking-parameter variants of
// its URL show up.
type ScoreStore struct {
	pool  dbPool
	clock clock.Clock
}

// NewScoreStore connects a ScoreStore to Postgres.
func NewScoreStore(ctx context.Context, cfg PoolConfig, clk clock.Clock) (*ScoreStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewScoreStoreWithPool(pool, clk)
}

// NewScoreStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewScoreStoreWithPool(pool dbPool, clk clock.Clock) (*ScoreStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &ScoreStore{pool: pool, clock: clk}, nil
}

// Close releases the underlying pool resources.
func (s *ScoreStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the llm_scores table when missing.
func (s *ScoreStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, scoreSchemaSQL); err != nil {
		return fmt.Errorf("ensure llm_scores schema: %w", err)
	}
	return nil
}

// Upsert writes one verdict. Rescoring the same canonical URL overwrites the
// verdict but keeps the original created_at.
func (s *ScoreStore) Upsert(ctx context.Context, e jobs.ScoreEntry) error {
	if e.URLCanon == "" {
		return fmt.Errorf("url_canon is required")
	}
	reasons := e.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}
	now := s.clock.Now()
	if _, err := s.pool.Exec(ctx, upsertScoreSQL,
		e.URLCanon, e.URL, e.Score, e.Decision, reasonsJSON, e.Model, now,
	); err != nil {
		return fmt.Errorf("upsert score %s: %w", e.URLCanon, err)
	}
	return nil
}

// Get returns the stored verdict for a canonical URL, or (nil, nil) when the
// URL has never been scored.
func (s *ScoreStore) Get(ctx context.Context, urlCanon string) (*jobs.ScoreEntry, error) {
	var (
		e           jobs.ScoreEntry
		reasonsJSON []byte
	)
	err := s.pool.QueryRow(ctx, selectScoreSQL, urlCanon).Scan(
		&e.URLCanon, &e.URL, &e.Score, &e.Decision, &reasonsJSON, &e.Model, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load score %s: %w", urlCanon, err)
	}
	if err := json.Unmarshal(reasonsJSON, &e.Reasons); err != nil {
		return nil, fmt.Errorf("unmarshal reasons %s: %w", urlCanon, err)
	}
	return &e, nil
}

// GetMany loads verdicts for a set of canonical URLs. Unscored URLs are
// absent from the result.
func (s *ScoreStore) GetMany(ctx context.Context, urlCanons []string) (map[string]jobs.ScoreEntry, error) {
	out := make(map[string]jobs.ScoreEntry, len(urlCanons))
	if len(urlCanons) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, selectScoreManySQL, urlCanons)
	if err != nil {
		return nil, fmt.Errorf("load score batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e           jobs.ScoreEntry
			reasonsJSON []byte
		)
		if err := rows.Scan(&e.URLCanon, &e.URL, &e.Score, &e.Decision, &reasonsJSON, &e.Model, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan score entry: %w", err)
		}
		if err := json.Unmarshal(reasonsJSON, &e.Reasons); err != nil {
			return nil, fmt.Errorf("unmarshal reasons %s: %w", e.URLCanon, err)
		}
		out[e.URLCanon] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score entries: %w", err)
	}
	return out, nil
}
