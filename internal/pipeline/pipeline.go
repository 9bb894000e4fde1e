// Package pipeline orchestrates the scrape, extract and score phases
// against the job store, the sheet and the notifier.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wfekih/jobradar/internal/extract"
	"github.com/wfekih/jobradar/internal/filter"
	"github.com/wfekih/jobradar/internal/jobs"
	"github.com/wfekih/jobradar/internal/metrics"
	"github.com/wfekih/jobradar/internal/notify"
	"github.com/wfekih/jobradar/internal/score"
	"github.com/wfekih/jobradar/internal/sheets"
	"github.com/wfekih/jobradar/internal/sources"
	"github.com/wfekih/jobradar/internal/urlcanon"
)

// JobStore is the slice of the postings store the pipeline needs. Upsert
// returns only the genuinely new postings.
type JobStore interface {
	Upsert(ctx context.Context, postings []jobs.Posting) ([]jobs.Posting, error)
}

// Extractor runs one text extraction pass over URLs.
type Extractor interface {
	Run(ctx context.Context, urls []string, refresh bool) (extract.Stats, error)
}

// ScoreRunner runs one LLM scoring pass over candidates.
type ScoreRunner interface {
	Run(ctx context.Context, candidates []score.Candidate, rescore bool) (score.RunStats, error)
}

// ScoreReader reads verdicts back after a scoring pass so they can be
// mirrored into the sheet.
type ScoreReader interface {
	GetMany(ctx context.Context, urlCanons []string) (map[string]jobs.ScoreEntry, error)
}

// Config tunes the pipeline.
type Config struct {
	// NotifyTopic receives one message per relevant new posting. Empty
	// disables notifications.
	NotifyTopic string
}

// SourceStats summarizes one RunSource call.
type SourceStats struct {
	Source      string
	Scraped     int
	New         int
	RelevantNew int
	Published   int
}

// Pipeline wires one pass of the system together. All collaborators are
// injected; publisher may be nil.
type Pipeline struct {
	cfg       Config
	store     JobStore
	sheet     sheets.Sheet
	extractor Extractor
	scorer    ScoreRunner
	scores    ScoreReader
	publisher notify.Publisher
	logger    *zap.Logger
}

// New builds a pipeline. extractor, scorer, scores and publisher may each
// be nil when the corresponding phase is not going to run.
func New(cfg Config, store JobStore, sheet sheets.Sheet, extractor Extractor, scorer ScoreRunner, scores ScoreReader, publisher notify.Publisher, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Pipeline{
		cfg:       cfg,
		store:     store,
		sheet:     sheet,
		extractor: extractor,
		scorer:    scorer,
		scores:    scores,
		publisher: publisher,
		logger:    logger,
	}
}

// RunSource scrapes one adapter, upserts the postings, appends the relevant
// new ones to the sheet and publishes a notification for each. Notification
// failures are logged, not fatal; the posting is already durably recorded.
func (p *Pipeline) RunSource(ctx context.Context, adapter sources.Adapter) (SourceStats, error) {
	stats := SourceStats{Source: adapter.Name()}

	postings, dateLabel, err := adapter.Scrape(ctx)
	if err != nil {
		metrics.ObserveRun("scrape", "error")
		return stats, fmt.Errorf("scrape %s: %w", adapter.Name(), err)
	}
	stats.Scraped = len(postings)

	fresh, err := p.store.Upsert(ctx, postings)
	if err != nil {
		metrics.ObserveRun("scrape", "error")
		return stats, fmt.Errorf("upsert %s postings: %w", adapter.Name(), err)
	}
	stats.New = len(fresh)
	metrics.ObservePostings(adapter.Name(), len(fresh), len(postings)-len(fresh))

	var rows []sheets.Row
	for _, posting := range fresh {
		if !filter.IsRelevant(posting.Title) {
			continue
		}
		stats.RelevantNew++
		labels := filter.MatchLabels(posting.Title, nil)
		rows = append(rows, sheets.Row{
			Source:    posting.Source,
			Labels:    strings.Join(labels, ","),
			Title:     posting.Title,
			Company:   posting.Company,
			Location:  posting.Location,
			DateAdded: dateLabel,
			URL:       posting.URL,
			Decision:  filter.DecisionForTitle(posting.Title),
		})
		if p.publisher != nil && p.cfg.NotifyTopic != "" {
			_, err := p.publisher.Publish(ctx, p.cfg.NotifyTopic, notify.NewPosting{
				Source:   posting.Source,
				Title:    posting.Title,
				Company:  posting.Company,
				Location: posting.Location,
				URL:      posting.URL,
				Labels:   labels,
				PostedAt: posting.PostedAt,
			})
			if err != nil {
				p.logger.Warn("notify failed",
					zap.String("url", posting.URL),
					zap.Error(err),
				)
			} else {
				stats.Published++
			}
		}
	}
	if len(rows) > 0 {
		if err := p.sheet.Append(ctx, rows); err != nil {
			metrics.ObserveRun("scrape", "error")
			return stats, fmt.Errorf("append %s rows: %w", adapter.Name(), err)
		}
	}

	metrics.ObserveRun("scrape", "ok")
	p.logger.Info("source run done",
		zap.String("source", adapter.Name()),
		zap.Int("scraped", stats.Scraped),
		zap.Int("new", stats.New),
		zap.Int("relevant_new", stats.RelevantNew),
	)
	return stats, nil
}

// ExtractPending fetches page text for sheet rows that still lack an LLM
// score, most recent rows first.
func (p *Pipeline) ExtractPending(ctx context.Context, refresh bool) (extract.Stats, error) {
	pending, err := p.pendingRows(ctx)
	if err != nil {
		metrics.ObserveRun("extract", "error")
		return extract.Stats{}, err
	}

	urls := make([]string, len(pending))
	for i, row := range pending {
		urls[i] = row.URL
	}
	stats, err := p.extractor.Run(ctx, urls, refresh)
	if err != nil {
		metrics.ObserveRun("extract", "error")
		return stats, fmt.Errorf("extract pending: %w", err)
	}

	metrics.ObserveRun("extract", "ok")
	p.logger.Info("extract pass done",
		zap.Int("candidates", stats.Candidates),
		zap.Int("ok", stats.OK),
		zap.Int("blocked", stats.Blocked),
		zap.Int("empty", stats.Empty),
		zap.Int("errors", stats.Errors),
	)
	return stats, nil
}

// ScorePending scores pending sheet rows from cached text and mirrors the
// verdicts back into the sheet's LLM columns.
func (p *Pipeline) ScorePending(ctx context.Context, rescore bool) (score.RunStats, error) {
	pending, err := p.pendingRows(ctx)
	if err != nil {
		metrics.ObserveRun("score", "error")
		return score.RunStats{}, err
	}

	candidates := make([]score.Candidate, len(pending))
	for i, row := range pending {
		candidates[i] = score.Candidate{
			Title:    row.Title,
			Company:  row.Company,
			Location: row.Location,
			URL:      row.URL,
		}
	}
	stats, err := p.scorer.Run(ctx, candidates, rescore)
	if err != nil {
		metrics.ObserveRun("score", "error")
		return stats, fmt.Errorf("score pending: %w", err)
	}

	if err := p.syncScores(ctx, pending); err != nil {
		metrics.ObserveRun("score", "error")
		return stats, err
	}

	metrics.ObserveRun("score", "ok")
	p.logger.Info("score pass done",
		zap.Int("candidates", stats.Candidates),
		zap.Int("scored", stats.Scored),
		zap.Int("skipped", stats.Skipped),
		zap.Int("missing", stats.Missing),
		zap.Int("errors", stats.Errors),
	)
	return stats, nil
}

// Cycle runs scrape, extract and score back to back. Per-adapter scrape
// failures are logged and skipped so one broken site does not stall the
// others.
func (p *Pipeline) Cycle(ctx context.Context, adapters []sources.Adapter) error {
	for _, adapter := range adapters {
		if _, err := p.RunSource(ctx, adapter); err != nil {
			if ctx.Err() != nil {
				return err
			}
			p.logger.Warn("source run failed",
				zap.String("source", adapter.Name()),
				zap.Error(err),
			)
		}
	}
	if _, err := p.ExtractPending(ctx, false); err != nil {
		return err
	}
	_, err := p.ScorePending(ctx, false)
	return err
}

// pendingRows returns sheet rows awaiting a score, most recent first.
// Rows append chronologically, so the walk is bottom-up.
func (p *Pipeline) pendingRows(ctx context.Context) ([]sheets.Row, error) {
	rows, err := p.sheet.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}
	var pending []sheets.Row
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].NeedsScore() {
			pending = append(pending, rows[i])
		}
	}
	return pending, nil
}

// syncScores copies stored verdicts for the given rows into the sheet.
func (p *Pipeline) syncScores(ctx context.Context, rows []sheets.Row) error {
	if len(rows) == 0 {
		return nil
	}

	canons := make([]string, len(rows))
	for i, row := range rows {
		canons[i] = urlcanon.Canonicalize(row.URL)
	}
	entries, err := p.scores.GetMany(ctx, canons)
	if err != nil {
		return fmt.Errorf("read verdicts: %w", err)
	}

	var updates []sheets.ScoreUpdate
	for i, row := range rows {
		entry, ok := entries[canons[i]]
		if !ok {
			continue
		}
		updates = append(updates, sheets.ScoreUpdate{
			URL:      row.URL,
			Score:    entry.Score,
			Decision: entry.Decision,
			Reasons:  strings.Join(entry.Reasons, "; "),
		})
	}
	if len(updates) == 0 {
		return nil
	}

	updated, err := p.sheet.UpdateScores(ctx, updates)
	if err != nil {
		return fmt.Errorf("update sheet scores: %w", err)
	}
	p.logger.Info("sheet scores updated", zap.Int("rows", updated))
	return nil
}
