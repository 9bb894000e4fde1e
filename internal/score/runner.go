package score

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wfekih/jobradar/internal/jobs"
	"github.com/wfekih/jobradar/internal/metrics"
	"github.com/wfekih/jobradar/internal/progress"
	"github.com/wfekih/jobradar/internal/urlcanon"
)

// Candidate is one sheet row eligible for scoring.
type Candidate struct {
	Title    string
	Company  string
	Location string
	URL      string
}

// TextSource is the slice of the text cache the runner reads.
type TextSource interface {
	GetMany(ctx context.Context, urlCanons []string) (map[string]jobs.TextEntry, error)
}

// Store is the slice of the score store the runner uses.
type Store interface {
	GetMany(ctx context.Context, urlCanons []string) (map[string]jobs.ScoreEntry, error)
	Upsert(ctx context.Context, e jobs.ScoreEntry) error
}

// RunnerConfig tunes one scoring sweep.
type RunnerConfig struct {
	MaxJobs     int
	Concurrency int
}

// RunStats summarizes one scoring sweep. Missing counts candidates whose
// text cache entry is absent or unusable; Skipped counts already-scored
// URLs left alone.
type RunStats struct {
	Candidates int
	Scored     int
	Skipped    int
	Missing    int
	Errors     int
}

// Runner scores candidates from cached text only; it never fetches. A URL
// is scored at most once per model unless rescore is requested, keyed by
// canonical URL so tracking-parameter variants share one verdict; switching
// the configured model makes every old verdict eligible again.
type Runner struct {
	cfg      RunnerConfig
	scorer   Scorer
	texts    TextSource
	store    Store
	observer progress.Observer
	logger   *zap.Logger
}

// NewRunner wires a scoring runner. observer may be nil.
func NewRunner(cfg RunnerConfig, scorer Scorer, texts TextSource, store Store, observer progress.Observer, logger *zap.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if observer == nil {
		observer = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Runner{
		cfg:      cfg,
		scorer:   scorer,
		texts:    texts,
		store:    store,
		observer: observer,
		logger:   logger,
	}
}

type scoreTask struct {
	candidate Candidate
	canon     string
	text      string
}

type scoreOutcome struct {
	task    scoreTask
	verdict Verdict
	err     error
}

// Run scores up to MaxJobs candidates on a small worker pool. Per-candidate
// scorer failures are counted, logged and skipped; Run only errors on store
// failures.
func (r *Runner) Run(ctx context.Context, candidates []Candidate, rescore bool) (RunStats, error) {
	runID := uuid.New()
	var stats RunStats

	if r.cfg.MaxJobs > 0 && len(candidates) > r.cfg.MaxJobs {
		candidates = candidates[:r.cfg.MaxJobs]
	}
	stats.Candidates = len(candidates)
	r.observer.Observe(progress.Event{
		RunID: runID, TS: time.Now().UTC(), Stage: progress.StageRunStart,
		Total: len(candidates),
	})
	if len(candidates) == 0 {
		r.observer.Observe(progress.Event{RunID: runID, TS: time.Now().UTC(), Stage: progress.StageRunDone})
		return stats, nil
	}

	canons := make([]string, len(candidates))
	for i, c := range candidates {
		canons[i] = urlcanon.Canonicalize(c.URL)
	}

	scored := map[string]jobs.ScoreEntry{}
	if !rescore {
		var err error
		scored, err = r.store.GetMany(ctx, canons)
		if err != nil {
			return stats, fmt.Errorf("load existing scores: %w", err)
		}
	}
	texts, err := r.texts.GetMany(ctx, canons)
	if err != nil {
		return stats, fmt.Errorf("load cached text: %w", err)
	}

	activeModel := r.scorer.Model()

	var tasks []scoreTask
	for i, c := range candidates {
		canon := canons[i]
		// A verdict from a different model is stale, not settled.
		if prev, ok := scored[canon]; ok && (activeModel == "" || prev.Model == activeModel) {
			stats.Skipped++
			r.observer.Observe(progress.Event{
				RunID: runID, TS: time.Now().UTC(), Stage: progress.StageSkipped,
				URL: c.URL, Note: "already scored",
			})
			continue
		}
		entry, ok := texts[canon]
		if !ok || !entry.Satisfied() {
			stats.Missing++
			continue
		}
		tasks = append(tasks, scoreTask{candidate: c, canon: canon, text: entry.Text})
	}

	outcomes := r.scorePool(ctx, tasks)
	done := 0
	for outcome := range outcomes {
		done++
		if outcome.err != nil {
			stats.Errors++
			r.logger.Warn("score failed",
				zap.String("url", outcome.task.candidate.URL),
				zap.Error(outcome.err),
			)
			continue
		}
		entry := jobs.ScoreEntry{
			URLCanon: outcome.task.canon,
			URL:      outcome.task.candidate.URL,
			Score:    outcome.verdict.Score,
			Decision: outcome.verdict.Decision,
			Reasons:  outcome.verdict.Reasons,
			Model:    outcome.verdict.Model,
		}
		if err := r.store.Upsert(ctx, entry); err != nil {
			return stats, fmt.Errorf("store score: %w", err)
		}
		stats.Scored++
		metrics.ObserveScore(string(entry.Decision))
		r.observer.Observe(progress.Event{
			RunID: runID, TS: time.Now().UTC(), Stage: progress.StageScoreDone,
			URL: outcome.task.candidate.URL, Index: done, Total: len(tasks),
			Note: fmt.Sprintf("score=%.0f decision=%s", entry.Score, entry.Decision),
		})
	}
	if ctx.Err() != nil {
		return stats, fmt.Errorf("scoring pool: %w", ctx.Err())
	}

	r.observer.Observe(progress.Event{
		RunID: runID, TS: time.Now().UTC(), Stage: progress.StageRunDone,
		Note: fmt.Sprintf("scored=%d skipped=%d missing=%d errors=%d", stats.Scored, stats.Skipped, stats.Missing, stats.Errors),
	})
	return stats, nil
}

func (r *Runner) scorePool(ctx context.Context, tasks []scoreTask) <-chan scoreOutcome {
	out := make(chan scoreOutcome)
	if len(tasks) == 0 {
		close(out)
		return out
	}

	work := make(chan scoreTask)
	var wg sync.WaitGroup
	for range r.cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range work {
				verdict, err := r.scorer.Score(ctx, task.candidate.ToInput(task.text))
				select {
				case out <- scoreOutcome{task: task, verdict: verdict, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, task := range tasks {
			select {
			case work <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// ToInput pairs a candidate with its cached page text.
func (c Candidate) ToInput(text string) Input {
	return Input{
		Title:    c.Title,
		Company:  c.Company,
		Location: c.Location,
		URL:      c.URL,
		PageText: text,
	}
}
