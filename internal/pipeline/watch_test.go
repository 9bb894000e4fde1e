package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wfekih/jobradar/internal/jobs"
	"github.com/wfekih/jobradar/internal/score"
	"github.com/wfekih/jobradar/internal/sheets"
	"github.com/wfekih/jobradar/internal/sources"
)

type countingAdapter struct {
	calls atomic.Int32
}

func (a *countingAdapter) Name() string { return "counting" }

func (a *countingAdapter) Scrape(context.Context) ([]jobs.Posting, string, error) {
	a.calls.Add(1)
	return nil, "test", nil
}

func TestWatcherRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	w := NewWatcher("not a schedule", func(context.Context) error { return nil }, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Run(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid watch schedule")
}

func TestWatcherRunsCyclesUntilCanceled(t *testing.T) {
	t.Parallel()

	adapter := &countingAdapter{}
	p := New(Config{}, newMemJobStore(fixedNow(time.Now())), sheets.NewMemory(),
		&fakeExtractor{}, &fakeScoreRunner{stats: score.RunStats{}}, newMemScores(), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	w := NewWatcher("@every 50ms", func(ctx context.Context) error {
		return p.Cycle(ctx, []sources.Adapter{adapter})
	}, nil)
	err := w.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, adapter.calls.Load(), int32(1))
}
