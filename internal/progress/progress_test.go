package progress

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wfekih/jobradar/internal/jobs"
)

type recordingObserver struct {
	events []Event
}

func (r *recordingObserver) Observe(evt Event) {
	r.events = append(r.events, evt)
}

func TestMultiFansOutInOrder(t *testing.T) {
	t.Parallel()

	first := &recordingObserver{}
	second := &recordingObserver{}
	multi := Multi{first, nil, second}

	evt := Event{
		RunID:  uuid.New(),
		Stage:  StageFetchDone,
		URL:    "https://example.com/jobs/1",
		Method: jobs.MethodHTTP,
		Status: jobs.FetchOK,
		Index:  1,
		Total:  3,
	}
	multi.Observe(evt)

	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	require.Equal(t, evt, first.events[0])
}

func TestLogObserverHandlesNilLogger(t *testing.T) {
	t.Parallel()

	o := NewLogObserver(nil)
	o.Observe(Event{RunID: uuid.New(), Stage: StageRunStart})
}

func TestLogObserverEmitsFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	o := NewLogObserver(zap.New(core))
	o.Observe(Event{
		RunID:  uuid.New(),
		Stage:  StageScoreDone,
		URL:    "https://example.com/jobs/2",
		Status: jobs.FetchOK,
		Note:   "decision=yes",
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "SCORE_DONE", fields["stage"])
	require.Equal(t, "decision=yes", fields["note"])
}
