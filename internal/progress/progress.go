// Package progress defines the event stream emitted by long pipeline phases
// so callers can watch extraction and scoring advance URL by URL.
package progress

import (
	"time"

	"github.com/google/uuid"

	"github.com/wfekih/jobradar/internal/jobs"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
	StageFetchStart Stage = "FETCH_START"
	StageFetchDone  Stage = "FETCH_DONE"
	StageScoreDone  Stage = "SCORE_DONE"
	StageSkipped    Stage = "SKIPPED"
)

// Event captures a single milestone of a pipeline run. Index and Total give
// coarse position within the phase; Index is 1-based and 0 when unknown.
type Event struct {
	RunID  uuid.UUID
	TS     time.Time
	Stage  Stage
	Source string
	URL    string
	Site   string
	Method jobs.FetchMethod
	Status jobs.FetchStatus
	Index  int
	Total  int
	Dur    time.Duration
	Note   string
}

// Observer receives events synchronously, in emission order. Implementations
// must be fast and must not block; heavy sinks should buffer internally.
type Observer interface {
	Observe(evt Event)
}

// Nop discards all events.
type Nop struct{}

// Observe implements Observer.
func (Nop) Observe(Event) {}

// Multi fans one event out to several observers in order.
type Multi []Observer

// Observe implements Observer.
func (m Multi) Observe(evt Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(evt)
		}
	}
}
