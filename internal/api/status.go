package api

import (
	"sync"
	"time"
)

// RunRecord captures the terminal counters of one pipeline phase run.
type RunRecord struct {
	Phase      string         `json:"phase"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Counters   map[string]int `json:"counters,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Status tracks the most recent run per phase for the ops endpoints. It is
// written by the pipeline wiring and read by HTTP handlers.
type Status struct {
	mu      sync.Mutex
	byPhase map[string]RunRecord
	last    *RunRecord
}

// NewStatus builds an empty tracker.
func NewStatus() *Status {
	return &Status{byPhase: make(map[string]RunRecord)}
}

// Record stores a finished run, replacing the previous one for the phase.
func (s *Status) Record(rec RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPhase[rec.Phase] = rec
	s.last = &rec
}

// Last returns the most recently recorded run across all phases.
func (s *Status) Last() (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return RunRecord{}, false
	}
	return *s.last, true
}

// Phases returns the latest run per phase, newest first.
func (s *Status) Phases() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunRecord, 0, len(s.byPhase))
	for _, rec := range s.byPhase {
		out = append(out, rec)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].FinishedAt.After(out[i].FinishedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}
