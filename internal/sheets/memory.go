package sheets

import (
	"context"
	"sync"
)

// Memory is a Sheet held in process memory. It backs tests and the dry-run
// mode of the pipeline.
type Memory struct {
	mu   sync.Mutex
	rows []Row
}

// NewMemory builds an empty in-memory sheet.
func NewMemory() *Memory { return &Memory{} }

// Rows implements Sheet.
func (m *Memory) Rows(_ context.Context) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

// Append implements Sheet.
func (m *Memory) Append(_ context.Context, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
	return nil
}

// UpdateScores implements Sheet. When a URL appears on several rows the
// last one wins, matching how the spreadsheet sync resolves duplicates.
func (m *Memory) UpdateScores(_ context.Context, updates []ScoreUpdate) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byURL := make(map[string]int, len(m.rows))
	for i, row := range m.rows {
		if row.URL != "" {
			byURL[row.URL] = i
		}
	}

	updated := 0
	for _, u := range updates {
		i, ok := byURL[u.URL]
		if !ok {
			continue
		}
		m.rows[i].LLMScore = FormatScore(u.Score)
		m.rows[i].LLMDecision = string(u.Decision)
		m.rows[i].LLMReasons = u.Reasons
		updated++
	}
	return updated, nil
}
