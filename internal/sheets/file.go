package sheets

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File is a Sheet persisted as a CSV file with the standard header. It is
// the default collaborator when no external spreadsheet is wired, so runs
// survive process restarts and stay hand-editable.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile builds a file-backed sheet at path. The file is created on the
// first append.
func NewFile(path string) *File {
	return &File{path: path}
}

// Rows implements Sheet.
func (f *File) Rows(_ context.Context) ([]Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

// Append implements Sheet.
func (f *File) Append(_ context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, err := f.load()
	if err != nil {
		return err
	}
	return f.save(append(existing, rows...))
}

// UpdateScores implements Sheet with the same last-duplicate-wins matching
// as the in-memory sheet.
func (f *File) UpdateScores(_ context.Context, updates []ScoreUpdate) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rows, err := f.load()
	if err != nil {
		return 0, err
	}

	byURL := make(map[string]int, len(rows))
	for i, row := range rows {
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
		rows[i].LLMScore = FormatScore(u.Score)
		rows[i].LLMDecision = string(u.Decision)
		rows[i].LLMReasons = u.Reasons
		updated++
	}
	if updated == 0 {
		return 0, nil
	}
	if err := f.save(rows); err != nil {
		return 0, err
	}
	return updated, nil
}

func (f *File) load() ([]Row, error) {
	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open sheet file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read sheet file: %w", err)
	}

	var rows []Row
	for i, record := range records {
		if i == 0 && len(record) > 0 && record[0] == Header[0] {
			continue
		}
		rows = append(rows, RowFromValues(record))
	}
	return rows, nil
}

// save writes header plus rows atomically via a temp file rename.
func (f *File) save(rows []Row) error {
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".sheet-*.csv")
	if err != nil {
		return fmt.Errorf("create sheet temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(Header); err != nil {
		tmp.Close()
		return fmt.Errorf("write sheet header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row.Values()); err != nil {
			tmp.Close()
			return fmt.Errorf("write sheet row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush sheet file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close sheet temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace sheet file: %w", err)
	}
	return nil
}
