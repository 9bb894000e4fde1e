package sheets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wfekih/jobradar/internal/jobs"
)

func TestFileSheetRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.csv")
	f := NewFile(path)

	// Missing file reads as empty.
	rows, err := f.Rows(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)

	require.NoError(t, f.Append(ctx, []Row{
		{Source: "keejob", Title: "Développeur Go", URL: "https://example.com/jobs/1", Decision: "NEW"},
		{Source: "remotive", Title: "Data, Engineer", URL: "https://example.com/jobs/2", Decision: "NEW"},
	}))

	// A fresh handle sees the persisted rows, commas intact.
	rows, err = NewFile(path).Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Développeur Go", rows[0].Title)
	require.Equal(t, "Data, Engineer", rows[1].Title)

	updated, err := f.UpdateScores(ctx, []ScoreUpdate{
		{URL: "https://example.com/jobs/2", Score: 64, Decision: jobs.DecisionMaybe, Reasons: "Some overlap"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	rows, err = f.Rows(ctx)
	require.NoError(t, err)
	require.Equal(t, "64", rows[1].LLMScore)
	require.Equal(t, "maybe", rows[1].LLMDecision)
	require.Empty(t, rows[0].LLMScore)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "source,labels,title")
}

func TestFileSheetAppendAccumulates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := NewFile(filepath.Join(t.TempDir(), "jobs.csv"))

	require.NoError(t, f.Append(ctx, []Row{{Title: "First", URL: "https://example.com/1"}}))
	require.NoError(t, f.Append(ctx, []Row{{Title: "Second", URL: "https://example.com/2"}}))

	rows, err := f.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "First", rows[0].Title)
	require.Equal(t, "Second", rows[1].Title)
}
