package score

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wfekih/jobradar/internal/jobs"
	"github.com/wfekih/jobradar/internal/urlcanon"
)

type fakeScorer struct {
	mu       sync.Mutex
	model    string
	verdicts map[string]Verdict
	failURLs map[string]bool
	calls    []string
}

func (s *fakeScorer) Model() string {
	if s.model != "" {
		return s.model
	}
	return "test"
}

func (s *fakeScorer) Score(_ context.Context, in Input) (Verdict, error) {
	s.mu.Lock()
	s.calls = append(s.calls, in.URL)
	s.mu.Unlock()
	if s.failURLs[in.URL] {
		return Verdict{}, fmt.Errorf("model exploded")
	}
	if v, ok := s.verdicts[in.URL]; ok {
		return v, nil
	}
	return Verdict{Score: 50, Decision: jobs.DecisionMaybe, Model: "test"}, nil
}

func (s *fakeScorer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakeTexts struct {
	entries map[string]jobs.TextEntry
}

func (f *fakeTexts) GetMany(_ context.Context, urlCanons []string) (map[string]jobs.TextEntry, error) {
	out := make(map[string]jobs.TextEntry)
	for _, k := range urlCanons {
		if e, ok := f.entries[k]; ok {
			out[k] = e
		}
	}
	return out, nil
}

type fakeScoreStore struct {
	mu      sync.Mutex
	entries map[string]jobs.ScoreEntry
}

func newFakeScoreStore() *fakeScoreStore {
	return &fakeScoreStore{entries: make(map[string]jobs.ScoreEntry)}
}

func (f *fakeScoreStore) GetMany(_ context.Context, urlCanons []string) (map[string]jobs.ScoreEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]jobs.ScoreEntry)
	for _, k := range urlCanons {
		if e, ok := f.entries[k]; ok {
			out[k] = e
		}
	}
	return out, nil
}

func (f *fakeScoreStore) Upsert(_ context.Context, e jobs.ScoreEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[e.URLCanon] = e
	return nil
}

func okText(urlCanon, url string) jobs.TextEntry {
	return jobs.TextEntry{URLCanon: urlCanon, URL: url, Text: "long cached posting text", Status: jobs.FetchOK}
}

func TestRunnerScoresCandidatesWithCachedText(t *testing.T) {
	t.Parallel()

	u := "https://example.com/jobs/1?utm_source=feed"
	canon := urlcanon.Canonicalize(u)

	scorer := &fakeScorer{verdicts: map[string]Verdict{
		u: {Score: 82, Decision: jobs.DecisionYes, Reasons: []string{"good fit"}, Model: "test"},
	}}
	store := newFakeScoreStore()
	r := NewRunner(RunnerConfig{}, scorer, &fakeTexts{entries: map[string]jobs.TextEntry{canon: okText(canon, u)}}, store, nil, nil)

	stats, err := r.Run(context.Background(), []Candidate{{Title: "Backend Engineer", URL: u}}, false)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Scored)
	require.Zero(t, stats.Missing)

	entry, ok := store.entries[canon]
	require.True(t, ok)
	require.Equal(t, jobs.DecisionYes, entry.Decision)
	require.Equal(t, u, entry.URL)
	require.Equal(t, canon, entry.URLCanon)
}

func TestRunnerSkipsAlreadyScored(t *testing.T) {
	t.Parallel()

	u := "https://example.com/jobs/1"
	canon := urlcanon.Canonicalize(u)

	scorer := &fakeScorer{}
	store := newFakeScoreStore()
	store.entries[canon] = jobs.ScoreEntry{URLCanon: canon, Decision: jobs.DecisionNo, Model: "test"}
	r := NewRunner(RunnerConfig{}, scorer, &fakeTexts{entries: map[string]jobs.TextEntry{canon: okText(canon, u)}}, store, nil, nil)

	stats, err := r.Run(context.Background(), []Candidate{{URL: u}}, false)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Skipped)
	require.Zero(t, stats.Scored)
	require.Zero(t, scorer.callCount())

	// rescore forces a fresh verdict.
	stats, err = r.Run(context.Background(), []Candidate{{URL: u}}, true)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Scored)
	require.Equal(t, 1, scorer.callCount())
}

func TestRunnerRescoresWhenModelChanges(t *testing.T) {
	t.Parallel()

	u := "https://example.com/jobs/1"
	canon := urlcanon.Canonicalize(u)

	scorer := &fakeScorer{model: "qwen2.5:7b-instruct", verdicts: map[string]Verdict{
		u: {Score: 70, Decision: jobs.DecisionMaybe, Model: "qwen2.5:7b-instruct"},
	}}
	store := newFakeScoreStore()
	store.entries[canon] = jobs.ScoreEntry{URLCanon: canon, Decision: jobs.DecisionNo, Model: "llama3.1:8b"}
	r := NewRunner(RunnerConfig{}, scorer, &fakeTexts{entries: map[string]jobs.TextEntry{canon: okText(canon, u)}}, store, nil, nil)

	// The stored verdict came from another model, so it does not count.
	stats, err := r.Run(context.Background(), []Candidate{{URL: u}}, false)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Scored)
	require.Zero(t, stats.Skipped)
	require.Equal(t, jobs.DecisionMaybe, store.entries[canon].Decision)
	require.Equal(t, "qwen2.5:7b-instruct", store.entries[canon].Model)

	// With the verdict refreshed, the same model skips it again.
	stats, err = r.Run(context.Background(), []Candidate{{URL: u}}, false)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Skipped)
	require.Zero(t, stats.Scored)
	require.Equal(t, 1, scorer.callCount())
}

func TestRunnerCountsMissingText(t *testing.T) {
	t.Parallel()

	blockedCanon := urlcanon.Canonicalize("https://example.com/blocked")
	r := NewRunner(RunnerConfig{}, &fakeScorer{}, &fakeTexts{entries: map[string]jobs.TextEntry{
		blockedCanon: {URLCanon: blockedCanon, Status: jobs.FetchBlocked},
	}}, newFakeScoreStore(), nil, nil)

	stats, err := r.Run(context.Background(), []Candidate{
		{URL: "https://example.com/never-fetched"},
		{URL: "https://example.com/blocked"},
	}, false)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Missing)
	require.Zero(t, stats.Scored)
}

func TestRunnerCountsScorerErrors(t *testing.T) {
	t.Parallel()

	good := "https://example.com/jobs/good"
	bad := "https://example.com/jobs/bad"
	texts := map[string]jobs.TextEntry{}
	for _, u := range []string{good, bad} {
		c := urlcanon.Canonicalize(u)
		texts[c] = okText(c, u)
	}

	scorer := &fakeScorer{failURLs: map[string]bool{bad: true}}
	store := newFakeScoreStore()
	r := NewRunner(RunnerConfig{}, scorer, &fakeTexts{entries: texts}, store, nil, nil)

	stats, err := r.Run(context.Background(), []Candidate{{URL: good}, {URL: bad}}, false)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Scored)
	require.Equal(t, 1, stats.Errors)
	require.Len(t, store.entries, 1)
}

func TestRunnerCapsCandidates(t *testing.T) {
	t.Parallel()

	texts := map[string]jobs.TextEntry{}
	var candidates []Candidate
	for i := range 5 {
		u := fmt.Sprintf("https://example.com/jobs/%d", i)
		c := urlcanon.Canonicalize(u)
		texts[c] = okText(c, u)
		candidates = append(candidates, Candidate{URL: u})
	}

	scorer := &fakeScorer{}
	r := NewRunner(RunnerConfig{MaxJobs: 2}, scorer, &fakeTexts{entries: texts}, newFakeScoreStore(), nil, nil)

	stats, err := r.Run(context.Background(), candidates, false)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Candidates)
	require.Equal(t, 2, stats.Scored)
	require.Equal(t, 2, scorer.callCount())
}
