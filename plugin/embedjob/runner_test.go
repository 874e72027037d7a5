package embedjob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snagtrack/snagtrack/store"
)

type fakeStore struct {
	mu       sync.Mutex
	pending  []*store.BugReport
	upserted map[int32][]float32

	findErr   error
	upsertErr error
}

func newFakeStore(pending ...*store.BugReport) *fakeStore {
	return &fakeStore{pending: pending, upserted: map[int32][]float32{}}
}

func (f *fakeStore) FindBugReportsWithoutEmbedding(_ context.Context, find *store.FindBugReportsWithoutEmbedding) ([]*store.BugReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	remaining := []*store.BugReport{}
	for _, bug := range f.pending {
		if _, done := f.upserted[bug.ID]; !done {
			remaining = append(remaining, bug)
		}
		if len(remaining) == find.Limit {
			break
		}
	}
	return remaining, nil
}

func (f *fakeStore) UpsertBugEmbedding(_ context.Context, embedding *store.BugEmbedding) (*store.BugEmbedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upserted[embedding.BugReportID] = embedding.Embedding
	return embedding, nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, texts)
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

func bug(id int32, title, description string) *store.BugReport {
	return &store.BugReport{ID: id, Title: title, Description: description, Status: store.BugStatusOpen}
}

func testConfig() Config {
	return Config{Model: "test-model", Interval: time.Minute, BatchSize: 32, RatePerSecond: 100}
}

func TestRunOnce_EmbedsPendingBugs(t *testing.T) {
	f := newFakeStore(
		bug(1, "crash on login", "stack trace attached"),
		bug(2, "slow dashboard", ""),
	)
	embedder := &fakeEmbedder{}

	n, err := NewRunner(f, embedder, testConfig(), nil).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.upserted, 2)
	require.Len(t, embedder.calls, 1)
	assert.Equal(t, []string{"crash on login\n\nstack trace attached", "slow dashboard"}, embedder.calls[0])
}

func TestRunOnce_NothingPending(t *testing.T) {
	f := newFakeStore()
	embedder := &fakeEmbedder{}

	n, err := NewRunner(f, embedder, testConfig(), nil).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, embedder.calls, "no provider call for an empty backlog")
}

func TestRunOnce_ChunksProviderBatches(t *testing.T) {
	pending := []*store.BugReport{}
	for i := int32(1); i <= providerBatchSize+3; i++ {
		pending = append(pending, bug(i, "bug", "details"))
	}
	f := newFakeStore(pending...)
	embedder := &fakeEmbedder{}

	n, err := NewRunner(f, embedder, testConfig(), nil).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, providerBatchSize+3, n)
	require.Len(t, embedder.calls, 2)
	assert.Len(t, embedder.calls[0], providerBatchSize)
	assert.Len(t, embedder.calls[1], 3)
}

func TestRunOnce_ProviderFailure(t *testing.T) {
	f := newFakeStore(bug(1, "crash", ""))
	embedder := &fakeEmbedder{err: errors.New("rate limited upstream")}

	n, err := NewRunner(f, embedder, testConfig(), nil).RunOnce(context.Background())

	require.Error(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.upserted)
}

func TestRunOnce_SkipsAlreadyEmbedded(t *testing.T) {
	f := newFakeStore(bug(1, "crash", ""), bug(2, "hang", ""))
	embedder := &fakeEmbedder{}
	runner := NewRunner(f, embedder, testConfig(), nil)

	_, err := runner.RunOnce(context.Background())
	require.NoError(t, err)

	n, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "second cycle has nothing left to embed")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	f := newFakeStore()
	runner := NewRunner(f, &fakeEmbedder{}, Config{Model: "test-model", Interval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestEmbeddingText(t *testing.T) {
	assert.Equal(t, "title", EmbeddingText(bug(1, "title", "")))
	assert.Equal(t, "title\n\nbody", EmbeddingText(bug(1, "title", "body")))
}
