package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStatusStore is an in-memory StatusStore for tests.
type memStatusStore struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]Status
	progress map[uuid.UUID]int
	saveErr  error
	saves    int
}

func newMemStatusStore() *memStatusStore {
	return &memStatusStore{
		statuses: make(map[uuid.UUID]Status),
		progress: make(map[uuid.UUID]int),
	}
}

func (s *memStatusStore) LoadStatus(ctx context.Context, id uuid.UUID) (Status, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[id], s.progress[id], nil
}

func (s *memStatusStore) SaveStatus(ctx context.Context, id uuid.UUID, status Status, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.statuses[id] = status
	s.progress[id] = progress
	return nil
}

func newTestMachine(store StatusStore) *Machine {
	return NewMachine(DefaultConfig(), store, nil)
}

func TestAdvanceHappyPath(t *testing.T) {
	ctx := context.Background()
	store := newMemStatusStore()
	m := newTestMachine(store)
	job := m.NewJob(uuid.New())

	steps := []struct {
		status        Status
		stageProgress int
	}{
		{StatusUploading, 100},
		{StatusExtracting, 50},
		{StatusExtracting, 100},
		{StatusChunking, 100},
		{StatusEmbedding, 100},
		{StatusCompleted, 100},
	}

	prev := 0
	var err error
	for _, step := range steps {
		job, err = m.Advance(ctx, job, step.status, step.stageProgress)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, job.Progress, prev, "progress regressed at %s", step.status)
		prev = job.Progress
	}
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, StatusCompleted, store.statuses[job.DocumentID])
}

func TestAdvanceRejectsStageSkip(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(nil)
	job := m.NewJob(uuid.New())

	_, err := m.Advance(ctx, job, StatusEmbedding, 0)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = m.Advance(ctx, job, StatusChunking, 0)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = m.Advance(ctx, job, StatusCompleted, 0)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	// Only extracting or failed are legal from uploading.
	next, err := m.Advance(ctx, job, StatusExtracting, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusExtracting, next.Status)

	failed, err := m.Advance(ctx, job, StatusFailed, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
}

func TestAdvanceRejectsBackwardTransition(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(nil)
	job := m.NewJob(uuid.New())

	job, err := m.Advance(ctx, job, StatusExtracting, 50)
	require.NoError(t, err)

	_, err = m.Advance(ctx, job, StatusUploading, 0)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestAdvanceFromCompletedIsIllegal(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(nil)
	job := m.NewJob(uuid.New())
	job.Status = StatusEmbedding

	job, err := m.Advance(ctx, job, StatusCompleted, 100)
	require.NoError(t, err)

	_, err = m.Advance(ctx, job, StatusFailed, 0)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestAdvanceJobUnchangedOnError(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(nil)
	job := m.NewJob(uuid.New())

	got, err := m.Advance(ctx, job, StatusEmbedding, 0)
	require.Error(t, err)
	assert.Equal(t, job, got)
}

func TestAdvanceStoreFailureAbortsTransition(t *testing.T) {
	ctx := context.Background()
	store := newMemStatusStore()
	store.saveErr = assert.AnError
	m := newTestMachine(store)
	job := m.NewJob(uuid.New())

	got, err := m.Advance(ctx, job, StatusExtracting, 0)
	require.Error(t, err)
	assert.Equal(t, job, got)
}

func TestOverallProgressBands(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(nil)
	cfg := DefaultConfig()
	job := m.NewJob(uuid.New())

	job, err := m.Advance(ctx, job, StatusUploading, 100)
	require.NoError(t, err)
	job, err = m.Advance(ctx, job, StatusExtracting, 0)
	require.NoError(t, err)
	job, err = m.Advance(ctx, job, StatusExtracting, 100)
	require.NoError(t, err)
	job, err = m.Advance(ctx, job, StatusChunking, 0)
	require.NoError(t, err)

	// The job sits at the extracting/chunking band boundary: past the
	// extracting band's start, not yet at the chunking band's end.
	extracting := cfg.Stages[StatusExtracting]
	chunking := cfg.Stages[StatusChunking]
	assert.Greater(t, job.Progress, extracting.BandStart)
	assert.Less(t, job.Progress, chunking.BandEnd)
	assert.Equal(t, extracting.BandEnd, job.Progress)
}

func TestProgressHighWaterAcrossRetry(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(nil)
	job := m.NewJob(uuid.New())

	job, err := m.Advance(ctx, job, StatusExtracting, 80)
	require.NoError(t, err)
	highWater := job.Progress
	require.Greater(t, highWater, 0)

	job, err = m.Fail(ctx, job, assert.AnError)
	require.NoError(t, err)
	assert.Equal(t, highWater, job.Progress)

	job, err = m.Retry(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, StatusExtracting, job.Status)
	assert.Equal(t, 0, job.StageProgress)
	// Reported overall progress holds its high-water mark.
	assert.Equal(t, highWater, job.Progress)

	// A lower within-stage reading after the retry must not regress the
	// reported progress either.
	job, err = m.Advance(ctx, job, StatusExtracting, 10)
	require.NoError(t, err)
	assert.Equal(t, highWater, job.Progress)
}

func TestRetryLimit(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	m := NewMachine(cfg, nil, nil)
	job := m.NewJob(uuid.New())

	var err error
	for i := 0; i < cfg.MaxRetries; i++ {
		job, err = m.Fail(ctx, job, assert.AnError)
		require.NoError(t, err)
		job, err = m.Retry(ctx, job)
		require.NoError(t, err)
		assert.Equal(t, i+1, job.RetryCount)
	}

	job, err = m.Fail(ctx, job, assert.AnError)
	require.NoError(t, err)
	_, err = m.Retry(ctx, job)
	assert.ErrorIs(t, err, ErrRetryLimitExceeded)
	assert.Equal(t, StatusFailed, job.Status)
}

func TestRetryOnlyFromFailed(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(nil)
	job := m.NewJob(uuid.New())

	_, err := m.Retry(ctx, job)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestRetryAfterRehydrationInfersStage(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(nil)

	// A failed job rehydrated from a snapshot has lost its failed stage;
	// the band containing the progress value identifies it.
	job := m.Rehydrate(uuid.New(), StatusFailed, 55)
	job, err := m.Retry(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, StatusChunking, job.Status)
}

func TestRetryDelayExponential(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDelay = time.Second
	cfg.Multiplier = 2
	m := NewMachine(cfg, nil, nil)

	assert.Equal(t, 1*time.Second, m.RetryDelay(0))
	assert.Equal(t, 2*time.Second, m.RetryDelay(1))
	assert.Equal(t, 4*time.Second, m.RetryDelay(2))
	assert.Equal(t, 8*time.Second, m.RetryDelay(3))
}

func TestEstimateTimeRemaining(t *testing.T) {
	cfg := DefaultConfig()
	m := NewMachine(cfg, nil, nil)

	// Half of extracting remains, plus chunking and embedding in full.
	got, err := m.EstimateTimeRemaining(StatusExtracting, 50)
	require.NoError(t, err)
	want := cfg.Stages[StatusExtracting].EstimatedDuration/2 +
		cfg.Stages[StatusChunking].EstimatedDuration +
		cfg.Stages[StatusEmbedding].EstimatedDuration
	assert.Equal(t, want, got)

	got, err = m.EstimateTimeRemaining(StatusCompleted, 0)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestLoadJobRehydrates(t *testing.T) {
	ctx := context.Background()
	store := newMemStatusStore()
	m := newTestMachine(store)
	id := uuid.New()
	store.statuses[id] = StatusEmbedding
	store.progress[id] = 85

	job, err := m.LoadJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusEmbedding, job.Status)
	assert.Equal(t, 85, job.Progress)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("chunking")
	require.NoError(t, err)
	assert.Equal(t, StatusChunking, s)

	_, err = ParseStatus("paused")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}
