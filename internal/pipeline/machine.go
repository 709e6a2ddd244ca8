package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/campushub/docsearch/internal/logger"
)

// Job tracks one document through the pipeline. Overall Progress is a
// high-water mark: it never regresses across transitions, even when a stage
// is retried and its internal progress resets.
type Job struct {
	DocumentID uuid.UUID
	Status     Status
	Progress   int
	Message    string
	StartedAt  time.Time
	RetryCount int
	Err        string

	// StageProgress is the within-stage progress (0-100). It may reset on
	// retry; reported Progress does not.
	StageProgress int

	// failedStage remembers which stage failed so Retry can return to it.
	failedStage Status
}

// StatusStore persists job status snapshots. Implementations are called on
// every Advance and Retry.
type StatusStore interface {
	LoadStatus(ctx context.Context, documentID uuid.UUID) (Status, int, error)
	SaveStatus(ctx context.Context, documentID uuid.UUID, status Status, progress int) error
}

// Machine validates and applies job transitions, persisting each accepted
// one and publishing it to subscribers. It holds no job state of its own:
// callers own Job values and must serialise transitions per document id.
type Machine struct {
	cfg     Config
	store   StatusStore
	subject *Subject
}

// NewMachine creates a state machine. The store may be nil for purely
// in-memory use; the subject may be nil when nothing observes transitions.
func NewMachine(cfg Config, store StatusStore, subject *Subject) *Machine {
	return &Machine{cfg: cfg, store: store, subject: subject}
}

// NewJob starts a fresh job in the uploading stage.
func (m *Machine) NewJob(documentID uuid.UUID) Job {
	return Job{
		DocumentID: documentID,
		Status:     StatusUploading,
		Message:    StatusUploading.Message(),
		StartedAt:  time.Now(),
	}
}

// Rehydrate rebuilds a job from a persisted status + progress snapshot, for
// example after a process restart.
func (m *Machine) Rehydrate(documentID uuid.UUID, status Status, progress int) Job {
	return Job{
		DocumentID: documentID,
		Status:     status,
		Progress:   clampPercent(progress),
		Message:    status.Message(),
		StartedAt:  time.Now(),
	}
}

// LoadJob rehydrates a job from the status store.
func (m *Machine) LoadJob(ctx context.Context, documentID uuid.UUID) (Job, error) {
	status, progress, err := m.store.LoadStatus(ctx, documentID)
	if err != nil {
		return Job{}, fmt.Errorf("load status: %w", err)
	}
	return m.Rehydrate(documentID, status, progress), nil
}

// Advance validates and applies a transition to newStatus with the given
// within-stage progress. Legal transitions are: staying in the current stage
// (a progress update), moving to the immediately next stage, moving from the
// last stage to completed, and moving from any active stage to failed. On an
// illegal transition the job is returned unchanged with ErrIllegalTransition.
func (m *Machine) Advance(ctx context.Context, job Job, newStatus Status, stageProgress int) (Job, error) {
	if _, err := ParseStatus(string(newStatus)); err != nil {
		return job, err
	}
	if err := m.checkTransition(job.Status, newStatus); err != nil {
		return job, err
	}
	stageProgress = clampPercent(stageProgress)

	next := job
	next.Status = newStatus
	next.StageProgress = stageProgress
	next.Message = newStatus.Message()

	switch {
	case newStatus == StatusCompleted:
		next.Progress = 100
		next.StageProgress = 100
	case newStatus == StatusFailed:
		// Overall progress holds its high-water mark; remember the stage
		// that failed so Retry can return to it.
		next.failedStage = job.Status
	default:
		raw := m.overallProgress(newStatus, stageProgress)
		if raw > job.Progress {
			next.Progress = raw
		}
	}

	if err := m.persistAndPublish(ctx, job, next); err != nil {
		return job, err
	}
	return next, nil
}

// Fail marks the job failed with an error detail. Equivalent to advancing
// to StatusFailed, with the detail recorded on the job and the transition.
func (m *Machine) Fail(ctx context.Context, job Job, cause error) (Job, error) {
	if err := m.checkTransition(job.Status, StatusFailed); err != nil {
		return job, err
	}
	next := job
	next.Status = StatusFailed
	next.Message = StatusFailed.Message()
	next.Err = cause.Error()
	next.failedStage = job.Status

	if err := m.persistAndPublish(ctx, job, next); err != nil {
		return job, err
	}
	return next, nil
}

// Retry transitions a failed job back to the stage that failed, resetting
// within-stage progress and incrementing the retry count. Beyond MaxRetries
// it returns ErrRetryLimitExceeded and the job stays failed.
func (m *Machine) Retry(ctx context.Context, job Job) (Job, error) {
	if job.Status != StatusFailed {
		return job, fmt.Errorf("%w: retry from %q", ErrIllegalTransition, job.Status)
	}
	if job.RetryCount >= m.cfg.MaxRetries {
		return job, fmt.Errorf("%w: %d of %d retries used", ErrRetryLimitExceeded, job.RetryCount, m.cfg.MaxRetries)
	}

	stage := job.failedStage
	if !stage.Active() {
		// Rehydrated jobs lose the failed stage; infer it from the overall
		// progress snapshot.
		stage = m.stageForProgress(job.Progress)
	}

	next := job
	next.Status = stage
	next.StageProgress = 0
	next.RetryCount = job.RetryCount + 1
	next.Err = ""
	next.Message = stage.Message()
	next.failedStage = ""

	if err := m.persistAndPublish(ctx, job, next); err != nil {
		return job, err
	}
	return next, nil
}

// RetryDelay computes the exponential backoff delay before the given retry
// attempt. It is a scheduling hint for the caller; the machine never sleeps.
func (m *Machine) RetryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return time.Duration(float64(m.cfg.BaseDelay) * math.Pow(m.cfg.Multiplier, float64(retryCount)))
}

// EstimateTimeRemaining sums the remaining fraction of the current stage's
// estimated duration plus the full estimates of all later stages. Purely
// advisory.
func (m *Machine) EstimateTimeRemaining(status Status, stageProgress int) (time.Duration, error) {
	if status.Terminal() {
		return 0, nil
	}
	idx, ok := status.stageIndex()
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	stageProgress = clampPercent(stageProgress)

	remaining := time.Duration(float64(m.cfg.Stages[status].EstimatedDuration) * float64(100-stageProgress) / 100)
	for _, later := range stageOrder[idx+1:] {
		remaining += m.cfg.Stages[later].EstimatedDuration
	}
	return remaining, nil
}

// checkTransition enforces strictly-forward stage ordering.
func (m *Machine) checkTransition(from, to Status) error {
	if from == StatusCompleted {
		return fmt.Errorf("%w: %q is terminal", ErrIllegalTransition, from)
	}
	if from == StatusFailed {
		return fmt.Errorf("%w: use Retry to leave %q", ErrIllegalTransition, from)
	}
	if to == StatusFailed {
		return nil
	}
	fromIdx, ok := from.stageIndex()
	if !ok {
		return fmt.Errorf("%w: from %q", ErrIllegalTransition, from)
	}
	if to == StatusCompleted {
		if from != stageOrder[len(stageOrder)-1] {
			return fmt.Errorf("%w: %q -> %q skips stages", ErrIllegalTransition, from, to)
		}
		return nil
	}
	toIdx, ok := to.stageIndex()
	if !ok {
		return fmt.Errorf("%w: to %q", ErrIllegalTransition, to)
	}
	if toIdx != fromIdx && toIdx != fromIdx+1 {
		return fmt.Errorf("%w: %q -> %q", ErrIllegalTransition, from, to)
	}
	return nil
}

// overallProgress maps a stage and its internal progress onto the stage's
// overall-progress band.
func (m *Machine) overallProgress(status Status, stageProgress int) int {
	band, ok := m.cfg.Stages[status]
	if !ok {
		return 0
	}
	width := band.BandEnd - band.BandStart
	return band.BandStart + width*stageProgress/100
}

// stageForProgress finds the stage whose band contains the given overall
// progress value.
func (m *Machine) stageForProgress(progress int) Status {
	for _, stage := range stageOrder {
		if band, ok := m.cfg.Stages[stage]; ok && progress < band.BandEnd {
			return stage
		}
	}
	return stageOrder[len(stageOrder)-1]
}

func (m *Machine) persistAndPublish(ctx context.Context, prev, next Job) error {
	if m.store != nil {
		if err := m.store.SaveStatus(ctx, next.DocumentID, next.Status, next.Progress); err != nil {
			return fmt.Errorf("save status: %w", err)
		}
	}
	if m.subject != nil {
		m.subject.Publish(Transition{
			DocumentID: next.DocumentID,
			From:       prev.Status,
			To:         next.Status,
			Progress:   next.Progress,
			Message:    next.Message,
			Err:        next.Err,
			At:         time.Now(),
		})
	}
	logger.Debug("Job %s: %s -> %s (%d%%)", next.DocumentID, prev.Status, next.Status, next.Progress)
	return nil
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
