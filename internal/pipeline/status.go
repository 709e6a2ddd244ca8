// Package pipeline models a document's journey through the processing
// pipeline: uploading, extracting, chunking, embedding, then completed, with
// failure and bounded retry reachable from any active stage.
package pipeline

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrIllegalTransition indicates a transition violating stage ordering.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrRetryLimitExceeded indicates the retry budget is exhausted; the
	// job stays failed permanently.
	ErrRetryLimitExceeded = errors.New("retry limit exceeded")

	// ErrUnknownStatus indicates an unrecognised status value.
	ErrUnknownStatus = errors.New("unknown status")
)

// Status is a document's processing state.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusExtracting Status = "extracting"
	StatusChunking   Status = "chunking"
	StatusEmbedding  Status = "embedding"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// stageOrder lists the active stages along the happy path.
var stageOrder = []Status{StatusUploading, StatusExtracting, StatusChunking, StatusEmbedding}

// ParseStatus converts a persisted string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusUploading, StatusExtracting, StatusChunking, StatusEmbedding, StatusCompleted, StatusFailed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// Terminal reports whether the status ends the happy path. A failed job may
// still leave via Retry while its retry budget lasts.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Active reports whether the status is a processing stage.
func (s Status) Active() bool {
	_, ok := s.stageIndex()
	return ok
}

// stageIndex returns the position of an active stage along the happy path.
func (s Status) stageIndex() (int, bool) {
	for i, stage := range stageOrder {
		if stage == s {
			return i, true
		}
	}
	return 0, false
}

// Message returns the human-readable description shown while a job is in
// this status.
func (s Status) Message() string {
	switch s {
	case StatusUploading:
		return "Uploading document"
	case StatusExtracting:
		return "Extracting text"
	case StatusChunking:
		return "Splitting into chunks"
	case StatusEmbedding:
		return "Generating embeddings"
	case StatusCompleted:
		return "Processing complete"
	case StatusFailed:
		return "Processing failed"
	default:
		return string(s)
	}
}

// StageConfig holds the overall-progress band and the estimated duration of
// one processing stage.
type StageConfig struct {
	// BandStart and BandEnd bound this stage's share of overall progress.
	BandStart int
	BandEnd   int

	// EstimatedDuration is the advisory expected stage runtime.
	EstimatedDuration time.Duration
}

// Config tunes the state machine.
type Config struct {
	// MaxRetries bounds failed-stage retries.
	MaxRetries int

	// BaseDelay and Multiplier parameterise exponential retry backoff.
	BaseDelay  time.Duration
	Multiplier float64

	// Stages maps each active stage to its band and duration estimate.
	Stages map[Status]StageConfig
}

// DefaultConfig returns the default stage bands, duration estimates and
// retry policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		Multiplier: 2,
		Stages: map[Status]StageConfig{
			StatusUploading:  {BandStart: 0, BandEnd: 10, EstimatedDuration: 5 * time.Second},
			StatusExtracting: {BandStart: 10, BandEnd: 40, EstimatedDuration: 20 * time.Second},
			StatusChunking:   {BandStart: 40, BandEnd: 70, EstimatedDuration: 10 * time.Second},
			StatusEmbedding:  {BandStart: 70, BandEnd: 100, EstimatedDuration: 45 * time.Second},
		},
	}
}
