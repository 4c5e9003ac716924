package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sharadbhat/chartsage/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrNotClaimed is returned when a status transition matched zero rows: the
// job was not in the expected state, meaning the caller lost a race or the
// transition already happened. Callers must treat this as authoritative and
// never retry the write.
var ErrNotClaimed = errors.New("job not in expected state")

// JobStats summarizes a user's queue for ack replies and idle/busy markers.
type JobStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
}

// Store is the data access interface for jobs and API keys. All database
// operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// EnqueueJob inserts a queued job with a deterministic ID derived from
	// (userID, sourceRef). Re-submitting the same source is a no-op that
	// returns the existing row; it never fails for duplicates.
	EnqueueJob(ctx context.Context, userID, sourceRef string) (*models.Job, error)

	// ClaimNextJob atomically transitions the user's oldest queued job to
	// processing, provided no other job is processing for that user. A nil
	// job with nil error means nothing was claimed: empty queue, or another
	// invocation holds the processing slot. This conditional update is the
	// sole concurrency-safety mechanism in the system.
	ClaimNextJob(ctx context.Context, userID string) (*models.Job, error)

	// RequeueJob transitions processing -> queued for a retry, recording the
	// attempt counter and last error and clearing started_at.
	RequeueJob(ctx context.Context, id uuid.UUID, attempt int, lastError string) error

	// MarkJobDone transitions processing -> done, stamps finished_at and the
	// resolved timeframe, and prunes old done rows for the user beyond keep.
	MarkJobDone(ctx context.Context, id uuid.UUID, resultTF string, keep int) error

	// MarkJobError transitions processing -> error with a truncated message.
	MarkJobError(ctx context.Context, id uuid.UUID, message string) error

	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	JobStats(ctx context.Context, userID string) (JobStats, error)
	HasQueuedJobs(ctx context.Context, userID string) (bool, error)

	// RecentJobDurations returns started->finished durations of the newest
	// done jobs, most recent first, for ETA estimation.
	RecentJobDurations(ctx context.Context, userID string, limit int) ([]time.Duration, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}
