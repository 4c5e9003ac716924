package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusDone       = "done"
	JobStatusError      = "error"
)

// jobNamespace seeds deterministic job IDs so that re-submitting the same
// source message never creates a second job row.
var jobNamespace = uuid.MustParse("8f1c6e2a-6b7d-4c3e-9f5a-2d8b4e7c1a90")

// Job is one unit of "analyze this chart image for this user". Queue
// invariants are scoped per user: at most one job is processing at any
// instant, and queued jobs drain in created_at order.
type Job struct {
	ID         uuid.UUID  `db:"id"          json:"id"`
	UserID     string     `db:"user_id"     json:"user_id"`
	SourceRef  string     `db:"source_ref"  json:"source_ref"`
	Status     string     `db:"status"      json:"status"`
	Attempt    int        `db:"attempt"     json:"attempt"`
	ResultTF   *string    `db:"result_tf"   json:"result_tf,omitempty"`
	LastError  *string    `db:"last_error"  json:"last_error,omitempty"`
	CreatedAt  time.Time  `db:"created_at"  json:"created_at"`
	StartedAt  *time.Time `db:"started_at"  json:"started_at,omitempty"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// DeriveJobID returns the stable job ID for a (user, source message) pair.
// Used as the idempotency key for enqueue.
func DeriveJobID(userID, sourceRef string) uuid.UUID {
	return uuid.NewSHA1(jobNamespace, []byte(userID+"\x00"+sourceRef))
}
