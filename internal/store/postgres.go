package store

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sharadbhat/chartsage/pkg/models"
)

const maxErrorMessageLen = 500

const jobColumns = `id, user_id, source_ref, status, attempt, result_tf, last_error, created_at, started_at, finished_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

func (s *PostgresStore) EnqueueJob(ctx context.Context, userID, sourceRef string) (*models.Job, error) {
	id := models.DeriveJobID(userID, sourceRef)

	var j models.Job
	err := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (id, user_id, source_ref, status, attempt, created_at)
		 VALUES ($1, $2, $3, 'queued', 0, now())
		 ON CONFLICT (id) DO NOTHING
		 RETURNING `+jobColumns, id, userID, sourceRef,
	).Scan(&j.ID, &j.UserID, &j.SourceRef, &j.Status, &j.Attempt, &j.ResultTF,
		&j.LastError, &j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Duplicate submission: return the existing row untouched.
		return s.GetJob(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return &j, nil
}

// ClaimNextJob performs the single conditional update that protects the
// per-user processing slot. The partial unique index on
// (user_id) WHERE status = 'processing' makes a second concurrent claim fail
// with a unique violation; both "zero rows" and that violation mean the race
// was lost, which is a normal non-error outcome.
func (s *PostgresStore) ClaimNextJob(ctx context.Context, userID string) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = 'processing', started_at = now()
		 WHERE id = (
		     SELECT id FROM jobs
		     WHERE user_id = $1 AND status = 'queued'
		     ORDER BY created_at, id
		     LIMIT 1
		 ) AND status = 'queued'
		 RETURNING `+jobColumns, userID,
	).Scan(&j.ID, &j.UserID, &j.SourceRef, &j.Status, &j.Attempt, &j.ResultTF,
		&j.LastError, &j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if isDuplicateKeyError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) RequeueJob(ctx context.Context, id uuid.UUID, attempt int, lastError string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'queued', attempt = $2, last_error = $3, started_at = NULL
		 WHERE id = $1 AND status = 'processing'`,
		id, attempt, truncate(lastError, maxErrorMessageLen))
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (s *PostgresStore) MarkJobDone(ctx context.Context, id uuid.UUID, resultTF string, keep int) error {
	var userID string
	err := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = 'done', result_tf = $2, finished_at = now()
		 WHERE id = $1 AND status = 'processing'
		 RETURNING user_id`, id, resultTF,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotClaimed
	}
	if err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}

	// Retain only the newest done rows so storage stays bounded and ETA
	// estimation reflects recent performance.
	_, err = s.pool.Exec(ctx,
		`DELETE FROM jobs
		 WHERE user_id = $1 AND status = 'done' AND id NOT IN (
		     SELECT id FROM jobs
		     WHERE user_id = $1 AND status = 'done'
		     ORDER BY finished_at DESC, id
		     LIMIT $2
		 )`, userID, keep)
	if err != nil {
		return fmt.Errorf("prune done jobs: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkJobError(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'error', last_error = $2, finished_at = now()
		 WHERE id = $1 AND status = 'processing'`,
		id, truncate(message, maxErrorMessageLen))
	if err != nil {
		return fmt.Errorf("mark job error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.UserID, &j.SourceRef, &j.Status, &j.Attempt, &j.ResultTF,
		&j.LastError, &j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) JobStats(ctx context.Context, userID string) (JobStats, error) {
	var stats JobStats
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FILTER (WHERE status = 'queued'),
		        count(*) FILTER (WHERE status = 'processing')
		 FROM jobs WHERE user_id = $1`, userID,
	).Scan(&stats.Queued, &stats.Processing)
	if err != nil {
		return JobStats{}, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) HasQueuedJobs(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE user_id = $1 AND status = 'queued')`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has queued jobs: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) RecentJobDurations(ctx context.Context, userID string, limit int) ([]time.Duration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT finished_at - started_at FROM jobs
		 WHERE user_id = $1 AND status = 'done'
		   AND started_at IS NOT NULL AND finished_at IS NOT NULL
		 ORDER BY finished_at DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent job durations: %w", err)
	}
	defer rows.Close()

	var durations []time.Duration
	for rows.Next() {
		var d time.Duration
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan job duration: %w", err)
		}
		durations = append(durations, d)
	}
	return durations, rows.Err()
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = now(), updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// truncate shortens s to maxBytes without splitting UTF-8 runes.
func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
