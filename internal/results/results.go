// Package results persists completed chart analyses, one row per
// (user, timeframe). The processor saves at most one row per completed job;
// the query API and the invoker's context building read them back.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sharadbhat/chartsage/pkg/models"
)

var ErrNotFound = errors.New("result not found")

// Store is the analysis-result access interface.
type Store interface {
	// GetAll returns the user's stored results, newest first.
	GetAll(ctx context.Context, userID string) ([]models.ChartResult, error)
	// Save upserts the row for (user, timeframe).
	Save(ctx context.Context, res models.ChartResult) error
	Delete(ctx context.Context, userID, tf string) error
}

// PostgresStore implements Store using pgx/v5 with a JSONB analysis column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetAll(ctx context.Context, userID string) ([]models.ChartResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, timeframe, analysis, created_at
		 FROM chart_results WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("get results: %w", err)
	}
	defer rows.Close()

	var out []models.ChartResult
	for rows.Next() {
		var r models.ChartResult
		var raw []byte
		if err := rows.Scan(&r.UserID, &r.Timeframe, &raw, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(raw, &r.Analysis); err != nil {
			return nil, fmt.Errorf("decode result analysis: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Save(ctx context.Context, res models.ChartResult) error {
	raw, err := json.Marshal(res.Analysis)
	if err != nil {
		return fmt.Errorf("encode result analysis: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO chart_results (user_id, timeframe, analysis, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, timeframe) DO UPDATE SET
		   analysis = EXCLUDED.analysis,
		   created_at = EXCLUDED.created_at`,
		res.UserID, res.Timeframe, raw, res.CreatedAt)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID, tf string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chart_results WHERE user_id = $1 AND timeframe = $2`, userID, tf)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
