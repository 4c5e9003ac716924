package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/sharadbhat/chartsage/internal/store"
)

// Per-image estimates are clamped to a sane range so one pathological
// duration cannot produce an absurd ETA.
const (
	minPerImage      = 5 * time.Second
	maxPerImage      = 3 * time.Minute
	durationsSampled = 5
)

// Estimate is the immediate ack payload for a just-enqueued job.
type Estimate struct {
	Position     int           `json:"position"`
	TotalPending int           `json:"total_pending"`
	PerImage     time.Duration `json:"-"`
	ETAStart     time.Time     `json:"eta_start"`
	ETADone      time.Time     `json:"eta_done"`
}

// Estimator projects queue position and start/completion times from recent
// job durations. Pure read-side computation: it never mutates state and
// falls back to defaults rather than failing.
type Estimator struct {
	store           store.Store
	defaultPerImage time.Duration
}

// NewEstimator creates a new Estimator.
func NewEstimator(s store.Store, defaultPerImage time.Duration) *Estimator {
	return &Estimator{store: s, defaultPerImage: defaultPerImage}
}

// Estimate positions the newest-enqueued job behind every other pending job
// for the user and projects its timing.
func (e *Estimator) Estimate(ctx context.Context, userID string) Estimate {
	now := time.Now().UTC()

	pending := 1
	if stats, err := e.store.JobStats(ctx, userID); err != nil {
		slog.Warn("estimate stats unavailable, using defaults", "user_id", userID, "error", err)
	} else if total := stats.Queued + stats.Processing; total > 0 {
		pending = total
	}

	perImage := e.defaultPerImage
	if durations, err := e.store.RecentJobDurations(ctx, userID, durationsSampled); err != nil {
		slog.Warn("estimate durations unavailable, using default", "user_id", userID, "error", err)
	} else {
		perImage = PerImageEstimate(durations, e.defaultPerImage)
	}

	return BuildEstimate(now, pending, perImage)
}

// PerImageEstimate averages up to the newest five completion durations and
// clamps the result; fallback applies when there is no history.
func PerImageEstimate(durations []time.Duration, fallback time.Duration) time.Duration {
	if len(durations) == 0 {
		return clampPerImage(fallback)
	}
	if len(durations) > durationsSampled {
		durations = durations[:durationsSampled]
	}

	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return clampPerImage(total / time.Duration(len(durations)))
}

// BuildEstimate projects start/done times for a job at the given position
// (1-based, counted among all queued+processing jobs).
func BuildEstimate(now time.Time, position int, perImage time.Duration) Estimate {
	if position < 1 {
		position = 1
	}
	return Estimate{
		Position:     position,
		TotalPending: position,
		PerImage:     perImage,
		ETAStart:     now.Add(time.Duration(position-1) * perImage),
		ETADone:      now.Add(time.Duration(position) * perImage),
	}
}

func clampPerImage(d time.Duration) time.Duration {
	if d < minPerImage {
		return minPerImage
	}
	if d > maxPerImage {
		return maxPerImage
	}
	return d
}
