// Package models contains shared data models used across the chartsage codebase.
package models

import (
	"context"
	"time"
)

// ChartProvider is the core interface that all AI integrations must implement.
// Never call specific AI providers directly; always inject this interface.
//
// AnalyzeChart returns the provider's raw text response; parsing and failure
// classification happen once, at the invoker boundary. Implementations must
// honor ctx cancellation and release the in-flight network request promptly
// when the deadline expires, and wrap retryable upstream failures in
// ErrRateLimited / ErrServerError.
type ChartProvider interface {
	AnalyzeChart(ctx context.Context, req ChartRequest) (string, error)
	// Name returns the provider identifier (e.g., "anthropic", "openai").
	Name() string
}

// ChartRequest is the input to a chart analysis operation.
type ChartRequest struct {
	Image       []byte
	ContentType string
	// PriorResults carries the user's most recent stored analyses so the
	// provider can reason about higher-timeframe context.
	PriorResults []ChartResult
	// Prompt is the instruction text, filled in by the invoker. Providers
	// send it verbatim alongside the image.
	Prompt string
}

// ChartAnalysis is the structured payload a provider produces for one image.
type ChartAnalysis struct {
	Timeframe      string   `json:"timeframe"`
	Recommendation string   `json:"recommendation"` // buy | sell | hold
	Confidence     float64  `json:"confidence"`
	Reasoning      []string `json:"reasoning"`
	// NeedsFresherTF names timeframes the provider wanted fresher data for.
	// A non-empty list still counts as a successful analysis; the processor
	// forces the recommendation to hold and records why.
	NeedsFresherTF []string `json:"needs_fresher_tf,omitempty"`
	// Degraded marks a synthesized fallback produced when the real
	// computation could not complete in time.
	Degraded       bool   `json:"degraded,omitempty"`
	DegradedReason string `json:"degraded_reason,omitempty"`
}

// ChartResult is a stored analysis row, keyed by (user, timeframe).
type ChartResult struct {
	UserID    string        `db:"user_id"    json:"user_id"`
	Timeframe string        `db:"timeframe"  json:"timeframe"`
	Analysis  ChartAnalysis `db:"analysis"   json:"analysis"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}
