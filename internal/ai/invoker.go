package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sharadbhat/chartsage/pkg/models"
	"github.com/sharadbhat/chartsage/pkg/timeframe"
)

// Invoker wraps the external analysis call with a deadline and normalizes
// every failure into the small Outcome taxonomy. It is the only place raw
// provider payloads and transport errors are inspected.
type Invoker struct {
	provider models.ChartProvider
}

// NewInvoker creates a new Invoker around the given provider.
func NewInvoker(provider models.ChartProvider) *Invoker {
	return &Invoker{provider: provider}
}

// ProviderName returns the wrapped provider's identifier.
func (i *Invoker) ProviderName() string {
	return i.provider.Name()
}

// Invoke runs one analysis call bounded by deadline. Cancellation propagates
// into the provider's in-flight network request, so the underlying resources
// are released before Invoke returns on timeout.
func (i *Invoker) Invoke(ctx context.Context, req models.ChartRequest, deadline time.Duration) models.Outcome {
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if req.Prompt == "" {
		req.Prompt = BuildPrompt(req.PriorResults)
	}
	raw, err := i.provider.AnalyzeChart(callCtx, req)
	if err != nil {
		return models.Outcome{Kind: classify(err), Err: err}
	}

	analysis, err := parseAnalysis(raw)
	if err != nil {
		return models.Outcome{Kind: models.OutcomeMalformed, Err: err}
	}
	return models.Outcome{Kind: models.OutcomeSucceeded, Analysis: analysis}
}

func classify(err error) models.OutcomeKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.OutcomeTimedOut
	case errors.Is(err, models.ErrRateLimited):
		return models.OutcomeRateLimited
	case errors.Is(err, models.ErrServerError):
		return models.OutcomeServerError
	case errors.Is(err, ErrMalformedResponse):
		return models.OutcomeMalformed
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.OutcomeTimedOut
	}
	return models.OutcomeFailed
}

// parseAnalysis leniently decodes a provider response and normalizes the
// fields the orchestrator depends on.
func parseAnalysis(raw string) (models.ChartAnalysis, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return models.ChartAnalysis{}, err
	}

	var a models.ChartAnalysis
	if err := json.Unmarshal([]byte(obj), &a); err != nil {
		return models.ChartAnalysis{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	a.Timeframe = strings.ToUpper(strings.TrimSpace(a.Timeframe))
	if !timeframe.Valid(a.Timeframe) {
		return models.ChartAnalysis{}, fmt.Errorf("%w: unknown timeframe %q", ErrMalformedResponse, a.Timeframe)
	}

	a.Recommendation = strings.ToLower(strings.TrimSpace(a.Recommendation))
	switch a.Recommendation {
	case "buy", "sell", "hold":
	default:
		return models.ChartAnalysis{}, fmt.Errorf("%w: unknown recommendation %q", ErrMalformedResponse, a.Recommendation)
	}

	if a.Confidence < 0 {
		a.Confidence = 0
	}
	if a.Confidence > 1.0 {
		a.Confidence = 1.0
	}
	return a, nil
}
