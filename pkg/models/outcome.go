package models

import "errors"

// Sentinel errors providers use to signal retryable upstream failures.
// Everything else a provider returns is treated as non-retryable.
var (
	ErrRateLimited = errors.New("provider rate limited")
	ErrServerError = errors.New("provider server error")
)

// OutcomeKind classifies the result of one analysis invocation. Constructed
// once at the invoker boundary so downstream code never re-inspects raw
// provider payloads or errors.
type OutcomeKind int

const (
	// OutcomeSucceeded carries a parsed ChartAnalysis.
	OutcomeSucceeded OutcomeKind = iota
	// OutcomeTimedOut means the deadline elapsed before a response arrived.
	OutcomeTimedOut
	// OutcomeRateLimited means the upstream returned a retryable 429.
	OutcomeRateLimited
	// OutcomeServerError means the upstream returned a retryable 5xx.
	OutcomeServerError
	// OutcomeMalformed means the upstream responded but the payload could
	// not be parsed into a ChartAnalysis.
	OutcomeMalformed
	// OutcomeFailed covers everything else (network, auth). Non-retryable.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeServerError:
		return "server_error"
	case OutcomeMalformed:
		return "malformed_response"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Retryable reports whether the orchestrator should requeue the job.
func (k OutcomeKind) Retryable() bool {
	return k == OutcomeRateLimited || k == OutcomeServerError
}

// Outcome is the tagged variant handed from the invoker to the processor.
// Analysis is set only when Kind == OutcomeSucceeded.
type Outcome struct {
	Kind     OutcomeKind
	Analysis ChartAnalysis
	Err      error
}
