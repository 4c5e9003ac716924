// Package queue contains the job-processing core: the orchestrator that
// claims one job per invocation, runs it to a terminal decision, and chains
// to the next queued job through a detached self-re-invocation.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sharadbhat/chartsage/internal/cache"
	"github.com/sharadbhat/chartsage/internal/config"
	"github.com/sharadbhat/chartsage/internal/fetch"
	"github.com/sharadbhat/chartsage/internal/results"
	"github.com/sharadbhat/chartsage/internal/store"
	"github.com/sharadbhat/chartsage/pkg/models"
)

// Invoker runs one bounded analysis call. Satisfied by *ai.Invoker.
type Invoker interface {
	Invoke(ctx context.Context, req models.ChartRequest, deadline time.Duration) models.Outcome
	ProviderName() string
}

// Processor is the job state machine. It owns every mutation of a claimed
// job row; coordination across concurrent invocations happens entirely
// through the store's atomic claim; there is no in-process locking.
type Processor struct {
	store   store.Store
	cache   cache.Cache
	results results.Store
	fetcher fetch.Fetcher
	invoker Invoker
	trigger Trigger

	analysisTimeout time.Duration
	cfg             config.QueueConfig
}

// NewProcessor creates a new Processor. All configuration is captured here;
// the processing path never consults the environment.
func NewProcessor(
	st store.Store,
	ca cache.Cache,
	rs results.Store,
	fe fetch.Fetcher,
	inv Invoker,
	tr Trigger,
	analysisTimeout time.Duration,
	cfg config.QueueConfig,
) *Processor {
	return &Processor{
		store:           st,
		cache:           ca,
		results:         rs,
		fetcher:         fe,
		invoker:         inv,
		trigger:         tr,
		analysisTimeout: analysisTimeout,
		cfg:             cfg,
	}
}

// SetTrigger replaces the chain trigger. Wired after construction because
// the HTTP trigger points back at the server the processor is mounted on.
func (p *Processor) SetTrigger(tr Trigger) {
	p.trigger = tr
}

// ProcessNext claims and runs at most one job for the user. The bool result
// reports whether a job was claimed. A nil-claim is a normal outcome: the
// queue is empty or another invocation holds the processing slot. Only
// store-level failures are returned as errors; job-level failures are
// absorbed into terminal or retry decisions.
func (p *Processor) ProcessNext(ctx context.Context, userID string) (bool, error) {
	job, err := p.store.ClaimNextJob(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("claim next job: %w", err)
	}
	if job == nil {
		p.writeIdleMarker(ctx, userID)
		return false, nil
	}

	log := slog.With("user_id", userID, "job_id", job.ID, "attempt", job.Attempt)
	log.Info("job claimed", "provider", p.invoker.ProviderName())

	art, ok := p.obtainSource(ctx, log, job)
	if !ok {
		return true, nil
	}

	req := models.ChartRequest{
		Image:       art.Payload,
		ContentType: art.ContentType,
	}
	if prior, err := p.results.GetAll(ctx, userID); err != nil {
		log.Warn("prior results unavailable, analyzing without context", "error", err)
	} else {
		req.PriorResults = prior
	}

	outcome := p.invoker.Invoke(ctx, req, p.analysisTimeout)

	switch {
	case outcome.Kind == models.OutcomeSucceeded:
		return true, p.complete(ctx, log, job, outcome.Analysis)

	case outcome.Kind == models.OutcomeTimedOut:
		analysis, recovered := p.recoverFromTimeout(ctx, log, req)
		if !recovered {
			analysis = p.fallbackAnalysis(ctx, log, job)
		}
		return true, p.complete(ctx, log, job, analysis)

	case outcome.Kind.Retryable():
		return true, p.retryOrFail(ctx, log, job, outcome)

	default:
		p.failJob(ctx, log, job, fmt.Sprintf("analysis %s: %v", outcome.Kind, outcome.Err))
		return true, nil
	}
}

// obtainSource fetches the job's image, falling back to the artifact cache
// when the platform fetch fails, and caches fresh fetches for later
// recovery. Returns ok=false after marking the job failed when the source
// is unrecoverable.
func (p *Processor) obtainSource(ctx context.Context, log *slog.Logger, job *models.Job) (cache.Artifact, bool) {
	content, err := p.fetcher.Fetch(ctx, job.SourceRef)
	if err == nil {
		art := cache.Artifact{
			Payload:     content.Bytes,
			ContentType: content.ContentType,
			Attempt:     job.Attempt,
		}
		// Best-effort: a cache failure must never block the pipeline.
		if cerr := p.cache.PutArtifact(ctx, job.UserID, job.ID, art, p.cfg.ArtifactTTL); cerr != nil {
			log.Warn("artifact cache write failed", "error", cerr)
		}
		return art, true
	}

	log.Warn("source fetch failed, trying artifact cache", "error", err)
	cached, found, cerr := p.cache.GetArtifact(ctx, job.UserID, job.ID)
	if cerr != nil {
		log.Warn("artifact cache read failed", "error", cerr)
	}
	if found {
		return cached, true
	}

	p.failJob(ctx, log, job, fmt.Sprintf("source unrecoverable: %v", err))
	return cache.Artifact{}, false
}

// recoverFromTimeout runs bounded in-process recovery passes against the
// already-fetched image with a shortened deadline.
func (p *Processor) recoverFromTimeout(ctx context.Context, log *slog.Logger, req models.ChartRequest) (models.ChartAnalysis, bool) {
	for pass := 1; pass <= p.cfg.RecoveryCap; pass++ {
		log.Info("timeout recovery pass", "pass", pass, "cap", p.cfg.RecoveryCap)

		outcome := p.invoker.Invoke(ctx, req, p.analysisTimeout/2)
		if outcome.Kind == models.OutcomeSucceeded {
			analysis := outcome.Analysis
			analysis.Reasoning = append(analysis.Reasoning,
				fmt.Sprintf("recovered on retry pass %d after analysis timeout", pass))
			return analysis, true
		}
		log.Warn("recovery pass failed", "pass", pass, "outcome", outcome.Kind.String())
	}
	return models.ChartAnalysis{}, false
}

// fallbackAnalysis synthesizes a degraded result when recovery is exhausted,
// carrying forward the user's most recent stored result as context when one
// exists. The user is never left without a result and the job never sticks
// in processing.
func (p *Processor) fallbackAnalysis(ctx context.Context, log *slog.Logger, job *models.Job) models.ChartAnalysis {
	analysis := models.ChartAnalysis{
		Timeframe:      "H4",
		Recommendation: "hold",
		Confidence:     0.2,
		Reasoning:      []string{"analysis timed out; insufficient data, holding"},
		Degraded:       true,
		DegradedReason: "analysis timeout, recovery exhausted",
	}

	prior, err := p.results.GetAll(ctx, job.UserID)
	if err != nil {
		log.Warn("fallback prior lookup failed", "error", err)
		return analysis
	}
	if len(prior) > 0 {
		latest := prior[0]
		analysis.Timeframe = latest.Timeframe
		analysis.Reasoning = []string{
			fmt.Sprintf("analysis timed out; carrying forward prior %s result from %s",
				latest.Timeframe, latest.CreatedAt.UTC().Format(time.RFC3339)),
		}
	}
	return analysis
}

// retryOrFail requeues the job for a retryable upstream failure while
// attempts remain, firing the chain so a later invocation picks it up.
func (p *Processor) retryOrFail(ctx context.Context, log *slog.Logger, job *models.Job, outcome models.Outcome) error {
	msg := fmt.Sprintf("analysis %s: %v", outcome.Kind, outcome.Err)

	next := job.Attempt + 1
	if next > p.cfg.MaxAttempts {
		p.failJob(ctx, log, job, fmt.Sprintf("attempts exhausted: %s", msg))
		return nil
	}

	if err := p.store.RequeueJob(ctx, job.ID, next, msg); err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	log.Info("job requeued", "next_attempt", next, "reason", outcome.Kind.String())

	p.writeMarker(ctx, job.UserID, cache.Marker{
		Status:  "retrying",
		JobID:   job.ID.String(),
		Attempt: next,
		Message: msg,
	})
	p.trigger.Fire(job.UserID)
	return nil
}

// complete persists the analysis, finishes the job, and chains to the next
// queued job if any. Idempotent under re-invocation: once the job leaves
// processing, a duplicate invocation claims nothing.
func (p *Processor) complete(ctx context.Context, log *slog.Logger, job *models.Job, analysis models.ChartAnalysis) error {
	// "Needs fresher data" is still a success; force a conservative read
	// and say why.
	if len(analysis.NeedsFresherTF) > 0 {
		analysis.Recommendation = "hold"
		analysis.Reasoning = append(analysis.Reasoning,
			fmt.Sprintf("holding: fresher data wanted for %v", analysis.NeedsFresherTF))
	}

	res := models.ChartResult{
		UserID:    job.UserID,
		Timeframe: analysis.Timeframe,
		Analysis:  analysis,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.results.Save(ctx, res); err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	if err := p.store.MarkJobDone(ctx, job.ID, analysis.Timeframe, p.cfg.PruneKeep); err != nil {
		if errors.Is(err, store.ErrNotClaimed) {
			log.Warn("job no longer processing at completion, skipping")
			return nil
		}
		return fmt.Errorf("mark job done: %w", err)
	}
	log.Info("job done", "timeframe", analysis.Timeframe, "degraded", analysis.Degraded)

	// Analysis is complete; the recovery artifact is no longer needed.
	if err := p.cache.DeleteArtifact(ctx, job.UserID, job.ID); err != nil {
		log.Warn("artifact cleanup failed", "error", err)
	}

	queued := 0
	if stats, err := p.store.JobStats(ctx, job.UserID); err != nil {
		log.Warn("post-completion stats failed", "error", err)
	} else {
		queued = stats.Queued
	}

	p.writeMarker(ctx, job.UserID, cache.Marker{
		Status: "done",
		JobID:  job.ID.String(),
		Queued: queued,
	})

	if queued > 0 {
		p.trigger.Fire(job.UserID)
	}
	return nil
}

// failJob marks the job terminally failed and keeps the rest of the user's
// queue moving: one job's permanent failure must not stall the chain.
func (p *Processor) failJob(ctx context.Context, log *slog.Logger, job *models.Job, msg string) {
	if err := p.store.MarkJobError(ctx, job.ID, msg); err != nil {
		log.Error("mark job error failed", "error", err)
	}
	log.Info("job failed", "reason", msg)

	p.writeMarker(ctx, job.UserID, cache.Marker{
		Status:  "error",
		JobID:   job.ID.String(),
		Attempt: job.Attempt,
		Message: msg,
	})

	if queued, err := p.store.HasQueuedJobs(ctx, job.UserID); err == nil && queued {
		p.trigger.Fire(job.UserID)
	}
}

func (p *Processor) writeIdleMarker(ctx context.Context, userID string) {
	stats, err := p.store.JobStats(ctx, userID)
	if err != nil {
		slog.Warn("idle marker stats failed", "user_id", userID, "error", err)
		return
	}
	status := "idle"
	if stats.Processing > 0 {
		status = "busy"
	}
	p.writeMarker(ctx, userID, cache.Marker{Status: status, Queued: stats.Queued})
}

// writeMarker is best-effort telemetry; failures are logged and swallowed.
func (p *Processor) writeMarker(ctx context.Context, userID string, m cache.Marker) {
	m.UpdatedAt = time.Now().UTC()
	if err := p.cache.SetMarker(ctx, userID, m, p.cfg.MarkerTTL); err != nil {
		slog.Warn("marker write failed", "user_id", userID, "status", m.Status, "error", err)
	}
}
