package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Trigger continues a user's job chain by re-invoking the processing entry
// point out-of-band. Fire must not block the caller beyond dispatch: the
// calling invocation returns its own response immediately, and the chain of
// N queued jobs drains across N separate invocations instead of holding one
// invocation open for the full duration.
type Trigger interface {
	Fire(userID string)
}

const triggerDispatchTimeout = 10 * time.Second

// TriggerTokenHeader carries the shared secret on self-re-invocation calls.
const TriggerTokenHeader = "X-Trigger-Token"

// HTTPTrigger fires a detached POST back to this service's own
// /internal/v1/process endpoint. The request runs on the Runner so shutdown
// flushes in-flight dispatches; the outcome is only logged on failure.
type HTTPTrigger struct {
	url    string
	token  string
	client *http.Client
	runner *Runner
}

// NewHTTPTrigger creates a trigger posting to selfURL. An empty selfURL
// disables outbound dispatch entirely.
func NewHTTPTrigger(selfURL, token string, runner *Runner) *HTTPTrigger {
	return &HTTPTrigger{
		url:    selfURL,
		token:  token,
		client: &http.Client{Timeout: triggerDispatchTimeout},
		runner: runner,
	}
}

func (t *HTTPTrigger) Fire(userID string) {
	if t.url == "" {
		return
	}

	t.runner.Go(func() {
		// Detached from the originating request on purpose; the parent
		// invocation completing must not cancel this dispatch.
		ctx, cancel := context.WithTimeout(context.Background(), triggerDispatchTimeout)
		defer cancel()

		body, _ := json.Marshal(map[string]string{"user_id": userID})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			t.url+"/internal/v1/process", bytes.NewReader(body))
		if err != nil {
			slog.Error("trigger request build failed", "user_id", userID, "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if t.token != "" {
			req.Header.Set(TriggerTokenHeader, t.token)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			slog.Error("trigger dispatch failed", "user_id", userID, "error", err)
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

		if resp.StatusCode >= 400 {
			slog.Error("trigger rejected", "user_id", userID, "status", resp.StatusCode)
		}
	})
}

// NopTrigger discards fires. Used when chaining is driven externally.
type NopTrigger struct{}

func (NopTrigger) Fire(string) {}

var _ Trigger = (*HTTPTrigger)(nil)
var _ Trigger = NopTrigger{}
