package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sharadbhat/chartsage/internal/api/response"
	"github.com/sharadbhat/chartsage/internal/queue"
	"github.com/sharadbhat/chartsage/internal/store"
)

// processRunTimeout bounds one detached processing pass end to end: fetch,
// analysis, recovery passes, and persistence.
const processRunTimeout = 5 * time.Minute

// NewProcessHandler returns an http.HandlerFunc for POST /internal/v1/process,
// the self-re-invocation entry point. The claim-and-run happens detached on
// the runner: the caller (usually this service's own trigger) gets its 202
// immediately and the chain of queued jobs drains across invocations.
func NewProcessHandler(st store.Store, proc *queue.Processor, runner *queue.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.UserID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "user_id is required", nil)
			return
		}

		queued, err := st.HasQueuedJobs(r.Context(), req.UserID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to inspect queue", nil)
			return
		}
		if !queued {
			response.JSON(w, processAck{Status: "nothing_to_do"})
			return
		}

		userID := req.UserID
		runner.Go(func() {
			// Detached from the HTTP request; the 202 below must not cancel
			// the processing pass.
			ctx, cancel := context.WithTimeout(context.Background(), processRunTimeout)
			defer cancel()

			claimed, err := proc.ProcessNext(ctx, userID)
			if err != nil {
				slog.Error("processing pass failed", "user_id", userID, "error", err)
				return
			}
			if !claimed {
				slog.Info("nothing claimed", "user_id", userID)
			}
		})

		response.Accepted(w, processAck{Status: "accepted"})
	}
}

type processAck struct {
	Status string `json:"status"`
}
