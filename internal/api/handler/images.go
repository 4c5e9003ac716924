package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sharadbhat/chartsage/internal/api/response"
	"github.com/sharadbhat/chartsage/internal/queue"
	"github.com/sharadbhat/chartsage/internal/store"
)

// maxSourceRefLen bounds the platform file reference; real references are
// well under this.
const maxSourceRefLen = 512

// NewImagesHandler returns an http.HandlerFunc for POST /api/v1/images: it
// enqueues the image event, acks immediately with a queue-position estimate,
// and fires the processing chain. The ack never waits for analysis.
func NewImagesHandler(st store.Store, est *queue.Estimator, trigger queue.Trigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID    string `json:"user_id"`
			SourceRef string `json:"source_ref"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.UserID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "user_id is required", nil)
			return
		}
		if req.SourceRef == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "source_ref is required", nil)
			return
		}
		if len(req.SourceRef) > maxSourceRefLen {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "source_ref is too long", nil)
			return
		}

		job, err := st.EnqueueJob(r.Context(), req.UserID, req.SourceRef)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to enqueue job", nil)
			return
		}

		estimate := est.Estimate(r.Context(), req.UserID)
		trigger.Fire(req.UserID)

		response.Accepted(w, imageAck{
			JobID:        job.ID.String(),
			Status:       job.Status,
			Position:     estimate.Position,
			TotalPending: estimate.TotalPending,
			ETAStart:     estimate.ETAStart.UTC().Format(time.RFC3339),
			ETADone:      estimate.ETADone.UTC().Format(time.RFC3339),
		})
	}
}

type imageAck struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	Position     int    `json:"position"`
	TotalPending int    `json:"total_pending"`
	ETAStart     string `json:"eta_start"`
	ETADone      string `json:"eta_done"`
}
