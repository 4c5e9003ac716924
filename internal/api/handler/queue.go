package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharadbhat/chartsage/internal/api/response"
	"github.com/sharadbhat/chartsage/internal/cache"
	"github.com/sharadbhat/chartsage/internal/store"
)

// NewQueueStatusHandler returns an http.HandlerFunc for
// GET /api/v1/queue/{userID}: queue counters plus the latest progress marker.
func NewQueueStatusHandler(st store.Store, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if userID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "userID is required", nil)
			return
		}

		stats, err := st.JobStats(r.Context(), userID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load queue stats", nil)
			return
		}

		out := queueStatus{
			Queued:     stats.Queued,
			Processing: stats.Processing,
		}

		// The marker is telemetry; its absence or a cache failure does not
		// fail the request.
		if marker, found, err := ca.GetMarker(r.Context(), userID); err == nil && found {
			out.Marker = &marker
		}

		response.JSON(w, out)
	}
}

type queueStatus struct {
	Queued     int           `json:"queued"`
	Processing int           `json:"processing"`
	Marker     *cache.Marker `json:"marker,omitempty"`
}
