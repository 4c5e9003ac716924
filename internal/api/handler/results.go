package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sharadbhat/chartsage/internal/api/response"
	"github.com/sharadbhat/chartsage/internal/results"
	"github.com/sharadbhat/chartsage/pkg/models"
	"github.com/sharadbhat/chartsage/pkg/timeframe"
)

// NewListResultsHandler returns an http.HandlerFunc for
// GET /api/v1/results/{userID}.
func NewListResultsHandler(rs results.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if userID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "userID is required", nil)
			return
		}

		all, err := rs.GetAll(r.Context(), userID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load results", nil)
			return
		}

		out := make([]resultItem, 0, len(all))
		for _, res := range all {
			out = append(out, toResultItem(res))
		}
		response.JSON(w, out)
	}
}

// NewDeleteResultHandler returns an http.HandlerFunc for
// DELETE /api/v1/results/{userID}/{tf}.
func NewDeleteResultHandler(rs results.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		tf := strings.ToUpper(chi.URLParam(r, "tf"))
		if !timeframe.Valid(tf) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"tf must be a known timeframe", nil)
			return
		}

		if err := rs.Delete(r.Context(), userID, tf); err != nil {
			if errors.Is(err, results.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					"No result for that user and timeframe", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to delete result", nil)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type resultItem struct {
	UserID    string               `json:"user_id"`
	Timeframe string               `json:"timeframe"`
	Analysis  models.ChartAnalysis `json:"analysis"`
	CreatedAt string               `json:"created_at"`
}

func toResultItem(res models.ChartResult) resultItem {
	return resultItem{
		UserID:    res.UserID,
		Timeframe: res.Timeframe,
		Analysis:  res.Analysis,
		CreatedAt: res.CreatedAt.UTC().Format(time.RFC3339),
	}
}
