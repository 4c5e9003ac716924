package handler

import (
	"net/http"

	"github.com/sharadbhat/chartsage/internal/api/response"
	"github.com/sharadbhat/chartsage/internal/cache"
	"github.com/sharadbhat/chartsage/internal/store"
)

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
// Reports degraded with a 503 when either backing store is unreachable.
func NewHealthHandler(st store.Store, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Status: "ok", Database: "ok", Redis: "ok"}

		if err := st.Ping(r.Context()); err != nil {
			status.Status = "degraded"
			status.Database = "unreachable"
		}
		if err := ca.Ping(r.Context()); err != nil {
			status.Status = "degraded"
			status.Redis = "unreachable"
		}

		if status.Status != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "UNHEALTHY",
				"One or more dependencies are unreachable", status)
			return
		}
		response.JSON(w, status)
	}
}

type healthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
}
