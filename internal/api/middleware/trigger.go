package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/sharadbhat/chartsage/internal/api/response"
	"github.com/sharadbhat/chartsage/internal/queue"
)

// TriggerAuth guards the internal self-re-invocation endpoint with a shared
// secret header. An empty configured token disables the check, which is only
// acceptable when the endpoint is not network-reachable (local dev, tests).
func TriggerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got := r.Header.Get(queue.TriggerTokenHeader)
				if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
					response.Error(w, http.StatusUnauthorized,
						"INVALID_TOKEN", "Invalid trigger token", nil)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
