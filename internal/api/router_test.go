package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sharadbhat/chartsage/internal/api"
	mw "github.com/sharadbhat/chartsage/internal/api/middleware"
	"github.com/sharadbhat/chartsage/internal/cache"
	"github.com/sharadbhat/chartsage/internal/queue"
	"github.com/sharadbhat/chartsage/internal/store"
	"github.com/sharadbhat/chartsage/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- Stub store and cache ---

type stubStore struct {
	keys []*models.APIKey
}

func (s *stubStore) Ping(context.Context) error { return nil }
func (s *stubStore) EnqueueJob(context.Context, string, string) (*models.Job, error) {
	return nil, nil
}
func (s *stubStore) ClaimNextJob(context.Context, string) (*models.Job, error) { return nil, nil }
func (s *stubStore) RequeueJob(context.Context, uuid.UUID, int, string) error  { return nil }
func (s *stubStore) MarkJobDone(context.Context, uuid.UUID, string, int) error { return nil }
func (s *stubStore) MarkJobError(context.Context, uuid.UUID, string) error     { return nil }
func (s *stubStore) GetJob(context.Context, uuid.UUID) (*models.Job, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) JobStats(context.Context, string) (store.JobStats, error) {
	return store.JobStats{}, nil
}
func (s *stubStore) HasQueuedJobs(context.Context, string) (bool, error) { return false, nil }
func (s *stubStore) RecentJobDurations(context.Context, string, int) ([]time.Duration, error) {
	return nil, nil
}
func (s *stubStore) GetAPIKeyByPrefix(context.Context, string) ([]*models.APIKey, error) {
	return s.keys, nil
}
func (s *stubStore) UpdateAPIKeyLastUsed(context.Context, uuid.UUID) error { return nil }
func (s *stubStore) CreateAPIKey(context.Context, *models.APIKey) error    { return nil }

type stubCache struct{}

func (stubCache) Ping(context.Context) error { return nil }
func (stubCache) Close() error               { return nil }
func (stubCache) PutArtifact(context.Context, string, uuid.UUID, cache.Artifact, time.Duration) error {
	return nil
}
func (stubCache) GetArtifact(context.Context, string, uuid.UUID) (cache.Artifact, bool, error) {
	return cache.Artifact{}, false, nil
}
func (stubCache) DeleteArtifact(context.Context, string, uuid.UUID) error { return nil }
func (stubCache) SetMarker(context.Context, string, cache.Marker, time.Duration) error {
	return nil
}
func (stubCache) GetMarker(context.Context, string) (cache.Marker, bool, error) {
	return cache.Marker{}, false, nil
}
func (stubCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func newTestRouter(t *testing.T) (http.Handler, string) {
	t.Helper()

	rawKey := "cs_routertestkey1234"
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
	require.NoError(t, err)

	st := &stubStore{keys: []*models.APIKey{{
		ID:        uuid.New(),
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:8],
		Scopes:    []string{"read"},
	}}}

	deps := api.Dependencies{
		Auth:         mw.NewAuth(st),
		RateLimit:    mw.NewRateLimit(stubCache{}, 60),
		TriggerToken: "trigger-secret",

		HealthHandler:      okHandler,
		ImagesHandler:      okHandler,
		ProcessHandler:     okHandler,
		GetJobHandler:      okHandler,
		ListResults:        okHandler,
		DeleteResult:       okHandler,
		QueueStatusHandler: okHandler,
	}
	return api.NewRouter(deps), rawKey
}

func TestRouter_HealthIsPublic(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ImagesIntakeIsPublic(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/images", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ProcessRequiresTriggerToken(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/v1/process", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/process", nil)
	req.Header.Set(queue.TriggerTokenHeader, "trigger-secret")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_QueryRoutesRequireAPIKey(t *testing.T) {
	router, rawKey := newTestRouter(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/jobs/" + uuid.NewString()},
		{http.MethodGet, "/api/v1/results/user-1"},
		{http.MethodDelete, "/api/v1/results/user-1/H4"},
		{http.MethodGet, "/api/v1/queue/user-1"},
	}

	for _, p := range paths {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(p.method, p.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s without key", p.method, p.path)

		rec = httptest.NewRecorder()
		req := httptest.NewRequest(p.method, p.path, nil)
		req.Header.Set("Authorization", "Bearer "+rawKey)
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "%s %s with key", p.method, p.path)
	}
}

func TestRouter_AdminRouteRequiresAdminScope(t *testing.T) {
	router, rawKey := newTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/keys", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code, "read-only key cannot mint keys")
}

func TestRouter_RateLimitHeadersOnAuthedRoutes(t *testing.T) {
	router, rawKey := newTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue/user-1", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("X-RateLimit-Limit"))
}

func TestRouter_MissingHandlerIs501(t *testing.T) {
	st := &stubStore{}
	deps := api.Dependencies{
		Auth:      mw.NewAuth(st),
		RateLimit: mw.NewRateLimit(stubCache{}, 60),
	}
	router := api.NewRouter(deps)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
