package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sharadbhat/chartsage/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache + cleanup.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisURL := "redis://" + host + ":" + port.Port()
	rc, err := cache.NewRedisCache(redisURL)
	require.NoError(t, err)

	return rc
}

// --- Ping ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	err := rc.Ping(context.Background())
	assert.NoError(t, err)
}

// --- Artifacts ---

func TestArtifact_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	jobID := uuid.New()

	art := cache.Artifact{
		Payload:     []byte{0x89, 'P', 'N', 'G', 0x0}, // binary payloads survive intact
		ContentType: "image/png",
		Attempt:     2,
	}
	err := rc.PutArtifact(ctx, "user-1", jobID, art, 10*time.Second)
	require.NoError(t, err)

	got, found, err := rc.GetArtifact(ctx, "user-1", jobID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, art.Payload, got.Payload)
	assert.Equal(t, "image/png", got.ContentType)
	assert.Equal(t, 2, got.Attempt)
}

func TestArtifact_Miss(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	_, found, err := rc.GetArtifact(context.Background(), "nobody", uuid.New())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestArtifact_OverwriteAcrossAttempts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	jobID := uuid.New()

	first := cache.Artifact{Payload: []byte("v1"), ContentType: "image/png", Attempt: 0}
	require.NoError(t, rc.PutArtifact(ctx, "user-1", jobID, first, 10*time.Second))

	second := cache.Artifact{Payload: []byte("v2"), ContentType: "image/jpeg", Attempt: 1}
	require.NoError(t, rc.PutArtifact(ctx, "user-1", jobID, second, 10*time.Second))

	got, found, err := rc.GetArtifact(ctx, "user-1", jobID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v2"), got.Payload)
	assert.Equal(t, 1, got.Attempt)
}

func TestArtifact_TTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	jobID := uuid.New()

	art := cache.Artifact{Payload: []byte("temp"), ContentType: "image/png"}
	require.NoError(t, rc.PutArtifact(ctx, "user-1", jobID, art, 1*time.Second))

	_, found, err := rc.GetArtifact(ctx, "user-1", jobID)
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(1500 * time.Millisecond)

	_, found, err = rc.GetArtifact(ctx, "user-1", jobID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestArtifact_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	jobID := uuid.New()

	art := cache.Artifact{Payload: []byte("bye"), ContentType: "image/png"}
	require.NoError(t, rc.PutArtifact(ctx, "user-1", jobID, art, 10*time.Second))

	require.NoError(t, rc.DeleteArtifact(ctx, "user-1", jobID))

	_, found, err := rc.GetArtifact(ctx, "user-1", jobID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestArtifact_DeleteNonExistent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	err := rc.DeleteArtifact(context.Background(), "nobody", uuid.New())
	assert.NoError(t, err)
}

// --- Markers ---

func TestMarker_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	m := cache.Marker{
		Status:    "retrying",
		JobID:     uuid.NewString(),
		Queued:    3,
		Attempt:   2,
		Message:   "provider returned 429",
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	err := rc.SetMarker(ctx, "user-1", m, 10*time.Second)
	require.NoError(t, err)

	got, found, err := rc.GetMarker(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, m, got)
}

func TestMarker_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	_, found, err := rc.GetMarker(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMarker_OverwriteReplacesWholeRecord(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	first := cache.Marker{Status: "busy", Queued: 2, UpdatedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, rc.SetMarker(ctx, "user-1", first, 10*time.Second))

	second := cache.Marker{Status: "done", Queued: 1, UpdatedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, rc.SetMarker(ctx, "user-1", second, 10*time.Second))

	got, found, err := rc.GetMarker(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "done", got.Status)
	assert.Equal(t, 1, got.Queued)
}

// --- IncrWithExpiry ---

func TestIncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := "ratelimit:test:" + uuid.NewString()[:8]

	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	val, err = rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)
}

func TestIncrWithExpiry_Expires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := "ratelimit:expiry:" + uuid.NewString()[:8]

	_, err := rc.IncrWithExpiry(ctx, key, 1*time.Second)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	// After expiry, should start from 1 again
	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

// --- Cache Key Builders ---

func TestArtifactKey(t *testing.T) {
	jobID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	key := cache.ArtifactKey("user-42", jobID)
	assert.Equal(t, "artifact:user-42:22222222-2222-2222-2222-222222222222", key)
}

func TestMarkerKey(t *testing.T) {
	key := cache.MarkerKey("user-42")
	assert.Equal(t, "marker:user-42", key)
}

func TestRateLimitKey(t *testing.T) {
	key := cache.RateLimitKey("cs_abcd1234")
	assert.Equal(t, "ratelimit:cs_abcd1234", key)
}

func TestKeyBuilders_NonColliding(t *testing.T) {
	jobID := uuid.New()

	keys := map[string]bool{
		cache.ArtifactKey("user-1", jobID): true,
		cache.MarkerKey("user-1"):          true,
		cache.RateLimitKey("cs_prefix"):    true,
	}
	assert.Len(t, keys, 3, "all keys should be unique")
}
