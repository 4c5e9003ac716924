package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Artifact is a cached copy of a job's source image. It exists so a retry or
// timeout-recovery pass can proceed without re-fetching from the messaging
// platform, whose file references expire and rate-limit.
type Artifact struct {
	Payload     []byte
	ContentType string
	Attempt     int
}

// Marker is a lightweight per-user progress record kept under a reserved key
// purely for external observability of job progress.
type Marker struct {
	Status    string    `json:"status"` // idle | busy | retrying | done | error
	JobID     string    `json:"job_id,omitempty"`
	Queued    int       `json:"queued"`
	Attempt   int       `json:"attempt,omitempty"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	Close() error

	// PutArtifact overwrites any previous artifact for the job; overwriting
	// across attempts is safe and expected.
	PutArtifact(ctx context.Context, userID string, jobID uuid.UUID, art Artifact, ttl time.Duration) error
	// GetArtifact returns found=false on a miss, never an error.
	GetArtifact(ctx context.Context, userID string, jobID uuid.UUID) (Artifact, bool, error)
	DeleteArtifact(ctx context.Context, userID string, jobID uuid.UUID) error

	SetMarker(ctx context.Context, userID string, m Marker, ttl time.Duration) error
	GetMarker(ctx context.Context, userID string) (Marker, bool, error)

	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) PutArtifact(ctx context.Context, userID string, jobID uuid.UUID, art Artifact, ttl time.Duration) error {
	key := ArtifactKey(userID, jobID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key,
		"payload", art.Payload,
		"content_type", art.ContentType,
		"attempt", art.Attempt,
	)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) GetArtifact(ctx context.Context, userID string, jobID uuid.UUID) (Artifact, bool, error) {
	fields, err := c.client.HGetAll(ctx, ArtifactKey(userID, jobID)).Result()
	if err != nil {
		return Artifact{}, false, err
	}
	payload, ok := fields["payload"]
	if !ok {
		return Artifact{}, false, nil
	}

	art := Artifact{
		Payload:     []byte(payload),
		ContentType: fields["content_type"],
	}
	if v, err := strconv.Atoi(fields["attempt"]); err == nil {
		art.Attempt = v
	}
	return art, true, nil
}

func (c *RedisCache) DeleteArtifact(ctx context.Context, userID string, jobID uuid.UUID) error {
	return c.client.Del(ctx, ArtifactKey(userID, jobID)).Err()
}

func (c *RedisCache) SetMarker(ctx context.Context, userID string, m Marker, ttl time.Duration) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, MarkerKey(userID), raw, ttl).Err()
}

func (c *RedisCache) GetMarker(ctx context.Context, userID string) (Marker, bool, error) {
	raw, err := c.client.Get(ctx, MarkerKey(userID)).Bytes()
	if err == redis.Nil {
		return Marker{}, false, nil
	}
	if err != nil {
		return Marker{}, false, err
	}
	var m Marker
	if err := json.Unmarshal(raw, &m); err != nil {
		return Marker{}, false, err
	}
	return m, true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Compile-time check that RedisCache implements Cache.
var _ Cache = (*RedisCache)(nil)
