package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/synthgen-io/synthgen/internal/cache"
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
	t.Cleanup(func() { rc.Close() })

	return rc
}

// --- Ping ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	assert.NoError(t, rc.Ping(context.Background()))
}

// --- Job Status ---

func TestSetGetJobStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	jobID := uuid.NewString()

	require.NoError(t, rc.SetJobStatus(ctx, jobID, "training", 10*time.Second))

	status, found, err := rc.GetJobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "training", status)
}

func TestGetJobStatus_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	status, found, err := rc.GetJobStatus(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "", status)
}

func TestJobStatus_TTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	jobID := uuid.NewString()

	require.NoError(t, rc.SetJobStatus(ctx, jobID, "queued", 1*time.Second))

	_, found, err := rc.GetJobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(1500 * time.Millisecond)

	_, found, err = rc.GetJobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, found)
}

// --- Generation Status ---

func TestSetGetGenerationStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	genID := uuid.NewString()

	require.NoError(t, rc.SetGenerationStatus(ctx, genID, "processing", 10*time.Second))

	status, found, err := rc.GetGenerationStatus(ctx, genID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "processing", status)
}

// --- Refresh Tokens ---

func TestRefreshToken_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	token := uuid.NewString()
	userID := uuid.New()

	require.NoError(t, rc.SetRefreshToken(ctx, token, userID, 10*time.Second))

	got, found, err := rc.GetRefreshToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, userID, got)
}

func TestRefreshToken_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	token := uuid.NewString()

	require.NoError(t, rc.SetRefreshToken(ctx, token, uuid.New(), 10*time.Second))
	require.NoError(t, rc.DeleteRefreshToken(ctx, token))

	_, found, err := rc.GetRefreshToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRefreshToken_DeleteNonExistent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	assert.NoError(t, rc.DeleteRefreshToken(context.Background(), "does-not-exist"))
}

// --- IncrWithExpiry ---

func TestIncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey(uuid.NewString())

	for want := int64(1); want <= 3; want++ {
		val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, val)
	}
}

func TestIncrWithExpiry_Expires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey(uuid.NewString())

	_, err := rc.IncrWithExpiry(ctx, key, 1*time.Second)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

// --- Cache Key Builders ---

func TestJobStatusKey(t *testing.T) {
	assert.Equal(t, "job:abc-123:status", cache.JobStatusKey("abc-123"))
}

func TestGenerationStatusKey(t *testing.T) {
	assert.Equal(t, "generation:gen-9:status", cache.GenerationStatusKey("gen-9"))
}

func TestRefreshTokenKey(t *testing.T) {
	assert.Equal(t, "refresh:tok", cache.RefreshTokenKey("tok"))
}

func TestRateLimitKey(t *testing.T) {
	assert.Equal(t, "ratelimit:user-1", cache.RateLimitKey("user-1"))
}

func TestKeyBuilders_NonColliding(t *testing.T) {
	id := uuid.NewString()
	keys := map[string]bool{
		cache.JobStatusKey(id):        true,
		cache.GenerationStatusKey(id): true,
		cache.RefreshTokenKey(id):     true,
		cache.RateLimitKey(id):        true,
	}
	assert.Len(t, keys, 4, "all keys should be unique")
}
