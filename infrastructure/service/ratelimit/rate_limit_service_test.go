package ratelimit

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestNewRateLimitService_DisabledReturnsNoop(t *testing.T) {
	svc, err := NewRateLimitService(RateLimitConfig{Enabled: false}, quietLogger())
	require.NoError(t, err)

	ctx := context.Background()
	ok, err := svc.CheckLimit(ctx, "write:user:alice", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.Increment(ctx, "write:user:alice", time.Minute))
	require.NoError(t, svc.Block(ctx, "write:user:alice", time.Minute, "test"))

	blocked, err := svc.IsBlocked(ctx, "write:user:alice")
	require.NoError(t, err)
	assert.False(t, blocked)

	attempts, err := svc.GetAttempts(ctx, "write:user:alice")
	require.NoError(t, err)
	assert.Zero(t, attempts)
}

func TestNewRateLimitService_InvalidURL(t *testing.T) {
	_, err := NewRateLimitService(RateLimitConfig{Enabled: true, RedisURL: "not-a-url"}, quietLogger())

	assert.Error(t, err)
}

func TestRedisRateLimitService_SurfacesConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	defer client.Close()
	svc := NewRedisRateLimitService(client, quietLogger())
	ctx := context.Background()

	_, err := svc.GetAttempts(ctx, "read:ip:10.0.0.1")
	assert.Error(t, err)

	_, err = svc.CheckLimit(ctx, "read:ip:10.0.0.1", 10, time.Minute)
	assert.Error(t, err)

	_, err = svc.IsBlocked(ctx, "read:ip:10.0.0.1")
	assert.Error(t, err)

	assert.Error(t, svc.Increment(ctx, "read:ip:10.0.0.1", time.Minute))
}
