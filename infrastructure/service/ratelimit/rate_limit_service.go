package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/fixora/secret-review/application/port/inbound"
	"github.com/fixora/secret-review/infrastructure/service/logger"
)

const keyPrefix = "secret-review:ratelimit:"

// rateLimitService is a fixed-window counter in Redis
type rateLimitService struct {
	redisClient *redis.Client
	logger      *logrus.Logger
}

type RateLimitConfig struct {
	Enabled  bool
	RedisURL string
}

// NewRateLimitService connects to Redis, or returns a no-op limiter when disabled
func NewRateLimitService(config RateLimitConfig, log *logrus.Logger) (inbound.RateLimitService, error) {
	if !config.Enabled {
		log.Info("Rate limiting disabled")
		return NewNoopRateLimitService(), nil
	}

	opt, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisClient := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.WithField("addr", opt.Addr).Info("Rate limiting service initialized")

	return NewRedisRateLimitService(redisClient, log), nil
}

func NewRedisRateLimitService(client *redis.Client, log *logrus.Logger) inbound.RateLimitService {
	return &rateLimitService{
		redisClient: client,
		logger:      log,
	}
}

func (s *rateLimitService) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	current, err := s.GetAttempts(ctx, key)
	if err != nil {
		return false, err
	}

	under := current < limit
	s.entry(ctx).WithFields(logrus.Fields{
		"key":         key,
		"current":     current,
		"limit":       limit,
		"under_limit": under,
	}).Debug("Rate limit check")

	return under, nil
}

// Increment bumps the counter; the window starts with the first hit
func (s *rateLimitService) Increment(ctx context.Context, key string, window time.Duration) error {
	counterKey := keyPrefix + key

	count, err := s.redisClient.Incr(ctx, counterKey).Result()
	if err != nil {
		s.entry(ctx).WithError(err).Error("Failed to increment rate limit counter")
		return fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		if err := s.redisClient.Expire(ctx, counterKey, window).Err(); err != nil {
			return fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	s.entry(ctx).WithFields(logrus.Fields{
		"key":   key,
		"count": count,
	}).Debug("Rate limit incremented")

	return nil
}

func (s *rateLimitService) Block(ctx context.Context, key string, duration time.Duration, reason string) error {
	blockKey := keyPrefix + "blocked:" + key

	pipeline := s.redisClient.TxPipeline()
	pipeline.HSet(ctx, blockKey, map[string]interface{}{
		"reason":         reason,
		"blocked_at":     time.Now().Unix(),
		"correlation_id": logger.CorrelationID(ctx),
	})
	pipeline.Expire(ctx, blockKey, duration)

	if _, err := pipeline.Exec(ctx); err != nil {
		s.entry(ctx).WithError(err).Error("Failed to block key")
		return fmt.Errorf("failed to block key: %w", err)
	}

	s.entry(ctx).WithFields(logrus.Fields{
		"key":      key,
		"duration": duration,
		"reason":   reason,
	}).Warn("Key blocked due to rate limit exceeded")

	return nil
}

func (s *rateLimitService) IsBlocked(ctx context.Context, key string) (bool, error) {
	exists, err := s.redisClient.Exists(ctx, keyPrefix+"blocked:"+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check block status: %w", err)
	}
	return exists > 0, nil
}

func (s *rateLimitService) GetAttempts(ctx context.Context, key string) (int, error) {
	count, err := s.redisClient.Get(ctx, keyPrefix+key).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get attempts: %w", err)
	}
	return count, nil
}

func (s *rateLimitService) entry(ctx context.Context) *logrus.Entry {
	return s.logger.WithContext(ctx).WithField("correlation_id", logger.CorrelationID(ctx))
}

type noopRateLimitService struct{}

func NewNoopRateLimitService() inbound.RateLimitService {
	return noopRateLimitService{}
}

func (noopRateLimitService) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

func (noopRateLimitService) Increment(ctx context.Context, key string, window time.Duration) error {
	return nil
}

func (noopRateLimitService) Block(ctx context.Context, key string, duration time.Duration, reason string) error {
	return nil
}

func (noopRateLimitService) IsBlocked(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (noopRateLimitService) GetAttempts(ctx context.Context, key string) (int, error) {
	return 0, nil
}
