package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/infrastructure/service/logger"
)

type mockRateLimitService struct {
	mock.Mock
}

func (m *mockRateLimitService) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *mockRateLimitService) Increment(ctx context.Context, key string, window time.Duration) error {
	return m.Called(ctx, key, window).Error(0)
}

func (m *mockRateLimitService) Block(ctx context.Context, key string, duration time.Duration, reason string) error {
	return m.Called(ctx, key, duration, reason).Error(0)
}

func (m *mockRateLimitService) IsBlocked(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *mockRateLimitService) GetAttempts(ctx context.Context, key string) (int, error) {
	args := m.Called(ctx, key)
	return args.Int(0), args.Error(1)
}

var testPolicy = RateLimitPolicy{WriteLimit: 2, ReadLimit: 10, Window: time.Minute, BlockDuration: 5 * time.Minute}

func serve(t *testing.T, svc *mockRateLimitService, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	handler := NewRateLimitMiddleware(svc, testPolicy, logger.NewNopLogger()).
		RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_AllowsAndIncrementsPerIdentity(t *testing.T) {
	svc := new(mockRateLimitService)
	key := "write:user:alice@example.com"
	svc.On("IsBlocked", mock.Anything, key).Return(false, nil)
	svc.On("CheckLimit", mock.Anything, key, 2, time.Minute).Return(true, nil)
	svc.On("Increment", mock.Anything, key, time.Minute).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/changes", nil)
	req = req.WithContext(WithClaims(req.Context(), &outbound.TokenClaims{Identity: "alice@example.com"}))

	rec := serve(t, svc, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestRateLimit_ExceededBlocks(t *testing.T) {
	svc := new(mockRateLimitService)
	key := "read:ip:203.0.113.9"
	svc.On("IsBlocked", mock.Anything, key).Return(false, nil)
	svc.On("CheckLimit", mock.Anything, key, 10, time.Minute).Return(false, nil)
	svc.On("Block", mock.Anything, key, 5*time.Minute, "Rate limit exceeded").Return(nil)

	req := httptest.NewRequest(http.MethodGet, "/changes", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	rec := serve(t, svc, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "300", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_6003")
	svc.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything, mock.Anything)
}

func TestRateLimit_BlockedKey(t *testing.T) {
	svc := new(mockRateLimitService)
	svc.On("IsBlocked", mock.Anything, "read:ip:192.0.2.1").Return(true, nil)

	req := httptest.NewRequest(http.MethodGet, "/history/api/prod", nil)
	req.RemoteAddr = "192.0.2.1:5555"

	rec := serve(t, svc, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	svc := new(mockRateLimitService)
	svc.On("IsBlocked", mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
	svc.On("CheckLimit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
	svc.On("Increment", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	rec := serve(t, svc, httptest.NewRequest(http.MethodGet, "/changes", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
