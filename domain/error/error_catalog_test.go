package error

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", ErrInvalidTarget("api", "prod"), http.StatusBadRequest},
		{"reference", ErrInvalidReference("other/x", nil), http.StatusBadRequest},
		{"self approval", ErrSelfApprovalForbidden("c1"), http.StatusForbidden},
		{"not found", ErrChangeNotFound("c1"), http.StatusNotFound},
		{"staging expired", ErrStagingExpired("c1"), http.StatusNotFound},
		{"invalid state", ErrInvalidState("c1", "approved"), http.StatusConflict},
		{"version conflict", ErrVersionConflict("c1"), http.StatusConflict},
		{"unauthorized", ErrUnauthorized("missing token"), http.StatusUnauthorized},
		{"rate limited", ErrRateLimitExceeded("1m"), http.StatusTooManyRequests},
		{"collision", ErrStagingCollision("c1", nil), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("approve: %w", ErrVersionConflict("c1")), http.StatusConflict},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatusCode(tt.err))
		})
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ErrNoPriorVersion("api/prod"))

	assert.True(t, HasCode(err, ErrCodeNoPriorVersion))
	assert.False(t, HasCode(err, ErrCodeChangeNotFound))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeNoPriorVersion))
}

func TestAppError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("store unavailable")
	err := ErrInternalServerError("ledger put", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "SERVER_6001: Internal server error (ledger put)", err.Error())
	assert.True(t, IsConflict(ErrInvalidState("c1", "rejected")))
	assert.False(t, IsConflict(err))
}
