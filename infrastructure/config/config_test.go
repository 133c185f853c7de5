package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/secret-review/domain/valueobject"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_ALG", "HS256")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PROJECTS", `{"backend-api":["staging","production"]}`)
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("LEDGER_BACKEND", "memory")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.PreventSelfApproval)
	assert.Equal(t, 7*24*time.Hour, cfg.StagingRetention)
	assert.Equal(t, time.Duration(0), cfg.LedgerTTL)
	assert.Equal(t, "email", cfg.JWTIdentityClaim)
	assert.Equal(t, valueobject.DefaultStagingPrefix, cfg.StagingPrefix)
	assert.Equal(t, "localhost:8080", cfg.Addr())

	targets := cfg.Targets()
	assert.True(t, targets.Contains(valueobject.Target{Project: "backend-api", Env: "production"}))
	assert.False(t, targets.Contains(valueobject.Target{Project: "backend-api", Env: "dev"}))
}

func TestLoad_Durations(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STAGING_RETENTION", "48h")
	t.Setenv("LEDGER_TTL", "86400")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, cfg.StagingRetention)
	assert.Equal(t, 24*time.Hour, cfg.LedgerTTL)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{"missing hmac secret", map[string]string{"JWT_SECRET": ""}, ErrMissingJWTSecret},
		{"rs256 without key", map[string]string{"JWT_ALG": "RS256"}, ErrMissingJWTPublicKey},
		{"unknown algorithm", map[string]string{"JWT_ALG": "none"}, ErrInvalidJWTAlgorithm},
		{"malformed projects", map[string]string{"PROJECTS": "backend-api=prod"}, ErrInvalidProjects},
		{"empty projects", map[string]string{"PROJECTS": "{}"}, ErrNoProjects},
		{"bad store backend", map[string]string{"STORE_BACKEND": "vault"}, ErrInvalidStoreBackend},
		{"bad ledger backend", map[string]string{"LEDGER_BACKEND": "mongo"}, ErrInvalidLedgerBackend},
		{"postgres without dsn", map[string]string{"LEDGER_BACKEND": "postgres"}, ErrMissingDatabaseURL},
		{"bad retention", map[string]string{"STAGING_RETENTION": "a week"}, ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadWorker_SkipsTokenSettings(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingJWTSecret)

	cfg, err := LoadWorker()
	require.NoError(t, err)
	assert.Equal(t, StoreBackendMemory, cfg.StoreBackend)
}
