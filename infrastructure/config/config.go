package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fixora/secret-review/domain/valueobject"
)

const (
	StoreBackendAWS    = "aws"
	StoreBackendMemory = "memory"

	LedgerBackendDynamoDB = "dynamodb"
	LedgerBackendPostgres = "postgres"
	LedgerBackendMemory   = "memory"
)

type Config struct {
	ServerPort  string
	ServerHost  string
	Environment string
	LogLevel    string
	LogFormat   string

	JWTAlgorithm     string
	JWTSecret        string
	JWTPublicKey     string
	JWTIssuer        string
	JWTIdentityClaim string

	Projects            map[string][]string
	PreventSelfApproval bool
	StagingRetention    time.Duration

	StoreBackend     string
	LedgerBackend    string
	AWSRegion        string
	AWSProfile       string
	KMSKeyID         string
	SecretNamePrefix string
	StagingPrefix    string
	LedgerTable      string
	LedgerTTL        time.Duration
	DatabaseURL      string

	RedisURL               string
	RateLimitEnabled       bool
	RateLimitWriteAttempts int
	RateLimitReadAttempts  int
	RateLimitWindow        time.Duration
	RateLimitBlockDuration time.Duration

	CORSEnabled          bool
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	MetricsEnabled bool
}

var (
	ErrMissingJWTSecret     = errors.New("JWT_SECRET is required for HS256")
	ErrMissingJWTPublicKey  = errors.New("JWT_PUBLIC_KEY is required for RS256")
	ErrInvalidJWTAlgorithm  = errors.New("invalid JWT algorithm")
	ErrInvalidProjects      = errors.New("PROJECTS must be a JSON object of project to environment list")
	ErrNoProjects           = errors.New("PROJECTS must configure at least one project environment")
	ErrInvalidStoreBackend  = errors.New("STORE_BACKEND must be aws or memory")
	ErrInvalidLedgerBackend = errors.New("LEDGER_BACKEND must be dynamodb, postgres or memory")
	ErrMissingDatabaseURL   = errors.New("DATABASE_URL is required for the postgres ledger")
	ErrInvalidDuration      = errors.New("invalid duration format")
)

// Load reads the full server configuration
func Load() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorker reads configuration for processes that never verify tokens, such as the cleanup sweep
func LoadWorker() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateStores(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:  getEnvOrDefault("SERVER_PORT", "8080"),
		ServerHost:  getEnvOrDefault("SERVER_HOST", "localhost"),
		Environment: getEnvOrDefault("ENV", "development"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:   getEnvOrDefault("LOG_FORMAT", "json"),

		JWTAlgorithm:     strings.ToUpper(getEnvOrDefault("JWT_ALG", "HS256")),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTPublicKey:     os.Getenv("JWT_PUBLIC_KEY"),
		JWTIssuer:        os.Getenv("JWT_ISSUER"),
		JWTIdentityClaim: getEnvOrDefault("JWT_IDENTITY_CLAIM", "email"),

		PreventSelfApproval: getEnvOrDefaultBool("PREVENT_SELF_APPROVAL", true),

		StoreBackend:     strings.ToLower(getEnvOrDefault("STORE_BACKEND", StoreBackendAWS)),
		LedgerBackend:    strings.ToLower(getEnvOrDefault("LEDGER_BACKEND", LedgerBackendDynamoDB)),
		AWSRegion:        os.Getenv("AWS_REGION"),
		AWSProfile:       os.Getenv("AWS_PROFILE"),
		KMSKeyID:         os.Getenv("KMS_KEY_ID"),
		SecretNamePrefix: getEnvOrDefault("SECRET_NAME_PREFIX", "secret-review/live/"),
		StagingPrefix:    getEnvOrDefault("STAGING_PREFIX", valueobject.DefaultStagingPrefix),
		LedgerTable:      getEnvOrDefault("LEDGER_TABLE", "secret-review-changes"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),

		RedisURL:               getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		RateLimitEnabled:       getEnvOrDefaultBool("RATE_LIMIT_ENABLED", false),
		RateLimitWriteAttempts: getEnvOrDefaultInt("RATE_LIMIT_WRITE_ATTEMPTS", 30),
		RateLimitReadAttempts:  getEnvOrDefaultInt("RATE_LIMIT_READ_ATTEMPTS", 300),

		CORSEnabled:          getEnvOrDefaultBool("CORS_ENABLED", false),
		CORSAllowCredentials: getEnvOrDefaultBool("CORS_ALLOW_CREDENTIALS", false),
		CORSAllowedOrigins:   parseAllowedOrigins(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "")),

		MetricsEnabled: getEnvOrDefaultBool("METRICS_ENABLED", true),
	}

	var err error
	if cfg.StagingRetention, err = getEnvOrDefaultDuration("STAGING_RETENTION", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.LedgerTTL, err = getEnvOrDefaultDuration("LEDGER_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = getEnvOrDefaultDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitBlockDuration, err = getEnvOrDefaultDuration("RATE_LIMIT_BLOCK_DURATION", 5*time.Minute); err != nil {
		return nil, err
	}

	if cfg.Projects, err = parseProjects(os.Getenv("PROJECTS")); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combinations Load cannot default away
func (c *Config) Validate() error {
	switch c.JWTAlgorithm {
	case "HS256":
		if c.JWTSecret == "" {
			return ErrMissingJWTSecret
		}
	case "RS256":
		if c.JWTPublicKey == "" {
			return ErrMissingJWTPublicKey
		}
	default:
		return ErrInvalidJWTAlgorithm
	}
	return c.validateStores()
}

func (c *Config) validateStores() error {
	switch c.StoreBackend {
	case StoreBackendAWS, StoreBackendMemory:
	default:
		return ErrInvalidStoreBackend
	}

	switch c.LedgerBackend {
	case LedgerBackendDynamoDB, LedgerBackendMemory:
	case LedgerBackendPostgres:
		if c.DatabaseURL == "" {
			return ErrMissingDatabaseURL
		}
	default:
		return ErrInvalidLedgerBackend
	}

	if c.Targets().Len() == 0 {
		return ErrNoProjects
	}
	return nil
}

// Targets builds the immutable project registry handed to the workflow
func (c *Config) Targets() valueobject.TargetRegistry {
	return valueobject.NewTargetRegistry(c.Projects)
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

func parseProjects(value string) (map[string][]string, error) {
	if strings.TrimSpace(value) == "" {
		return map[string][]string{}, nil
	}
	var projects map[string][]string
	if err := json.Unmarshal([]byte(value), &projects); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProjects, err)
	}
	return projects, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// getEnvOrDefaultDuration accepts plain seconds or a Go duration string
func getEnvOrDefaultDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidDuration, key, value)
	}
	return d, nil
}

func parseAllowedOrigins(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			res = append(res, trimmed)
		}
	}
	return res
}
