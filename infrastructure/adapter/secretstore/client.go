package secretstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/fixora/secret-review/infrastructure/adapter/awsclient"
)

// Client abstracts the Secrets Manager client for testing.
type Client interface {
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
}

// Config holds Secrets Manager settings shared by both stores.
type Config struct {
	Region  string
	Profile string
	// KMSKeyID encrypts newly created secrets; empty uses the account default key
	KMSKeyID string
}

type Option func(*clientHolder)

// WithClient injects a custom Secrets Manager client.
func WithClient(c Client) Option {
	return func(h *clientHolder) {
		if c != nil {
			h.client = c
		}
	}
}

type clientHolder struct {
	cfg    Config
	mu     sync.Mutex
	client Client
}

func newClientHolder(cfg Config, opts []Option) *clientHolder {
	h := &clientHolder{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *clientHolder) ensureClient(ctx context.Context) (Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client != nil {
		return h.client, nil
	}
	awsCfg, err := awsclient.Load(ctx, awsclient.Config{Region: h.cfg.Region, Profile: h.cfg.Profile})
	if err != nil {
		return nil, fmt.Errorf("secretstore: %w", err)
	}
	h.client = secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		o.RetryMaxAttempts = 3
	})
	return h.client, nil
}

func isNotFound(err error) bool {
	var nf *types.ResourceNotFoundException
	return errors.As(err, &nf)
}

func isExists(err error) bool {
	var exists *types.ResourceExistsException
	return errors.As(err, &exists)
}

// decodeValues parses a secret string holding a flat JSON object.
// The error never includes the secret string itself.
func decodeValues(secretString *string) (map[string]string, error) {
	if secretString == nil || *secretString == "" {
		return map[string]string{}, nil
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(*secretString), &values); err != nil {
		return nil, errors.New("secret is not a flat JSON object of strings")
	}
	if values == nil {
		values = map[string]string{}
	}
	return values, nil
}

func encodeValues(values map[string]string) (string, error) {
	if values == nil {
		values = map[string]string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", errors.New("encode secret values")
	}
	return string(raw), nil
}
