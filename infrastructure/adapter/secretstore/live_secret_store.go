package secretstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/valueobject"
)

const (
	DefaultLivePrefix = "secret-review/live/"

	stagePrevious = "AWSPREVIOUS"
)

// LiveSecretStore keeps one secret per target named <prefix><project>/<env>
type LiveSecretStore struct {
	*clientHolder
	prefix string
}

func NewLiveSecretStore(cfg Config, prefix string, opts ...Option) *LiveSecretStore {
	if prefix == "" {
		prefix = DefaultLivePrefix
	}
	return &LiveSecretStore{
		clientHolder: newClientHolder(cfg, opts),
		prefix:       prefix,
	}
}

// SecretName returns the store name of target's live secret
func (s *LiveSecretStore) SecretName(target valueobject.Target) string {
	return s.prefix + target.Project + "/" + target.Env
}

func (s *LiveSecretStore) ReadCurrent(ctx context.Context, target valueobject.Target) (valueobject.LiveSecret, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return valueobject.LiveSecret{}, err
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.SecretName(target)),
	})
	if isNotFound(err) {
		return valueobject.LiveSecret{Values: map[string]string{}}, nil
	}
	if err != nil {
		return valueobject.LiveSecret{}, fmt.Errorf("secretstore: read %s: %w", target, err)
	}

	values, err := decodeValues(out.SecretString)
	if err != nil {
		return valueobject.LiveSecret{}, fmt.Errorf("secretstore: read %s: %w", target, err)
	}
	return valueobject.LiveSecret{
		Values:    values,
		VersionID: aws.ToString(out.VersionId),
	}, nil
}

func (s *LiveSecretStore) ReadVersionStage(ctx context.Context, target valueobject.Target, stage outbound.VersionStage) (map[string]string, error) {
	if stage != outbound.VersionStagePrevious {
		return nil, fmt.Errorf("secretstore: unsupported version stage %q", stage)
	}

	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(s.SecretName(target)),
		VersionStage: aws.String(stagePrevious),
	})
	if isNotFound(err) {
		return nil, outbound.ErrNoPriorVersion
	}
	if err != nil {
		return nil, fmt.Errorf("secretstore: read previous %s: %w", target, err)
	}
	values, err := decodeValues(out.SecretString)
	if err != nil {
		return nil, fmt.Errorf("secretstore: read previous %s: %w", target, err)
	}
	return values, nil
}

// WriteCurrent puts a new version, creating the secret on first write
func (s *LiveSecretStore) WriteCurrent(ctx context.Context, target valueobject.Target, values map[string]string) error {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}

	body, err := encodeValues(values)
	if err != nil {
		return fmt.Errorf("secretstore: write %s: %w", target, err)
	}

	_, err = client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(s.SecretName(target)),
		SecretString: aws.String(body),
	})
	if !isNotFound(err) {
		if err != nil {
			return fmt.Errorf("secretstore: write %s: %w", target, err)
		}
		return nil
	}

	input := &secretsmanager.CreateSecretInput{
		Name:         aws.String(s.SecretName(target)),
		SecretString: aws.String(body),
		Tags: []types.Tag{
			{Key: aws.String(tagProject), Value: aws.String(target.Project)},
			{Key: aws.String(tagEnv), Value: aws.String(target.Env)},
		},
	}
	if s.cfg.KMSKeyID != "" {
		input.KmsKeyId = aws.String(s.cfg.KMSKeyID)
	}
	if _, err := client.CreateSecret(ctx, input); err != nil {
		return fmt.Errorf("secretstore: create %s: %w", target, err)
	}
	return nil
}
