package secretstore

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/entity"
	"github.com/fixora/secret-review/domain/valueobject"
)

const (
	tagStaging   = "secret-review:staging"
	tagCreatedAt = "secret-review:created-at"
	tagProject   = "secret-review:project"
	tagEnv       = "secret-review:env"

	listPageSize = 100
)

// StagingStore keeps proposed values as tagged secrets under the staging namespace
type StagingStore struct {
	*clientHolder
	namespace valueobject.StagingNamespace
	now       func() time.Time
}

func NewStagingStore(cfg Config, namespace valueobject.StagingNamespace, opts ...Option) *StagingStore {
	return &StagingStore{
		clientHolder: newClientHolder(cfg, opts),
		namespace:    namespace,
		now:          time.Now,
	}
}

func (s *StagingStore) CreateStaging(ctx context.Context, changeID string, payload entity.StagingPayload) (string, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("secretstore: encode staging %s: %w", changeID, err)
	}

	reference := s.namespace.Reference(changeID)
	input := &secretsmanager.CreateSecretInput{
		Name:               aws.String(reference),
		SecretString:       aws.String(string(body)),
		ClientRequestToken: aws.String(changeID),
		Description:        aws.String(fmt.Sprintf("Staged change for %s/%s", payload.Project, payload.Env)),
		Tags: []types.Tag{
			{Key: aws.String(tagStaging), Value: aws.String("true")},
			{Key: aws.String(tagCreatedAt), Value: aws.String(s.now().UTC().Format(time.RFC3339))},
			{Key: aws.String(tagProject), Value: aws.String(payload.Project)},
			{Key: aws.String(tagEnv), Value: aws.String(payload.Env)},
		},
	}
	if s.cfg.KMSKeyID != "" {
		input.KmsKeyId = aws.String(s.cfg.KMSKeyID)
	}

	if _, err := client.CreateSecret(ctx, input); err != nil {
		if isExists(err) {
			return "", outbound.ErrStagingAlreadyExists
		}
		return "", fmt.Errorf("secretstore: create staging %s: %w", changeID, err)
	}
	return reference, nil
}

func (s *StagingStore) ReadStaging(ctx context.Context, changeID string) (*entity.StagingPayload, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.namespace.Reference(changeID)),
	})
	if isNotFound(err) {
		return nil, outbound.ErrStagingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("secretstore: read staging %s: %w", changeID, err)
	}

	var payload entity.StagingPayload
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &payload); err != nil {
		return nil, fmt.Errorf("secretstore: staging %s is not a valid payload", changeID)
	}
	return &payload, nil
}

func (s *StagingStore) DeleteStaging(ctx context.Context, changeID string) error {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}

	_, err = client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(s.namespace.Reference(changeID)),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("secretstore: delete staging %s: %w", changeID, err)
	}
	return nil
}

func (s *StagingStore) DeleteReference(ctx context.Context, reference string) error {
	if !s.namespace.Contains(reference) {
		return valueobject.ErrReferenceNamespace
	}
	client, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}

	_, err = client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(reference),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("secretstore: delete staging %s: %w", reference, err)
	}
	return nil
}

// ListStaging pages through every secret carrying the staging tag
func (s *StagingStore) ListStaging(ctx context.Context) iter.Seq2[entity.StagingEntry, error] {
	return func(yield func(entity.StagingEntry, error) bool) {
		client, err := s.ensureClient(ctx)
		if err != nil {
			yield(entity.StagingEntry{}, err)
			return
		}

		paginator := secretsmanager.NewListSecretsPaginator(client, &secretsmanager.ListSecretsInput{
			MaxResults: aws.Int32(listPageSize),
			Filters: []types.Filter{
				{Key: types.FilterNameStringTypeTagKey, Values: []string{tagStaging}},
			},
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(entity.StagingEntry{}, fmt.Errorf("secretstore: list staging: %w", err))
				return
			}
			for _, secret := range page.SecretList {
				if !yield(s.entry(secret), nil) {
					return
				}
			}
		}
	}
}

func (s *StagingStore) entry(secret types.SecretListEntry) entity.StagingEntry {
	entry := entity.StagingEntry{Reference: aws.ToString(secret.Name)}
	if changeID, err := s.namespace.ChangeID(entry.Reference); err == nil {
		entry.ChangeID = changeID
	}
	for _, tag := range secret.Tags {
		if aws.ToString(tag.Key) != tagCreatedAt {
			continue
		}
		if createdAt, err := time.Parse(time.RFC3339, aws.ToString(tag.Value)); err == nil {
			entry.CreatedAt = createdAt.UTC()
		}
	}
	return entry
}
