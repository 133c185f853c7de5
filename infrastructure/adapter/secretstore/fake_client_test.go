package secretstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

type fakeSecret struct {
	versions []string
	ids      []string
	tags     []types.Tag
}

// fakeClient mimics the Secrets Manager behaviours the stores rely on
type fakeClient struct {
	mu        sync.Mutex
	secrets   map[string]*fakeSecret
	seq       int
	pageSize  int
	listCalls int
	listErr   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{secrets: make(map[string]*fakeSecret), pageSize: 100}
}

func (f *fakeClient) nextID() string {
	f.seq++
	return fmt.Sprintf("ver-%d", f.seq)
}

func (f *fakeClient) CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	if _, ok := f.secrets[name]; ok {
		return nil, &types.ResourceExistsException{Message: aws.String("exists")}
	}
	id := f.nextID()
	f.secrets[name] = &fakeSecret{
		versions: []string{aws.ToString(params.SecretString)},
		ids:      []string{id},
		tags:     params.Tags,
	}
	return &secretsmanager.CreateSecretOutput{Name: params.Name, VersionId: aws.String(id)}, nil
}

func (f *fakeClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	secret, ok := f.secrets[aws.ToString(params.SecretId)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	idx := len(secret.versions) - 1
	if aws.ToString(params.VersionStage) == "AWSPREVIOUS" {
		idx--
	}
	if idx < 0 {
		return nil, &types.ResourceNotFoundException{Message: aws.String("no such stage")}
	}
	return &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(secret.versions[idx]),
		VersionId:    aws.String(secret.ids[idx]),
	}, nil
}

func (f *fakeClient) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	secret, ok := f.secrets[aws.ToString(params.SecretId)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	id := f.nextID()
	secret.versions = append(secret.versions, aws.ToString(params.SecretString))
	secret.ids = append(secret.ids, id)
	return &secretsmanager.PutSecretValueOutput{VersionId: aws.String(id)}, nil
}

func (f *fakeClient) DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.SecretId)
	if _, ok := f.secrets[name]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	delete(f.secrets, name)
	return &secretsmanager.DeleteSecretOutput{Name: params.SecretId}, nil
}

func (f *fakeClient) ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}

	var names []string
	for name, secret := range f.secrets {
		if matchesFilters(secret.tags, params.Filters) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	start := 0
	if params.NextToken != nil {
		start, _ = strconv.Atoi(aws.ToString(params.NextToken))
	}
	end := min(start+f.pageSize, len(names))

	out := &secretsmanager.ListSecretsOutput{}
	for _, name := range names[start:end] {
		out.SecretList = append(out.SecretList, types.SecretListEntry{
			Name: aws.String(name),
			Tags: f.secrets[name].tags,
		})
	}
	if end < len(names) {
		out.NextToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func matchesFilters(tags []types.Tag, filters []types.Filter) bool {
	for _, filter := range filters {
		if filter.Key != types.FilterNameStringTypeTagKey {
			continue
		}
		found := false
		for _, tag := range tags {
			for _, want := range filter.Values {
				if aws.ToString(tag.Key) == want {
					found = true
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}
