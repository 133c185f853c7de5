package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/valueobject"
)

type secretVersion struct {
	id     string
	values map[string]string
}

// LiveSecretStore is a versioned in-memory secret store.
// Every write appends a version with a fresh id.
type LiveSecretStore struct {
	mu       sync.RWMutex
	secrets  map[valueobject.Target][]secretVersion
	sequence int
}

func NewLiveSecretStore() *LiveSecretStore {
	return &LiveSecretStore{
		secrets: make(map[valueobject.Target][]secretVersion),
	}
}

func (s *LiveSecretStore) ReadCurrent(ctx context.Context, target valueobject.Target) (valueobject.LiveSecret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.secrets[target]
	if len(versions) == 0 {
		return valueobject.LiveSecret{Values: map[string]string{}}, nil
	}
	current := versions[len(versions)-1]
	return valueobject.LiveSecret{
		Values:    maps.Clone(current.values),
		VersionID: current.id,
	}, nil
}

func (s *LiveSecretStore) ReadVersionStage(ctx context.Context, target valueobject.Target, stage outbound.VersionStage) (map[string]string, error) {
	if stage != outbound.VersionStagePrevious {
		return nil, fmt.Errorf("memory live store: unsupported version stage %q", stage)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.secrets[target]
	if len(versions) < 2 {
		return nil, outbound.ErrNoPriorVersion
	}
	return maps.Clone(versions[len(versions)-2].values), nil
}

func (s *LiveSecretStore) WriteCurrent(ctx context.Context, target valueobject.Target, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequence++
	s.secrets[target] = append(s.secrets[target], secretVersion{
		id:     fmt.Sprintf("v%d", s.sequence),
		values: maps.Clone(values),
	})
	return nil
}

// VersionCount returns how many versions target has
func (s *LiveSecretStore) VersionCount(target valueobject.Target) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.secrets[target])
}
