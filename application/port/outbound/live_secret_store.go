package outbound

import (
	"context"
	"errors"

	"github.com/fixora/secret-review/domain/valueobject"
)

var ErrNoPriorVersion = errors.New("no prior secret version")

// VersionStage selects a historical version of a live secret
type VersionStage string

const VersionStagePrevious VersionStage = "previous"

// LiveSecretStore reads and writes the production secret of a target
type LiveSecretStore interface {
	// ReadCurrent returns an empty snapshot (no version id) when the secret does not exist
	ReadCurrent(ctx context.Context, target valueobject.Target) (valueobject.LiveSecret, error)

	// ReadVersionStage returns ErrNoPriorVersion when the store has no such version
	ReadVersionStage(ctx context.Context, target valueobject.Target, stage VersionStage) (map[string]string, error)

	// WriteCurrent creates a new version holding values
	WriteCurrent(ctx context.Context, target valueobject.Target, values map[string]string) error
}
