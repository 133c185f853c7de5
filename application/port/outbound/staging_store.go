package outbound

import (
	"context"
	"errors"
	"iter"

	"github.com/fixora/secret-review/domain/entity"
)

var (
	ErrStagingNotFound      = errors.New("staging record not found")
	ErrStagingAlreadyExists = errors.New("staging record already exists")
)

// StagingStore holds proposed values between proposal and review.
// Records live in a namespace separate from live secrets.
type StagingStore interface {
	// CreateStaging stores payload under the change id and returns its reference.
	// Returns ErrStagingAlreadyExists when the change id is already taken.
	CreateStaging(ctx context.Context, changeID string, payload entity.StagingPayload) (string, error)

	// ReadStaging returns ErrStagingNotFound when no record exists
	ReadStaging(ctx context.Context, changeID string) (*entity.StagingPayload, error)

	// DeleteStaging is idempotent: deleting a missing record is not an error
	DeleteStaging(ctx context.Context, changeID string) error

	// DeleteReference removes a record by its full reference, for records whose
	// name embeds no change id. References outside the namespace are refused.
	DeleteReference(ctx context.Context, reference string) error

	// ListStaging lazily yields every tagged staging record, paging internally.
	// Iteration stops after the first yielded error.
	ListStaging(ctx context.Context) iter.Seq2[entity.StagingEntry, error]
}
