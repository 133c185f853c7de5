package outbound

import (
	"context"
	"errors"

	"github.com/fixora/secret-review/domain/entity"
	"github.com/fixora/secret-review/domain/valueobject"
)

var (
	ErrChangeNotFound           = errors.New("change not found")
	ErrChangeAlreadyExists      = errors.New("change already exists")
	ErrStatusPreconditionFailed = errors.New("change is no longer pending")
	ErrInvalidCursor            = errors.New("invalid pagination cursor")
)

// Page is one reverse-chronological slice of ledger records.
// NextCursor is opaque and empty on the last page.
type Page struct {
	Records    []*entity.ChangeRequest
	NextCursor string
}

// ChangeLedger stores change request metadata. It never sees secret values.
type ChangeLedger interface {
	// Put creates a record. Returns ErrChangeAlreadyExists when the id is taken.
	Put(ctx context.Context, record *entity.ChangeRequest) error

	// GetByID returns ErrChangeNotFound when no record has the id
	GetByID(ctx context.Context, changeID string) (*entity.ChangeRequest, error)

	QueryByProjectEnv(ctx context.Context, target valueobject.Target, limit int, cursor string) (*Page, error)

	QueryByStatus(ctx context.Context, status entity.ChangeStatus, limit int, cursor string) (*Page, error)

	// UpdateStatus applies outcome only while the record is pending;
	// otherwise it returns ErrStatusPreconditionFailed.
	UpdateStatus(ctx context.Context, key entity.RecordKey, outcome entity.ReviewOutcome) error

	Ping(ctx context.Context) error
}
