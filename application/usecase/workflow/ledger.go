package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/entity"
	domainerr "github.com/fixora/secret-review/domain/error"
)

func loadChange(ctx context.Context, ledger outbound.ChangeLedger, changeID string) (*entity.ChangeRequest, error) {
	if strings.TrimSpace(changeID) == "" {
		return nil, domainerr.ErrInvalidRequest("changeId is required")
	}

	record, err := ledger.GetByID(ctx, changeID)
	if errors.Is(err, outbound.ErrChangeNotFound) {
		return nil, domainerr.ErrChangeNotFound(changeID)
	}
	if err != nil {
		return nil, domainerr.ErrInternalServerError("ledger lookup", err)
	}
	return record, nil
}

func loadPending(ctx context.Context, ledger outbound.ChangeLedger, changeID string) (*entity.ChangeRequest, error) {
	record, err := loadChange(ctx, ledger, changeID)
	if err != nil {
		return nil, err
	}
	if !record.IsPending() {
		return nil, domainerr.ErrInvalidState(changeID, string(record.Status))
	}
	return record, nil
}

// resolve writes a terminal status. A record resolved concurrently
// surfaces as an invalid state conflict.
func resolve(ctx context.Context, ledger outbound.ChangeLedger, record *entity.ChangeRequest, outcome entity.ReviewOutcome) error {
	err := ledger.UpdateStatus(ctx, record.Key(), outcome)
	switch {
	case err == nil:
		record.ApplyReview(outcome)
		return nil
	case errors.Is(err, outbound.ErrStatusPreconditionFailed):
		return domainerr.ErrInvalidState(record.ChangeID, "resolved concurrently")
	case errors.Is(err, outbound.ErrChangeNotFound):
		return domainerr.ErrChangeNotFound(record.ChangeID)
	default:
		return domainerr.ErrInternalServerError("ledger update", err)
	}
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return domainerr.ErrUnauthorized("missing actor identity")
	}
	return nil
}
