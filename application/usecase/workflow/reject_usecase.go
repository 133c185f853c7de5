package workflow

import (
	"context"
	"time"

	"github.com/fixora/secret-review/application/port/inbound"
	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/entity"
	domainerr "github.com/fixora/secret-review/domain/error"
	"github.com/fixora/secret-review/infrastructure/service/logger"
)

type RejectUseCase struct {
	staging outbound.StagingStore
	ledger  outbound.ChangeLedger
	logger  logger.Logger
	now     func() time.Time
}

func NewRejectUseCase(deps Dependencies, opts Options) *RejectUseCase {
	return &RejectUseCase{
		staging: deps.Staging,
		ledger:  deps.Ledger,
		logger:  deps.Logger,
		now:     opts.Now,
	}
}

// Execute rejects a pending change. Proposers may reject their own changes.
func (uc *RejectUseCase) Execute(ctx context.Context, req inbound.ReviewRequest) (*inbound.RejectResponse, error) {
	if err := requireActor(req.Reviewer); err != nil {
		return nil, err
	}

	record, err := loadPending(ctx, uc.ledger, req.ChangeID)
	if err != nil {
		return nil, err
	}

	if err := uc.staging.DeleteStaging(ctx, record.ChangeID); err != nil {
		return nil, domainerr.ErrInternalServerError("delete staging", err)
	}

	outcome := entity.ReviewOutcome{
		Status:     entity.ChangeStatusRejected,
		ReviewedBy: req.Reviewer,
		ReviewedAt: uc.now(),
		Comment:    req.Comment,
	}
	if err := resolve(ctx, uc.ledger, record, outcome); err != nil {
		logger.LogWorkflowEvent(ctx, uc.logger, "reject", record.ChangeID, err, nil)
		return nil, err
	}

	logger.LogWorkflowEvent(ctx, uc.logger, "reject", record.ChangeID, nil, map[string]interface{}{
		"project":     record.Project,
		"env":         record.Env,
		"reviewed_by": req.Reviewer,
	})

	return &inbound.RejectResponse{
		ChangeID: record.ChangeID,
		Status:   entity.ChangeStatusRejected,
	}, nil
}
