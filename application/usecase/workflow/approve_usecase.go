package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/fixora/secret-review/application/port/inbound"
	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/entity"
	domainerr "github.com/fixora/secret-review/domain/error"
	"github.com/fixora/secret-review/domain/valueobject"
	"github.com/fixora/secret-review/infrastructure/service/logger"
)

type ApproveUseCase struct {
	staging             outbound.StagingStore
	live                outbound.LiveSecretStore
	ledger              outbound.ChangeLedger
	logger              logger.Logger
	preventSelfApproval bool
	now                 func() time.Time
}

func NewApproveUseCase(deps Dependencies, opts Options) *ApproveUseCase {
	return &ApproveUseCase{
		staging:             deps.Staging,
		live:                deps.Live,
		ledger:              deps.Ledger,
		logger:              deps.Logger,
		preventSelfApproval: opts.PreventSelfApproval,
		now:                 opts.Now,
	}
}

// Execute applies a pending change: the live secret is written first,
// then the staging record is removed and the ledger record resolved.
func (uc *ApproveUseCase) Execute(ctx context.Context, req inbound.ReviewRequest) (*inbound.ApproveResponse, error) {
	if err := requireActor(req.Reviewer); err != nil {
		return nil, err
	}

	record, err := loadPending(ctx, uc.ledger, req.ChangeID)
	if err != nil {
		return nil, err
	}

	if uc.preventSelfApproval && req.Reviewer == record.ProposedBy {
		logger.LogSecurityEvent(ctx, uc.logger, "self_approval_attempt", "MEDIUM", map[string]interface{}{
			"change_id": record.ChangeID,
			"reviewer":  req.Reviewer,
		})
		return nil, domainerr.ErrSelfApprovalForbidden(record.ChangeID)
	}

	target := valueobject.Target{Project: record.Project, Env: record.Env}

	var current valueobject.LiveSecret
	haveCurrent := false
	if record.SecretVersionBeforeProposal != "" {
		current, err = uc.live.ReadCurrent(ctx, target)
		if err != nil {
			return nil, domainerr.ErrInternalServerError("read live secret", err)
		}
		if current.VersionID != record.SecretVersionBeforeProposal {
			logger.LogSecurityEvent(ctx, uc.logger, "version_conflict", "LOW", map[string]interface{}{
				"change_id":        record.ChangeID,
				"expected_version": record.SecretVersionBeforeProposal,
				"current_version":  current.VersionID,
			})
			return nil, domainerr.ErrVersionConflict(record.ChangeID)
		}
		haveCurrent = true
	}

	payload, err := uc.staging.ReadStaging(ctx, record.ChangeID)
	if errors.Is(err, outbound.ErrStagingNotFound) {
		return nil, domainerr.ErrStagingExpired(record.ChangeID)
	}
	if err != nil {
		return nil, domainerr.ErrInternalServerError("read staging", err)
	}

	if !haveCurrent {
		current, err = uc.live.ReadCurrent(ctx, target)
		if err != nil {
			return nil, domainerr.ErrInternalServerError("read live secret", err)
		}
	}
	previousVersionID := current.VersionID

	writeErr := uc.live.WriteCurrent(ctx, target, payload.ProposedValues)

	// staging goes even when the write failed; an undeleted record is an
	// orphan the cleanup sweep removes later
	if err := uc.staging.DeleteStaging(ctx, record.ChangeID); err != nil {
		uc.logger.Warn(ctx, "Failed to delete staging record after approval", map[string]interface{}{
			"change_id": record.ChangeID,
			"error":     err.Error(),
		})
	}

	if writeErr != nil {
		logger.LogWorkflowEvent(ctx, uc.logger, "approve", record.ChangeID, writeErr, nil)
		return nil, domainerr.ErrInternalServerError("write live secret", writeErr)
	}

	outcome := entity.ReviewOutcome{
		Status:                      entity.ChangeStatusApproved,
		ReviewedBy:                  req.Reviewer,
		ReviewedAt:                  uc.now(),
		Comment:                     req.Comment,
		SecretVersionBeforeApproval: previousVersionID,
		CurrentKeys:                 valueobject.SortedKeys(payload.ProposedValues),
	}
	if err := resolve(ctx, uc.ledger, record, outcome); err != nil {
		if domainerr.IsConflict(err) {
			logger.LogSecurityEvent(ctx, uc.logger, "approve_lost_race", "HIGH", map[string]interface{}{
				"change_id": record.ChangeID,
				"reviewer":  req.Reviewer,
			})
		}
		logger.LogWorkflowEvent(ctx, uc.logger, "approve", record.ChangeID, err, nil)
		return nil, err
	}

	logger.LogWorkflowEvent(ctx, uc.logger, "approve", record.ChangeID, nil, map[string]interface{}{
		"project":     record.Project,
		"env":         record.Env,
		"reviewed_by": req.Reviewer,
		"key_count":   len(outcome.CurrentKeys),
	})

	return &inbound.ApproveResponse{
		ChangeID: record.ChangeID,
		Project:  record.Project,
		Env:      record.Env,
		Status:   entity.ChangeStatusApproved,
	}, nil
}
