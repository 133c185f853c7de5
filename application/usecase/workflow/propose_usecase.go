package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fixora/secret-review/application/port/inbound"
	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/diff"
	"github.com/fixora/secret-review/domain/entity"
	domainerr "github.com/fixora/secret-review/domain/error"
	"github.com/fixora/secret-review/domain/valueobject"
	"github.com/fixora/secret-review/infrastructure/service/logger"
)

type ProposeUseCase struct {
	staging   outbound.StagingStore
	live      outbound.LiveSecretStore
	ledger    outbound.ChangeLedger
	logger    logger.Logger
	targets   valueobject.TargetRegistry
	namespace valueobject.StagingNamespace
	now       func() time.Time
}

func NewProposeUseCase(deps Dependencies, opts Options) *ProposeUseCase {
	return &ProposeUseCase{
		staging:   deps.Staging,
		live:      deps.Live,
		ledger:    deps.Ledger,
		logger:    deps.Logger,
		targets:   opts.Targets,
		namespace: opts.Namespace,
		now:       opts.Now,
	}
}

func (uc *ProposeUseCase) Execute(ctx context.Context, req inbound.ProposeRequest) (*inbound.ProposeResponse, error) {
	if err := requireActor(req.ProposedBy); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, domainerr.ErrInvalidRequest("reason is required")
	}

	target, err := resolveTarget(uc.targets, req.Project, req.Env)
	if err != nil {
		return nil, err
	}

	changeID, err := uc.namespace.ChangeID(req.StagingSecretName)
	if err != nil {
		return nil, domainerr.ErrInvalidReference(req.StagingSecretName, err)
	}

	payload, err := uc.staging.ReadStaging(ctx, changeID)
	if errors.Is(err, outbound.ErrStagingNotFound) {
		return nil, domainerr.ErrStagingNotFound(req.StagingSecretName)
	}
	if err != nil {
		return nil, domainerr.ErrInternalServerError("read staging", err)
	}

	staged := valueobject.Target{Project: payload.Project, Env: payload.Env}
	if staged != target {
		return nil, domainerr.ErrTargetMismatch(target.String(), staged.String())
	}

	// a staging record can back at most one change request
	if existing, err := uc.ledger.GetByID(ctx, changeID); err == nil {
		return nil, domainerr.ErrInvalidState(changeID, string(existing.Status))
	} else if !errors.Is(err, outbound.ErrChangeNotFound) {
		return nil, domainerr.ErrInternalServerError("ledger lookup", err)
	}

	current, err := uc.live.ReadCurrent(ctx, target)
	if err != nil {
		return nil, domainerr.ErrInternalServerError("read live secret", err)
	}

	entries := diff.ComputeDiff(current.Values, payload.ProposedValues)
	if len(entries) == 0 {
		logger.LogWorkflowEvent(ctx, uc.logger, "propose", changeID, nil, map[string]interface{}{
			"project":   target.Project,
			"env":       target.Env,
			"no_change": true,
		})
		return &inbound.ProposeResponse{Diff: entries, NoChange: true}, nil
	}

	record := entity.NewChangeRequest(
		changeID,
		target.Project,
		target.Env,
		req.ProposedBy,
		req.Reason,
		req.StagingSecretName,
		current.VersionID,
		entries,
		uc.now(),
	)

	if err := uc.ledger.Put(ctx, record); err != nil {
		if errors.Is(err, outbound.ErrChangeAlreadyExists) {
			return nil, domainerr.ErrInvalidState(changeID, string(entity.ChangeStatusPending))
		}
		return nil, domainerr.ErrInternalServerError("ledger put", err)
	}

	logger.LogWorkflowEvent(ctx, uc.logger, "propose", changeID, nil, map[string]interface{}{
		"project":     target.Project,
		"env":         target.Env,
		"proposed_by": req.ProposedBy,
		"diff_count":  record.DiffCount,
	})

	return &inbound.ProposeResponse{ChangeID: changeID, Diff: entries}, nil
}
