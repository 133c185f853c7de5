package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fixora/secret-review/application/port/inbound"
	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/entity"
	domainerr "github.com/fixora/secret-review/domain/error"
	"github.com/fixora/secret-review/domain/valueobject"
	"github.com/fixora/secret-review/infrastructure/service/logger"
)

type RollbackUseCase struct {
	live    outbound.LiveSecretStore
	ledger  outbound.ChangeLedger
	logger  logger.Logger
	targets valueobject.TargetRegistry
	now     func() time.Time
	newID   func() string
}

func NewRollbackUseCase(deps Dependencies, opts Options) *RollbackUseCase {
	return &RollbackUseCase{
		live:    deps.Live,
		ledger:  deps.Ledger,
		logger:  deps.Logger,
		targets: opts.Targets,
		now:     opts.Now,
		newID:   opts.NewID,
	}
}

// Execute restores the version preceding the live one and records the
// restore as a new approved change. Staging is never consulted.
func (uc *RollbackUseCase) Execute(ctx context.Context, req inbound.RollbackRequest) (*inbound.RollbackResponse, error) {
	if err := requireActor(req.Actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, domainerr.ErrInvalidRequest("reason is required")
	}

	source, err := loadChange(ctx, uc.ledger, req.ChangeID)
	if err != nil {
		return nil, err
	}
	if source.Status != entity.ChangeStatusApproved {
		return nil, domainerr.ErrInvalidState(source.ChangeID, string(source.Status))
	}

	target, err := resolveTarget(uc.targets, source.Project, source.Env)
	if err != nil {
		return nil, err
	}

	prior, err := uc.live.ReadVersionStage(ctx, target, outbound.VersionStagePrevious)
	if errors.Is(err, outbound.ErrNoPriorVersion) {
		return nil, domainerr.ErrNoPriorVersion(target.String())
	}
	if err != nil {
		return nil, domainerr.ErrInternalServerError("read prior version", err)
	}

	current, err := uc.live.ReadCurrent(ctx, target)
	if err != nil {
		return nil, domainerr.ErrInternalServerError("read live secret", err)
	}

	if err := uc.live.WriteCurrent(ctx, target, prior); err != nil {
		return nil, domainerr.ErrInternalServerError("write live secret", err)
	}

	record := entity.NewRollbackRecord(uc.newID(), source, req.Actor, req.Reason, valueobject.SortedKeys(prior), uc.now())
	record.SecretVersionBeforeApproval = current.VersionID

	if err := uc.ledger.Put(ctx, record); err != nil {
		if errors.Is(err, outbound.ErrChangeAlreadyExists) {
			return nil, domainerr.ErrStagingCollision(record.ChangeID, err)
		}
		return nil, domainerr.ErrInternalServerError("ledger put", err)
	}

	logger.LogWorkflowEvent(ctx, uc.logger, "rollback", record.ChangeID, nil, map[string]interface{}{
		"project":     record.Project,
		"env":         record.Env,
		"rolled_back": source.ChangeID,
		"actor":       req.Actor,
		"key_count":   len(record.CurrentKeys),
	})

	return &inbound.RollbackResponse{
		RollbackID: record.ChangeID,
		RolledBack: source.ChangeID,
	}, nil
}
