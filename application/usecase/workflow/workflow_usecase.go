package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fixora/secret-review/application/port/inbound"
	"github.com/fixora/secret-review/application/port/outbound"
	domainerr "github.com/fixora/secret-review/domain/error"
	"github.com/fixora/secret-review/domain/valueobject"
	"github.com/fixora/secret-review/infrastructure/service/logger"
)

const (
	DefaultStagingRetention = 7 * 24 * time.Hour
	DefaultPageLimit        = 20
	MaxPageLimit            = 100
)

// Dependencies are the stores and services the workflow runs against
type Dependencies struct {
	Staging outbound.StagingStore
	Live    outbound.LiveSecretStore
	Ledger  outbound.ChangeLedger
	Metrics outbound.WorkflowMetrics
	Logger  logger.Logger
}

// Options is the static configuration fixed at process start
type Options struct {
	Targets             valueobject.TargetRegistry
	Namespace           valueobject.StagingNamespace
	PreventSelfApproval bool
	StagingRetention    time.Duration
	Now                 func() time.Time
	NewID               func() string
}

type WorkflowUseCaseImpl struct {
	proposeUseCase  *ProposeUseCase
	approveUseCase  *ApproveUseCase
	rejectUseCase   *RejectUseCase
	rollbackUseCase *RollbackUseCase
	cleanupUseCase  *CleanupUseCase
	queryUseCase    *QueryUseCase
	metrics         outbound.WorkflowMetrics
	logger          logger.Logger
}

func NewWorkflowUseCase(deps Dependencies, opts Options) inbound.WorkflowUseCase {
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.StagingRetention <= 0 {
		opts.StagingRetention = DefaultStagingRetention
	}
	if opts.Namespace.Prefix() == "" {
		opts.Namespace = valueobject.NewStagingNamespace("")
	}

	return &WorkflowUseCaseImpl{
		proposeUseCase:  NewProposeUseCase(deps, opts),
		approveUseCase:  NewApproveUseCase(deps, opts),
		rejectUseCase:   NewRejectUseCase(deps, opts),
		rollbackUseCase: NewRollbackUseCase(deps, opts),
		cleanupUseCase:  NewCleanupUseCase(deps, opts),
		queryUseCase:    NewQueryUseCase(deps, opts),
		metrics:         deps.Metrics,
		logger:          deps.Logger,
	}
}

func (uc *WorkflowUseCaseImpl) Propose(ctx context.Context, req inbound.ProposeRequest) (resp *inbound.ProposeResponse, err error) {
	defer uc.observe(ctx, "propose", time.Now(), &err)
	return uc.proposeUseCase.Execute(ctx, req)
}

func (uc *WorkflowUseCaseImpl) Approve(ctx context.Context, req inbound.ReviewRequest) (resp *inbound.ApproveResponse, err error) {
	defer uc.observe(ctx, "approve", time.Now(), &err)
	return uc.approveUseCase.Execute(ctx, req)
}

func (uc *WorkflowUseCaseImpl) Reject(ctx context.Context, req inbound.ReviewRequest) (resp *inbound.RejectResponse, err error) {
	defer uc.observe(ctx, "reject", time.Now(), &err)
	return uc.rejectUseCase.Execute(ctx, req)
}

func (uc *WorkflowUseCaseImpl) Rollback(ctx context.Context, req inbound.RollbackRequest) (resp *inbound.RollbackResponse, err error) {
	defer uc.observe(ctx, "rollback", time.Now(), &err)
	return uc.rollbackUseCase.Execute(ctx, req)
}

func (uc *WorkflowUseCaseImpl) Cleanup(ctx context.Context) (resp *inbound.CleanupResult, err error) {
	defer uc.observe(ctx, "cleanup", time.Now(), &err)
	return uc.cleanupUseCase.Execute(ctx)
}

func (uc *WorkflowUseCaseImpl) GetDiff(ctx context.Context, changeID string) (resp *inbound.ChangeView, err error) {
	defer uc.observe(ctx, "diff", time.Now(), &err)
	return uc.queryUseCase.GetDiff(ctx, changeID)
}

func (uc *WorkflowUseCaseImpl) ListChanges(ctx context.Context, req inbound.ListChangesRequest) (resp *inbound.ListChangesResponse, err error) {
	defer uc.observe(ctx, "list", time.Now(), &err)
	return uc.queryUseCase.ListChanges(ctx, req)
}

func (uc *WorkflowUseCaseImpl) History(ctx context.Context, req inbound.HistoryRequest) (resp *inbound.HistoryResponse, err error) {
	defer uc.observe(ctx, "history", time.Now(), &err)
	return uc.queryUseCase.History(ctx, req)
}

func (uc *WorkflowUseCaseImpl) observe(ctx context.Context, operation string, start time.Time, err *error) {
	elapsed := time.Since(start)
	outcome := Outcome(*err)
	uc.metrics.ObserveOperation(operation, outcome, elapsed)
	logger.LogPerformance(ctx, uc.logger, operation, elapsed, map[string]interface{}{"outcome": outcome})
}

// Outcome turns an operation error into a low-cardinality metric label
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	var appErr *domainerr.AppError
	if errors.As(err, &appErr) {
		return strings.ToLower(string(appErr.Code))
	}
	return "error"
}

// resolveTarget validates project/env against the configured registry
func resolveTarget(targets valueobject.TargetRegistry, project, env string) (valueobject.Target, error) {
	target, err := valueobject.NewTarget(project, env)
	if err != nil || !targets.Contains(target) {
		return valueobject.Target{}, domainerr.ErrInvalidTarget(project, env)
	}
	return target, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, string, time.Duration) {}
func (nopMetrics) ObserveCleanup(int, int)                        {}
