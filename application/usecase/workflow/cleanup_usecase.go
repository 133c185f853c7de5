package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/fixora/secret-review/application/port/inbound"
	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/entity"
	domainerr "github.com/fixora/secret-review/domain/error"
	"github.com/fixora/secret-review/infrastructure/service/logger"
)

type CleanupUseCase struct {
	staging   outbound.StagingStore
	ledger    outbound.ChangeLedger
	logger    logger.Logger
	metrics   outbound.WorkflowMetrics
	retention time.Duration
	now       func() time.Time
}

func NewCleanupUseCase(deps Dependencies, opts Options) *CleanupUseCase {
	return &CleanupUseCase{
		staging:   deps.Staging,
		ledger:    deps.Ledger,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		retention: opts.StagingRetention,
		now:       opts.Now,
	}
}

// Execute sweeps staging records that are expired, resolved or orphaned.
// Per-record failures are logged and counted; a listing failure aborts the sweep.
func (uc *CleanupUseCase) Execute(ctx context.Context) (*inbound.CleanupResult, error) {
	result := &inbound.CleanupResult{}
	now := uc.now()

	for entry, err := range uc.staging.ListStaging(ctx) {
		if err != nil {
			uc.logger.Error(ctx, "Staging listing failed", err, map[string]interface{}{
				"deleted": result.DeletedCount,
				"total":   result.TotalCount,
			})
			return nil, domainerr.ErrInternalServerError("list staging", err)
		}
		result.TotalCount++

		fields := map[string]interface{}{
			"reference": entry.Reference,
			"change_id": entry.ChangeID,
		}

		reason, err := uc.deletionReason(ctx, entry, now)
		if err != nil {
			result.FailedCount++
			uc.logger.Warn(ctx, "Skipping staging record", withErr(fields, err))
			continue
		}
		if reason == "" {
			continue
		}

		if err := uc.delete(ctx, entry); err != nil {
			result.FailedCount++
			uc.logger.Warn(ctx, "Failed to delete staging record", withErr(fields, err))
			continue
		}
		result.DeletedCount++
		fields["reason"] = reason
		uc.logger.Info(ctx, "Deleted staging record", fields)
	}

	uc.metrics.ObserveCleanup(result.DeletedCount, result.FailedCount)
	uc.logger.Info(ctx, "Staging cleanup finished", map[string]interface{}{
		"deleted": result.DeletedCount,
		"total":   result.TotalCount,
		"failed":  result.FailedCount,
	})
	return result, nil
}

// deletionReason returns "" when the record must be kept.
// Records without a change id can only be judged by age.
func (uc *CleanupUseCase) deletionReason(ctx context.Context, entry entity.StagingEntry, now time.Time) (string, error) {
	if entry.IsOlderThan(uc.retention, now) {
		return "expired", nil
	}
	if entry.ChangeID == "" {
		return "", errors.New("staging reference does not embed a change id")
	}

	record, err := uc.ledger.GetByID(ctx, entry.ChangeID)
	if errors.Is(err, outbound.ErrChangeNotFound) {
		return "orphaned", nil
	}
	if err != nil {
		return "", err
	}
	if record.Status.IsTerminal() {
		return string(record.Status), nil
	}
	return "", nil
}

func (uc *CleanupUseCase) delete(ctx context.Context, entry entity.StagingEntry) error {
	if entry.ChangeID == "" {
		return uc.staging.DeleteReference(ctx, entry.Reference)
	}
	return uc.staging.DeleteStaging(ctx, entry.ChangeID)
}

func withErr(fields map[string]interface{}, err error) map[string]interface{} {
	fields["error"] = err.Error()
	return fields
}
