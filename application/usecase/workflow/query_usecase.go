package workflow

import (
	"context"
	"errors"

	"github.com/fixora/secret-review/application/port/inbound"
	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/entity"
	domainerr "github.com/fixora/secret-review/domain/error"
	"github.com/fixora/secret-review/domain/valueobject"
)

// QueryUseCase serves the read paths. It only touches the ledger, so
// responses can never carry secret values.
type QueryUseCase struct {
	ledger  outbound.ChangeLedger
	targets valueobject.TargetRegistry
}

func NewQueryUseCase(deps Dependencies, opts Options) *QueryUseCase {
	return &QueryUseCase{
		ledger:  deps.Ledger,
		targets: opts.Targets,
	}
}

func (uc *QueryUseCase) GetDiff(ctx context.Context, changeID string) (*inbound.ChangeView, error) {
	record, err := loadChange(ctx, uc.ledger, changeID)
	if err != nil {
		return nil, err
	}
	view := inbound.NewChangeView(record)
	return &view, nil
}

func (uc *QueryUseCase) ListChanges(ctx context.Context, req inbound.ListChangesRequest) (*inbound.ListChangesResponse, error) {
	status := req.Status
	if status == "" {
		status = entity.ChangeStatusPending
	}
	if !status.IsValid() {
		return nil, domainerr.ErrInvalidRequest("unknown status " + string(status))
	}

	page, err := uc.ledger.QueryByStatus(ctx, status, normalizeLimit(req.Limit), req.NextToken)
	if err != nil {
		return nil, mapQueryError(err)
	}

	return &inbound.ListChangesResponse{
		Changes:   views(page.Records),
		NextToken: page.NextCursor,
	}, nil
}

// History lists a target's changes newest first. On the first page the key set
// of the newest approved record is reported as the target's current keys.
func (uc *QueryUseCase) History(ctx context.Context, req inbound.HistoryRequest) (*inbound.HistoryResponse, error) {
	target, err := resolveTarget(uc.targets, req.Project, req.Env)
	if err != nil {
		return nil, err
	}

	page, err := uc.ledger.QueryByProjectEnv(ctx, target, normalizeLimit(req.Limit), req.NextToken)
	if err != nil {
		return nil, mapQueryError(err)
	}

	currentKeys := []string{}
	if req.NextToken == "" {
		for _, record := range page.Records {
			if record.Status == entity.ChangeStatusApproved {
				if record.CurrentKeys != nil {
					currentKeys = record.CurrentKeys
				}
				break
			}
		}
	}

	return &inbound.HistoryResponse{
		Project:     target.Project,
		Env:         target.Env,
		History:     views(page.Records),
		CurrentKeys: currentKeys,
		NextToken:   page.NextCursor,
	}, nil
}

func views(records []*entity.ChangeRequest) []inbound.ChangeView {
	out := make([]inbound.ChangeView, 0, len(records))
	for _, record := range records {
		out = append(out, inbound.NewChangeView(record))
	}
	return out
}

func mapQueryError(err error) error {
	if errors.Is(err, outbound.ErrInvalidCursor) {
		return domainerr.ErrInvalidCursor(err)
	}
	return domainerr.ErrInternalServerError("ledger query", err)
}
