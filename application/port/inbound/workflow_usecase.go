package inbound

import (
	"context"
	"time"

	"github.com/fixora/secret-review/domain/entity"
)

// Propose
type ProposeRequest struct {
	Project           string `json:"project" validate:"required,max=128"`
	Env               string `json:"env" validate:"required,max=128"`
	StagingSecretName string `json:"stagingSecretName" validate:"required,max=512"`
	Reason            string `json:"reason" validate:"required,max=1000"`
	ProposedBy        string `json:"-"`
}

type ProposeResponse struct {
	ChangeID string             `json:"changeId,omitempty"`
	Diff     []entity.DiffEntry `json:"diff"`
	NoChange bool               `json:"noChange"`
}

// Approve / Reject
type ReviewRequest struct {
	ChangeID string `json:"-"`
	Reviewer string `json:"-"`
	Comment  string `json:"comment,omitempty" validate:"max=1000"`
}

type ApproveResponse struct {
	ChangeID string              `json:"changeId"`
	Project  string              `json:"project"`
	Env      string              `json:"env"`
	Status   entity.ChangeStatus `json:"status"`
}

type RejectResponse struct {
	ChangeID string              `json:"changeId"`
	Status   entity.ChangeStatus `json:"status"`
}

// Rollback
type RollbackRequest struct {
	ChangeID string `json:"changeId" validate:"required"`
	Reason   string `json:"reason" validate:"required,max=1000"`
	Actor    string `json:"-"`
}

type RollbackResponse struct {
	RollbackID string `json:"rollbackId"`
	RolledBack string `json:"rolledBack"`
}

// Cleanup
type CleanupResult struct {
	DeletedCount int `json:"deletedCount"`
	TotalCount   int `json:"totalCount"`
	FailedCount  int `json:"failedCount"`
}

// ChangeView is the value-free projection of a ledger record returned by read paths
type ChangeView struct {
	ChangeID    string              `json:"changeId"`
	Project     string              `json:"project"`
	Env         string              `json:"env"`
	Status      entity.ChangeStatus `json:"status"`
	ProposedBy  string              `json:"proposedBy"`
	Reason      string              `json:"reason"`
	Diff        []entity.DiffEntry  `json:"diff"`
	DiffCount   int                 `json:"diffCount"`
	CreatedAt   time.Time           `json:"createdAt"`
	ReviewedBy  string              `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time          `json:"reviewedAt,omitempty"`
	Comment     string              `json:"comment,omitempty"`
	CurrentKeys []string            `json:"currentKeys,omitempty"`
	IsRollback  bool                `json:"isRollback"`
}

func NewChangeView(c *entity.ChangeRequest) ChangeView {
	diff := c.Diff
	if diff == nil {
		diff = []entity.DiffEntry{}
	}
	return ChangeView{
		ChangeID:    c.ChangeID,
		Project:     c.Project,
		Env:         c.Env,
		Status:      c.Status,
		ProposedBy:  c.ProposedBy,
		Reason:      c.Reason,
		Diff:        diff,
		DiffCount:   c.DiffCount,
		CreatedAt:   c.CreatedAt,
		ReviewedBy:  c.ReviewedBy,
		ReviewedAt:  c.ReviewedAt,
		Comment:     c.Comment,
		CurrentKeys: c.CurrentKeys,
		IsRollback:  c.IsRollback(),
	}
}

// List changes
type ListChangesRequest struct {
	Status    entity.ChangeStatus `json:"status"`
	Limit     int                 `json:"limit"`
	NextToken string              `json:"nextToken"`
}

type ListChangesResponse struct {
	Changes   []ChangeView `json:"changes"`
	NextToken string       `json:"nextToken,omitempty"`
}

// History
type HistoryRequest struct {
	Project   string `json:"project"`
	Env       string `json:"env"`
	Limit     int    `json:"limit"`
	NextToken string `json:"nextToken"`
}

type HistoryResponse struct {
	Project     string       `json:"project"`
	Env         string       `json:"env"`
	History     []ChangeView `json:"history"`
	CurrentKeys []string     `json:"currentKeys"`
	NextToken   string       `json:"nextToken,omitempty"`
}

// WorkflowUseCase is the change-request workflow exposed to transports
type WorkflowUseCase interface {
	Propose(ctx context.Context, req ProposeRequest) (*ProposeResponse, error)
	Approve(ctx context.Context, req ReviewRequest) (*ApproveResponse, error)
	Reject(ctx context.Context, req ReviewRequest) (*RejectResponse, error)
	Rollback(ctx context.Context, req RollbackRequest) (*RollbackResponse, error)
	Cleanup(ctx context.Context) (*CleanupResult, error)
	GetDiff(ctx context.Context, changeID string) (*ChangeView, error)
	ListChanges(ctx context.Context, req ListChangesRequest) (*ListChangesResponse, error)
	History(ctx context.Context, req HistoryRequest) (*HistoryResponse, error)
}
