package entity

import (
	"fmt"
	"time"
)

// ChangeStatus represents the review state of a change request
type ChangeStatus string

const (
	ChangeStatusPending  ChangeStatus = "pending"
	ChangeStatusApproved ChangeStatus = "approved"
	ChangeStatusRejected ChangeStatus = "rejected"
)

func (s ChangeStatus) IsValid() bool {
	switch s {
	case ChangeStatusPending, ChangeStatusApproved, ChangeStatusRejected:
		return true
	}
	return false
}

func (s ChangeStatus) IsTerminal() bool {
	return s == ChangeStatusApproved || s == ChangeStatusRejected
}

// DiffType tags a single key-level change
type DiffType string

const (
	DiffTypeAdded    DiffType = "added"
	DiffTypeModified DiffType = "modified"
	DiffTypeRemoved  DiffType = "removed"
	DiffTypeRollback DiffType = "rollback"
)

// DiffEntry describes what happened to one key. It never carries values.
type DiffEntry struct {
	Type       DiffType `json:"type" dynamodbav:"type"`
	Key        string   `json:"key" dynamodbav:"key"`
	RollbackOf string   `json:"rollbackOf,omitempty" dynamodbav:"rollbackOf,omitempty"`
}

// RollbackMarker builds the single diff entry stored on rollback records.
func RollbackMarker(targetChangeID string) DiffEntry {
	return DiffEntry{
		Type:       DiffTypeRollback,
		Key:        fmt.Sprintf("[rollback of %s]", targetChangeID),
		RollbackOf: targetChangeID,
	}
}

// ChangeRequest is the auditable ledger record for one proposed or rollback mutation
type ChangeRequest struct {
	ChangeID                    string       `json:"changeId"`
	Project                     string       `json:"project"`
	Env                         string       `json:"env"`
	Status                      ChangeStatus `json:"status"`
	ProposedBy                  string       `json:"proposedBy"`
	Reason                      string       `json:"reason"`
	Diff                        []DiffEntry  `json:"diff"`
	DiffCount                   int          `json:"diffCount"`
	StagingReference            string       `json:"stagingReference,omitempty"`
	CreatedAt                   time.Time    `json:"createdAt"`
	ReviewedBy                  string       `json:"reviewedBy,omitempty"`
	ReviewedAt                  *time.Time   `json:"reviewedAt,omitempty"`
	Comment                     string       `json:"comment,omitempty"`
	SecretVersionBeforeProposal string       `json:"secretVersionBeforeProposal,omitempty"`
	SecretVersionBeforeApproval string       `json:"secretVersionBeforeApproval,omitempty"`
	CurrentKeys                 []string     `json:"currentKeys,omitempty"`
	ExpiresAt                   *time.Time   `json:"-"`
}

// NewChangeRequest creates a pending change request
func NewChangeRequest(changeID, project, env, proposedBy, reason, stagingReference, versionID string, diff []DiffEntry, now time.Time) *ChangeRequest {
	return &ChangeRequest{
		ChangeID:                    changeID,
		Project:                     project,
		Env:                         env,
		Status:                      ChangeStatusPending,
		ProposedBy:                  proposedBy,
		Reason:                      reason,
		Diff:                        diff,
		DiffCount:                   len(diff),
		StagingReference:            stagingReference,
		CreatedAt:                   now.UTC(),
		SecretVersionBeforeProposal: versionID,
	}
}

// NewRollbackRecord mints an already-approved record for a rollback of target.
// The actor is both proposer and reviewer.
func NewRollbackRecord(rollbackID string, target *ChangeRequest, actor, reason string, priorKeys []string, now time.Time) *ChangeRequest {
	reviewedAt := now.UTC()
	return &ChangeRequest{
		ChangeID:    rollbackID,
		Project:     target.Project,
		Env:         target.Env,
		Status:      ChangeStatusApproved,
		ProposedBy:  actor,
		Reason:      "Rollback: " + reason,
		Diff:        []DiffEntry{RollbackMarker(target.ChangeID)},
		DiffCount:   1,
		CreatedAt:   reviewedAt,
		ReviewedBy:  actor,
		ReviewedAt:  &reviewedAt,
		CurrentKeys: priorKeys,
	}
}

func (c *ChangeRequest) IsPending() bool {
	return c.Status == ChangeStatusPending
}

func (c *ChangeRequest) IsRollback() bool {
	return len(c.Diff) == 1 && c.Diff[0].Type == DiffTypeRollback
}

// Key returns the ledger primary key of the record
func (c *ChangeRequest) Key() RecordKey {
	return RecordKey{
		Project:   c.Project,
		Env:       c.Env,
		CreatedAt: c.CreatedAt,
		ChangeID:  c.ChangeID,
	}
}

// ApplyReview moves the record to the outcome's terminal status.
func (c *ChangeRequest) ApplyReview(outcome ReviewOutcome) {
	reviewedAt := outcome.ReviewedAt.UTC()
	c.Status = outcome.Status
	c.ReviewedBy = outcome.ReviewedBy
	c.ReviewedAt = &reviewedAt
	if outcome.Comment != "" {
		c.Comment = outcome.Comment
	}
	if outcome.SecretVersionBeforeApproval != "" {
		c.SecretVersionBeforeApproval = outcome.SecretVersionBeforeApproval
	}
	if outcome.CurrentKeys != nil {
		c.CurrentKeys = outcome.CurrentKeys
	}
}

// RecordKey identifies a ledger record: partition project#env, sort createdAt#changeId
type RecordKey struct {
	Project   string
	Env       string
	CreatedAt time.Time
	ChangeID  string
}

func (k RecordKey) PartitionKey() string {
	return PartitionKey(k.Project, k.Env)
}

// SortKeyTimeLayout is fixed width so sort keys order lexicographically
const SortKeyTimeLayout = "2006-01-02T15:04:05.000000000Z"

func (k RecordKey) SortKey() string {
	return SortKey(k.CreatedAt, k.ChangeID)
}

func SortKey(createdAt time.Time, changeID string) string {
	return createdAt.UTC().Format(SortKeyTimeLayout) + "#" + changeID
}

func PartitionKey(project, env string) string {
	return project + "#" + env
}

// ReviewOutcome carries the fields written by a terminal status transition
type ReviewOutcome struct {
	Status                      ChangeStatus
	ReviewedBy                  string
	ReviewedAt                  time.Time
	Comment                     string
	SecretVersionBeforeApproval string
	CurrentKeys                 []string
}
