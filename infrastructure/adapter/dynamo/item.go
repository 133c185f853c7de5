package dynamo

import (
	"time"

	"github.com/fixora/secret-review/domain/entity"
)

const (
	attrPK     = "PK"
	attrSK     = "SK"
	attrStatus = "status"

	changeIDIndex = "changeId-index"
	statusIndex   = "status-index"
)

// changeItem is the stored shape of a ledger record.
// PK = project#env, SK = createdAt#changeId; both GSIs project all attributes.
type changeItem struct {
	PK                          string             `dynamodbav:"PK"`
	SK                          string             `dynamodbav:"SK"`
	ChangeID                    string             `dynamodbav:"changeId"`
	Project                     string             `dynamodbav:"project"`
	Env                         string             `dynamodbav:"env"`
	Status                      string             `dynamodbav:"status"`
	ProposedBy                  string             `dynamodbav:"proposedBy"`
	Reason                      string             `dynamodbav:"reason"`
	Diff                        []entity.DiffEntry `dynamodbav:"diff"`
	DiffCount                   int                `dynamodbav:"diffCount"`
	StagingReference            string             `dynamodbav:"stagingReference,omitempty"`
	CreatedAt                   string             `dynamodbav:"createdAt"`
	ReviewedBy                  string             `dynamodbav:"reviewedBy,omitempty"`
	ReviewedAt                  string             `dynamodbav:"reviewedAt,omitempty"`
	Comment                     string             `dynamodbav:"comment,omitempty"`
	SecretVersionBeforeProposal string             `dynamodbav:"secretVersionBeforeProposal,omitempty"`
	SecretVersionBeforeApproval string             `dynamodbav:"secretVersionBeforeApproval,omitempty"`
	CurrentKeys                 []string           `dynamodbav:"currentKeys,omitempty"`
	ExpiresAt                   int64              `dynamodbav:"expiresAt,omitempty"`
}

func newChangeItem(r *entity.ChangeRequest, ttl time.Duration) changeItem {
	key := r.Key()
	item := changeItem{
		PK:                          key.PartitionKey(),
		SK:                          key.SortKey(),
		ChangeID:                    r.ChangeID,
		Project:                     r.Project,
		Env:                         r.Env,
		Status:                      string(r.Status),
		ProposedBy:                  r.ProposedBy,
		Reason:                      r.Reason,
		Diff:                        r.Diff,
		DiffCount:                   r.DiffCount,
		StagingReference:            r.StagingReference,
		CreatedAt:                   formatTime(r.CreatedAt),
		ReviewedBy:                  r.ReviewedBy,
		Comment:                     r.Comment,
		SecretVersionBeforeProposal: r.SecretVersionBeforeProposal,
		SecretVersionBeforeApproval: r.SecretVersionBeforeApproval,
		CurrentKeys:                 r.CurrentKeys,
	}
	if item.Diff == nil {
		item.Diff = []entity.DiffEntry{}
	}
	if r.ReviewedAt != nil {
		item.ReviewedAt = formatTime(*r.ReviewedAt)
	}
	switch {
	case r.ExpiresAt != nil:
		item.ExpiresAt = r.ExpiresAt.Unix()
	case ttl > 0:
		item.ExpiresAt = r.CreatedAt.Add(ttl).Unix()
	}
	return item
}

func (i changeItem) toEntity() (*entity.ChangeRequest, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, i.CreatedAt)
	if err != nil {
		return nil, err
	}

	record := &entity.ChangeRequest{
		ChangeID:                    i.ChangeID,
		Project:                     i.Project,
		Env:                         i.Env,
		Status:                      entity.ChangeStatus(i.Status),
		ProposedBy:                  i.ProposedBy,
		Reason:                      i.Reason,
		Diff:                        i.Diff,
		DiffCount:                   i.DiffCount,
		StagingReference:            i.StagingReference,
		CreatedAt:                   createdAt.UTC(),
		ReviewedBy:                  i.ReviewedBy,
		Comment:                     i.Comment,
		SecretVersionBeforeProposal: i.SecretVersionBeforeProposal,
		SecretVersionBeforeApproval: i.SecretVersionBeforeApproval,
		CurrentKeys:                 i.CurrentKeys,
	}
	if i.ReviewedAt != "" {
		reviewedAt, err := time.Parse(time.RFC3339Nano, i.ReviewedAt)
		if err != nil {
			return nil, err
		}
		reviewedAt = reviewedAt.UTC()
		record.ReviewedAt = &reviewedAt
	}
	if i.ExpiresAt > 0 {
		expiresAt := time.Unix(i.ExpiresAt, 0).UTC()
		record.ExpiresAt = &expiresAt
	}
	return record, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
