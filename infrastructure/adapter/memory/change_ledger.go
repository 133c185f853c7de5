package memory

import (
	"context"
	"encoding/base64"
	"slices"
	"sort"
	"sync"

	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/entity"
	"github.com/fixora/secret-review/domain/valueobject"
)

const defaultQueryLimit = 20

// ChangeLedger is an in-memory ledger with the same conditional update
// and cursor semantics as the persistent backends.
type ChangeLedger struct {
	mu      sync.RWMutex
	records map[string]*entity.ChangeRequest
}

func NewChangeLedger() *ChangeLedger {
	return &ChangeLedger{
		records: make(map[string]*entity.ChangeRequest),
	}
}

func (l *ChangeLedger) Put(ctx context.Context, record *entity.ChangeRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.records[record.ChangeID]; exists {
		return outbound.ErrChangeAlreadyExists
	}
	l.records[record.ChangeID] = cloneRecord(record)
	return nil
}

func (l *ChangeLedger) GetByID(ctx context.Context, changeID string) (*entity.ChangeRequest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.records[changeID]
	if !ok {
		return nil, outbound.ErrChangeNotFound
	}
	return cloneRecord(record), nil
}

func (l *ChangeLedger) QueryByProjectEnv(ctx context.Context, target valueobject.Target, limit int, cursor string) (*outbound.Page, error) {
	return l.query(limit, cursor, func(r *entity.ChangeRequest) bool {
		return r.Project == target.Project && r.Env == target.Env
	})
}

func (l *ChangeLedger) QueryByStatus(ctx context.Context, status entity.ChangeStatus, limit int, cursor string) (*outbound.Page, error) {
	return l.query(limit, cursor, func(r *entity.ChangeRequest) bool {
		return r.Status == status
	})
}

func (l *ChangeLedger) UpdateStatus(ctx context.Context, key entity.RecordKey, outcome entity.ReviewOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[key.ChangeID]
	if !ok || record.Key().PartitionKey() != key.PartitionKey() || record.Key().SortKey() != key.SortKey() {
		return outbound.ErrChangeNotFound
	}
	if !record.IsPending() {
		return outbound.ErrStatusPreconditionFailed
	}
	record.ApplyReview(outcome)
	return nil
}

func (l *ChangeLedger) Ping(ctx context.Context) error {
	return nil
}

func (l *ChangeLedger) query(limit int, cursor string, match func(*entity.ChangeRequest) bool) (*outbound.Page, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	after := ""
	if cursor != "" {
		raw, err := base64.RawURLEncoding.DecodeString(cursor)
		if err != nil || len(raw) == 0 {
			return nil, outbound.ErrInvalidCursor
		}
		after = string(raw)
	}

	l.mu.RLock()
	matched := make([]*entity.ChangeRequest, 0)
	for _, record := range l.records {
		if match(record) {
			matched = append(matched, cloneRecord(record))
		}
	}
	l.mu.RUnlock()

	// newest first
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Key().SortKey() > matched[j].Key().SortKey()
	})

	page := &outbound.Page{Records: make([]*entity.ChangeRequest, 0, limit)}
	for _, record := range matched {
		sortKey := record.Key().SortKey()
		if after != "" && sortKey >= after {
			continue
		}
		if len(page.Records) == limit {
			last := page.Records[len(page.Records)-1]
			page.NextCursor = base64.RawURLEncoding.EncodeToString([]byte(last.Key().SortKey()))
			break
		}
		page.Records = append(page.Records, record)
	}
	return page, nil
}

func cloneRecord(r *entity.ChangeRequest) *entity.ChangeRequest {
	c := *r
	c.Diff = slices.Clone(r.Diff)
	c.CurrentKeys = slices.Clone(r.CurrentKeys)
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		c.ReviewedAt = &t
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}
