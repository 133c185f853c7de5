package memory

import (
	"context"
	"iter"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/entity"
	"github.com/fixora/secret-review/domain/valueobject"
)

type stagingRecord struct {
	payload   entity.StagingPayload
	createdAt time.Time
}

// StagingStore keeps staging records in process memory, keyed by reference
type StagingStore struct {
	mu        sync.RWMutex
	namespace valueobject.StagingNamespace
	records   map[string]stagingRecord
	now       func() time.Time
}

func NewStagingStore(namespace valueobject.StagingNamespace) *StagingStore {
	return &StagingStore{
		namespace: namespace,
		records:   make(map[string]stagingRecord),
		now:       time.Now,
	}
}

// SetClock replaces the clock used to stamp new records
func (s *StagingStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *StagingStore) CreateStaging(ctx context.Context, changeID string, payload entity.StagingPayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reference := s.namespace.Reference(changeID)
	if _, exists := s.records[reference]; exists {
		return "", outbound.ErrStagingAlreadyExists
	}

	s.records[reference] = stagingRecord{
		payload:   copyPayload(payload),
		createdAt: s.now().UTC(),
	}
	return reference, nil
}

// Import stores a record under a raw reference, the way an outside writer
// could leave one in the namespace
func (s *StagingStore) Import(reference string, payload entity.StagingPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[reference] = stagingRecord{
		payload:   copyPayload(payload),
		createdAt: s.now().UTC(),
	}
}

func (s *StagingStore) ReadStaging(ctx context.Context, changeID string) (*entity.StagingPayload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[s.namespace.Reference(changeID)]
	if !ok {
		return nil, outbound.ErrStagingNotFound
	}
	payload := copyPayload(record.payload)
	return &payload, nil
}

func (s *StagingStore) DeleteStaging(ctx context.Context, changeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, s.namespace.Reference(changeID))
	return nil
}

func (s *StagingStore) DeleteReference(ctx context.Context, reference string) error {
	if !s.namespace.Contains(reference) {
		return valueobject.ErrReferenceNamespace
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, reference)
	return nil
}

// ListStaging yields a snapshot taken when iteration starts, ordered by reference
func (s *StagingStore) ListStaging(ctx context.Context) iter.Seq2[entity.StagingEntry, error] {
	return func(yield func(entity.StagingEntry, error) bool) {
		s.mu.RLock()
		entries := make([]entity.StagingEntry, 0, len(s.records))
		for reference, record := range s.records {
			entry := entity.StagingEntry{Reference: reference, CreatedAt: record.createdAt}
			if changeID, err := s.namespace.ChangeID(reference); err == nil {
				entry.ChangeID = changeID
			}
			entries = append(entries, entry)
		}
		s.mu.RUnlock()

		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Reference < entries[j].Reference
		})

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				yield(entity.StagingEntry{}, err)
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// Len returns the number of staging records held
func (s *StagingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func copyPayload(p entity.StagingPayload) entity.StagingPayload {
	return entity.StagingPayload{
		ProposedValues: maps.Clone(p.ProposedValues),
		BaselineValues: maps.Clone(p.BaselineValues),
		Project:        p.Project,
		Env:            p.Env,
	}
}
