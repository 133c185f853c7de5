package workflow

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/secret-review/application/port/inbound"
	"github.com/fixora/secret-review/domain/entity"
	domainerr "github.com/fixora/secret-review/domain/error"
	"github.com/fixora/secret-review/domain/valueobject"
	"github.com/fixora/secret-review/infrastructure/adapter/memory"
)

var testBase = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	staging *memory.StagingStore
	live    *memory.LiveSecretStore
	ledger  *memory.ChangeLedger
	metrics *recordingMetrics
	ns      valueobject.StagingNamespace
	target  valueobject.Target
	now     time.Time
	uc      inbound.WorkflowUseCase
}

func newFixture(t *testing.T, configure ...func(f *fixture, deps *Dependencies, opts *Options)) *fixture {
	t.Helper()

	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		ns:     valueobject.NewStagingNamespace(""),
		target: valueobject.Target{Project: "backend-api", Env: "production"},
		now:    testBase,
	}
	f.staging = memory.NewStagingStore(f.ns)
	f.staging.SetClock(f.clock)
	f.live = memory.NewLiveSecretStore()
	f.ledger = memory.NewChangeLedger()
	f.metrics = &recordingMetrics{}

	deps := Dependencies{
		Staging: f.staging,
		Live:    f.live,
		Ledger:  f.ledger,
		Metrics: f.metrics,
	}
	opts := Options{
		Targets: valueobject.NewTargetRegistry(map[string][]string{
			"backend-api": {"production", "staging"},
		}),
		Namespace:           f.ns,
		PreventSelfApproval: true,
		Now:                 f.clock,
	}
	for _, c := range configure {
		c(f, &deps, &opts)
	}

	f.uc = NewWorkflowUseCase(deps, opts)
	return f
}

func (f *fixture) clock() time.Time {
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) seedLive(values map[string]string) {
	f.t.Helper()
	require.NoError(f.t, f.live.WriteCurrent(f.ctx, f.target, values))
}

func (f *fixture) liveValues() map[string]string {
	f.t.Helper()
	current, err := f.live.ReadCurrent(f.ctx, f.target)
	require.NoError(f.t, err)
	return current.Values
}

func (f *fixture) stage(values map[string]string) (string, string) {
	f.t.Helper()
	id := uuid.NewString()
	ref, err := f.staging.CreateStaging(f.ctx, id, entity.StagingPayload{
		ProposedValues: values,
		Project:        f.target.Project,
		Env:            f.target.Env,
	})
	require.NoError(f.t, err)
	return id, ref
}

func (f *fixture) propose(values map[string]string, actor string) string {
	f.t.Helper()
	_, ref := f.stage(values)
	resp, err := f.uc.Propose(f.ctx, inbound.ProposeRequest{
		Project:           f.target.Project,
		Env:               f.target.Env,
		StagingSecretName: ref,
		Reason:            "rotate credentials",
		ProposedBy:        actor,
	})
	require.NoError(f.t, err)
	require.False(f.t, resp.NoChange)
	f.advance(time.Second)
	return resp.ChangeID
}

func (f *fixture) approve(changeID, reviewer string) {
	f.t.Helper()
	_, err := f.uc.Approve(f.ctx, inbound.ReviewRequest{ChangeID: changeID, Reviewer: reviewer})
	require.NoError(f.t, err)
	f.advance(time.Second)
}

func (f *fixture) record(changeID string) *entity.ChangeRequest {
	f.t.Helper()
	record, err := f.ledger.GetByID(f.ctx, changeID)
	require.NoError(f.t, err)
	return record
}

func (f *fixture) hasStaging(changeID string) bool {
	_, err := f.staging.ReadStaging(f.ctx, changeID)
	return err == nil
}

func assertCode(t *testing.T, err error, code domainerr.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, domainerr.HasCode(err, code), "expected %s, got %v", code, err)
}

type recordingMetrics struct {
	mu         sync.Mutex
	operations []string
	deleted    int
	failed     int
}

func (m *recordingMetrics) ObserveOperation(operation, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations = append(m.operations, operation+":"+outcome)
}

func (m *recordingMetrics) ObserveCleanup(deleted, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted += deleted
	m.failed += failed
}

// flakyLedger fails the next n status updates
type flakyLedger struct {
	*memory.ChangeLedger
	failures int
}

func (l *flakyLedger) UpdateStatus(ctx context.Context, key entity.RecordKey, outcome entity.ReviewOutcome) error {
	if l.failures > 0 {
		l.failures--
		return errors.New("provisioned throughput exceeded")
	}
	return l.ChangeLedger.UpdateStatus(ctx, key, outcome)
}

// racingLedger runs beforeUpdate once, right before the next status update
type racingLedger struct {
	*memory.ChangeLedger
	beforeUpdate func()
}

func (l *racingLedger) UpdateStatus(ctx context.Context, key entity.RecordKey, outcome entity.ReviewOutcome) error {
	if fn := l.beforeUpdate; fn != nil {
		l.beforeUpdate = nil
		fn()
	}
	return l.ChangeLedger.UpdateStatus(ctx, key, outcome)
}

type faultyStaging struct {
	*memory.StagingStore
	failDelete string
	listErr    error
}

func (s *faultyStaging) DeleteStaging(ctx context.Context, changeID string) error {
	if changeID == s.failDelete {
		return errors.New("access denied")
	}
	return s.StagingStore.DeleteStaging(ctx, changeID)
}

func (s *faultyStaging) ListStaging(ctx context.Context) iter.Seq2[entity.StagingEntry, error] {
	if s.listErr != nil {
		return func(yield func(entity.StagingEntry, error) bool) {
			yield(entity.StagingEntry{}, s.listErr)
		}
	}
	return s.StagingStore.ListStaging(ctx)
}

type faultyLive struct {
	*memory.LiveSecretStore
	writeErr error
}

func (l *faultyLive) WriteCurrent(ctx context.Context, target valueobject.Target, values map[string]string) error {
	if l.writeErr != nil {
		return l.writeErr
	}
	return l.LiveSecretStore.WriteCurrent(ctx, target, values)
}
