package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/entity"
	"github.com/fixora/secret-review/domain/valueobject"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedLedger(t *testing.T, ledger *ChangeLedger, n int) []*entity.ChangeRequest {
	t.Helper()
	records := make([]*entity.ChangeRequest, 0, n)
	for i := 0; i < n; i++ {
		record := entity.NewChangeRequest(
			fmt.Sprintf("change-%02d", i), "api", "prod", "alice@example.com", "rotate",
			"", "v1", []entity.DiffEntry{{Type: entity.DiffTypeAdded, Key: "K"}},
			baseTime.Add(time.Duration(i)*time.Second),
		)
		require.NoError(t, ledger.Put(context.Background(), record))
		records = append(records, record)
	}
	return records
}

func TestChangeLedger_PutAndGet(t *testing.T) {
	ledger := NewChangeLedger()
	records := seedLedger(t, ledger, 1)

	got, err := ledger.GetByID(context.Background(), records[0].ChangeID)
	require.NoError(t, err)
	assert.Equal(t, records[0].ChangeID, got.ChangeID)
	assert.Equal(t, entity.ChangeStatusPending, got.Status)

	_, err = ledger.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, outbound.ErrChangeNotFound)

	err = ledger.Put(context.Background(), records[0])
	assert.ErrorIs(t, err, outbound.ErrChangeAlreadyExists)
}

func TestChangeLedger_GetReturnsCopy(t *testing.T) {
	ledger := NewChangeLedger()
	records := seedLedger(t, ledger, 1)

	got, err := ledger.GetByID(context.Background(), records[0].ChangeID)
	require.NoError(t, err)
	got.Status = entity.ChangeStatusApproved
	got.Diff[0].Key = "MUTATED"

	again, err := ledger.GetByID(context.Background(), records[0].ChangeID)
	require.NoError(t, err)
	assert.Equal(t, entity.ChangeStatusPending, again.Status)
	assert.Equal(t, "K", again.Diff[0].Key)
}

func TestChangeLedger_PaginationIsStable(t *testing.T) {
	ledger := NewChangeLedger()
	seedLedger(t, ledger, 7)
	target := valueobject.Target{Project: "api", Env: "prod"}

	var seen []string
	cursor := ""
	pages := 0
	for {
		page, err := ledger.QueryByProjectEnv(context.Background(), target, 3, cursor)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(page.Records), 3)
		for _, r := range page.Records {
			seen = append(seen, r.ChangeID)
		}
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{
		"change-06", "change-05", "change-04",
		"change-03", "change-02", "change-01",
		"change-00",
	}, seen)
}

func TestChangeLedger_QueryFiltersByTargetAndStatus(t *testing.T) {
	ledger := NewChangeLedger()
	seedLedger(t, ledger, 2)
	other := entity.NewChangeRequest("other", "web", "dev", "bob", "r", "", "", nil, baseTime)
	require.NoError(t, ledger.Put(context.Background(), other))

	page, err := ledger.QueryByProjectEnv(context.Background(), valueobject.Target{Project: "web", Env: "dev"}, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "other", page.Records[0].ChangeID)

	page, err = ledger.QueryByStatus(context.Background(), entity.ChangeStatusApproved, 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.Empty(t, page.NextCursor)
}

func TestChangeLedger_InvalidCursor(t *testing.T) {
	ledger := NewChangeLedger()

	_, err := ledger.QueryByStatus(context.Background(), entity.ChangeStatusPending, 10, "%%%")
	assert.ErrorIs(t, err, outbound.ErrInvalidCursor)
}

func TestChangeLedger_UpdateStatusIsConditional(t *testing.T) {
	ledger := NewChangeLedger()
	records := seedLedger(t, ledger, 1)
	key := records[0].Key()

	err := ledger.UpdateStatus(context.Background(), key, entity.ReviewOutcome{
		Status:      entity.ChangeStatusApproved,
		ReviewedBy:  "bob",
		ReviewedAt:  baseTime.Add(time.Hour),
		CurrentKeys: []string{"K"},
	})
	require.NoError(t, err)

	err = ledger.UpdateStatus(context.Background(), key, entity.ReviewOutcome{
		Status:     entity.ChangeStatusRejected,
		ReviewedBy: "carol",
		ReviewedAt: baseTime.Add(2 * time.Hour),
	})
	assert.ErrorIs(t, err, outbound.ErrStatusPreconditionFailed)

	got, err := ledger.GetByID(context.Background(), key.ChangeID)
	require.NoError(t, err)
	assert.Equal(t, entity.ChangeStatusApproved, got.Status)
	assert.Equal(t, "bob", got.ReviewedBy)
	assert.Equal(t, []string{"K"}, got.CurrentKeys)
}

func TestChangeLedger_UpdateStatusUnknownKey(t *testing.T) {
	ledger := NewChangeLedger()
	records := seedLedger(t, ledger, 1)

	key := records[0].Key()
	key.Env = "staging"
	err := ledger.UpdateStatus(context.Background(), key, entity.ReviewOutcome{Status: entity.ChangeStatusRejected})
	assert.ErrorIs(t, err, outbound.ErrChangeNotFound)
}
