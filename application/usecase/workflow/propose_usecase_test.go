package workflow

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/secret-review/application/port/inbound"
	"github.com/fixora/secret-review/domain/entity"
	domainerr "github.com/fixora/secret-review/domain/error"
)

func TestPropose_CreatesPendingRecord(t *testing.T) {
	f := newFixture(t)
	f.seedLive(map[string]string{"DB_URL": "old"})
	before, err := f.live.ReadCurrent(f.ctx, f.target)
	require.NoError(t, err)

	id, ref := f.stage(map[string]string{"DB_URL": "new", "NEW_KEY": "v"})
	resp, err := f.uc.Propose(f.ctx, inbound.ProposeRequest{
		Project:           "backend-api",
		Env:               "production",
		StagingSecretName: ref,
		Reason:            "rotate db password",
		ProposedBy:        alice,
	})
	require.NoError(t, err)

	assert.Equal(t, id, resp.ChangeID)
	assert.False(t, resp.NoChange)
	assert.Equal(t, []entity.DiffEntry{
		{Type: entity.DiffTypeModified, Key: "DB_URL"},
		{Type: entity.DiffTypeAdded, Key: "NEW_KEY"},
	}, resp.Diff)

	record := f.record(id)
	assert.Equal(t, entity.ChangeStatusPending, record.Status)
	assert.Equal(t, alice, record.ProposedBy)
	assert.Equal(t, "rotate db password", record.Reason)
	assert.Equal(t, 2, record.DiffCount)
	assert.Equal(t, ref, record.StagingReference)
	assert.Equal(t, before.VersionID, record.SecretVersionBeforeProposal)
	assert.Equal(t, testBase, record.CreatedAt)
	assert.Nil(t, record.ReviewedAt)

	// proposing never touches the live secret
	assert.Equal(t, map[string]string{"DB_URL": "old"}, f.liveValues())
	assert.Equal(t, []string{"propose:success"}, f.metrics.operations)
}

func TestPropose_NoChange(t *testing.T) {
	f := newFixture(t)
	f.seedLive(map[string]string{"DB_URL": "same"})

	_, ref := f.stage(map[string]string{"DB_URL": "same"})
	resp, err := f.uc.Propose(f.ctx, inbound.ProposeRequest{
		Project:           "backend-api",
		Env:               "production",
		StagingSecretName: ref,
		Reason:            "noop",
		ProposedBy:        alice,
	})
	require.NoError(t, err)
	assert.True(t, resp.NoChange)
	assert.Empty(t, resp.ChangeID)
	assert.Empty(t, resp.Diff)

	page, err := f.ledger.QueryByProjectEnv(f.ctx, f.target, 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.Records)
}

func TestPropose_FirstProposalAgainstMissingSecret(t *testing.T) {
	f := newFixture(t)

	id := f.propose(map[string]string{"API_KEY": "k"}, alice)

	record := f.record(id)
	assert.Empty(t, record.SecretVersionBeforeProposal)
	assert.Equal(t, []entity.DiffEntry{{Type: entity.DiffTypeAdded, Key: "API_KEY"}}, record.Diff)
}

func TestPropose_Validation(t *testing.T) {
	f := newFixture(t)
	_, ref := f.stage(map[string]string{"A": "1"})

	tests := []struct {
		name string
		req  inbound.ProposeRequest
		code domainerr.ErrorCode
	}{
		{
			name: "unknown environment",
			req:  inbound.ProposeRequest{Project: "backend-api", Env: "qa", StagingSecretName: ref, Reason: "r", ProposedBy: alice},
			code: domainerr.ErrCodeInvalidTarget,
		},
		{
			name: "unknown project",
			req:  inbound.ProposeRequest{Project: "billing", Env: "production", StagingSecretName: ref, Reason: "r", ProposedBy: alice},
			code: domainerr.ErrCodeInvalidTarget,
		},
		{
			name: "reference outside staging namespace",
			req:  inbound.ProposeRequest{Project: "backend-api", Env: "production", StagingSecretName: "backend-api/production", Reason: "r", ProposedBy: alice},
			code: domainerr.ErrCodeInvalidReference,
		},
		{
			name: "reference without change id",
			req:  inbound.ProposeRequest{Project: "backend-api", Env: "production", StagingSecretName: f.ns.Reference("not-a-uuid"), Reason: "r", ProposedBy: alice},
			code: domainerr.ErrCodeInvalidReference,
		},
		{
			name: "missing staging record",
			req:  inbound.ProposeRequest{Project: "backend-api", Env: "production", StagingSecretName: f.ns.Reference(uuid.NewString()), Reason: "r", ProposedBy: alice},
			code: domainerr.ErrCodeStagingNotFound,
		},
		{
			name: "staging for another environment",
			req:  inbound.ProposeRequest{Project: "backend-api", Env: "staging", StagingSecretName: ref, Reason: "r", ProposedBy: alice},
			code: domainerr.ErrCodeTargetMismatch,
		},
		{
			name: "missing reason",
			req:  inbound.ProposeRequest{Project: "backend-api", Env: "production", StagingSecretName: ref, Reason: "  ", ProposedBy: alice},
			code: domainerr.ErrCodeInvalidRequest,
		},
		{
			name: "missing actor",
			req:  inbound.ProposeRequest{Project: "backend-api", Env: "production", StagingSecretName: ref, Reason: "r"},
			code: domainerr.ErrCodeUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.uc.Propose(f.ctx, tt.req)
			assertCode(t, err, tt.code)
		})
	}

	page, err := f.ledger.QueryByStatus(f.ctx, entity.ChangeStatusPending, 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.Records)
}

func TestPropose_StagingRecordBacksOneChange(t *testing.T) {
	f := newFixture(t)
	_, ref := f.stage(map[string]string{"A": "1"})
	req := inbound.ProposeRequest{
		Project:           "backend-api",
		Env:               "production",
		StagingSecretName: ref,
		Reason:            "r",
		ProposedBy:        alice,
	}

	_, err := f.uc.Propose(f.ctx, req)
	require.NoError(t, err)

	_, err = f.uc.Propose(f.ctx, req)
	assertCode(t, err, domainerr.ErrCodeInvalidState)
}
