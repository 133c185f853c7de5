package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/secret-review/application/port/inbound"
	"github.com/fixora/secret-review/domain/entity"
	"github.com/fixora/secret-review/domain/valueobject"
	"github.com/fixora/secret-review/infrastructure/adapter/memory"
)

type cliHarness struct {
	app     *app
	out     *bytes.Buffer
	staging *memory.StagingStore
	dir     string
}

func newHarness(t *testing.T) *cliHarness {
	t.Helper()
	dir := t.TempDir()
	staging := memory.NewStagingStore(valueobject.NewStagingNamespace(""))
	out := &bytes.Buffer{}
	return &cliHarness{
		app: &app{
			out:     out,
			staging: func(cliConfig) stagingWriter { return staging },
		},
		out:     out,
		staging: staging,
		dir:     dir,
	}
}

func (h *cliHarness) run(args ...string) error {
	cmd := newRootCmd(h.app)
	cmd.SetArgs(append([]string{"--config", filepath.Join(h.dir, "config.json")}, args...))
	cmd.SetOut(h.out)
	cmd.SetErr(h.out)
	return cmd.Execute()
}

func (h *cliHarness) configure(t *testing.T, apiURL string) {
	t.Helper()
	require.NoError(t, h.run("configure", "--api-url", apiURL, "--token", "tok"))
	h.out.Reset()
}

func (h *cliHarness) writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writeEnvelope(w http.ResponseWriter, status int, ok bool, message, code string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  ok,
		"message": message,
		"code":    code,
		"data":    data,
	})
}

func TestConfigure_WritesOwnerOnlyFile(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("configure", "--api-url", "https://api.example.com/", "--token", "abc"))

	info, err := os.Stat(filepath.Join(h.dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := loadConfig(filepath.Join(h.dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/", cfg.APIURL)
	assert.Equal(t, "abc", cfg.Token)
}

func TestConfigure_RequiresBothOnFirstRun(t *testing.T) {
	h := newHarness(t)

	err := h.run("configure", "--token", "abc")

	assert.Error(t, err)
}

func TestCommands_RequireConfiguration(t *testing.T) {
	h := newHarness(t)

	err := h.run("status")

	assert.ErrorIs(t, err, errNotConfigured)
}

func TestPropose_DryRunMasksValues(t *testing.T) {
	h := newHarness(t)
	env := h.writeEnv(t, "DB_PASSWORD=supersecretvalue\nPORT=8080\n")

	require.NoError(t, h.run("propose", "-p", "api", "-e", "prod", "-r", "rotate", "-f", env, "--dry-run"))

	out := h.out.String()
	assert.Contains(t, out, "DB_PASSWORD=")
	assert.Contains(t, out, "PORT=")
	assert.NotContains(t, out, "supersecretvalue")
	assert.Equal(t, 0, h.staging.Len())
}

func TestPropose_CreatesStagingAndPrintsDiff(t *testing.T) {
	h := newHarness(t)
	var got inbound.ProposeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/changes", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEnvelope(w, http.StatusCreated, true, "Change proposed", "", inbound.ProposeResponse{
			ChangeID: "c-1",
			Diff: []entity.DiffEntry{
				{Type: entity.DiffTypeAdded, Key: "NEW_KEY"},
				{Type: entity.DiffTypeModified, Key: "DB_URL"},
				{Type: entity.DiffTypeRemoved, Key: "OLD"},
			},
		})
	}))
	defer srv.Close()
	h.configure(t, srv.URL)
	env := h.writeEnv(t, "NEW_KEY=v\nDB_URL=postgres://x\n")

	require.NoError(t, h.run("propose", "-p", "api", "-e", "prod", "-r", "rotate", "-f", env))

	assert.Equal(t, "api", got.Project)
	assert.Equal(t, "prod", got.Env)
	assert.Equal(t, "rotate", got.Reason)
	assert.Contains(t, got.StagingSecretName, valueobject.DefaultStagingPrefix)
	assert.Equal(t, 1, h.staging.Len())

	out := h.out.String()
	assert.Contains(t, out, "c-1")
	assert.Contains(t, out, "+ NEW_KEY")
	assert.Contains(t, out, "~ DB_URL")
	assert.Contains(t, out, "- OLD")
	assert.NotContains(t, out, "postgres://x")
}

func TestPropose_NoChangeRemovesStaging(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "No changes detected", "", inbound.ProposeResponse{NoChange: true, Diff: []entity.DiffEntry{}})
	}))
	defer srv.Close()
	h.configure(t, srv.URL)
	env := h.writeEnv(t, "A=1\n")

	require.NoError(t, h.run("propose", "-p", "api", "-e", "prod", "-r", "noop", "-f", env))

	assert.Contains(t, h.out.String(), "No changes detected")
	assert.Equal(t, 0, h.staging.Len())
}

func TestPropose_APIFailureRemovesStaging(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusBadRequest, false, "Unknown project or environment", "VALID_2002", nil)
	}))
	defer srv.Close()
	h.configure(t, srv.URL)
	env := h.writeEnv(t, "A=1\n")

	err := h.run("propose", "-p", "nope", "-e", "prod", "-r", "x", "-f", env)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "VALID_2002", apiErr.Code)
	assert.Equal(t, 0, h.staging.Len())
}

func TestClient_UnauthorizedReportsExpiredAuth(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, false, "Token expired", "AUTH_1002", nil)
	}))
	defer srv.Close()
	h.configure(t, srv.URL)

	err := h.run("approve", "c-1")

	assert.ErrorIs(t, err, errAuthExpired)
}

func TestApprove_SendsComment(t *testing.T) {
	h := newHarness(t)
	var body inbound.ReviewRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/changes/c-1/approve", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeEnvelope(w, http.StatusOK, true, "Change approved and applied", "", inbound.ApproveResponse{
			ChangeID: "c-1", Project: "api", Env: "prod", Status: entity.ChangeStatusApproved,
		})
	}))
	defer srv.Close()
	h.configure(t, srv.URL)

	require.NoError(t, h.run("approve", "c-1", "--comment", "lgtm"))

	assert.Equal(t, "lgtm", body.Comment)
	assert.Contains(t, h.out.String(), "applied to api/prod")
}

func TestPull_PrintsKeysAndWritesTemplate(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/history/api/prod", r.URL.Path)
		writeEnvelope(w, http.StatusOK, true, "OK", "", inbound.HistoryResponse{
			Project: "api", Env: "prod", History: []inbound.ChangeView{}, CurrentKeys: []string{"API_KEY", "DB_URL"},
		})
	}))
	defer srv.Close()
	h.configure(t, srv.URL)

	require.NoError(t, h.run("pull", "-p", "api", "-e", "prod"))
	assert.Equal(t, "API_KEY\nDB_URL\n", h.out.String())

	target := filepath.Join(h.dir, "template.env")
	require.NoError(t, h.run("pull", "-p", "api", "-e", "prod", "-o", target))
	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "API_KEY=\nDB_URL=\n", string(raw))
}

func TestStatus_ListsPendingChanges(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		writeEnvelope(w, http.StatusOK, true, "OK", "", inbound.ListChangesResponse{
			Changes: []inbound.ChangeView{{ChangeID: "c-9", Project: "api", Env: "dev", Status: entity.ChangeStatusPending, ProposedBy: "alice", DiffCount: 2}},
		})
	}))
	defer srv.Close()
	h.configure(t, srv.URL)

	require.NoError(t, h.run("status"))

	out := h.out.String()
	assert.Contains(t, out, "c-9")
	assert.Contains(t, out, "api/dev")
	assert.Contains(t, out, "alice")
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "", maskValue(""))
	assert.NotEqual(t, "abc", maskValue("abc"))
	assert.NotContains(t, maskValue("correct-horse-battery"), "horse")
}

func TestPropose_EmptyFileStopsBeforeStaging(t *testing.T) {
	h := newHarness(t)
	posted := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posted++
		writeEnvelope(w, http.StatusCreated, true, "Change proposed", "", inbound.ProposeResponse{ChangeID: "x"})
	}))
	defer srv.Close()
	h.configure(t, srv.URL)

	tests := []struct {
		name    string
		content string
		args    []string
	}{
		{"comments only", "# nothing here\n", nil},
		{"empty file", "", nil},
		{"dry run", "# nothing\n", []string{"--dry-run"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := h.writeEnv(t, tt.content)
			args := append([]string{"propose", "-p", "api", "-e", "prod", "-r", "oops", "-f", env}, tt.args...)

			err := h.run(args...)

			assert.ErrorIs(t, err, errNoVariables)
			assert.Zero(t, posted)
			assert.Equal(t, 0, h.staging.Len())
		})
	}
}

func TestPropose_RecordsBaselineWithLiveAccess(t *testing.T) {
	h := newHarness(t)
	live := memory.NewLiveSecretStore()
	target, err := valueobject.NewTarget("api", "prod")
	require.NoError(t, err)
	require.NoError(t, live.WriteCurrent(context.Background(), target, map[string]string{"DB_URL": "old"}))
	h.app.live = func(cliConfig) liveReader { return live }

	var got inbound.ProposeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEnvelope(w, http.StatusCreated, true, "Change proposed", "", inbound.ProposeResponse{
			ChangeID: "c-2",
			Diff:     []entity.DiffEntry{{Type: entity.DiffTypeModified, Key: "DB_URL"}},
		})
	}))
	defer srv.Close()
	h.configure(t, srv.URL)
	env := h.writeEnv(t, "DB_URL=new\n")

	require.NoError(t, h.run("propose", "-p", "api", "-e", "prod", "-r", "rotate", "-f", env))

	changeID, err := valueobject.NewStagingNamespace("").ChangeID(got.StagingSecretName)
	require.NoError(t, err)
	payload, err := h.staging.ReadStaging(context.Background(), changeID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"DB_URL": "new"}, payload.ProposedValues)
	assert.Equal(t, map[string]string{"DB_URL": "old"}, payload.BaselineValues)
}

func TestPropose_NoBaselineWithoutLiveAccess(t *testing.T) {
	h := newHarness(t)
	h.app.live = func(cliConfig) liveReader { return nil }
	var got inbound.ProposeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEnvelope(w, http.StatusCreated, true, "Change proposed", "", inbound.ProposeResponse{ChangeID: "c-3"})
	}))
	defer srv.Close()
	h.configure(t, srv.URL)
	env := h.writeEnv(t, "A=1\n")

	require.NoError(t, h.run("propose", "-p", "api", "-e", "prod", "-r", "add", "-f", env))

	changeID, err := valueobject.NewStagingNamespace("").ChangeID(got.StagingSecretName)
	require.NoError(t, err)
	payload, err := h.staging.ReadStaging(context.Background(), changeID)
	require.NoError(t, err)
	assert.Empty(t, payload.BaselineValues)
}
