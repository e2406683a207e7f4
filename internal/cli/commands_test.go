package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gigledger/internal/engine"
	"github.com/roach88/gigledger/internal/ledger"
	"github.com/roach88/gigledger/internal/remote"
	"github.com/roach88/gigledger/internal/statusapi"
	"github.com/roach88/gigledger/internal/store"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "ledger.db")
}

// decodeData unmarshals the data field of a JSON CLI response into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func addExpense(t *testing.T, db, name string) RecordView {
	t.Helper()
	payload := `{"date":"2026-10-14","name":"` + name + `","category":"fuel","amount":"40"}`
	out, err := execute(t, "", "--db", db, "--format", "json", "record", "add", "expenses", payload)
	require.NoError(t, err)
	var v RecordView
	decodeData(t, out, &v)
	return v
}

func TestRecordAddAndPending(t *testing.T) {
	db := tempDB(t)
	v := addExpense(t, db, "gas")
	assert.Equal(t, ledger.Expenses, v.Collection)
	assert.Equal(t, int64(1), v.Seq)
	assert.Equal(t, store.PendingCreate, v.State)
	assert.NotEmpty(t, v.LocalID)

	out, err := execute(t, "", "--db", db, "--format", "json", "pending")
	require.NoError(t, err)
	var pending PendingResult
	decodeData(t, out, &pending)
	assert.Equal(t, 1, pending.Total)
	assert.Equal(t, 1, pending.Collections[ledger.Expenses])
	assert.Equal(t, 0, pending.Collections[ledger.Trips])
}

func TestRecordAddFromStdin(t *testing.T) {
	db := tempDB(t)
	out, err := execute(t, `{"date":"2026-10-14","name":"oil","amount":"25.50"}`,
		"--db", db, "record", "add", "expenses", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Created expenses")
	assert.Contains(t, out, "(seq 1, pending_create)")
}

func TestRecordAddTripComputesTotal(t *testing.T) {
	db := tempDB(t)
	payload := `{"key":"2026-10-14-1-uber","date":"2026-10-14","service":"uber","number":1,"pay":"10","tip":"3.5","bonus":"1"}`
	out, err := execute(t, "", "--db", db, "--format", "json", "record", "add", "trips", payload)
	require.NoError(t, err)

	var v RecordView
	decodeData(t, out, &v)
	var trip ledger.Trip
	require.NoError(t, json.Unmarshal(v.Payload, &trip))
	assert.Equal(t, "14.5", trip.Total.String())
}

func TestRecordErrors(t *testing.T) {
	db := tempDB(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown collection", []string{"record", "add", "invoices", "{}"}, "invalid collection"},
		{"derived collection", []string{"record", "add", "weekly", "{}"}, "derived"},
		{"bad payload", []string{"record", "add", "expenses", "{not json"}, "invalid payload"},
		{"empty payload", []string{"record", "add", "expenses", "  "}, "payload is required"},
		{"update missing", []string{"record", "update", "expenses", "nope", `{"name":"x"}`}, "no such record"},
		{"delete missing", []string{"record", "delete", "expenses", "nope"}, "no such record"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "", append([]string{"--db", db}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestRecordList(t *testing.T) {
	db := tempDB(t)
	addExpense(t, db, "gas")
	addExpense(t, db, "wash")

	out, err := execute(t, "", "--db", db, "record", "list", "expenses")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "SEQ"))
	assert.True(t, strings.HasPrefix(lines[1], "1 "))
	assert.True(t, strings.HasPrefix(lines[2], "2 "))
}

func TestRecompute_EmptyLedger(t *testing.T) {
	out, err := execute(t, "", "--db", tempDB(t), "recompute")
	require.NoError(t, err)
	assert.Equal(t, "0 shift(s) changed; rollups rebuilt\n", out)
}

func TestSync_RequiresRemote(t *testing.T) {
	_, err := execute(t, "", "--db", tempDB(t), "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no remote configured")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSync_AgainstSheetServer(t *testing.T) {
	sheet := remote.NewSheet()
	srv := httptest.NewServer(remote.NewHandler(sheet, nil))
	defer srv.Close()

	db := tempDB(t)
	addExpense(t, db, "gas")
	wash := addExpense(t, db, "wash")

	out, err := execute(t, "", "--db", db, "--remote", srv.URL, "sync")
	require.NoError(t, err)
	assert.Equal(t, "Pushed 2, deleted 0, compacted 0, stale 0, failed 0\n", out)
	assert.Len(t, sheet.Rows(ledger.Expenses), 2)

	_, err = execute(t, "", "--db", db, "record", "delete", "expenses", wash.LocalID)
	require.NoError(t, err)

	out, err = execute(t, "", "--db", db, "--remote", srv.URL, "--format", "json", "sync")
	require.NoError(t, err)
	var result SyncResult
	decodeData(t, out, &result)
	assert.Equal(t, 1, result.Deleted)
	assert.Len(t, sheet.Rows(ledger.Expenses), 1)

	out, err = execute(t, "", "--db", db, "pending")
	require.NoError(t, err)
	assert.Equal(t, "Nothing pending.\n", out)
}

func TestSync_FailedRecordsExitOne(t *testing.T) {
	sheet := remote.NewSheet()
	sheet.Fail(ledger.Expenses, assert.AnError)
	srv := httptest.NewServer(remote.NewHandler(sheet, nil))
	defer srv.Close()

	db := tempDB(t)
	addExpense(t, db, "gas")

	out, err := execute(t, "", "--db", db, "--remote", srv.URL, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 record(s) left pending")
	assert.Contains(t, out, "failed 1")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "from-config.db")
	cfgPath := filepath.Join(dir, "gigledger.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database: "+db+"\n"), 0o644))

	_, err := execute(t, "", "--config", cfgPath, "pending")
	require.NoError(t, err)
	assert.FileExists(t, db)
}

func TestConfigFile_Invalid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "gigledger.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("poll:\n  interval: soon\n"), 0o644))

	_, err := execute(t, "", "--config", cfgPath, "pending")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigFile_MissingExplicit(t *testing.T) {
	_, err := execute(t, "", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "pending")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStatusCommand(t *testing.T) {
	st, err := store.Open(tempDB(t))
	require.NoError(t, err)
	defer st.Close()

	eng := engine.New(st, remote.Offline{})
	srv := httptest.NewServer(statusapi.NewRouter(eng, nil))
	defer srv.Close()

	out, err := execute(t, "", "status", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "State:     idle")
	assert.Contains(t, out, "Pending:   0")

	out, err = execute(t, "", "--format", "json", "status", "--addr", strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	var resp statusapi.StatusResponse
	decodeData(t, out, &resp)
	assert.Equal(t, engine.StateIdle, resp.Current.State)
}

func TestStatusCommand_Errors(t *testing.T) {
	_, err := execute(t, "", "status")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	srv := httptest.NewServer(nil)
	addr := srv.URL
	srv.Close()

	_, err = execute(t, "", "status", "--addr", addr)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "poller not reachable")
}

func TestSeedSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"expenses":[{"name":"gas"},null,{"name":"oil"}]}`), 0o644))

	sheet := remote.NewSheet()
	n, err := seedSheet(sheet, path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, sheet.Rows(ledger.Expenses), 3)

	require.NoError(t, os.WriteFile(path, []byte(`{"invoices":[]}`), 0o644))
	_, err = seedSheet(sheet, path)
	require.Error(t, err)
}
