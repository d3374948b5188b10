package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/actest/internal/progress"
	"github.com/roach88/actest/internal/store"
)

// execute runs the root command with args and returns what it wrote to
// stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeData decodes the data field of a JSON response into v.
func decodeData(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if v != nil {
		require.NoError(t, json.Unmarshal(raw.Data, v))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}

func TestPing(t *testing.T) {
	out, err := execute(t, "ping")
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", out)

	out, err = execute(t, "ping", "--format", "json")
	require.NoError(t, err)
	var res PingResult
	resp := decodeData(t, out, &res)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, PingResult{Program: "program", Reply: "PONG"}, res)
}

func TestSession_Text(t *testing.T) {
	out, err := execute(t, "test")
	require.NoError(t, err)

	for _, line := range []string{
		"TestStart smoky",
		"TestSuccess smoky",
		"TestSuccess counter_initialises",
		"TestSuccess counter_rejects_unknown",
		"Test Summary: 3 passed, 0 failed",
	} {
		assert.Contains(t, out, line)
	}
}

func TestSession_EchoTargetFails(t *testing.T) {
	out, err := execute(t, "test", "--target", "echo")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	// echo answers "init" with "init" and accepts "explode".
	assert.Contains(t, out, `TestFail counter_initialises: init replied "init", want "0"`)
	assert.Contains(t, out, "TestFail counter_rejects_unknown")
	assert.Contains(t, out, "Test Summary: 1 passed, 2 failed")
}

func TestSession_GasShortfallFailsTests(t *testing.T) {
	out, err := execute(t, "test", "--gas", "5", "--format", "json")
	require.Error(t, err)

	var res SessionResult
	resp := decodeData(t, out, &res)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, []string{"smoky"}, res.Passed)
	require.Len(t, res.Failed, 2)
	assert.Contains(t, res.Failed[0].Reason, "not enough gas")
}

func TestSession_UnknownTarget(t *testing.T) {
	_, err := execute(t, "test", "--target", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown target "nope"`)
}

func TestSession_RecordedAndTraced(t *testing.T) {
	db := filepath.Join(t.TempDir(), "actest.db")

	out, err := execute(t, "test", "--db", db, "--format", "json")
	require.NoError(t, err)
	var res SessionResult
	decodeData(t, out, &res)
	require.NotEmpty(t, res.Session)
	require.Len(t, res.Signals, 6)

	out, err = execute(t, "trace", "--db", db, "--session", res.Session, "--format", "json")
	require.NoError(t, err)
	var signals []progress.Signal
	decodeData(t, out, &signals)
	assert.Equal(t, res.Signals, signals)

	out, err = execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Sessions (1):")
	assert.Contains(t, out, res.Session)
}

func TestFixturesValidate(t *testing.T) {
	out, err := execute(t, "fixtures", "validate", "testdata/echo_pass.yaml", "--format", "json")
	require.NoError(t, err)

	var summary SuiteSummary
	decodeData(t, out, &summary)
	assert.Equal(t, SuiteSummary{
		File:        "testdata/echo_pass.yaml",
		Target:      "echo",
		Names:       []string{"echoes", "any_reply"},
		GasRequired: 10,
	}, summary)

	out, err = execute(t, "fixtures", "validate", "testdata/echo_pass.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "2 fixture(s), 10 gas required")
}

func TestFixturesValidate_InvalidFile(t *testing.T) {
	_, err := execute(t, "fixtures", "validate", "testdata/missing.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid fixture file")
}

func TestFixturesRun_Passes(t *testing.T) {
	out, err := execute(t, "fixtures", "run", "testdata/echo_pass.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "PASS echoes")
	assert.Contains(t, out, "PASS any_reply")
	assert.Contains(t, out, "Fixture Summary: 2 passed, 0 failed")
}

func TestFixturesRun_ReportsMismatch(t *testing.T) {
	out, err := execute(t, "fixtures", "run", "testdata/echo_mixed.yaml", "--max-concurrent", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "PASS echoes")
	assert.Contains(t, out, `FAIL wrong_reply: expectation 0: payload mismatch: expected "bye", got "hi"`)
}

func TestFixturesRun_RejectedForGas(t *testing.T) {
	out, err := execute(t, "fixtures", "run", "testdata/echo_pass.yaml", "--gas", "9", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var res RunResult
	resp := decodeData(t, out, &res)
	assert.Equal(t, "E_NOT_ENOUGH_GAS", resp.Error.Code)
	assert.Equal(t, "run rejected: 9 gas available, 10 needed", resp.Error.Message)
	assert.True(t, res.Rejected)
	assert.Empty(t, res.Fixtures)
}

func TestFixturesRun_TargetResolution(t *testing.T) {
	_, err := execute(t, "fixtures", "run", "testdata/no_target.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no target")

	out, err := execute(t, "fixtures", "run", "testdata/no_target.yaml", "--target", "echo")
	require.NoError(t, err)
	assert.Contains(t, out, "PASS fixture-0")
}

func TestFixturesRun_RecordedAndTraced(t *testing.T) {
	db := filepath.Join(t.TempDir(), "actest.db")

	out, err := execute(t, "fixtures", "run", "testdata/echo_mixed.yaml", "--db", db, "--format", "json")
	require.Error(t, err)
	var res RunResult
	decodeData(t, out, &res)
	require.NotEmpty(t, res.RunID)

	out, err = execute(t, "trace", "--db", db, "--run", res.RunID, "--format", "json")
	require.NoError(t, err)
	var run store.Run
	decodeData(t, out, &run)
	assert.Equal(t, "echo", run.Target)
	assert.Equal(t, 2, run.Fixtures)
	assert.Equal(t, []store.RunFailure{{
		Index: 1,
		Kind:  "payload mismatch",
		Hint:  `expectation 0: payload mismatch: expected "bye", got "hi"`,
	}}, run.Failures)

	out, err = execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Runs (1):")
	assert.Contains(t, out, "payload mismatch: 1")
}

func TestTrace_Errors(t *testing.T) {
	_, err := execute(t, "trace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")

	db := filepath.Join(t.TempDir(), "actest.db")
	_, err = execute(t, "trace", "--db", db, "--run", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run not found")

	_, err = execute(t, "trace", "--db", db, "--session", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")

	_, err = execute(t, "trace", "--db", db, "--session", "a", "--run", "b")
	require.Error(t, err)
}
