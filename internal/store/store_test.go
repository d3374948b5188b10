package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesFileAndTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)

	tables := names(t, s, "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	assert.Equal(t, []string{"fixture_failures", "fixture_runs", "progress_events"}, tables)
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.WriteRun(ctx, Run{Target: "counter", Fixtures: 1})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	for range 2 {
		s, err = Open(path)
		require.NoError(t, err)
		run, err := s.ReadRun(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "counter", run.Target)
		require.NoError(t, s.Close())
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/log.db")
	assert.Error(t, err)
}

func TestClose_ZeroStore(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t, "wal", pragma(t, s, "journal_mode"))
	assert.Equal(t, "1", pragma(t, s, "synchronous")) // NORMAL
	assert.Equal(t, "5000", pragma(t, s, "busy_timeout"))
	assert.Equal(t, "1", pragma(t, s, "foreign_keys"))
}

func TestWithBusyTimeout(t *testing.T) {
	s := createTestStore(t, WithBusyTimeout(250*time.Millisecond))
	assert.Equal(t, "250", pragma(t, s, "busy_timeout"))
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	want := map[string][]string{
		"progress_events":  {"id", "session_id", "seq", "kind", "test_name", "reason"},
		"fixture_runs":     {"id", "seq", "target", "fixture_count", "gas_available", "gas_required", "rejected"},
		"fixture_failures": {"run_id", "fixture_index", "kind", "hint"},
	}
	for table, cols := range want {
		got := names(t, s, "SELECT name FROM pragma_table_info(?)", table)
		assert.ElementsMatch(t, cols, got, table)
	}
}

func TestMigrations(t *testing.T) {
	s := createTestStore(t)

	version, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].version, version)

	indexes := names(t, s, "SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", "fixture_failures")
	assert.Contains(t, indexes, "idx_fixture_failures_kind")
}

func TestConstraints(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO progress_events (session_id, seq, kind, test_name) VALUES ('s1', 1, 'TestSkip', 'x')`)
	assert.Error(t, err, "unknown kind must violate CHECK")

	_, err = s.db.Exec(`INSERT INTO fixture_failures (run_id, fixture_index, kind, hint) VALUES ('missing', 0, 'payload mismatch', 'x')`)
	assert.Error(t, err, "failure without run must violate the foreign key")
}
