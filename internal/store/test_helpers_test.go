package store

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/actest/internal/progress"
)

func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func event(session string, seq int64, kind progress.Kind, name, reason string) ProgressEvent {
	return ProgressEvent{
		Session: session,
		Seq:     seq,
		Signal:  progress.Signal{Kind: kind, Name: name, Reason: reason},
	}
}

// pragma reads one PRAGMA value as text.
func pragma(t *testing.T, s *Store, name string) string {
	t.Helper()
	var v string
	require.NoError(t, s.db.QueryRow("PRAGMA "+name).Scan(&v))
	return v
}

// names runs query and collects the first column.
func names(t *testing.T, s *Store, query string, args ...any) []string {
	t.Helper()
	rows, err := s.db.Query(query, args...)
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		out = append(out, n)
	}
	require.NoError(t, rows.Err())
	return out
}
