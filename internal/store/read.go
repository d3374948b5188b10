package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/actest/internal/progress"
)

// ErrRunNotFound is returned by ReadRun for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// ReadSession returns every progress event of a session in arrival order.
// Returns an empty slice (not nil) if the session has no events.
func (s *Store) ReadSession(ctx context.Context, session string) ([]ProgressEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, kind, test_name, reason
		FROM progress_events
		WHERE session_id = ?
		ORDER BY seq ASC, id ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query progress events: %w", err)
	}
	defer rows.Close()

	events := []ProgressEvent{}
	for rows.Next() {
		var ev ProgressEvent
		var kind string
		if err := rows.Scan(&ev.Session, &ev.Seq, &kind, &ev.Signal.Name, &ev.Signal.Reason); err != nil {
			return nil, fmt.Errorf("scan progress event: %w", err)
		}
		ev.Signal.Kind = progress.Kind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress events: %w", err)
	}
	return events, nil
}

// ListSessions returns the ids of all recorded sessions, oldest first.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id
		FROM progress_events
		GROUP BY session_id
		ORDER BY MIN(id) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadRun returns a run and its failures ordered by fixture index.
// Returns ErrRunNotFound if no run has that id.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, target, fixture_count, gas_available, gas_required, rejected
		FROM fixture_runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}

	run.Failures, err = s.readFailures(ctx, id)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns every run, oldest first, without failures.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, target, fixture_count, gas_available, gas_required, rejected
		FROM fixture_runs
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// FailureCounts returns the number of recorded fixture failures per kind.
func (s *Store) FailureCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM fixture_failures
		GROUP BY kind
	`)
	if err != nil {
		return nil, fmt.Errorf("query failure counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan failure count: %w", err)
		}
		counts[kind] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure counts: %w", err)
	}
	return counts, nil
}

func (s *Store) readFailures(ctx context.Context, runID string) ([]RunFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fixture_index, kind, hint
		FROM fixture_failures
		WHERE run_id = ?
		ORDER BY fixture_index ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run failures: %w", err)
	}
	defer rows.Close()

	failures := []RunFailure{}
	for rows.Next() {
		var f RunFailure
		if err := rows.Scan(&f.Index, &f.Kind, &f.Hint); err != nil {
			return nil, fmt.Errorf("scan run failure: %w", err)
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run failures: %w", err)
	}
	return failures, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var gasAvailable, gasRequired int64
	if err := row.Scan(
		&run.ID, &run.Seq, &run.Target, &run.Fixtures,
		&gasAvailable, &gasRequired, &run.Rejected,
	); err != nil {
		return Run{}, err
	}
	run.GasAvailable = uint64(gasAvailable)
	run.GasRequired = uint64(gasRequired)
	return run, nil
}
