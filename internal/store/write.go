package store

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/roach88/actest/internal/progress"
)

// ProgressEvent is one progress signal as received by a session recorder.
type ProgressEvent struct {
	Session string
	Seq     int64
	Signal  progress.Signal
}

// Run is the record of one fixture run.
type Run struct {
	ID           string       `json:"id"`
	Seq          int64        `json:"seq"`
	Target       string       `json:"target"`
	Fixtures     int          `json:"fixtures"`
	GasAvailable uint64       `json:"gas_available"`
	GasRequired  uint64       `json:"gas_required"`
	Rejected     bool         `json:"rejected"`
	Failures     []RunFailure `json:"failures,omitempty"`
}

// RunFailure is one failed fixture of a run.
type RunFailure struct {
	Index uint32 `json:"index"`
	Kind  string `json:"kind"`
	Hint  string `json:"hint"`
}

// WriteProgressEvent appends a progress event.
// Uses ON CONFLICT DO NOTHING for idempotency - rewriting the same
// (session, seq) is silently ignored.
func (s *Store) WriteProgressEvent(ctx context.Context, ev ProgressEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress_events (session_id, seq, kind, test_name, reason)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		ev.Session,
		ev.Seq,
		string(ev.Signal.Kind),
		ev.Signal.Name,
		ev.Signal.Reason,
	)
	if err != nil {
		return fmt.Errorf("write progress event: %w", err)
	}
	return nil
}

// WriteRun stores a run and its failures in one transaction and returns the
// run id. A UUIDv7 id is assigned when run.ID is empty; run.Seq is always
// assigned by the store.
func (s *Store) WriteRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("write run: generate id: %w", err)
		}
		run.ID = id.String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fixture_runs
		(id, seq, target, fixture_count, gas_available, gas_required, rejected)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM fixture_runs), ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Target,
		run.Fixtures,
		clampInt64(run.GasAvailable),
		clampInt64(run.GasRequired),
		run.Rejected,
	)
	if err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}

	for _, f := range run.Failures {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO fixture_failures (run_id, fixture_index, kind, hint)
			VALUES (?, ?, ?, ?)
		`, run.ID, f.Index, f.Kind, f.Hint)
		if err != nil {
			return "", fmt.Errorf("write run failure %d: %w", f.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("write run: commit: %w", err)
	}
	return run.ID, nil
}

// clampInt64 maps gas figures onto SQLite's signed 64-bit integers.
func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
