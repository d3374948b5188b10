package testrt

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/actest/internal/bus"
	"github.com/roach88/actest/internal/progress"
	"github.com/roach88/actest/internal/store"
)

// Sync is answered by a Recorder once every signal queued before it has been
// recorded.
var Sync = []byte("SYNC")

// Recorder is a control bus handler that records progress signals in arrival
// order and optionally persists them.
type Recorder struct {
	logger  *slog.Logger
	store   *store.Store
	session string

	mu      sync.Mutex
	signals []progress.Signal
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithStore persists every signal to st under the given session id.
func WithStore(st *store.Store, session string) RecorderOption {
	return func(r *Recorder) {
		r.store = st
		r.session = session
	}
}

// WithRecorderLogger sets the logger (default slog.Default()).
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRecorder creates an empty recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Receive implements bus.Handler.
func (r *Recorder) Receive(c *bus.Context) ([]byte, error) {
	if bytes.Equal(c.Payload(), Sync) {
		return nil, nil
	}

	sig, err := progress.Decode(c.Payload())
	if err != nil {
		r.logger.Warn("ignoring non-progress message", "from", c.Source(), "error", err)
		return nil, err
	}

	r.mu.Lock()
	r.signals = append(r.signals, sig)
	seq := int64(len(r.signals))
	r.mu.Unlock()

	r.logger.Info(string(sig.Kind), "test", sig.Name, "reason", sig.Reason)

	if r.store == nil {
		return nil, nil
	}
	ev := store.ProgressEvent{Session: r.session, Seq: seq, Signal: sig}
	if err := r.store.WriteProgressEvent(c.Ctx(), ev); err != nil {
		r.logger.Error("progress event not persisted", "session", r.session, "seq", seq, "error", err)
		return nil, fmt.Errorf("persist progress event: %w", err)
	}
	return nil, nil
}

// Signals returns a copy of the recorded signals.
func (r *Recorder) Signals() []progress.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]progress.Signal, len(r.signals))
	copy(out, r.signals)
	return out
}
