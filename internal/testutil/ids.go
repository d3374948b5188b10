// Package testutil holds deterministic building blocks for tests: actor ids,
// a throwaway actor system and a scripted target actor.
package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/actest/internal/bus"
)

// SequentialIDs generates actor ids "actor-1", "actor-2", ...
//
// Unlike bus.FixedGenerator it never runs out, and it can be reset so the
// same scenario produces the same ids on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix means "actor".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "actor"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate implements bus.IDGenerator.
func (g *SequentialIDs) Generate() bus.ActorID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return bus.ActorID(fmt.Sprintf("%s-%d", g.prefix, g.n))
}

// Reset restarts the sequence. The next id is "<prefix>-1".
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
