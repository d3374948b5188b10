package bus

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces actor ids for Spawn.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() ActorID
}

// UUIDv7Generator generates time-sortable UUIDv7 actor ids.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// Generate panics if the random source fails.
func (UUIDv7Generator) Generate() ActorID {
	return ActorID(uuid.Must(uuid.NewV7()).String())
}

// FixedGenerator returns predetermined ids in order.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []ActorID
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...ActorID) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
// Panics once every id has been used: a test spawned more actors than it declared.
func (g *FixedGenerator) Generate() ActorID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
