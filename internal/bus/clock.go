package bus

import "sync/atomic"

// Clock hands out message ids. Ids are strictly increasing within a System
// and never reused, so a reply can be matched to its request unambiguously.
//
// Thread-safety: Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Uint64
}

// NewClock creates a clock whose first id is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next message id.
func (c *Clock) Next() MessageID {
	return MessageID(c.seq.Add(1))
}

// Current returns the last id handed out, or 0 if none.
func (c *Clock) Current() MessageID {
	return MessageID(c.seq.Load())
}
