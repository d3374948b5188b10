package fixture

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHintTable_InternDeduplicates(t *testing.T) {
	h := NewHintTable()

	a := h.Intern("expectation 0: payload mismatch")
	b := h.Intern("expectation 1: payload mismatch")
	again := h.Intern("expectation 0: payload mismatch")

	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, h.Len())

	s, ok := h.Lookup(b)
	assert.True(t, ok)
	assert.Equal(t, "expectation 1: payload mismatch", s)
}

func TestHintTable_NormalisesToNFC(t *testing.T) {
	h := NewHintTable()

	composed := h.Intern("caf\u00e9")
	decomposed := h.Intern("cafe\u0301")

	assert.Equal(t, composed, decomposed)
	s, _ := h.Lookup(decomposed)
	assert.Equal(t, "caf\u00e9", s)
}

func TestHintTable_LookupUnknown(t *testing.T) {
	_, ok := NewHintTable().Lookup(7)
	assert.False(t, ok)
}

func TestHintTable_ConcurrentIntern(t *testing.T) {
	h := NewHintTable()

	var wg sync.WaitGroup
	refs := make([]HintRef, 32)
	for i := range refs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refs[i] = h.Intern("same")
		}()
	}
	wg.Wait()

	for _, r := range refs {
		assert.Equal(t, refs[0], r)
	}
	assert.Equal(t, 1, h.Len())
}
