package fixture

import (
	"sync"

	"golang.org/x/text/unicode/norm"
)

// HintRef is a reference into a HintTable.
type HintRef uint32

// HintTable interns failure hint strings so reports carry small references
// instead of text. Strings are NFC-normalised before interning, so visually
// identical hints share one reference.
//
// Thread-safety: All methods are safe for concurrent use.
type HintTable struct {
	mu      sync.RWMutex
	index   map[string]HintRef
	strings []string
}

// NewHintTable returns an empty table.
func NewHintTable() *HintTable {
	return &HintTable{index: make(map[string]HintRef)}
}

// Intern returns the reference for s, adding it if needed.
func (h *HintTable) Intern(s string) HintRef {
	s = norm.NFC.String(s)

	h.mu.RLock()
	ref, ok := h.index[s]
	h.mu.RUnlock()
	if ok {
		return ref
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if ref, ok := h.index[s]; ok {
		return ref
	}
	ref = HintRef(len(h.strings))
	h.strings = append(h.strings, s)
	h.index[s] = ref
	return ref
}

// Lookup returns the string for ref.
func (h *HintTable) Lookup(ref HintRef) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if int(ref) >= len(h.strings) {
		return "", false
	}
	return h.strings[ref], true
}

// Len returns the number of interned strings.
func (h *HintTable) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.strings)
}
