package fixture

import "sort"

// Failure records one failed fixture of a run.
type Failure struct {
	Index uint32      `json:"index"`
	Kind  FailureKind `json:"kind"`
	Hint  HintRef     `json:"hint"`
}

// Report is the outcome of an admitted run: every failed fixture, ordered by
// index. Fixtures that passed are absent.
type Report struct {
	Failures []Failure `json:"failures"`
}

// Passed reports whether every fixture passed.
func (r Report) Passed() bool { return len(r.Failures) == 0 }

// Indices returns the indices of the failed fixtures.
func (r Report) Indices() []uint32 {
	out := make([]uint32, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Index
	}
	return out
}

func newReport(failures []Failure) Report {
	if failures == nil {
		failures = []Failure{}
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })
	return Report{Failures: failures}
}
