// Package fixture runs structured integration scenarios against a target
// actor.
//
// A Fixture is a list of preparation requests followed by a list of
// expectations. The Engine owns an ordered collection of fixtures, exposes
// index-based CRUD over it, and runs the whole collection behind an
// all-or-nothing gas admission gate. Fixtures of one run execute
// concurrently; steps inside one fixture execute strictly in order.
package fixture

import (
	"bytes"
	"math/bits"
)

// Request is one message sent to the target.
type Request struct {
	Payload []byte `json:"payload"`
	Gas     uint64 `json:"gas"`
	Value   uint64 `json:"value"`
}

// Response is what an expectation accepts. A nil Payload accepts any reply;
// a non-nil Payload must equal the reply exactly.
type Response struct {
	Payload []byte `json:"payload"`
}

// Any accepts every reply.
func Any() Response { return Response{} }

// Exact accepts only replies equal to b. Exact(nil) accepts only an empty
// reply.
func Exact(b []byte) Response {
	if b == nil {
		b = []byte{}
	}
	return Response{Payload: b}
}

// IsAny reports whether r accepts every reply.
func (r Response) IsAny() bool { return r.Payload == nil }

// Matches reports whether actual satisfies r.
func (r Response) Matches(actual []byte) bool {
	return r.IsAny() || bytes.Equal(r.Payload, actual)
}

// Expectation is a request paired with the response it must produce.
type Expectation struct {
	Request  Request  `json:"request"`
	Response Response `json:"response"`
}

// Fixture is one scenario. Its identity is its index in the collection.
type Fixture struct {
	Preparation  []Request     `json:"preparation"`
	Expectations []Expectation `json:"expectations"`
}

// Clone returns a deep copy of f. Nil payloads stay nil.
func (f Fixture) Clone() Fixture {
	var c Fixture
	if f.Preparation != nil {
		c.Preparation = make([]Request, len(f.Preparation))
		for i, r := range f.Preparation {
			c.Preparation[i] = r.clone()
		}
	}
	if f.Expectations != nil {
		c.Expectations = make([]Expectation, len(f.Expectations))
		for i, e := range f.Expectations {
			c.Expectations[i] = Expectation{
				Request:  e.Request.clone(),
				Response: Response{Payload: bytes.Clone(e.Response.Payload)},
			}
		}
	}
	return c
}

func (r Request) clone() Request {
	r.Payload = bytes.Clone(r.Payload)
	return r
}

// GasRequired is the gas f declares across all of its steps.
// The sum saturates at the maximum uint64.
func (f Fixture) GasRequired() uint64 {
	var total uint64
	for _, r := range f.Preparation {
		total = addSat(total, r.Gas)
	}
	for _, e := range f.Expectations {
		total = addSat(total, e.Request.Gas)
	}
	return total
}

// GasRequired is the gas a run of fixtures declares.
func GasRequired(fixtures []Fixture) uint64 {
	var total uint64
	for _, f := range fixtures {
		total = addSat(total, f.GasRequired())
	}
	return total
}

func addSat(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return ^uint64(0)
	}
	return sum
}

func cloneAll(fixtures []Fixture) []Fixture {
	out := make([]Fixture, len(fixtures))
	for i, f := range fixtures {
		out[i] = f.Clone()
	}
	return out
}
