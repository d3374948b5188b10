package progress

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/actest/internal/bus"
)

type sent struct {
	to      bus.ActorID
	payload []byte
}

type recordingSender struct {
	out []sent
	err error
}

func (r *recordingSender) Send(to bus.ActorID, payload []byte, value uint64) error {
	if r.err != nil {
		return r.err
	}
	r.out = append(r.out, sent{to: to, payload: payload})
	return nil
}

func TestSignal_EncodeDecode(t *testing.T) {
	tests := []Signal{
		{Kind: TestStart, Name: "smoky"},
		{Kind: TestSuccess, Name: "smoky"},
		{Kind: TestFail, Name: "smoky", Reason: "expected 1, got 2"},
	}

	for _, want := range tests {
		t.Run(string(want.Kind), func(t *testing.T) {
			got, err := Decode(Encode(want))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestSignal_WireShape(t *testing.T) {
	assert.JSONEq(t, `{"kind":"TestStart","name":"smoky"}`, string(Encode(Signal{Kind: TestStart, Name: "smoky"})))
}

func TestDecode_Rejects(t *testing.T) {
	tests := map[string]string{
		"not json":     "PING",
		"unknown kind": `{"kind":"TestSkip","name":"x"}`,
		"missing name": `{"kind":"TestStart"}`,
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestSignal_String(t *testing.T) {
	assert.Equal(t, "TestStart a", Signal{Kind: TestStart, Name: "a"}.String())
	assert.Equal(t, "TestFail a: boom", Signal{Kind: TestFail, Name: "a", Reason: "boom"}.String())
}

func TestReporter_SendsToControlBus(t *testing.T) {
	s := &recordingSender{}
	r := NewReporter(s, "bus", nil)

	r.Start("a")
	r.Fail("a", "boom")
	r.Success("b")

	require.Len(t, s.out, 3)
	for _, m := range s.out {
		assert.Equal(t, bus.ActorID("bus"), m.to)
	}

	var kinds []Kind
	for _, m := range s.out {
		sig, err := Decode(m.payload)
		require.NoError(t, err)
		kinds = append(kinds, sig.Kind)
	}
	assert.Equal(t, []Kind{TestStart, TestFail, TestSuccess}, kinds)
}

func TestReporter_SendErrorIsNotFatal(t *testing.T) {
	r := NewReporter(&recordingSender{err: errors.New("gone")}, "bus", nil)

	assert.NotPanics(t, func() {
		r.Start("a")
		r.Success("a")
	})
}
