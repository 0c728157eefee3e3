package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateLifecycle(t *testing.T) {
	g := NewGate()
	assert.Equal(t, GateIdle, g.State())

	g.MarkSent("a@example.com")
	assert.Equal(t, GateSent, g.State())
	assert.Equal(t, "a@example.com", g.Email())
	assert.Empty(t, g.Code())

	g.MarkConfirmed("111111")
	assert.True(t, g.Verified())
	assert.Equal(t, "111111", g.Code())
	assert.Equal(t, "a@example.com", g.Email())
}

func TestGateEmailChanged(t *testing.T) {
	g := NewGate()

	// Idle gates ignore email edits.
	g.EmailChanged("a@example.com")
	assert.Equal(t, GateIdle, g.State())

	g.MarkSent("a@example.com")
	g.MarkConfirmed("111111")

	// Same address: the verification stands.
	g.EmailChanged("a@example.com")
	assert.True(t, g.Verified())

	// Different address: the round no longer vouches for anything.
	g.EmailChanged("b@example.com")
	assert.Equal(t, GateIdle, g.State())
	assert.Empty(t, g.Email())
	assert.Empty(t, g.Code())
}

func TestGateResendSupersedesPriorRound(t *testing.T) {
	g := NewGate()

	g.MarkSent("a@example.com")
	g.MarkConfirmed("111111")
	assert.True(t, g.Verified())

	g.MarkSent("b@example.com")
	assert.Equal(t, GateSent, g.State())
	assert.Equal(t, "b@example.com", g.Email())
	assert.Empty(t, g.Code(), "confirmed code from the old round must not carry over")
}

func TestGateReset(t *testing.T) {
	g := NewGate()

	g.MarkSent("a@example.com")
	g.MarkConfirmed("111111")
	g.Reset()

	assert.Equal(t, GateIdle, g.State())
	assert.Empty(t, g.Email())
	assert.Empty(t, g.Code())
}
