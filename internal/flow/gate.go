// Package flow holds the client-side authentication state machine: the modal
// controller plus the small sub-machines it composes — an email verification
// gate and a nickname candidate. All server traffic goes through
// internal/client; all persistence through internal/session.
//
// Gate and Nickname are plain state machines with no I/O of their own. The
// controller performs the network calls and applies the resulting
// transitions while holding its lock, so snapshot reads never race with an
// action completing.
package flow

// GateState tracks an email verification challenge.
type GateState int

const (
	// GateIdle: no challenge outstanding.
	GateIdle GateState = iota
	// GateSent: a code was emailed and is awaiting confirmation.
	GateSent
	// GateVerified: the code matched; the gated action may proceed.
	GateVerified
)

// Gate tracks one email verification round for a single purpose (sign-up or
// password reset). It remembers which email the challenge was issued for so
// that editing the address invalidates the round: a verification must never
// vouch for an email other than the one the code was sent to.
type Gate struct {
	state GateState
	email string
	code  string // the code that confirmed, kept for the final reset call
}

func NewGate() *Gate {
	return &Gate{}
}

// MarkSent records that a challenge was issued for email, superseding any
// prior round.
func (g *Gate) MarkSent(email string) {
	g.state = GateSent
	g.email = email
	g.code = ""
}

// MarkConfirmed records a matched code for the outstanding challenge.
func (g *Gate) MarkConfirmed(code string) {
	g.state = GateVerified
	g.code = code
}

// EmailChanged invalidates the challenge when the address no longer matches
// the one the code was sent to. Idle gates and unchanged addresses are
// unaffected.
func (g *Gate) EmailChanged(email string) {
	if g.state == GateIdle || email == g.email {
		return
	}
	g.Reset()
}

// Reset discards any outstanding or completed challenge.
func (g *Gate) Reset() {
	g.state = GateIdle
	g.email = ""
	g.code = ""
}

func (g *Gate) State() GateState { return g.state }
func (g *Gate) Verified() bool   { return g.state == GateVerified }

// Email returns the address the current challenge vouches for.
func (g *Gate) Email() string { return g.email }

// Code returns the confirmed code. Empty until Verified.
func (g *Gate) Code() string { return g.code }
