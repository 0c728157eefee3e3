package flow

// Nickname tracks a candidate display name through the propose → check →
// commit sequence used by both sign-up and first Google sign-in. Availability
// is only ever a server verdict: editing the candidate clears it, so a stale
// "available" can never vouch for a different name.
//
// Like Gate, it holds no I/O; the controller checks availability over the
// wire and applies the verdict here under its lock.
type Nickname struct {
	value     string
	available bool
}

func NewNickname() *Nickname {
	return &Nickname{}
}

// Propose replaces the candidate and drops any prior availability verdict.
func (n *Nickname) Propose(value string) {
	if value == n.value {
		return
	}
	n.value = value
	n.available = false
}

// Resolve applies a server availability verdict. The verdict vouches only
// for the exact candidate it was requested for: if the value was edited
// while the check was in flight, the answer is dropped.
func (n *Nickname) Resolve(candidate string, available bool) {
	if candidate != n.value {
		return
	}
	n.available = available
}

// Reset discards the candidate and its verdict.
func (n *Nickname) Reset() {
	n.value = ""
	n.available = false
}

func (n *Nickname) Value() string   { return n.value }
func (n *Nickname) Available() bool { return n.available }
