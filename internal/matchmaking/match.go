// Package matchmaking pairs waiting connections into two-party chats.
//
// A Matcher keeps a FIFO queue of handles looking for a random peer, pairs
// the two oldest entries into a pending Match, and moves that Match to an
// active chat once both sides accept. Skips, timeouts and disconnects put
// the affected handles back in the queue.
package matchmaking

import (
	"time"
)

// Decision is a side's answer to a pending match.
type Decision string

const (
	Accept Decision = "connect"
	Skip   Decision = "skip"
)

// ParseDecision accepts the wire values "connect"/"skip" and the aliases
// "accept"/"reject".
func ParseDecision(s string) (Decision, bool) {
	switch s {
	case "connect", "accept":
		return Accept, true
	case "skip", "reject":
		return Skip, true
	default:
		return "", false
	}
}

// State is the lifecycle state of a Match.
type State int

const (
	StatePending State = iota
	StateActive
	StateRequeued
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateRequeued:
		return "requeued"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// HandleState is where a handle currently sits in a Matcher.
type HandleState int

const (
	Idle HandleState = iota
	Queued
	Pending
	Active
)

func (s HandleState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Queued:
		return "queued"
	case Pending:
		return "pending"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// EndReason explains why an active chat finished.
type EndReason string

const (
	ReasonEnded      EndReason = "ended"
	ReasonSkipped    EndReason = "skipped"
	ReasonDisconnect EndReason = "disconnect"
)

// Match is a tentative or active pairing of two handles.
type Match[H comparable] struct {
	A, B      H
	ResponseA Decision
	ResponseB Decision
	State     State
	CreatedAt time.Time

	timer *time.Timer
}

// Peer returns the other side of the match.
func (m *Match[H]) Peer(h H) H {
	if h == m.A {
		return m.B
	}
	return m.A
}

// Has reports whether h is one of the two sides.
func (m *Match[H]) Has(h H) bool {
	return h == m.A || h == m.B
}

// Response returns the decision recorded for h, or "" if none yet.
func (m *Match[H]) Response(h H) Decision {
	if h == m.A {
		return m.ResponseA
	}
	return m.ResponseB
}

func (m *Match[H]) setResponse(h H, d Decision) {
	if h == m.A {
		m.ResponseA = d
	} else {
		m.ResponseB = d
	}
}

func (m *Match[H]) bothAccepted() bool {
	return m.ResponseA == Accept && m.ResponseB == Accept
}

func (m *Match[H]) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// view returns a copy safe to hand outside the matcher lock.
func (m *Match[H]) view() Match[H] {
	return Match[H]{
		A:         m.A,
		B:         m.B,
		ResponseA: m.ResponseA,
		ResponseB: m.ResponseB,
		State:     m.State,
		CreatedAt: m.CreatedAt,
	}
}
