// Package signaling forwards WebRTC negotiation messages between two live
// connections without looking inside them.
package signaling

import (
	"encoding/json"

	"campusconnect/backend/internal/models"
	"campusconnect/backend/internal/session"

	"go.uber.org/zap"
)

// Kind is the type of signaling message.
type Kind string

const (
	Offer        Kind = models.EventOffer
	Answer       Kind = models.EventAnswer
	IceCandidate Kind = models.EventIceCandidate
)

// field is the payload key the browser expects for each kind.
func (k Kind) field() string {
	switch k {
	case Offer:
		return "offer"
	case Answer:
		return "answer"
	case IceCandidate:
		return "candidate"
	default:
		return ""
	}
}

// ParseKind maps an inbound event type to a Kind.
func ParseKind(eventType string) (Kind, bool) {
	k := Kind(eventType)
	return k, k.field() != ""
}

// Sender delivers an envelope to one handle without blocking.
type Sender interface {
	Send(h session.Handle, env models.Envelope) bool
}

// Liveness reports whether a handle still has a session.
type Liveness interface {
	IsLive(h session.Handle) bool
}

type Relay struct {
	live   Liveness
	out    Sender
	logger *zap.Logger
}

func NewRelay(live Liveness, out Sender, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{live: live, out: out, logger: logger}
}

// Relay forwards {<field>: payload, from} to the target. It returns false
// and sends nothing when the target is gone or the kind is unknown.
func (r *Relay) Relay(kind Kind, from, to session.Handle, payload json.RawMessage) bool {
	field := kind.field()
	if field == "" {
		r.logger.Debug("unknown signaling kind", zap.String("kind", string(kind)))
		return false
	}
	if to == "" || !r.live.IsLive(to) {
		r.logger.Debug("signaling target gone, dropping",
			zap.String("kind", string(kind)),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
		return false
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	env, err := models.NewEnvelope(string(kind), map[string]json.RawMessage{
		field:  payload,
		"from": quote(from.String()),
	})
	if err != nil {
		// Happens when payload is not valid JSON.
		r.logger.Debug("invalid signaling payload", zap.Error(err))
		return false
	}
	return r.out.Send(to, env)
}

func quote(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
