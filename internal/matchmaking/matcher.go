package matchmaking

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPendingTimeout is how long a pending match waits for both answers
// before the silent side is treated as a skip.
const DefaultPendingTimeout = 30 * time.Second

// Notifier delivers match events to the handles involved.
// Methods are called with the matcher lock held: implementations must not
// block and must not call back into the Matcher.
type Notifier[H comparable, P any] interface {
	MatchFound(to, peer H, peerProfile P)
	WaitingOnPeer(to H)
	ChatStart(to, peer H, peerProfile P)
	// ChatSkip tells to that the pending match was skipped by either side.
	ChatSkip(to H)
	// ChatSkippedBy tells to that its active chat partner moved on.
	ChatSkippedBy(to, by H)
	ChatEnded(to, by H)
	PeerLeft(to, peer H, reason string)
}

// ProfileFunc resolves the profile summary shown to a peer. ok=false means
// the handle is gone and must not be paired.
type ProfileFunc[H comparable, P any] func(h H) (profile P, ok bool)

// Options configures a Matcher.
type Options struct {
	// Name labels log lines ("voice", "video").
	Name string
	// PendingTimeout resolves unanswered pending matches as a skip.
	// Zero disables the timeout.
	PendingTimeout time.Duration
	// Strict panics on invariant violations instead of repairing them.
	Strict bool
	Logger *zap.Logger
}

// Matcher is the FIFO queue plus the match state machine.
// All methods are safe for concurrent use.
type Matcher[H comparable, P any] struct {
	mu sync.Mutex

	queue   []H
	queued  map[H]struct{}
	pending map[H]*Match[H]
	active  map[H]*Match[H]

	notify  Notifier[H, P]
	profile ProfileFunc[H, P]

	name           string
	pendingTimeout time.Duration
	strict         bool
	logger         *zap.Logger
	now            func() time.Time

	// OnChatStart and OnChatEnd observe active chats. They run with the
	// matcher lock held and must hand slow work off to a goroutine.
	OnChatStart func(m Match[H])
	OnChatEnd   func(m Match[H], reason EndReason)
}

// New creates a Matcher.
func New[H comparable, P any](notify Notifier[H, P], profile ProfileFunc[H, P], opts Options) *Matcher[H, P] {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher[H, P]{
		queued:         make(map[H]struct{}),
		pending:        make(map[H]*Match[H]),
		active:         make(map[H]*Match[H]),
		notify:         notify,
		profile:        profile,
		name:           opts.Name,
		pendingTimeout: opts.PendingTimeout,
		strict:         opts.Strict,
		logger:         logger.With(zap.String("pool", opts.Name)),
		now:            time.Now,
	}
}

// StartSearch queues h and pairs the queue. It is a no-op while h is in a
// pending or active match.
func (m *Matcher[H, P]) StartSearch(h H) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inMatch(h) {
		if _, ok := m.queued[h]; ok {
			m.violation(h, "handle queued while matched")
			m.dequeue(h)
		}
		m.logger.Debug("search ignored, already matched", zap.Any("handle", h))
		return
	}
	m.enqueue(h)
	m.pair()
}

// Respond records h's decision for its pending match. It returns false when
// the response was ignored (no pending match or already answered).
func (m *Matcher[H, P]) Respond(h H, d Decision) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	match, ok := m.pending[h]
	if !ok {
		m.logger.Debug("response without pending match", zap.Any("handle", h))
		return false
	}
	if match.Response(h) != "" {
		m.logger.Debug("duplicate response ignored", zap.Any("handle", h))
		return false
	}
	match.setResponse(h, d)

	if match.Response(match.Peer(h)) == "" {
		m.notify.WaitingOnPeer(h)
		return true
	}
	m.resolve(match, h)
	return true
}

// Disconnect drops h from the queue and from any match. A surviving peer is
// told and put back in the queue. Calling it again is a no-op.
func (m *Matcher[H, P]) Disconnect(h H) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dequeue(h)

	match, wasActive := m.matchOf(h)
	if match == nil {
		return
	}
	peer := match.Peer(h)
	m.destroy(match)
	match.State = StateTerminated

	m.notify.PeerLeft(peer, h, string(ReasonDisconnect))
	if wasActive && m.OnChatEnd != nil {
		m.OnChatEnd(match.view(), ReasonDisconnect)
	}

	m.enqueue(peer)
	m.pair()
}

// EndChat is an explicit hang-up. The peer is told; neither side is queued.
func (m *Matcher[H, P]) EndChat(h H) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	match, wasActive := m.matchOf(h)
	if match == nil {
		return false
	}
	peer := match.Peer(h)
	m.destroy(match)
	match.State = StateTerminated

	m.notify.ChatEnded(peer, h)
	if wasActive && m.OnChatEnd != nil {
		m.OnChatEnd(match.view(), ReasonEnded)
	}
	return true
}

// SkipChat leaves an active chat and sends the peer back to the queue.
// During a pending match it behaves like Respond(h, Skip).
func (m *Matcher[H, P]) SkipChat(h H) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if match, ok := m.pending[h]; ok {
		if match.Response(h) != "" {
			return false
		}
		match.setResponse(h, Skip)
		if match.Response(match.Peer(h)) == "" {
			// The peer's answer no longer matters.
			match.setResponse(match.Peer(h), Skip)
		}
		m.resolve(match, h)
		return true
	}

	match, ok := m.active[h]
	if !ok {
		return false
	}
	peer := match.Peer(h)
	m.destroy(match)
	match.State = StateTerminated

	m.notify.ChatSkippedBy(peer, h)
	if m.OnChatEnd != nil {
		m.OnChatEnd(match.view(), ReasonSkipped)
	}

	m.enqueue(peer)
	m.pair()
	return true
}

// State reports where h currently is.
func (m *Matcher[H, P]) State(h H) HandleState {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.pending[h] != nil:
		return Pending
	case m.active[h] != nil:
		return Active
	default:
		if _, ok := m.queued[h]; ok {
			return Queued
		}
		return Idle
	}
}

// MatchOf returns a copy of h's pending or active match.
func (m *Matcher[H, P]) MatchOf(h H) (Match[H], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	match, _ := m.matchOf(h)
	if match == nil {
		return Match[H]{}, false
	}
	return match.view(), true
}

// Queue returns the waiting handles, oldest first.
func (m *Matcher[H, P]) Queue() []H {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]H, len(m.queue))
	copy(out, m.queue)
	return out
}

func (m *Matcher[H, P]) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// PendingCount returns the number of pending matches.
func (m *Matcher[H, P]) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) / 2
}

// ActiveCount returns the number of active chats.
func (m *Matcher[H, P]) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active) / 2
}

// Stats is a point-in-time summary of the matcher.
type Stats struct {
	Pool    string `json:"pool"`
	Queued  int    `json:"queued"`
	Pending int    `json:"pending"`
	Active  int    `json:"active"`
}

func (m *Matcher[H, P]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Pool:    m.name,
		Queued:  len(m.queue),
		Pending: len(m.pending) / 2,
		Active:  len(m.active) / 2,
	}
}

// --- internals, m.mu must be held ---

// pair forms matches from the two oldest queued handles until fewer than
// two remain.
func (m *Matcher[H, P]) pair() {
	for len(m.queue) >= 2 {
		a := m.popFront()
		b := m.popFront()

		if a == b {
			// Cannot happen with the queued set; never match a handle with itself.
			m.violation(a, "handle queued twice")
			m.pushFront(a)
			continue
		}
		if m.inMatch(a) || m.inMatch(b) {
			m.violation(a, "matched handle found in queue")
			for _, h := range []H{b, a} {
				if !m.inMatch(h) {
					m.pushFront(h)
				}
			}
			continue
		}

		profileA, okA := m.profile(a)
		profileB, okB := m.profile(b)
		if !okA || !okB {
			// Gone handles are dropped; survivors keep their place.
			if okB {
				m.pushFront(b)
			}
			if okA {
				m.pushFront(a)
			}
			m.logger.Debug("dropped departed handle from queue",
				zap.Bool("first_gone", !okA), zap.Bool("second_gone", !okB))
			continue
		}

		match := &Match[H]{A: a, B: b, State: StatePending, CreatedAt: m.now()}
		m.pending[a] = match
		m.pending[b] = match
		if m.pendingTimeout > 0 {
			match.timer = time.AfterFunc(m.pendingTimeout, func() { m.expire(match) })
		}

		m.logger.Info("match found", zap.Any("a", a), zap.Any("b", b))
		m.notify.MatchFound(a, b, profileB)
		m.notify.MatchFound(b, a, profileA)
	}
}

// resolve finishes a pending match in which both sides have answered.
// responder is the side whose answer completed the match.
func (m *Matcher[H, P]) resolve(match *Match[H], responder H) {
	peer := match.Peer(responder)
	m.destroy(match)

	if match.bothAccepted() {
		match.State = StateActive
		m.active[match.A] = match
		m.active[match.B] = match

		peerProfile, _ := m.profile(peer)
		responderProfile, _ := m.profile(responder)
		m.notify.ChatStart(responder, peer, peerProfile)
		m.notify.ChatStart(peer, responder, responderProfile)
		if m.OnChatStart != nil {
			m.OnChatStart(match.view())
		}
		m.logger.Info("chat started", zap.Any("a", match.A), zap.Any("b", match.B))
		return
	}

	match.State = StateRequeued
	m.notify.ChatSkip(responder)
	m.notify.ChatSkip(peer)
	m.enqueue(responder)
	m.enqueue(peer)
	m.pair()
}

// expire resolves a pending match whose timer fired.
func (m *Matcher[H, P]) expire(match *Match[H]) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if match.State != StatePending || m.pending[match.A] != match {
		return
	}
	match.timer = nil

	responder := match.A
	if match.ResponseA == "" && match.ResponseB != "" {
		responder = match.B
	}
	if match.ResponseA == "" {
		match.ResponseA = Skip
	}
	if match.ResponseB == "" {
		match.ResponseB = Skip
	}
	m.logger.Info("pending match timed out", zap.Any("a", match.A), zap.Any("b", match.B))
	m.resolve(match, responder)
}

// destroy removes match from both indexes and stops its timer.
func (m *Matcher[H, P]) destroy(match *Match[H]) {
	match.stopTimer()
	for _, h := range []H{match.A, match.B} {
		if m.pending[h] == match {
			delete(m.pending, h)
		}
		if m.active[h] == match {
			delete(m.active, h)
		}
	}
}

func (m *Matcher[H, P]) matchOf(h H) (match *Match[H], active bool) {
	if match, ok := m.pending[h]; ok {
		return match, false
	}
	if match, ok := m.active[h]; ok {
		return match, true
	}
	return nil, false
}

func (m *Matcher[H, P]) inMatch(h H) bool {
	return m.pending[h] != nil || m.active[h] != nil
}

func (m *Matcher[H, P]) enqueue(h H) {
	if _, ok := m.queued[h]; ok {
		return
	}
	if m.inMatch(h) {
		m.violation(h, "enqueue of matched handle")
		return
	}
	m.queued[h] = struct{}{}
	m.queue = append(m.queue, h)
}

func (m *Matcher[H, P]) dequeue(h H) {
	if _, ok := m.queued[h]; !ok {
		return
	}
	delete(m.queued, h)
	for i, q := range m.queue {
		if q == h {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

func (m *Matcher[H, P]) popFront() H {
	h := m.queue[0]
	var zero H
	m.queue[0] = zero
	m.queue = m.queue[1:]
	delete(m.queued, h)
	return h
}

func (m *Matcher[H, P]) pushFront(h H) {
	if _, ok := m.queued[h]; ok {
		return
	}
	m.queued[h] = struct{}{}
	m.queue = append([]H{h}, m.queue...)
}

// violation reports a broken invariant. The caller repairs the state.
func (m *Matcher[H, P]) violation(h H, what string) {
	if m.strict {
		panic(fmt.Sprintf("matchmaking[%s]: %s: %v", m.name, what, h))
	}
	m.logger.Warn("matchmaking invariant violated, repairing",
		zap.String("violation", what), zap.Any("handle", h))
}
