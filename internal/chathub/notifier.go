package chathub

import (
	"campusconnect/backend/internal/matchmaking"
	"campusconnect/backend/internal/models"
	"campusconnect/backend/internal/session"

	"go.uber.org/zap"
)

// VideoPrefix is prepended to every match event of the video pool.
const VideoPrefix = "video-"

// matchNotifier turns matcher callbacks into socket events. It runs under
// the matcher lock, so it only does non-blocking sends.
type matchNotifier struct {
	t      Transport
	dir    *session.Directory
	prefix string
	logger *zap.Logger
}

var _ matchmaking.Notifier[session.Handle, models.PeerProfile] = (*matchNotifier)(nil)

func (n *matchNotifier) send(to session.Handle, event string, payload any) {
	env, ok := newEnvelope(n.logger, n.prefix+event, payload)
	if !ok {
		return
	}
	if !n.t.Send(to, env) {
		n.logger.Debug("match event not delivered",
			zap.String("type", env.Type), zap.String("to", to.String()))
	}
}

func (n *matchNotifier) displayName(h session.Handle) string {
	if s, ok := n.dir.Lookup(h); ok {
		return s.Identity.DisplayName
	}
	return ""
}

func (n *matchNotifier) MatchFound(to, peer session.Handle, profile models.PeerProfile) {
	n.send(to, models.EventMatchFound, models.MatchPayload{PeerID: peer.String(), PeerInfo: profile})
}

func (n *matchNotifier) WaitingOnPeer(to session.Handle) {
	n.send(to, models.EventWaitingOnPeer, nil)
}

func (n *matchNotifier) ChatStart(to, peer session.Handle, profile models.PeerProfile) {
	n.send(to, models.EventChatStart, models.MatchPayload{PeerID: peer.String(), PeerInfo: profile})
}

func (n *matchNotifier) ChatSkip(to session.Handle) {
	n.send(to, models.EventChatSkip, nil)
}

func (n *matchNotifier) ChatSkippedBy(to, by session.Handle) {
	n.send(to, models.EventChatSkip, models.ChatEventPayload{By: by.String(), Name: n.displayName(by)})
}

func (n *matchNotifier) ChatEnded(to, by session.Handle) {
	n.send(to, models.EventChatEnded, models.ChatEventPayload{By: by.String(), Name: n.displayName(by)})
}

func (n *matchNotifier) PeerLeft(to, peer session.Handle, reason string) {
	n.send(to, models.EventPeerLeft, models.PeerLeftPayload{PeerID: peer.String(), Reason: reason})
}
