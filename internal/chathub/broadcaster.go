package chathub

import (
	"campusconnect/backend/internal/models"
	"campusconnect/backend/internal/session"

	"go.uber.org/zap"
)

// Broadcast rooms managed by the hub.
const (
	VoiceLobby = "voice-lobby"
	VideoLobby = "video-lobby"
)

// UserRoom is the per-user room every connection of userID joins.
func UserRoom(userID string) string {
	return "user_" + userID
}

// Transport delivers envelopes to live handles. Every method is
// non-blocking and silently skips handles that are gone.
type Transport interface {
	Send(h session.Handle, env models.Envelope) bool
	// Broadcast sends to every handle except `except` ("" for none) and
	// returns the number of handles reached.
	Broadcast(env models.Envelope, except session.Handle) int
	BroadcastToRoom(roomID string, env models.Envelope, except session.Handle) int
	JoinRoom(h session.Handle, roomID string) bool
}

// Broadcaster fans presence changes out to connected clients.
type Broadcaster struct {
	t      Transport
	dir    *session.Directory
	logger *zap.Logger
}

func NewBroadcaster(t Transport, dir *session.Directory, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{t: t, dir: dir, logger: logger}
}

// BroadcastOnline tells everyone but the connecting handle that userID is online.
func (b *Broadcaster) BroadcastOnline(userID string, except session.Handle) {
	if env, ok := newEnvelope(b.logger, models.EventUserOnline, models.UserPayload{UserID: userID}); ok {
		b.t.Broadcast(env, except)
	}
}

func (b *Broadcaster) BroadcastOffline(userID string) {
	if env, ok := newEnvelope(b.logger, models.EventUserOffline, models.UserPayload{UserID: userID}); ok {
		b.t.Broadcast(env, "")
	}
}

func (b *Broadcaster) BroadcastTyping(userID string, except session.Handle) {
	if env, ok := newEnvelope(b.logger, models.EventUserTyping, models.UserPayload{UserID: userID}); ok {
		b.t.Broadcast(env, except)
	}
}

// BroadcastOnlineCount sends the number of online users to everyone.
func (b *Broadcaster) BroadcastOnlineCount(n int) {
	if env, ok := newEnvelope(b.logger, models.EventOnlineUsers, models.CountPayload{Count: n}); ok {
		b.t.Broadcast(env, "")
	}
}

// BroadcastLobby sends the ids of the users in roomID to the room's members.
func (b *Broadcaster) BroadcastLobby(roomID, eventType string) {
	ids := b.dir.UserIDsInRoom(roomID)
	if env, ok := newEnvelope(b.logger, eventType, models.UserListPayload{UserIDs: ids}); ok {
		b.t.BroadcastToRoom(roomID, env, "")
	}
}

// BroadcastRoomUsers sends all-users, the profiles of every connection in
// roomID, to the room's members.
func (b *Broadcaster) BroadcastRoomUsers(roomID string) {
	sessions := b.dir.SessionsInRoom(roomID)
	members := make([]models.RoomMember, 0, len(sessions))
	for _, s := range sessions {
		members = append(members, models.RoomMember{
			SocketID:    s.Handle.String(),
			PeerProfile: s.Identity.Profile(),
		})
	}
	if env, ok := newEnvelope(b.logger, models.EventAllUsers, members); ok {
		b.t.BroadcastToRoom(roomID, env, "")
	}
}

func newEnvelope(logger *zap.Logger, eventType string, payload any) (models.Envelope, bool) {
	env, err := models.NewEnvelope(eventType, payload)
	if err != nil {
		logger.Error("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return env, false
	}
	return env, true
}
