package chathub

import (
	"encoding/json"

	"campusconnect/backend/internal/matchmaking"
	"campusconnect/backend/internal/models"
	"campusconnect/backend/internal/session"
	"campusconnect/backend/internal/signaling"

	"go.uber.org/zap"
)

// handleIncoming routes one client event. Malformed or out-of-place events
// are logged at debug level and dropped; the connection stays open.
func (m *ManagerService) handleIncoming(in Inbound) {
	s, ok := m.Directory.Lookup(in.Handle)
	if !ok {
		return
	}
	m.touch(s)

	h := in.Handle
	env := in.Envelope
	log := m.logger.With(zap.String("handle", h.String()), zap.String("type", env.Type))

	switch env.Type {
	case models.EventStartSearch:
		m.search(m.Voice, m.Video, h, log)
	case models.EventUserResponse:
		m.respond(m.Voice, h, env.Payload, log)
	case models.EventChatEnded:
		m.Voice.EndChat(h)

	case models.EventStartVideoSearch:
		m.search(m.Video, m.Voice, h, log)
	case models.EventVideoResponse:
		m.respond(m.Video, h, env.Payload, log)
	case models.EventVideoChatEnded:
		m.Video.EndChat(h)
	case models.EventVideoChatSkip:
		m.Video.SkipChat(h)

	case models.EventOffer, models.EventAnswer, models.EventIceCandidate:
		kind, _ := signaling.ParseKind(env.Type)
		var req models.SignalRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			log.Debug("bad signaling payload", zap.Error(err))
			return
		}
		m.Relay.Relay(kind, h, session.Handle(req.To), req.Payload)

	case models.EventJoinRoom:
		var req models.JoinRoomRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil || req.RoomID == "" {
			log.Debug("bad join-room payload", zap.Error(err))
			return
		}
		m.Directory.JoinRoom(h, req.RoomID)
		m.Broadcaster.BroadcastRoomUsers(req.RoomID)

	case models.EventJoinVoiceChat:
		if m.Directory.JoinRoom(h, VoiceLobby) {
			m.Broadcaster.BroadcastLobby(VoiceLobby, models.EventVoiceChatUsers)
		}
	case models.EventLeaveVoiceChat:
		if m.Directory.LeaveRoom(h, VoiceLobby) {
			m.Broadcaster.BroadcastLobby(VoiceLobby, models.EventVoiceChatUsers)
		}
	case models.EventJoinVideoChat:
		if m.Directory.JoinRoom(h, VideoLobby) {
			m.Broadcaster.BroadcastLobby(VideoLobby, models.EventVideoChatUsers)
		}
	case models.EventLeaveVideoChat:
		if m.Directory.LeaveRoom(h, VideoLobby) {
			m.Broadcaster.BroadcastLobby(VideoLobby, models.EventVideoChatUsers)
		}

	case models.EventTyping:
		m.Broadcaster.BroadcastTyping(s.UserID(), h)

	case models.EventHeartbeat:
		// Touch above is all a heartbeat does.

	default:
		log.Debug("unknown event type")
	}
}

// search queues h in pool. A handle belongs to one pool at a time: a queued
// search in the other pool is withdrawn, and a match there blocks the search.
func (m *ManagerService) search(pool, other *Pool, h session.Handle, log *zap.Logger) {
	switch other.State(h) {
	case matchmaking.Pending, matchmaking.Active:
		log.Debug("search ignored, matched in the other pool")
		return
	case matchmaking.Queued:
		other.Disconnect(h)
	}
	pool.StartSearch(h)
}

func (m *ManagerService) respond(pool *Pool, h session.Handle, payload json.RawMessage, log *zap.Logger) {
	var req models.ResponseRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Debug("bad response payload", zap.Error(err))
		return
	}
	decision, ok := matchmaking.ParseDecision(req.Response)
	if !ok {
		log.Debug("unknown match response", zap.String("response", req.Response))
		return
	}
	pool.Respond(h, decision)
}
