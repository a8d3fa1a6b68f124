package models

import (
	"encoding/json"
	"time"
)

// Envelope is the JSON frame exchanged over the socket in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope. A nil payload yields an
// envelope without a payload field.
func NewEnvelope(eventType string, payload any) (Envelope, error) {
	env := Envelope{Type: eventType}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return env, err
	}
	env.Payload = raw
	return env, nil
}

// Inbound socket events.
const (
	EventStartSearch      = "start-search"
	EventUserResponse     = "user-response"
	EventChatEnded        = "chat-ended"
	EventStartVideoSearch = "start-video-search"
	EventVideoResponse    = "video-user-response"
	EventVideoChatEnded   = "video-chat-ended"
	EventVideoChatSkip    = "video-chat-skip"
	EventOffer            = "offer"
	EventAnswer           = "answer"
	EventIceCandidate     = "ice-candidate"
	EventJoinRoom         = "join-room"
	EventJoinVoiceChat    = "join-voice-chat"
	EventLeaveVoiceChat   = "leave-voice-chat"
	EventJoinVideoChat    = "join-video-chat"
	EventLeaveVideoChat   = "leave-video-chat"
	EventTyping           = "typing"
	EventHeartbeat        = "heartbeat"
)

// Outbound socket events. Match events are prefixed with "video-" for the
// video pool.
const (
	EventMatchFound     = "match-found"
	EventWaitingOnPeer  = "waiting-peer-response"
	EventChatStart      = "chat-start"
	EventChatSkip       = "chat-skip"
	EventPeerLeft       = "peer-left"
	EventUserOnline     = "user_online"
	EventUserOffline    = "user_offline"
	EventOnlineUsers    = "online_users"
	EventUserTyping     = "user_typing"
	EventAllUsers       = "all-users"
	EventVoiceChatUsers = "voice-chat-users"
	EventVideoChatUsers = "video-chat-users"
)

// MatchPayload is sent with match-found and chat-start.
type MatchPayload struct {
	PeerID   string      `json:"peerId"`
	PeerInfo PeerProfile `json:"peerInfo"`
}

// ChatEventPayload is sent with chat-ended and with chat-skip when a peer
// skipped an active chat.
type ChatEventPayload struct {
	By   string `json:"by"`
	Name string `json:"name,omitempty"`
}

type PeerLeftPayload struct {
	PeerID string `json:"peerId"`
	Reason string `json:"reason"`
}

type UserPayload struct {
	UserID string `json:"userId"`
}

type CountPayload struct {
	Count int `json:"count"`
}

type UserListPayload struct {
	UserIDs []string `json:"userIds"`
}

// ResponseRequest is the payload of user-response / video-user-response.
type ResponseRequest struct {
	Response string `json:"response"` // "connect" or "skip"
}

// SignalRequest is the payload of offer, answer and ice-candidate.
type SignalRequest struct {
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
}

// PresenceEvent is published on the Redis presence channel whenever a user
// goes online or offline.
type PresenceEvent struct {
	UserID string    `json:"userId"`
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}
