package chathub

import (
	"context"
	"sync"

	"campusconnect/backend/internal/matchmaking"
	"campusconnect/backend/internal/models"
	"campusconnect/backend/internal/session"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type roomKey struct {
	kind string
	a, b session.Handle
}

type trackedRoom struct {
	id    string
	saved chan struct{}
}

// roomTracker writes a ChatRoom row for every active chat. Callbacks come
// from matcher hooks, so all storage work is pushed to the background.
type roomTracker struct {
	hub *ManagerService

	mu    sync.Mutex
	rooms map[roomKey]trackedRoom
}

func newRoomTracker(hub *ManagerService) *roomTracker {
	return &roomTracker{hub: hub, rooms: make(map[roomKey]trackedRoom)}
}

func (t *roomTracker) started(kind string, match matchmaking.Match[session.Handle]) {
	room := &models.ChatRoom{
		RoomID:    uuid.NewString(),
		Kind:      kind,
		User1ID:   t.userOf(match.A),
		User2ID:   t.userOf(match.B),
		Handle1:   match.A.String(),
		Handle2:   match.B.String(),
		IsActive:  true,
		StartedAt: t.hub.now(),
	}
	tracked := trackedRoom{id: room.RoomID, saved: make(chan struct{})}

	t.mu.Lock()
	t.rooms[roomKey{kind, match.A, match.B}] = tracked
	t.mu.Unlock()

	t.hub.logger.Info("chat room opened",
		zap.String("room_id", room.RoomID), zap.String("kind", kind),
		zap.String("user1", room.User1ID), zap.String("user2", room.User2ID))

	t.hub.persist("save room", func(ctx context.Context) error {
		defer close(tracked.saved)
		return t.hub.store.SaveRoom(ctx, room)
	})
}

func (t *roomTracker) ended(kind string, match matchmaking.Match[session.Handle], reason matchmaking.EndReason) {
	key := roomKey{kind, match.A, match.B}

	t.mu.Lock()
	tracked, ok := t.rooms[key]
	delete(t.rooms, key)
	t.mu.Unlock()
	if !ok {
		return
	}

	at := t.hub.now()
	t.hub.logger.Info("chat room closed",
		zap.String("room_id", tracked.id), zap.String("reason", string(reason)))

	t.hub.persist("close room", func(ctx context.Context) error {
		// The row must exist before it can be closed.
		select {
		case <-tracked.saved:
		case <-ctx.Done():
			return ctx.Err()
		}
		return t.hub.store.CloseRoom(ctx, tracked.id, string(reason), at)
	})
}

// open returns the number of chats currently tracked.
func (t *roomTracker) open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rooms)
}

func (t *roomTracker) userOf(h session.Handle) string {
	if s, ok := t.hub.Directory.Lookup(h); ok {
		return s.UserID()
	}
	return ""
}
