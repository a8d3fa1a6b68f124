// Package session maps live connection handles to the authenticated users
// behind them and to the broadcast rooms they joined.
package session

import (
	"errors"
	"sort"
	"sync"

	"campusconnect/backend/internal/models"

	"github.com/google/uuid"
)

// ErrDuplicateHandle is returned when a handle is bound twice.
var ErrDuplicateHandle = errors.New("session: handle already bound")

// Handle identifies one live transport connection.
type Handle string

// NewHandle mints a fresh random handle.
func NewHandle() Handle {
	return Handle(uuid.NewString())
}

func (h Handle) String() string { return string(h) }

// Session is the user bound to a handle plus the rooms it joined.
type Session struct {
	Handle   Handle
	Identity models.Identity
	Rooms    map[string]struct{}
}

func (s Session) UserID() string { return s.Identity.UserID }

// InRoom reports whether the session joined roomID.
func (s Session) InRoom(roomID string) bool {
	_, ok := s.Rooms[roomID]
	return ok
}

// Directory owns every Session for the lifetime of its handle.
// It is safe for concurrent use.
type Directory struct {
	mu       sync.RWMutex
	sessions map[Handle]*Session
	rooms    map[string]map[Handle]struct{}
}

func NewDirectory() *Directory {
	return &Directory{
		sessions: make(map[Handle]*Session),
		rooms:    make(map[string]map[Handle]struct{}),
	}
}

// Bind attaches identity to handle.
func (d *Directory) Bind(h Handle, identity models.Identity) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[h]; ok {
		return Session{}, ErrDuplicateHandle
	}
	s := &Session{Handle: h, Identity: identity, Rooms: make(map[string]struct{})}
	d.sessions[h] = s
	return s.snapshot(), nil
}

// Unbind removes the handle's session, leaving all of its rooms.
func (d *Directory) Unbind(h Handle) (Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[h]
	if !ok {
		return Session{}, false
	}
	for roomID := range s.Rooms {
		d.removeMember(roomID, h)
	}
	delete(d.sessions, h)
	return s.snapshot(), true
}

func (d *Directory) Lookup(h Handle) (Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[h]
	if !ok {
		return Session{}, false
	}
	return s.snapshot(), true
}

// IsLive reports whether h is currently bound.
func (d *Directory) IsLive(h Handle) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.sessions[h]
	return ok
}

// JoinRoom adds the handle to roomID. It returns false when the handle is
// unknown or already a member.
func (d *Directory) JoinRoom(h Handle, roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[h]
	if !ok {
		return false
	}
	if _, member := s.Rooms[roomID]; member {
		return false
	}
	s.Rooms[roomID] = struct{}{}

	members := d.rooms[roomID]
	if members == nil {
		members = make(map[Handle]struct{})
		d.rooms[roomID] = members
	}
	members[h] = struct{}{}
	return true
}

// LeaveRoom removes the handle from roomID and reports whether it was a member.
func (d *Directory) LeaveRoom(h Handle, roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[h]
	if !ok {
		return false
	}
	if _, member := s.Rooms[roomID]; !member {
		return false
	}
	delete(s.Rooms, roomID)
	d.removeMember(roomID, h)
	return true
}

// HandlesInRoom returns the members of roomID in lexical order.
func (d *Directory) HandlesInRoom(roomID string) []Handle {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Handle, 0, len(d.rooms[roomID]))
	for h := range d.rooms[roomID] {
		out = append(out, h)
	}
	sortHandles(out)
	return out
}

// UserIDsInRoom returns the distinct users with at least one handle in roomID.
func (d *Directory) UserIDsInRoom(roomID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{})
	ids := make([]string, 0, len(d.rooms[roomID]))
	for h := range d.rooms[roomID] {
		id := d.sessions[h].Identity.UserID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SessionsInRoom returns snapshots of the sessions in roomID.
func (d *Directory) SessionsInRoom(roomID string) []Session {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Session, 0, len(d.rooms[roomID]))
	for h := range d.rooms[roomID] {
		out = append(out, d.sessions[h].snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// Handles returns every bound handle in lexical order.
func (d *Directory) Handles() []Handle {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Handle, 0, len(d.sessions))
	for h := range d.sessions {
		out = append(out, h)
	}
	sortHandles(out)
	return out
}

// HandlesForUser returns the handles owned by userID (multi-device).
func (d *Directory) HandlesForUser(userID string) []Handle {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Handle
	for h, s := range d.sessions {
		if s.Identity.UserID == userID {
			out = append(out, h)
		}
	}
	sortHandles(out)
	return out
}

func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// removeMember must be called with d.mu held.
func (d *Directory) removeMember(roomID string, h Handle) {
	members := d.rooms[roomID]
	delete(members, h)
	if len(members) == 0 {
		delete(d.rooms, roomID)
	}
}

func (s *Session) snapshot() Session {
	rooms := make(map[string]struct{}, len(s.Rooms))
	for r := range s.Rooms {
		rooms[r] = struct{}{}
	}
	return Session{Handle: s.Handle, Identity: s.Identity, Rooms: rooms}
}

func sortHandles(hs []Handle) {
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
}
