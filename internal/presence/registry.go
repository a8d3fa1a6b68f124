// Package presence tracks which users are currently considered online,
// based on their most recent authenticated activity.
package presence

import (
	"sort"
	"sync"
	"time"
)

// DefaultTTL is how long a user stays online without any activity.
const DefaultTTL = 5 * time.Minute

// Presence is a single registry entry.
type Presence struct {
	UserID         string
	LastActivityAt time.Time
}

// Registry maps user IDs to their last activity time.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewRegistry creates an empty registry using the wall clock.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Touch inserts or refreshes the user's entry and returns the recorded time.
func (r *Registry) Touch(userID string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := r.now()
	r.entries[userID] = at
	return at
}

// Refresh is Touch that also reports whether the user had no entry.
func (r *Registry) Refresh(userID string) (at time.Time, revived bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.entries[userID]
	at = r.now()
	r.entries[userID] = at
	return at, !existed
}

// Remove deletes the user's entry and reports whether it existed.
func (r *Registry) Remove(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[userID]; !ok {
		return false
	}
	delete(r.entries, userID)
	return true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[userID]
	return ok
}

// LastSeen returns the last recorded activity for the user, if any.
func (r *Registry) LastSeen(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	at, ok := r.entries[userID]
	return at, ok
}

// OnlineUserIDs returns the online user IDs in lexical order.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// SweepStale removes every entry whose last activity is strictly older than
// now-threshold and returns the removed entries, oldest first.
func (r *Registry) SweepStale(threshold time.Duration, now time.Time) []Presence {
	cutoff := now.Add(-threshold)

	r.mu.Lock()
	var stale []Presence
	for id, at := range r.entries {
		if at.Before(cutoff) {
			stale = append(stale, Presence{UserID: id, LastActivityAt: at})
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	sort.Slice(stale, func(i, j int) bool {
		if stale[i].LastActivityAt.Equal(stale[j].LastActivityAt) {
			return stale[i].UserID < stale[j].UserID
		}
		return stale[i].LastActivityAt.Before(stale[j].LastActivityAt)
	})
	return stale
}
