package core

import (
	"sync"
	"time"
)

// Status is a user's presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
)

// ValidStatus reports whether a client may request the given status.
// Offline is reserved for disconnects.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy:
		return true
	}
	return false
}

// Presence is the authoritative presence record for one user. There is at
// most one per user id at any instant; writes are last-write-wins because a
// single hub owns every session.
type Presence struct {
	UserID     string
	Username   string
	Avatar     string
	Status     Status
	LastActive time.Time
}

// PresenceRegistry tracks which users are connected and their status.
type PresenceRegistry struct {
	mu    sync.RWMutex
	users map[string]Presence
	now   func() time.Time
}

// NewPresenceRegistry constructs an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		users: make(map[string]Presence),
		now:   time.Now,
	}
}

// SetStatus records a status for the identity and returns the new record.
func (p *PresenceRegistry) SetStatus(ident Identity, status Status) Presence {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr := Presence{
		UserID:     ident.UserID,
		Username:   ident.Username,
		Avatar:     ident.Avatar,
		Status:     status,
		LastActive: p.now().UTC(),
	}
	p.users[ident.UserID] = pr
	return pr
}

// MarkOffline transitions a user to offline, records last activity and drops
// the entry from the snapshot. Returns false if the user was not tracked.
func (p *PresenceRegistry) MarkOffline(userID string) (Presence, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, ok := p.users[userID]
	if !ok {
		return Presence{}, false
	}
	delete(p.users, userID)

	pr.Status = StatusOffline
	pr.LastActive = p.now().UTC()
	return pr, true
}

// Get returns the current presence for a user, if tracked.
func (p *PresenceRegistry) Get(userID string) (Presence, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pr, ok := p.users[userID]
	return pr, ok
}

// Snapshot lists all currently-connected users, for the users:initial event.
func (p *PresenceRegistry) Snapshot() []Presence {
	p.mu.RLock()
	defer p.mu.RUnlock()

	roster := make([]Presence, 0, len(p.users))
	for _, pr := range p.users {
		roster = append(roster, pr)
	}
	return roster
}
