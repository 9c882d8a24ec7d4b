package core

import (
	"sync"
	"time"
)

// PresenceStatus is a principal's visibility state.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// PresenceRecord is the published presence of one principal. LastSeen is
// zero until the principal has gone offline at least once.
type PresenceRecord struct {
	Principal int64
	Username  string
	Status    PresenceStatus
	LastSeen  time.Time
}

// Presence tracks per-principal status. Transitions are applied by the hub
// loop; snapshots are read concurrently by the HTTP layer, hence the lock.
type Presence struct {
	mu          sync.RWMutex
	now         func() time.Time
	byPrincipal map[int64]*PresenceRecord
}

func NewPresence() *Presence {
	return &Presence{
		now:         time.Now,
		byPrincipal: make(map[int64]*PresenceRecord),
	}
}

// MarkOnline records the principal as online. It reports false when the
// principal was already online, so callers emit one transition per edge.
func (p *Presence) MarkOnline(principal int64, username string) (PresenceRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.byPrincipal[principal]
	if rec == nil {
		rec = &PresenceRecord{Principal: principal, Username: username}
		p.byPrincipal[principal] = rec
	}
	rec.Username = username
	if rec.Status == StatusOnline {
		return *rec, false
	}
	rec.Status = StatusOnline
	return *rec, true
}

// MarkOffline records the principal as offline and stamps LastSeen. It
// reports false when the principal was not online.
func (p *Presence) MarkOffline(principal int64) (PresenceRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.byPrincipal[principal]
	if rec == nil || rec.Status != StatusOnline {
		if rec == nil {
			return PresenceRecord{Principal: principal, Status: StatusOffline}, false
		}
		return *rec, false
	}
	rec.Status = StatusOffline
	rec.LastSeen = p.now()
	return *rec, true
}

// Snapshot returns the published presence of a principal. Principals never
// seen by this process report offline with a zero LastSeen.
func (p *Presence) Snapshot(principal int64) PresenceRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if rec := p.byPrincipal[principal]; rec != nil {
		return *rec
	}
	return PresenceRecord{Principal: principal, Status: StatusOffline}
}

// Reset forgets every record.
func (p *Presence) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byPrincipal = make(map[int64]*PresenceRecord)
}
