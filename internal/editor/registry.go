package editor

import (
	"sync"
	"time"
)

type registryEntry struct {
	session  *Session
	autosave *Debouncer
	touched  time.Time
}

// Registry keeps live editor sessions in memory. Sessions idle longer than
// the TTL are evicted on access or by Sweep.
type Registry struct {
	mu            sync.Mutex
	ttl           time.Duration
	autosaveDelay time.Duration
	autosave      func(*Session)
	now           func() time.Time
	entries       map[string]*registryEntry
}

// NewRegistry builds a registry. When autosave is non-nil every change to a
// registered session schedules autosave(session) after autosaveDelay of
// inactivity.
func NewRegistry(ttl, autosaveDelay time.Duration, autosave func(*Session)) *Registry {
	return &Registry{
		ttl:           ttl,
		autosaveDelay: autosaveDelay,
		autosave:      autosave,
		now:           time.Now,
		entries:       make(map[string]*registryEntry),
	}
}

func (r *Registry) Add(s *Session) {
	entry := &registryEntry{session: s, touched: r.now()}
	if r.autosave != nil {
		entry.autosave = NewDebouncer(r.autosaveDelay, func() { r.autosave(s) })
		s.setOnChange(entry.autosave.Trigger)
	}
	r.mu.Lock()
	r.entries[s.ID()] = entry
	r.mu.Unlock()
}

// Get returns the session when it exists, has not expired and belongs to
// ownerID.
func (r *Registry) Get(id, ownerID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	entry, ok := r.entries[id]
	if !ok || entry.session.OwnerID() != ownerID {
		return nil, ErrSessionNotFound
	}
	entry.touched = r.now()
	return entry.session, nil
}

// Remove forgets a session, flushing its pending autosave when flush is set.
func (r *Registry) Remove(id string, flush bool) {
	r.mu.Lock()
	entry, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok || entry.autosave == nil {
		return
	}
	if flush {
		entry.autosave.Flush()
	}
	entry.autosave.Stop()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked()
}

func (r *Registry) sweepLocked() int {
	if r.ttl <= 0 {
		return 0
	}
	now := r.now()
	removed := 0
	for id, entry := range r.entries {
		if now.Sub(entry.touched) <= r.ttl {
			continue
		}
		if entry.autosave != nil {
			entry.autosave.Stop()
		}
		delete(r.entries, id)
		removed++
	}
	return removed
}
