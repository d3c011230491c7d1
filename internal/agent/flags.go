package agent

import (
	"sync"
	"time"
)

const (
	// DefaultMaxSessions bounds the number of remembered session scopes
	DefaultMaxSessions = 1024
	// DefaultSessionIdleTTL is how long an unused scope is kept
	DefaultSessionIdleTTL = 30 * time.Minute
)

// Flag is one pending UI change
type Flag struct {
	Changed bool `json:"changed"`
	Value   any  `json:"value,omitempty"`
}

func (f *Flag) set(v any) {
	f.Changed = true
	f.Value = v
}

// PendingUIFlags collects the UI changes requested during one chat turn
type PendingUIFlags struct {
	StrokeColor    Flag `json:"strokeColor"`
	StrokeWeight   Flag `json:"strokeWeight"`
	StrokeBy       Flag `json:"strokeBy"`
	FillColor      Flag `json:"fillColor"`
	FillOpacity    Flag `json:"fillOpacity"`
	FillBy         Flag `json:"fillBy"`
	SchoolType     Flag `json:"schoolType"`
	SchoolCategory Flag `json:"schoolCategory"`
	LatLng         Flag `json:"latLng"`
}

// Reset marks every flag unchanged
func (f *PendingUIFlags) Reset() {
	*f = PendingUIFlags{}
}

// Any reports whether a flag was set
func (f PendingUIFlags) Any() bool {
	for _, flag := range []Flag{
		f.StrokeColor, f.StrokeWeight, f.StrokeBy,
		f.FillColor, f.FillOpacity, f.FillBy,
		f.SchoolType, f.SchoolCategory, f.LatLng,
	} {
		if flag.Changed {
			return true
		}
	}
	return false
}

// SessionFlags is the flag scope of one chat session. A turn holds the lock
// from reset until the flags are returned.
type SessionFlags struct {
	mu       sync.Mutex
	flags    PendingUIFlags
	lastUsed time.Time
}

// FlagRegistry hands out one flag scope per session. Scopes idle for longer
// than IdleTTL are swept on access, and the least recently used idle scope is
// evicted once MaxSessions is reached. A scope held by a running turn is never
// evicted.
type FlagRegistry struct {
	MaxSessions int
	IdleTTL     time.Duration

	mu       sync.Mutex
	sessions map[string]*SessionFlags
	now      func() time.Time
}

// NewFlagRegistry creates an empty registry with the default bounds
func NewFlagRegistry() *FlagRegistry {
	return &FlagRegistry{
		MaxSessions: DefaultMaxSessions,
		IdleTTL:     DefaultSessionIdleTTL,
		sessions:    make(map[string]*SessionFlags),
		now:         time.Now,
	}
}

// Session returns the scope for id, creating it on first use
func (r *FlagRegistry) Session(id string) *SessionFlags {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if s, ok := r.sessions[id]; ok {
		s.lastUsed = now
		return s
	}

	r.sweep(now)
	if r.MaxSessions > 0 && len(r.sessions) >= r.MaxSessions {
		r.evictOldest()
	}

	s := &SessionFlags{lastUsed: now}
	r.sessions[id] = s
	return s
}

// sweep drops idle scopes past the TTL. Caller holds r.mu.
func (r *FlagRegistry) sweep(now time.Time) {
	if r.IdleTTL <= 0 {
		return
	}
	for id, s := range r.sessions {
		if now.Sub(s.lastUsed) > r.IdleTTL && idle(s) {
			delete(r.sessions, id)
		}
	}
}

// evictOldest drops the least recently used idle scope. Caller holds r.mu.
func (r *FlagRegistry) evictOldest() {
	var oldestID string
	var oldest *SessionFlags
	for id, s := range r.sessions {
		if oldest == nil || s.lastUsed.Before(oldest.lastUsed) {
			if idle(s) {
				oldestID, oldest = id, s
			}
		}
	}
	if oldest != nil {
		delete(r.sessions, oldestID)
	}
}

// idle reports whether no turn currently holds the scope
func idle(s *SessionFlags) bool {
	if !s.mu.TryLock() {
		return false
	}
	s.mu.Unlock()
	return true
}

// Forget drops the scope for id
func (r *FlagRegistry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of known sessions
func (r *FlagRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
