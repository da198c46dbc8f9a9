package presence

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
)

// Stream is an open push channel to one client.
// Send must not block; Close must be idempotent.
type Stream interface {
	Send(Event) error
	Close()
}

// Origin is diagnostic metadata about where a session came from
type Origin struct {
	Addr      string `json:"addr,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// Session is one client's occupancy claim
type Session struct {
	ID        string
	CreatedAt time.Time
	LastSeen  time.Time
	Origin    Origin
	Stream    Stream // nil unless a push channel is open
}

// Streaming reports whether the session holds an open push channel
func (s Session) Streaming() bool { return s.Stream != nil }

// Store maps session IDs to records. Every method takes the same lock,
// and callbacks never run while it is held.
type Store struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	sessions map[string]*Session
}

func NewStore(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{clock: clock, sessions: map[string]*Session{}}
}

// Register inserts or refreshes id. A non-nil stream is attached; if it
// displaces a different stream that one is returned so the caller can close it.
func (st *Store) Register(id string, stream Stream, origin Origin) (replaced Stream, size int) {
	now := st.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.sessions[id]
	if s == nil {
		s = &Session{ID: id, CreatedAt: now}
		st.sessions[id] = s
	}
	s.LastSeen = now
	if origin != (Origin{}) {
		s.Origin = origin
	}
	if stream != nil {
		if s.Stream != nil && s.Stream != stream {
			replaced = s.Stream
		}
		s.Stream = stream
	}
	return replaced, len(st.sessions)
}

// Touch refreshes last-seen; false means the session is gone
func (st *Store) Touch(id string) bool {
	now := st.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return false
	}
	s.LastSeen = now
	return true
}

// Remove deletes id and returns the removed record. No-op if absent.
func (st *Store) Remove(id string) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return Session{}, false
	}
	delete(st.sessions, id)
	return *s, true
}

// RemoveStream deletes id only while it still owns stream
func (st *Store) RemoveStream(id string, stream Stream) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok || s.Stream != stream {
		return false
	}
	delete(st.sessions, id)
	return true
}

func (st *Store) Size() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// OpenStreams counts sessions holding a push channel
func (st *Store) OpenStreams() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return lo.CountBy(lo.Values(st.sessions), func(s *Session) bool { return s.Stream != nil })
}

// ForEachOpenStream snapshots the open streams, then calls fn for each
// one after the lock is released.
func (st *Store) ForEachOpenStream(fn func(id string, s Stream)) {
	type target struct {
		id     string
		stream Stream
	}

	st.mu.Lock()
	targets := make([]target, 0, len(st.sessions))
	for id, s := range st.sessions {
		if s.Stream != nil {
			targets = append(targets, target{id: id, stream: s.Stream})
		}
	}
	st.mu.Unlock()

	for _, t := range targets {
		fn(t.id, t.stream)
	}
}

// EvictStale removes every session idle for longer than threshold
func (st *Store) EvictStale(threshold time.Duration) []Session {
	now := st.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	var evicted []Session
	for id, s := range st.sessions {
		if now.Sub(s.LastSeen) > threshold {
			evicted = append(evicted, *s)
			delete(st.sessions, id)
		}
	}
	return evicted
}

// Snapshot copies every record, oldest first
func (st *Store) Snapshot() []Session {
	st.mu.Lock()
	out := lo.MapToSlice(st.sessions, func(_ string, s *Session) Session { return *s })
	st.mu.Unlock()

	slices.SortFunc(out, func(a, b Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
