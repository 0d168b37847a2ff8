package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
)

// DefaultMaxSessions bounds how many runs are kept in memory.
const DefaultMaxSessions = 16

// Session is one completed analysis run. Sessions are immutable once stored;
// a new upload creates a new Session rather than mutating an old one.
type Session struct {
	ID        uuid.UUID           `json:"id"`
	CreatedAt time.Time           `json:"created_at"`
	Options   analysis.Options    `json:"options"`
	Run       *analysis.RunResult `json:"run"`
}

// Store keeps sessions in memory, evicting the oldest beyond max.
type Store struct {
	max    int
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Session
	order  []uuid.UUID
	latest atomic.Pointer[Session]
}

func NewStore(max int) *Store {
	if max <= 0 {
		max = DefaultMaxSessions
	}
	return &Store{max: max, byID: make(map[uuid.UUID]*Session)}
}

// Put stores s and makes it the latest session.
func (st *Store) Put(s *Session) {
	st.mu.Lock()
	if _, ok := st.byID[s.ID]; !ok {
		st.order = append(st.order, s.ID)
	}
	st.byID[s.ID] = s
	for len(st.order) > st.max {
		delete(st.byID, st.order[0])
		st.order = st.order[1:]
	}
	st.mu.Unlock()
	st.latest.Store(s)
}

func (st *Store) Get(id uuid.UUID) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.byID[id]
	return s, ok
}

// Latest returns the most recently stored session, if it is still held.
func (st *Store) Latest() (*Session, bool) {
	s := st.latest.Load()
	if s == nil {
		return nil, false
	}
	if _, ok := st.Get(s.ID); !ok {
		return nil, false
	}
	return s, true
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}
