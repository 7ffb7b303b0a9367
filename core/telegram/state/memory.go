package state

import (
	"sync"
	"time"
)

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]Session
	now      func() time.Time
}

// NewMemoryManager returns a Manager backed by a mutex-guarded map. Entries
// live until cleared or until the process exits.
func NewMemoryManager() Manager {
	return &memoryManager{
		sessions: make(map[int64]Session),
		now:      time.Now,
	}
}

func (m *memoryManager) Get(userID int64) Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[userID]; ok {
		return s
	}
	return Session{State: StateIdle}
}

func (m *memoryManager) Set(userID int64, s Session) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.sessions[userID]
	if s.State == "" {
		s.State = StateIdle
	}
	s.UpdatedAt = m.now()
	m.sessions[userID] = s
	return prev, ok
}

func (m *memoryManager) Update(userID int64, fn func(*Session)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return false
	}
	fn(&s)
	s.UpdatedAt = m.now()
	m.sessions[userID] = s
	return true
}

func (m *memoryManager) Clear(userID int64) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.sessions[userID]
	delete(m.sessions, userID)
	return prev, ok
}

func (m *memoryManager) InProgress(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return ok && s.State != StateIdle
}

func (m *memoryManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
