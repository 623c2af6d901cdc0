package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrStateNotFound   = errors.New("session state not found")
	ErrNilSessionState = errors.New("session state is nil")
	ErrEmptySessionID  = errors.New("session id is empty")
)

// Store persists session state between turns. Implementations must return
// independent copies so callers can mutate freely before the next Save.
type Store interface {
	Load(ctx context.Context, sessionID string) (*SessionState, error)
	Save(ctx context.Context, s *SessionState) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore is the default single-process backend.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*SessionState{}}
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (*SessionState, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	m.mu.RLock()
	stored, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStateNotFound, sessionID)
	}
	return stored.Clone()
}

func (m *MemoryStore) Save(_ context.Context, s *SessionState) error {
	if s == nil {
		return ErrNilSessionState
	}
	if s.SessionID == "" {
		return ErrEmptySessionID
	}
	if err := s.Validate(); err != nil {
		return err
	}
	clone, err := s.Clone()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions[s.SessionID] = clone
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}
