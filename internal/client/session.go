package client

import (
	"sync"
)

// Current tokens of the client mirrored to the store
// Epoch changes on every sign in and sign out, so a refresh started before them can be detected and dropped
type Session struct {
	mu     sync.Mutex
	store  TokenStore
	tokens Tokens
	epoch  uint64
}

func NewSession(store TokenStore) (*Session, error) {
	tokens, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Session{store: store, tokens: tokens}, nil
}

func (s *Session) Current() (Tokens, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens, s.epoch
}

// Start new session with fresh tokens (sign in or sign up)
func (s *Session) Start(tokens Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.tokens = tokens
	return s.store.Save(tokens)
}

// End session (sign out)
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.tokens = Tokens{}
	return s.store.Clear()
}

// Replace tokens after refresh if the session is still the one refresh started in
func (s *Session) Replace(epoch uint64, tokens Tokens) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		return false, nil
	}
	s.tokens = tokens
	return true, s.store.Save(tokens)
}

// End session after failed refresh unless it was already replaced
func (s *Session) EndIf(epoch uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		return nil
	}
	s.epoch++
	s.tokens = Tokens{}
	return s.store.Clear()
}
