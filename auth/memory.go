package auth

import "sync"

// Memory is an in-memory Storage. Data is lost on restart.
type Memory struct {
	mu    sync.RWMutex
	token *TokenData
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// GetToken returns a copy of the stored token, or nil.
func (m *Memory) GetToken() *TokenData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == nil {
		return nil
	}
	t := *m.token
	return &t
}

// SetToken stores a copy of t.
func (m *Memory) SetToken(t TokenData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = &t
	return nil
}

// ClearToken removes the token.
func (m *Memory) ClearToken() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
	return nil
}

// IsAvailable always reports true.
func (m *Memory) IsAvailable() bool {
	return true
}
