// Package session holds the credential and per-session markers of one
// console connection. Nothing here survives the process.
package session

import "sync"

// Session is safe for concurrent use.
type Session struct {
	mu       sync.RWMutex
	password string
	readOnly bool
	alerted  map[string]struct{}
}

// New returns an empty session.
func New() *Session {
	return &Session{alerted: make(map[string]struct{})}
}

// Password returns the stored credential, empty when none was saved.
func (s *Session) Password() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.password
}

// SetPassword stores the credential for the rest of the session.
func (s *Session) SetPassword(password string) {
	s.mu.Lock()
	s.password = password
	s.mu.Unlock()
}

// ReadOnly reports the server-declared read-only flag.
func (s *Session) ReadOnly() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readOnly
}

// SetReadOnly records the read-only flag from the stat or auth response.
func (s *Session) SetReadOnly(v bool) {
	s.mu.Lock()
	s.readOnly = v
	s.mu.Unlock()
}

// MarkAlerted records key and reports whether it was not marked before.
func (s *Session) MarkAlerted(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerted[key]; ok {
		return false
	}
	s.alerted[key] = struct{}{}
	return true
}

// Clear drops the credential, the read-only flag and every alert marker.
func (s *Session) Clear() {
	s.mu.Lock()
	s.password = ""
	s.readOnly = false
	s.alerted = make(map[string]struct{})
	s.mu.Unlock()
}
