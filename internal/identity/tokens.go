package identity

import "sync"

// Token is a gateway-issued device credential, keyed by (deviceID, role).
// Last write wins on the same key.
type Token struct {
	Token       string
	Role        string
	Scopes      []string
	UpdatedAtMs int64
}

// TokenStore persists device tokens between launches.
type TokenStore interface {
	Load(deviceID, role string) (Token, bool)
	Store(deviceID, role, token string, scopes []string) error
	Clear(deviceID, role string) error
}

// MemoryTokenStore keeps tokens in memory only. Used by tests and one-shot
// commands that should not rotate the persisted credential.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]Token
}

// NewMemoryTokenStore returns an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]Token)}
}

func (s *MemoryTokenStore) Load(deviceID, role string) (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[deviceID+"\x00"+role]
	return tok, ok
}

func (s *MemoryTokenStore) Store(deviceID, role, token string, scopes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[deviceID+"\x00"+role] = Token{Token: token, Role: role, Scopes: scopes}
	return nil
}

func (s *MemoryTokenStore) Clear(deviceID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, deviceID+"\x00"+role)
	return nil
}
