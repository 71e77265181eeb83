package client

import "sync"

// Credentials is the token pair a client holds for its session
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// CredentialStore keeps the client's current credentials
type CredentialStore interface {
	Load() (Credentials, bool)
	Save(Credentials)
	Clear()
}

// MemoryCredentialStore keeps credentials in process memory
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds Credentials
	set   bool
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)

// NewMemoryCredentialStore creates an empty store
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

// Load returns the stored credentials and whether any are set
func (s *MemoryCredentialStore) Load() (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, s.set
}

// Save replaces the stored credentials
func (s *MemoryCredentialStore) Save(creds Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	s.set = true
}

// Clear forgets the stored credentials
func (s *MemoryCredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	s.set = false
}
