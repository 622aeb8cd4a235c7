package client

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/cse-psgtech/infinitum-helpdesk/internal/model"
)

// SessionStore persists a desk's pairing token so that reloading the
// desk restores the same relay room instead of minting a new one.
type SessionStore interface {
	Load() (model.PairingToken, bool, error)
	Save(token model.PairingToken) error
	Clear() error
}

// MemoryStore keeps the token in memory. Used in tests and for desks
// that should always start fresh.
type MemoryStore struct {
	mu    sync.Mutex
	token model.PairingToken
	set   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (model.PairingToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.set, nil
}

func (s *MemoryStore) Save(token model.PairingToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.set = true
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = model.PairingToken{}
	s.set = false
	return nil
}

// FileStore persists the token as JSON on disk. The signature grants
// relay access, so the file is written owner-only.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (model.PairingToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return model.PairingToken{}, false, nil
	}
	if err != nil {
		return model.PairingToken{}, false, fmt.Errorf("read session file: %w", err)
	}

	var token model.PairingToken
	if err := json.Unmarshal(data, &token); err != nil {
		return model.PairingToken{}, false, fmt.Errorf("decode session file: %w", err)
	}
	if token.DeskID == "" || token.Signature == "" {
		return model.PairingToken{}, false, nil
	}

	return token, true, nil
}

func (s *FileStore) Save(token model.PairingToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
