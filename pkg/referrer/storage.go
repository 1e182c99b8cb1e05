package referrer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Referral is the stored partner attribution applied to swaps
type Referral struct {
	Address string `json:"address,omitempty"`
	FeeBps  int    `json:"feeBps,omitempty"`
}

// Store persists the referral
type Store interface {
	Get() (Referral, error)
	Put(r Referral) error
}

// FileStore keeps the referral in a JSON file
type FileStore struct {
	filePath string
	mu       sync.RWMutex
	referral Referral
}

// NewFileStore opens the store at filePath. A missing file is an empty referral.
func NewFileStore(filePath string) (*FileStore, error) {
	s := &FileStore{filePath: filePath}

	if err := s.load(); err != nil {
		// If file doesn't exist, that's okay - it is created on first save
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load referrer: %w", err)
		}
	}

	return s, nil
}

func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &s.referral); err != nil {
		return fmt.Errorf("failed to unmarshal referrer: %w", err)
	}
	return nil
}

// Get returns the stored referral
func (s *FileStore) Get() (Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.referral, nil
}

// Put replaces the stored referral
func (s *FileStore) Put(r Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal referrer: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write referrer: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	s.referral = r
	return nil
}
