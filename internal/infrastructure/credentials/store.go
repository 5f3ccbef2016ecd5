// Package credentials persists the single opaque bearer credential across
// process restarts. One string under a fixed file name; absence means
// logged out.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const fileName = "credential"

// FileStore keeps the credential in a mode-0600 file. The zero directory
// resolves to <user config dir>/qrconnect.
type FileStore struct {
	path string
}

// NewFileStore builds a store rooted at path. When path is empty the
// per-user configuration directory is used.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("credential store: %w", err)
		}
		path = filepath.Join(dir, "qrconnect", fileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load returns the stored credential, or "" when none is stored.
func (s *FileStore) Load() (string, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("credential store: read: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (s *FileStore) Save(token string) error {
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("credential store: write: %w", err)
	}
	return nil
}

// Clear removes the credential file. Clearing an empty store is a no-op.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("credential store: clear: %w", err)
	}
	return nil
}
