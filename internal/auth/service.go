// Package auth implements API-key authentication for the control API.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const keysFileName = "keys.json"

// Roles.
const (
	RoleRead    = "read"
	RoleControl = "control"
)

// Key is one entry of keys.json, keyed by client name.
type Key struct {
	Key  string `json:"key"`
	Role string `json:"role"`
}

// Service checks API keys against keys.json and reloads it on change.
type Service struct {
	mu      sync.RWMutex
	dir     string
	keys    map[string]Key
	watcher *fsnotify.Watcher
}

// NewService creates a new auth service watching the given directory.
func NewService(dir string) (*Service, error) {
	s := &Service{
		dir:  dir,
		keys: make(map[string]Key),
	}

	// Missing file is OK: open mode
	if err := s.Reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("auth: could not create fsnotify watcher", "err", err)
		return s, nil
	}
	s.watcher = watcher

	keysPath := s.keysPath()
	if err := watcher.Add(filepath.Dir(keysPath)); err != nil {
		slog.Warn("auth: could not watch keys dir", "err", err)
	}

	go s.watchLoop(keysPath)
	return s, nil
}

func (s *Service) keysPath() string {
	return filepath.Join(s.dir, keysFileName)
}

// Reload re-reads keys.json. A missing file clears all keys.
func (s *Service) Reload() error {
	data, err := os.ReadFile(s.keysPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.mu.Lock()
			s.keys = make(map[string]Key)
			s.mu.Unlock()
			return nil
		}
		return err
	}

	var keys map[string]Key
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	for name, k := range keys {
		switch k.Role {
		case "":
			k.Role = RoleRead
			keys[name] = k
		case RoleRead, RoleControl:
		default:
			return fmt.Errorf("auth: key %q has unknown role %q", name, k.Role)
		}
	}

	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
	slog.Debug("auth: reloaded keys", "count", len(keys))
	return nil
}

// IsOpenMode returns true if no keys are configured.
// In open mode, all requests are allowed without authentication.
func (s *Service) IsOpenMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys) == 0
}

// Role returns the role of the client holding key, or "" if the key is
// unknown. Uses constant-time comparison to prevent timing attacks.
func (s *Service) Role(key string) string {
	if key == "" {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	role := ""
	for _, k := range s.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(k.Key)) == 1 {
			role = k.Role
		}
	}
	return role
}

// VerifyKey returns true if key belongs to any client.
func (s *Service) VerifyKey(key string) bool {
	return s.Role(key) != ""
}

// Close stops the file watcher.
func (s *Service) Close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}

func (s *Service) watchLoop(keysPath string) {
	if s.watcher == nil {
		return
	}
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name == keysPath && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove)) {
				if err := s.Reload(); err != nil {
					slog.Warn("auth: failed to reload keys", "err", err)
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("auth: watcher error", "err", err)
		}
	}
}
