// Package history caches the per-session conversation log on disk so the
// chat opens instantly while authoritative history loads. One JSON blob per
// session, overwritten wholesale on every save. Best effort, last write
// wins.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clawdeck/clawdeck/internal/chat"
)

// Store persists message logs under a base directory.
type Store struct {
	dir string
}

// NewStore creates a history store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Load returns the cached log for sessionKey, or nil when there is none or
// the blob is unreadable. A bad cache is not an error; the remote load
// repairs it.
func (s *Store) Load(sessionKey string) []chat.Message {
	data, err := os.ReadFile(s.filePath(sessionKey))
	if err != nil {
		return nil
	}
	var messages []chat.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil
	}
	return messages
}

// Save overwrites the cached log for sessionKey.
func (s *Store) Save(sessionKey string, messages []chat.Message) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := os.WriteFile(s.filePath(sessionKey), data, 0o644); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	return nil
}

// Clear removes the cached log for sessionKey.
func (s *Store) Clear(sessionKey string) error {
	if err := os.Remove(s.filePath(sessionKey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear history file: %w", err)
	}
	return nil
}

func (s *Store) filePath(sessionKey string) string {
	return filepath.Join(s.dir, "chat-history-"+sanitizeKey(sessionKey)+".json")
}

// sanitizeKey makes a session key filesystem-safe: anything outside
// [A-Za-z0-9-_] becomes an underscore.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
}
