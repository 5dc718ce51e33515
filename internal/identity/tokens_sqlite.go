package identity

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteTokenStore persists device tokens in a SQLite database under the
// state directory, keyed by (device_id, role).
type SQLiteTokenStore struct {
	dbPath string
	db     *sql.DB
	mu     sync.Mutex
}

// OpenTokenStore opens (creating if needed) the token database in dir.
func OpenTokenStore(dir string) (*SQLiteTokenStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	s := &SQLiteTokenStore{dbPath: filepath.Join(dir, "auth.db")}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteTokenStore) init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openDB()
	if err != nil {
		return err
	}

	ddl := `
CREATE TABLE IF NOT EXISTS device_tokens (
  device_id TEXT NOT NULL,
  role TEXT NOT NULL,
  token TEXT NOT NULL,
  scopes TEXT NOT NULL DEFAULT '',
  updated_at_ms INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (device_id, role)
);`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("create device_tokens table: %w", err)
	}
	return nil
}

func (s *SQLiteTokenStore) openDB() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	db, err := sql.Open("sqlite", s.dbPath+"?_pragma=busy_timeout%3d5000&_pragma=journal_mode%3dwal")
	if err != nil {
		return nil, fmt.Errorf("open auth db: %w", err)
	}
	db.SetMaxOpenConns(1)
	s.db = db
	return db, nil
}

// Load returns the stored token for (deviceID, role), if any.
func (s *SQLiteTokenStore) Load(deviceID, role string) (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openDB()
	if err != nil {
		return Token{}, false
	}

	var tok Token
	var scopes string
	row := db.QueryRow(
		`SELECT token, role, scopes, updated_at_ms FROM device_tokens WHERE device_id = ? AND role = ?`,
		deviceID, role,
	)
	if err := row.Scan(&tok.Token, &tok.Role, &scopes, &tok.UpdatedAtMs); err != nil {
		return Token{}, false
	}
	if scopes != "" {
		tok.Scopes = strings.Split(scopes, ",")
	}
	return tok, true
}

// Store upserts the token for (deviceID, role). Last write wins.
func (s *SQLiteTokenStore) Store(deviceID, role, token string, scopes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openDB()
	if err != nil {
		return err
	}

	_, err = db.Exec(
		`INSERT INTO device_tokens (device_id, role, token, scopes, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(device_id, role) DO UPDATE SET
		   token = excluded.token,
		   scopes = excluded.scopes,
		   updated_at_ms = excluded.updated_at_ms`,
		deviceID, role, token, strings.Join(scopes, ","), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store device token: %w", err)
	}
	return nil
}

// Clear removes the token for (deviceID, role).
func (s *SQLiteTokenStore) Clear(deviceID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openDB()
	if err != nil {
		return err
	}
	if _, err := db.Exec(`DELETE FROM device_tokens WHERE device_id = ? AND role = ?`, deviceID, role); err != nil {
		return fmt.Errorf("clear device token: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteTokenStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
