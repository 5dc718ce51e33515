// Package identity manages the local device identity and the device tokens
// the gateway hands back after a successful connect handshake.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Device is the persistent identity presented during the connect handshake.
type Device struct {
	DeviceID    string `json:"deviceId"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

// Store persists the device identity as a single JSON file.
type Store struct {
	path string
}

// NewStore creates a device identity store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, "identity.json")}
}

// LoadOrCreate returns the stored device identity, minting and persisting a
// fresh one when none exists. A corrupt file is replaced rather than fatal;
// the device simply re-pairs.
func (s *Store) LoadOrCreate() (Device, error) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		var dev Device
		if jsonErr := json.Unmarshal(data, &dev); jsonErr == nil && dev.DeviceID != "" {
			return dev, nil
		}
	}

	dev := Device{
		DeviceID:    uuid.NewString(),
		CreatedAtMs: time.Now().UnixMilli(),
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return Device{}, fmt.Errorf("create identity dir: %w", err)
	}
	out, err := json.MarshalIndent(dev, "", "  ")
	if err != nil {
		return Device{}, fmt.Errorf("marshal identity: %w", err)
	}
	if err := os.WriteFile(s.path, out, 0o600); err != nil {
		return Device{}, fmt.Errorf("write identity file: %w", err)
	}
	return dev, nil
}
