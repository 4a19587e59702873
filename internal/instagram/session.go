package instagram

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Session is the persisted device identity plus the bearer token from the
// last successful login. Presenting the same device across runs keeps
// Instagram's checkpoint heuristics quiet.
type Session struct {
	Username      string `json:"username"`
	UserID        int64  `json:"user_id"`
	DeviceID      string `json:"device_id"`
	PhoneID       string `json:"phone_id"`
	SessionUUID   string `json:"uuid"`
	Authorization string `json:"authorization,omitempty"`
}

func NewSession(username string) Session {
	device := uuid.New()
	return Session{
		Username:    username,
		DeviceID:    fmt.Sprintf("android-%x", device[:8]),
		PhoneID:     uuid.New().String(),
		SessionUUID: uuid.New().String(),
	}
}

func LoadSession(path string) (Session, error) {
	var s Session
	if path == "" {
		return s, os.ErrNotExist
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parsing session file %v: %w", path, err)
	}

	return s, nil
}

// SaveSession writes the session with owner-only permissions, it holds a
// live bearer token.
func (c *Client) SaveSession() error {
	path := c.cfg.SessionFile
	if path == "" {
		return nil
	}

	data, err := json.MarshalIndent(c.session, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}

	return nil
}
