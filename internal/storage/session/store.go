package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultStateDir = "./wal/session"
	// StateDirEnv overrides the directory session files are kept in.
	StateDirEnv = "BTX_SESSION_DIR"
)

// Store persists the viewer session of one event so restarts keep the
// selected project and feed settings.
type Store struct {
	path string
}

func getStateDir() string {
	if stateDir := os.Getenv(StateDirEnv); stateDir != "" {
		return stateDir
	}
	return defaultStateDir
}

// NewStore creates a session store for the given event.
func NewStore(eventID string) (*Store, error) {
	name := sanitizeScope(eventID)
	if name == "" {
		return nil, errors.New("session event id is required")
	}

	stateDir := getStateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create session dir")
	}

	return &Store{path: filepath.Join(stateDir, fmt.Sprintf("%s.json", name))}, nil
}

// State persisted session data.
type State struct {
	EventID           string        `json:"event_id"`
	SelectedProjectID string        `json:"selected_project_id,omitempty"`
	PollInterval      time.Duration `json:"poll_interval,omitempty"`
	PushEnabled       *bool         `json:"push_enabled,omitempty"`
	SavedAt           time.Time     `json:"saved_at"`
}

// Load reads the session from disk. A missing file yields nil.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read session")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	return &state, nil
}

// Save writes the session atomically via a temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode session")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write session temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist session")
	}
	return nil
}

// Path location of the session file.
func (s *Store) Path() string {
	return s.path
}

func sanitizeScope(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore {
			b.WriteByte('_')
			prevUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
