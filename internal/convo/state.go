package convo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	stateDirName  = ".parley"
	stateFileName = "current_conversation"
)

// stateFilePath returns the path to the current-conversation state file
// under baseDir, creating the state directory if needed.
func stateFilePath(baseDir string) (string, error) {
	dir := filepath.Join(baseDir, stateDirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create state directory: %w", err)
	}
	return filepath.Join(dir, stateFileName), nil
}

// withStateLock takes an exclusive file lock around a state mutation.
// Two parley processes sharing a home directory must not interleave
// read-modify-write on the state file.
func withStateLock(path string, fn func() error) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock state file: %w", err)
	}
	defer lock.Unlock() //nolint:errcheck

	return fn()
}

// SaveCurrentConversationID records the active conversation in the state
// file so the next run can reopen it.
func SaveCurrentConversationID(baseDir string, id uuid.UUID) error {
	path, err := stateFilePath(baseDir)
	if err != nil {
		return err
	}
	return withStateLock(path, func() error {
		if err := os.WriteFile(path, []byte(id.String()), 0o600); err != nil {
			return fmt.Errorf("write state file: %w", err)
		}
		return nil
	})
}

// LoadCurrentConversationID loads the active conversation ID.
// Returns (nil, nil) if no state file exists - that is not an error.
func LoadCurrentConversationID(baseDir string) (*uuid.UUID, error) {
	path, err := stateFilePath(baseDir)
	if err != nil {
		return nil, err
	}

	var id *uuid.UUID
	err = withStateLock(path, func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("read state file: %w", err)
		}

		raw := strings.TrimSpace(string(data))
		if raw == "" {
			return nil
		}
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid conversation ID in state file: %w", err)
		}
		id = &parsed
		return nil
	})
	return id, err
}

// ClearCurrentConversationID removes the state file. Idempotent.
func ClearCurrentConversationID(baseDir string) error {
	path, err := stateFilePath(baseDir)
	if err != nil {
		return err
	}
	return withStateLock(path, func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove state file: %w", err)
		}
		return nil
	})
}
