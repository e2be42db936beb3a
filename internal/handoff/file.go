package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// tokenVersion is bumped when the file layout changes.
	tokenVersion = 1

	tokenFileName = "handoff.json"
	appDirName    = "cardiolive"
)

type tokenFile struct {
	Version int `json:"version"`
	Token
}

// FileStore keeps the token in a JSON file under
// ~/.local/state/cardiolive/handoff.json (respecting XDG_STATE_HOME).
type FileStore struct {
	dir string
	now func() time.Time
}

// NewFileStore creates a FileStore in dir. Pass an empty string to use the
// default XDG state path. The directory is created on the first Publish.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir()
	}
	return &FileStore{dir: dir, now: time.Now}
}

// Path returns the full path to the token file.
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, tokenFileName)
}

// Publish writes the token using an atomic temp-file-then-rename so a
// concurrent reader sees either the old or the new token, never a partial
// one.
func (s *FileStore) Publish(_ context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("handoff: empty session id")
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating handoff dir: %w", err)
	}

	tf := tokenFile{
		Version: tokenVersion,
		Token:   Token{SessionID: sessionID, PublishedAt: s.now().UTC()},
	}
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling handoff token: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".handoff-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("renaming handoff file: %w", err)
	}
	committed = true

	return nil
}

// Read returns the published token. A missing file or an empty session id
// reads as no token.
func (s *FileStore) Read(_ context.Context) (Token, bool, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return Token{}, false, nil
		}
		return Token{}, false, fmt.Errorf("reading handoff token: %w", err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return Token{}, false, fmt.Errorf("parsing handoff token: %w", err)
	}
	if tf.SessionID == "" {
		return Token{}, false, nil
	}
	return tf.Token, true, nil
}

// Clear removes the token file. Clearing an absent token is not an error.
func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing handoff token: %w", err)
	}
	return nil
}

// DefaultDir returns ~/.local/state/cardiolive, respecting XDG_STATE_HOME if
// set.
func DefaultDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
