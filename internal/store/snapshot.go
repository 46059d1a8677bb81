package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"authgate/internal/schema"
)

// Snapshot holds the durable projection of auth state. Loading and
// error flags are point-in-time signals and are never part of it.
type Snapshot interface {
	Load() (user *schema.User, isAuthenticated bool, err error)
	Save(user *schema.User, isAuthenticated bool) error
}

const snapshotFile = "auth-storage.json"

type snapshotPayload struct {
	User            *schema.User `json:"user"`
	IsAuthenticated bool         `json:"isAuthenticated"`
}

// FileSnapshot keeps the projection as JSON on disk, the process-local
// equivalent of namespaced browser storage.
type FileSnapshot struct {
	path string
}

// NewFileSnapshot resolves an empty path to the user config dir.
func NewFileSnapshot(path string) (*FileSnapshot, error) {
	if path == "" {
		dir, err := os.UserConfigDir()

		if err != nil {
			return nil, err
		}

		path = filepath.Join(dir, "authgate", snapshotFile)
	}

	return &FileSnapshot{path: path}, nil
}

func (f *FileSnapshot) Load() (*schema.User, bool, error) {
	raw, err := os.ReadFile(f.path)

	if err != nil {
		// a missing snapshot just means a fresh install
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}

		return nil, false, err
	}

	var p snapshotPayload

	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, err
	}

	return p.User, p.IsAuthenticated, nil
}

func (f *FileSnapshot) Save(user *schema.User, isAuthenticated bool) error {
	raw, err := json.Marshal(snapshotPayload{
		User:            user,
		IsAuthenticated: isAuthenticated,
	})

	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}

	return os.WriteFile(f.path, raw, 0o600)
}
