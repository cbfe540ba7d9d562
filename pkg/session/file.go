package session

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type fileState struct {
	Username string `yaml:"username"`
}

// FileStore keeps the identity in a small YAML file, usually under the user's config dir.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// DefaultFilePath returns <user config dir>/ws-cli-chat/session.yaml.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve user config dir")
	}
	return filepath.Join(dir, "ws-cli-chat", "session.yaml"), nil
}

func (s *FileStore) Load(context.Context) (string, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "read %s", s.Path)
	}
	var state fileState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return "", errors.Wrapf(err, "parse %s", s.Path)
	}
	return state.Username, nil
}

func (s *FileStore) Save(_ context.Context, username string) error {
	data, err := yaml.Marshal(fileState{Username: username})
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(s.Path))
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	return errors.Wrap(os.Rename(tmp, s.Path), "replace session file")
}

func (s *FileStore) Clear(context.Context) error {
	err := os.Remove(s.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "remove %s", s.Path)
	}
	return nil
}
