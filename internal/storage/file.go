package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/qepting91/tagstream/internal/domain"
)

// FileStore keeps settings in a YAML file. Writes go to a temp file that is
// renamed into place.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (domain.FeedSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.FeedSettings{}, ErrNotFound
	}
	if err != nil {
		return domain.FeedSettings{}, fmt.Errorf("read settings: %w", err)
	}

	settings := domain.DefaultSettings()
	if err := yaml.Unmarshal(b, &settings); err != nil {
		return domain.FeedSettings{}, fmt.Errorf("decode settings %s: %w", s.path, err)
	}
	return settings.Normalize(), nil
}

func (s *FileStore) Save(_ context.Context, settings domain.FeedSettings) error {
	b, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
