package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	tagsSuffix      = ".tags.yaml"
	dirPermissions  = 0o755
	filePermissions = 0o644
)

var errInvalidKey = errors.New("invalid object key")

// FSStore stores objects as files under a base directory.
// Tags live in a sidecar YAML file next to the object.
type FSStore struct {
	// baseDir is the root of the object tree.
	baseDir string
	// mu serializes writes.
	mu sync.RWMutex
}

// NewFSStore creates a filesystem store rooted at baseDir, creating it if necessary.
func NewFSStore(baseDir string) (*FSStore, error) {
	if baseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(baseDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &FSStore{baseDir: filepath.Clean(baseDir)}, nil
}

// Get reads the object at key.
func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	filePath, err := s.path(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}

		return nil, fmt.Errorf("read object %s: %w", key, err)
	}

	return data, nil
}

// Put writes the object at key. Existing tags are dropped, as with S3.
func (s *FSStore) Put(_ context.Context, key string, body []byte, _ PutOptions) error {
	filePath, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = os.MkdirAll(filepath.Dir(filePath), dirPermissions); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	if err = os.WriteFile(filePath, body, filePermissions); err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}

	if err = os.Remove(filePath + tagsSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reset tags of %s: %w", key, err)
	}

	return nil
}

// Exists reports whether the object at key exists.
func (s *FSStore) Exists(_ context.Context, key string) (bool, error) {
	filePath, err := s.path(key)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err = os.Stat(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("stat object %s: %w", key, err)
	}

	return true, nil
}

// PutTags replaces the tag set of the object at key.
func (s *FSStore) PutTags(_ context.Context, key string, tags []Tag) error {
	filePath, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err = os.Stat(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}

		return err
	}

	data, err := yaml.Marshal(sortTags(tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	if err = os.WriteFile(filePath+tagsSuffix, data, filePermissions); err != nil {
		return fmt.Errorf("write tags of %s: %w", key, err)
	}

	return nil
}

// Tags returns the tag set of the object at key.
func (s *FSStore) Tags(_ context.Context, key string) ([]Tag, error) {
	filePath, err := s.path(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err = os.Stat(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}

		return nil, err
	}

	data, err := os.ReadFile(filePath + tagsSuffix)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read tags of %s: %w", key, err)
	}

	var tags []Tag
	if err = yaml.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", key, err)
	}

	return tags, nil
}

// path maps a key to a file below baseDir, rejecting keys that escape it.
func (s *FSStore) path(key string) (string, error) {
	cleaned := path.Clean("/" + key)
	if key == "" || cleaned == "/" || strings.HasSuffix(cleaned, tagsSuffix) {
		return "", fmt.Errorf("%w: %q", errInvalidKey, key)
	}

	return filepath.Join(s.baseDir, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))), nil
}
