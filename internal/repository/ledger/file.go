package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/crx-release/internal/domain/release"
)

const (
	recordExtension = ".yaml"
	dirPermissions  = 0o755
	filePermissions = 0o600
)

// FileRepository persists ledger records as YAML files, one per identity, in a directory.
type FileRepository struct {
	// dir is the directory playing the role of the table.
	dir string
	// mu serializes writes so a reader never observes a half-written file.
	mu sync.RWMutex
}

// NewFileRepository creates a repository storing records under dir.
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{
		dir: filepath.Clean(dir),
	}
}

// EnsureTable creates the ledger directory if needed.
func (r *FileRepository) EnsureTable(_ context.Context) error {
	if err := os.MkdirAll(r.dir, dirPermissions); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	return nil
}

// Get reads the record of id.
func (r *FileRepository) Get(_ context.Context, id release.Identity) (*release.Record, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	contents, err := os.ReadFile(r.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read ledger record: %w", err)
	}

	var stored item
	if err = yaml.Unmarshal(contents, &stored); err != nil {
		return nil, fmt.Errorf("decode ledger record: %w", err)
	}

	return fromItem(&stored)
}

// Put writes the record, replacing any previous one atomically via rename.
func (r *FileRepository) Put(_ context.Context, rec *release.Record) error {
	if err := rec.ID.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(toItem(rec))
	if err != nil {
		return fmt.Errorf("encode ledger record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	target := r.path(rec.ID)
	temporary := target + ".tmp"

	if err = os.WriteFile(temporary, data, filePermissions); err != nil {
		return fmt.Errorf("write ledger record: %w", err)
	}

	if err = os.Rename(temporary, target); err != nil {
		return fmt.Errorf("replace ledger record: %w", err)
	}

	return nil
}

func (r *FileRepository) path(id release.Identity) string {
	return filepath.Join(r.dir, id.String()+recordExtension)
}
