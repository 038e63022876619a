package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/crx-release/internal/logger"
)

const (
	// Filename is the marker created inside the build directory.
	Filename = ".crx-release.lock"

	dirPermissions  = 0o755
	filePermissions = 0o644
)

// ErrLocked is returned when a live process already holds the lock.
var ErrLocked = errors.New("another crx-release run holds the build directory")

// Lock is a held PID marker file.
type Lock struct {
	// path is the marker file.
	path string
}

// Acquire creates the marker in buildDir holding the current PID.
// A marker left by a process that is no longer running is taken over.
func Acquire(ctx context.Context, buildDir string) (*Lock, error) {
	if err := os.MkdirAll(buildDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("create build directory: %w", err)
	}

	path := filepath.Join(buildDir, Filename)

	created, err := create(path)
	if err != nil {
		return nil, err
	}

	if created {
		return &Lock{path: path}, nil
	}

	pid, alive, err := holder(path)
	if err != nil {
		return nil, err
	}

	if alive {
		return nil, fmt.Errorf("%w: pid %d", ErrLocked, pid)
	}

	logger.InfoKV(ctx, "Taking over a stale lock", "path", path, "pid", pid)

	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale lock: %w", err)
	}

	created, err = create(path)
	if err != nil {
		return nil, err
	}

	if !created {
		return nil, ErrLocked
	}

	return &Lock{path: path}, nil
}

// Release removes the marker.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release lock: %w", err)
	}

	return nil
}

// create writes the marker exclusively and reports whether it did.
func create(path string) (bool, error) {
	file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePermissions)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}

		return false, fmt.Errorf("create lock: %w", err)
	}

	if _, err = file.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		_ = file.Close()
		_ = os.Remove(path)

		return false, fmt.Errorf("write lock: %w", err)
	}

	if err = file.Close(); err != nil {
		return false, fmt.Errorf("close lock: %w", err)
	}

	return true, nil
}

// holder reads the PID stored in the marker and checks whether it is running.
// An unreadable PID counts as a dead holder.
func holder(path string) (int, bool, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("read lock: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		return 0, false, nil //nolint:nilerr // A corrupt marker is stale.
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		return pid, false, fmt.Errorf("inspect pid %d: %w", pid, err)
	}

	return pid, process != nil, nil
}
