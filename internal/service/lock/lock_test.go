package lock

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// deadPID is far above any PID limit, so no process can hold it.
const deadPID = 2147483000

func TestAcquireRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "build")

	held, err := Acquire(ctx, dir)
	require.NoError(t, err)

	contents, err := os.ReadFile(filepath.Join(dir, Filename))
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(contents))

	// The current process is alive, so a second acquire is refused.
	_, err = Acquire(ctx, dir)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, held.Release())
	require.NoError(t, held.Release())

	again, err := Acquire(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestAcquireStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for name, contents := range map[string]string{
		"dead process": strconv.Itoa(deadPID),
		"corrupt":      "not a pid",
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, Filename), []byte(contents), filePermissions))

			held, err := Acquire(ctx, dir)
			require.NoError(t, err)
			require.NoError(t, held.Release())
		})
	}
}

func TestReleaseNil(t *testing.T) {
	t.Parallel()

	var held *Lock
	require.NoError(t, held.Release())
}
