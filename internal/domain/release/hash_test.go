package release

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestHashBytes checks a known SHA-256 vector.
func TestHashBytes(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		ContentHash("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"),
		HashBytes([]byte("abc")))
}

// TestHashFile checks file hashing agrees with in-memory hashing.
func TestHashFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "artifact.crx")
	require.NoError(t, os.WriteFile(path, []byte("artifact bytes"), 0o600))

	got, err := HashFile(path)
	require.NoError(t, err)
	require.Equal(t, HashBytes([]byte("artifact bytes")), got)

	_, err = HashFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

// TestHashTree checks tree hashing is stable and sensitive to names and contents.
func TestHashTree(t *testing.T) {
	t.Parallel()

	write := func(root, name, contents string) {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	}

	first := t.TempDir()
	write(first, "manifest.json", `{"name":"x"}`)
	write(first, "lib/data.bin", "data")

	second := t.TempDir()
	write(second, "lib/data.bin", "data")
	write(second, "manifest.json", `{"name":"x"}`)

	h1, err := HashTree(first)
	require.NoError(t, err)

	h2, err := HashTree(second)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	write(second, "lib/data.bin", "changed")

	h3, err := HashTree(second)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}
