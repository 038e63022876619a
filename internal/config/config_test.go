package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/crx-release/internal/domain/release"
)

// TestValidate checks backend requirements and defaults.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Validate(nil), release.ErrConfiguration)

	// S3 without bucket.
	cfg := new(Config)
	require.ErrorIs(t, Validate(cfg), errBucketRequired)
	require.ErrorIs(t, Validate(cfg), release.ErrConfiguration)

	// Unknown backend.
	cfg = &Config{Storage: StorageConfig{Backend: "ftp"}}
	require.ErrorIs(t, Validate(cfg), errUnknownBackend)
	require.ErrorIs(t, Validate(cfg), release.ErrConfiguration)

	// Local backends need directories.
	cfg = &Config{
		Storage: StorageConfig{Backend: StorageFS, LocalDir: "store"},
		Ledger:  LedgerConfig{Backend: LedgerFile},
	}
	require.ErrorIs(t, Validate(cfg), errLocalDirRequired)
	require.ErrorIs(t, Validate(cfg), release.ErrConfiguration)

	cfg.Ledger.LocalDir = "ledger"
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultBuildDir, cfg.Build.Dir)
	require.Equal(t, DefaultPreviousWindow, cfg.Build.PreviousWindow)
	require.Equal(t, DefaultFetchAttempts, cfg.Fetch.Attempts)
	require.Equal(t, DefaultFetchDelay, cfg.Fetch.Delay)
	require.Equal(t, DefaultConcurrency, cfg.Publish.Concurrency)
	require.Equal(t, DefaultLatestTagKey, cfg.Publish.LatestTagKey)
	require.Equal(t, DefaultPatchExtension, cfg.Differ.Extension)
	require.NotEmpty(t, cfg.Packer.Binary)
	require.NotEmpty(t, cfg.Differ.Args)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crx-release.yaml")

	cfg := Default()
	cfg.Storage.Bucket = "extensions"
	cfg.Fetch.Delay = 5 * time.Second
	cfg.Build.PreviousWindow = 3

	require.NoError(t, Save(path, cfg))

	_, err := os.Stat(path)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "extensions", loaded.Storage.Bucket)
	require.Equal(t, 5*time.Second, loaded.Fetch.Delay)
	require.Equal(t, 3, loaded.Build.PreviousWindow)
	require.Equal(t, cfg.Differ.Args, loaded.Differ.Args)
}

// TestLoadEnvironmentOverlay checks environment variables override file values.
func TestLoadEnvironmentOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crx-release.yaml")

	cfg := Default()
	cfg.Storage.Bucket = "from-file"
	require.NoError(t, Save(path, cfg))

	t.Setenv("S3_BUCKET", "from-env")
	t.Setenv("DYNAMODB_TABLE", "Components")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", loaded.Storage.Bucket)
	require.Equal(t, "Components", loaded.Ledger.Table)
}

// TestLoadEnvironmentOnly checks an empty path reads the environment.
func TestLoadEnvironmentOnly(t *testing.T) {
	t.Setenv("CRX_STORAGE_BACKEND", StorageFS)
	t.Setenv("CRX_STORAGE_DIR", "store")
	t.Setenv("CRX_LEDGER_BACKEND", LedgerFile)
	t.Setenv("CRX_LEDGER_DIR", "ledger")
	t.Setenv("CRX_PACKER_BINARY", "crx3")

	loaded, err := Load("")
	require.NoError(t, err)
	require.Equal(t, StorageFS, loaded.Storage.Backend)
	require.Equal(t, "crx3", loaded.Packer.Binary)
	require.Equal(t, DefaultTable, loaded.Ledger.Table)
}

// TestLoadMissingDefaultFile checks an absent default settings file falls back to the environment
// while any other missing path is an error.
func TestLoadMissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CRX_STORAGE_BACKEND", StorageFS)
	t.Setenv("CRX_STORAGE_DIR", "store")
	t.Setenv("CRX_LEDGER_BACKEND", LedgerFile)
	t.Setenv("CRX_LEDGER_DIR", "ledger")

	loaded, err := Load(DefaultConfigFilename)
	require.NoError(t, err)
	require.Equal(t, StorageFS, loaded.Storage.Backend)
	require.Equal(t, "ledger", loaded.Ledger.LocalDir)

	_, err = Load("elsewhere.yaml")
	require.ErrorIs(t, err, release.ErrConfiguration)
}
