package pipeline

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/crx-release/internal/config"
	ledgerrepo "github.com/oshokin/crx-release/internal/repository/ledger"
	"github.com/oshokin/crx-release/internal/repository/objectstore"
	"github.com/oshokin/crx-release/internal/service/delta"
	"github.com/oshokin/crx-release/internal/service/ledger"
	"github.com/oshokin/crx-release/internal/service/publisher"
)

// zipPacker zips the staged directory next to it, standing in for a browser.
type zipPacker struct {
	calls int
}

func (p *zipPacker) Check() error {
	return nil
}

func (p *zipPacker) Pack(_ context.Context, stageDir, keyFile string) (string, error) {
	p.calls++

	if _, err := os.Stat(keyFile); err != nil {
		return "", err
	}

	output := filepath.Clean(stageDir) + ".crx"

	return output, zipDir(stageDir, output)
}

func zipDir(dir, output string) error {
	file, err := os.Create(output)
	if err != nil {
		return err
	}

	writer := zip.NewWriter(file)

	err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil || entry.IsDir() {
			return walkErr
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}

		header := &zip.FileHeader{Name: filepath.ToSlash(rel), Method: zip.Deflate}

		target, createErr := writer.CreateHeader(header)
		if createErr != nil {
			return createErr
		}

		source, openErr := os.Open(path)
		if openErr != nil {
			return openErr
		}

		defer source.Close()

		_, copyErr := io.Copy(target, source)

		return copyErr
	})
	if err != nil {
		_ = file.Close()
		return err
	}

	if err = writer.Close(); err != nil {
		_ = file.Close()
		return err
	}

	return file.Close()
}

// concatDiffer writes old followed by new as the patch.
type concatDiffer struct{}

func (concatDiffer) Diff(_ context.Context, oldPath, newPath, patchPath string) error {
	oldContents, err := os.ReadFile(oldPath)
	if err != nil {
		return err
	}

	newContents, err := os.ReadFile(newPath)
	if err != nil {
		return err
	}

	return os.WriteFile(patchPath, append(oldContents, newContents...), 0o644)
}

// testEnv is an offline pipeline over the filesystem store and file ledger.
type testEnv struct {
	root   string
	store  *objectstore.FSStore
	repo   *ledgerrepo.FileRepository
	packer *zipPacker
	deps   *Dependencies
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()

	store, err := objectstore.NewFSStore(filepath.Join(root, "bucket"))
	require.NoError(t, err)

	repo := ledgerrepo.NewFileRepository(filepath.Join(root, "ledger"))
	packer := &zipPacker{}
	buildDir := filepath.Join(root, "build")

	return &testEnv{
		root:   root,
		store:  store,
		repo:   repo,
		packer: packer,
		deps: &Dependencies{
			Ledger:    ledger.New(repo),
			Generator: delta.NewGenerator(store, concatDiffer{}, buildDir),
			Publisher: publisher.New(store, "", config.PublishConfig{}),
			Packer:    packer,
			Fetcher:   nil,
		},
	}
}

func (e *testEnv) orchestrator() *Orchestrator {
	return NewOrchestrator(e.deps, filepath.Join(e.root, "build"), 2)
}

// writeKey writes a fresh RSA private key in PKCS#8 PEM form.
func writeKey(t *testing.T, path string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))
}

// writeSource writes an unpacked extension directory.
func writeSource(t *testing.T, dir, name, script string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"),
		[]byte(`{"name": "`+name+`", "version": "0.0.0", "manifest_version": 3}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "background.js"), []byte(script), 0o644))
}
