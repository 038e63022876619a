package ledger

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/crx-release/internal/domain/release"
	ledgerrepo "github.com/oshokin/crx-release/internal/repository/ledger"
)

var errTestBackend = errors.New("backend unavailable")

const testIdentity release.Identity = "abcdefghijklmnopabcdefghijklmnop"

// memoryRepository keeps records in a map and can fail on demand.
type memoryRepository struct {
	mu          sync.Mutex
	records     map[release.Identity]*release.Record
	ensureCalls int
	ensureErr   error
	getErr      error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{records: make(map[release.Identity]*release.Record)}
}

func (r *memoryRepository) EnsureTable(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureCalls++

	return r.ensureErr
}

func (r *memoryRepository) Get(_ context.Context, id release.Identity) (*release.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.getErr != nil {
		return nil, r.getErr
	}

	rec, ok := r.records[id]
	if !ok {
		return nil, ledgerrepo.ErrNotFound
	}

	return rec.Clone(), nil
}

func (r *memoryRepository) Put(_ context.Context, rec *release.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[rec.ID] = rec.Clone()

	return nil
}

func TestLedger_NextVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newMemoryRepository()
	l := New(repo)

	decision, err := l.NextVersion(ctx, testIdentity, "h1")
	require.NoError(t, err)
	require.Equal(t, release.FirstVersion, decision.Next)
	require.False(t, decision.Unchanged)
	require.Nil(t, decision.Current)

	require.NoError(t, l.RecordPublish(ctx, &release.Record{ID: testIdentity, Version: release.MustParseVersion("1.0.9"), ContentHash: "h1"}))

	decision, err = l.NextVersion(ctx, testIdentity, "h1")
	require.NoError(t, err)
	require.True(t, decision.Unchanged)
	require.True(t, decision.Next.IsZero())
	require.Equal(t, release.MustParseVersion("1.0.9"), decision.Current.Version)

	decision, err = l.NextVersion(ctx, testIdentity, "h2")
	require.NoError(t, err)
	require.False(t, decision.Unchanged)
	require.Equal(t, release.MustParseVersion("1.0.10"), decision.Next)

	require.Equal(t, 1, repo.ensureCalls)
}

func TestLedger_NextVersionLegacyRecord(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepository()
	repo.records[testIdentity] = &release.Record{ID: testIdentity, Version: release.FirstVersion, SHA256: "legacy"}

	decision, err := New(repo).NextVersion(context.Background(), testIdentity, "legacy")
	require.NoError(t, err)
	require.True(t, decision.Unchanged)
}

func TestLedger_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newMemoryRepository()
	repo.ensureErr = errTestBackend
	l := New(repo)

	_, err := l.NextVersion(ctx, testIdentity, "h1")
	require.ErrorIs(t, err, errTestBackend)

	// The table check is retried after a failure.
	repo.ensureErr = nil
	repo.getErr = errTestBackend

	_, err = l.NextVersion(ctx, testIdentity, "h1")
	require.ErrorIs(t, err, errTestBackend)
	require.Equal(t, 2, repo.ensureCalls)
}

func writeArtifact(t *testing.T, manifest string) string {
	t.Helper()

	var buffer bytes.Buffer

	writer := zip.NewWriter(&buffer)

	entry, err := writer.Create("manifest.json")
	require.NoError(t, err)

	_, err = entry.Write([]byte(manifest))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	artifact := filepath.Join(t.TempDir(), "stage.crx")
	require.NoError(t, os.WriteFile(artifact, buffer.Bytes(), 0o644))

	return artifact
}

func TestLedger_Record(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newMemoryRepository()
	l := New(repo)
	artifact := writeArtifact(t, `{"name": "Ad Block", "version": "1.0.1", "manifest_version": 3}`)

	digest, err := release.HashFile(artifact)
	require.NoError(t, err)

	patches := release.PatchManifest{
		"extension_1_0_0": {Name: "extension_1_0_0.puff", Hash: "ph", Size: 12},
	}

	rec, err := l.Record(ctx, &Publication{
		ID:           testIdentity,
		Version:      release.MustParseVersion("1.0.1"),
		ArtifactPath: artifact,
		ContentHash:  "h2",
		Disabled:     true,
		Patches:      patches,
	})
	require.NoError(t, err)
	require.Equal(t, &release.Record{
		ID:          testIdentity,
		Version:     release.MustParseVersion("1.0.1"),
		SHA256:      digest,
		ContentHash: "h2",
		Title:       "Ad Block",
		Disabled:    true,
		Patches:     patches,
	}, rec)
	require.Equal(t, rec, repo.records[testIdentity])

	rec, err = l.Record(ctx, &Publication{
		ID:           testIdentity,
		Version:      release.MustParseVersion("1.0.1"),
		ArtifactPath: artifact,
		ContentHash:  "h2",
		Title:        "Override",
	})
	require.NoError(t, err)
	require.Equal(t, "Override", rec.Title)
	require.Empty(t, rec.Patches)
}

func TestLedger_RecordVersionMismatch(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepository()
	artifact := writeArtifact(t, `{"name": "Ad Block", "version": "1.0.0"}`)

	_, err := New(repo).Record(context.Background(), &Publication{
		ID:           testIdentity,
		Version:      release.MustParseVersion("1.0.1"),
		ArtifactPath: artifact,
	})
	require.ErrorIs(t, err, errVersionMismatch)
	require.Empty(t, repo.records)
}
