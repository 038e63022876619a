package publisher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/crx-release/internal/config"
	"github.com/oshokin/crx-release/internal/domain/release"
	"github.com/oshokin/crx-release/internal/repository/objectstore"
)

var errTestUpload = errors.New("upload refused")

const testIdentity release.Identity = "abcdefghijklmnopabcdefghijklmnop"

// recordingStore wraps a Store, counts tag writes and refuses chosen uploads.
type recordingStore struct {
	objectstore.Store

	putOptions map[string]objectstore.PutOptions
	tagWrites  []string
	refuse     string
}

func (s *recordingStore) Put(ctx context.Context, key string, body []byte, opts objectstore.PutOptions) error {
	if s.refuse != "" && strings.HasSuffix(key, s.refuse) {
		return errTestUpload
	}

	s.putOptions[key] = opts

	return s.Store.Put(ctx, key, body, opts)
}

func (s *recordingStore) PutTags(ctx context.Context, key string, tags []objectstore.Tag) error {
	s.tagWrites = append(s.tagWrites, key)

	return s.Store.PutTags(ctx, key, tags)
}

func newTestPublisher(t *testing.T) (*Publisher, *recordingStore) {
	t.Helper()

	fs, err := objectstore.NewFSStore(t.TempDir())
	require.NoError(t, err)

	store := &recordingStore{Store: fs, putOptions: make(map[string]objectstore.PutOptions)}

	return New(store, "public-read", config.PublishConfig{}), store
}

func TestPublisher_PublishArtifact(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	publisher, store := newTestPublisher(t)

	key, err := publisher.PublishArtifact(ctx, testIdentity, release.MustParseVersion("1.0.2"), []byte("crx"))
	require.NoError(t, err)
	require.Equal(t, "release/"+testIdentity.String()+"/extension_1_0_2.crx", key)
	require.Equal(t, objectstore.PutOptions{ContentType: release.ArtifactContentType, ACL: "public-read"}, store.putOptions[key])

	body, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("crx"), body)
}

func writePatches(t *testing.T, names ...string) (string, release.PatchManifest) {
	t.Helper()

	dir := t.TempDir()
	manifest := make(release.PatchManifest, len(names))

	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".puff"), []byte("patch "+name), 0o644))
		manifest[name] = release.PatchEntry{Name: name + ".puff"}
	}

	return dir, manifest
}

func TestPublisher_PublishPatches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	publisher, store := newTestPublisher(t)
	dir, manifest := writePatches(t, "extension_1_0_0", "extension_1_0_1")

	require.NoError(t, publisher.PublishPatches(ctx, testIdentity, "h2", dir, manifest))

	for _, name := range []string{"extension_1_0_0", "extension_1_0_1"} {
		key := release.PatchKey(testIdentity, "h2", name+".puff")

		body, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, "patch "+name, string(body))
		require.Equal(t, release.PatchContentType, store.putOptions[key].ContentType)
	}
}

func TestPublisher_PublishPatchesPartialFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	publisher, store := newTestPublisher(t)
	dir, manifest := writePatches(t, "extension_1_0_0", "extension_1_0_1", "extension_1_0_2")
	manifest["extension_0_9_9"] = release.PatchEntry{Name: "missing.puff"}
	store.refuse = "extension_1_0_1.puff"

	err := publisher.PublishPatches(ctx, testIdentity, "h3", dir, manifest)
	require.ErrorIs(t, err, release.ErrPartialBatch)
	require.ErrorIs(t, err, errTestUpload)
	require.ErrorIs(t, err, os.ErrNotExist)

	// The remaining patches were still uploaded.
	for _, name := range []string{"extension_1_0_0", "extension_1_0_2"} {
		exists, existsErr := store.Exists(ctx, release.PatchKey(testIdentity, "h3", name+".puff"))
		require.NoError(t, existsErr)
		require.True(t, exists)
	}
}

func TestPublisher_UpdateLatestTag(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	publisher, store := newTestPublisher(t)
	v101 := release.MustParseVersion("1.0.1")
	v102 := release.MustParseVersion("1.0.2")

	_, err := publisher.PublishArtifact(ctx, testIdentity, v101, []byte("one"))
	require.NoError(t, err)
	require.NoError(t, publisher.UpdateLatestTag(ctx, testIdentity, "ad-block", v101, release.MustParseVersion("1.0.0")))
	require.Len(t, store.tagWrites, 1)

	_, err = publisher.PublishArtifact(ctx, testIdentity, v102, []byte("two"))
	require.NoError(t, err)
	require.NoError(t, publisher.UpdateLatestTag(ctx, testIdentity, "ad-block", v102, v101))
	require.Len(t, store.tagWrites, 3)

	tags, err := store.Tags(ctx, release.ArtifactKey(testIdentity, v102))
	require.NoError(t, err)
	require.ElementsMatch(t, []objectstore.Tag{{Key: "ad-block", Value: "1.0.2"}, {Key: "latest", Value: "true"}}, tags)

	tags, err = store.Tags(ctx, release.ArtifactKey(testIdentity, v101))
	require.NoError(t, err)
	require.Equal(t, []objectstore.Tag{{Key: "ad-block", Value: "1.0.1"}}, tags)

	exists, latest, err := publisher.IsLatest(ctx, testIdentity, v102)
	require.NoError(t, err)
	require.True(t, exists)
	require.True(t, latest)

	exists, latest, err = publisher.IsLatest(ctx, testIdentity, v101)
	require.NoError(t, err)
	require.True(t, exists)
	require.False(t, latest)

	exists, _, err = publisher.IsLatest(ctx, testIdentity, release.MustParseVersion("1.0.7"))
	require.NoError(t, err)
	require.False(t, exists)
}

func TestPublisher_UpdateLatestTagFirstVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	publisher, store := newTestPublisher(t)

	_, err := publisher.PublishArtifact(ctx, testIdentity, release.FirstVersion, []byte("zero"))
	require.NoError(t, err)
	require.NoError(t, publisher.UpdateLatestTag(ctx, testIdentity, "ad-block", release.FirstVersion, release.Version{}))
	require.Len(t, store.tagWrites, 1)

	// Tagging an artifact that was never uploaded fails.
	err = publisher.UpdateLatestTag(ctx, testIdentity, "ad-block", release.MustParseVersion("1.0.5"), release.Version{})
	require.ErrorIs(t, err, objectstore.ErrNotFound)
}
