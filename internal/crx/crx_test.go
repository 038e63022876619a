package crx

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/crx-release/internal/domain/release"
)

// buildZip returns a zip archive holding files.
func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer

	writer := zip.NewWriter(&buf)

	for name, contents := range files {
		w, err := writer.Create(name)
		require.NoError(t, err)

		_, err = w.Write([]byte(contents))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())

	return buf.Bytes()
}

// wrapCRX3 prefixes payload with a CRX3 header carrying a dummy signed header.
func wrapCRX3(payload []byte) []byte {
	header := []byte("signed-header-bytes")

	var buf bytes.Buffer

	buf.WriteString(crxMagic)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(crxVersion3))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(header)))
	buf.Write(header)
	buf.Write(payload)

	return buf.Bytes()
}

// wrapCRX2 prefixes payload with a CRX2 header carrying a dummy key and signature.
func wrapCRX2(payload []byte) []byte {
	key, signature := []byte("public-key"), []byte("signature")

	var buf bytes.Buffer

	buf.WriteString(crxMagic)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(crxVersion2))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(key)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(signature)))
	buf.Write(key)
	buf.Write(signature)
	buf.Write(payload)

	return buf.Bytes()
}

func writeFile(t *testing.T, path string, contents []byte) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, contents, 0o600))

	return path
}

// TestReadManifest checks descriptors are read from zip, CRX2 and CRX3 containers.
func TestReadManifest(t *testing.T) {
	t.Parallel()

	payload := buildZip(t, map[string]string{
		"manifest.json": `{
			// upstream comment
			"name": "__MSG_appName__",
			"version": "4.2.0",
			"default_locale": "en",
			"manifest_version": 3,
		}`,
		"_locales/en/messages.json": `{"APPNAME": {"message": "Ad Block Updater"}}`,
	})

	dir := t.TempDir()

	for name, contents := range map[string][]byte{
		"plain.zip": payload,
		"v2.crx":    wrapCRX2(payload),
		"v3.crx":    wrapCRX3(payload),
	} {
		path := writeFile(t, filepath.Join(dir, name), contents)

		manifest, err := ReadManifest(path)
		require.NoError(t, err, name)
		require.Equal(t, "4.2.0", manifest.Version)
		require.Equal(t, "__MSG_appName__", manifest.Name)
		require.Equal(t, "Ad Block Updater", manifest.Title)
		require.Equal(t, 3, manifest.ManifestVersion)
	}
}

// TestReadManifest_Errors covers unknown formats and archives without a descriptor.
func TestReadManifest_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := ReadManifest(writeFile(t, filepath.Join(dir, "junk.crx"), []byte("definitely not an archive")))
	require.ErrorIs(t, err, errUnknownFormat)

	_, err = ReadManifest(writeFile(t, filepath.Join(dir, "empty.crx"), wrapCRX3(buildZip(t, map[string]string{"a.js": ""}))))
	require.ErrorIs(t, err, errNoManifest)

	require.False(t, IsArchive([]byte("nope")))
	require.True(t, IsArchive(wrapCRX3(buildZip(t, nil))))
}

// TestExtract checks archives are unpacked into a recreated directory.
func TestExtract(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := writeFile(t, filepath.Join(dir, "in.crx"), wrapCRX3(buildZip(t, map[string]string{
		"manifest.json": `{"name":"x","version":"1.0.0"}`,
		"lib/a.js":      "console.log(1)",
	})))

	dst := filepath.Join(dir, "unzip", "in")
	writeFile(t, filepath.Join(dst, "stale.txt"), []byte("old"))

	require.NoError(t, Extract(archive, dst))

	contents, err := os.ReadFile(filepath.Join(dst, "lib", "a.js"))
	require.NoError(t, err)
	require.Equal(t, "console.log(1)", string(contents))

	_, err = os.Stat(filepath.Join(dst, "stale.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestExtract_RejectsTraversal checks entries escaping the destination are refused.
func TestExtract_RejectsTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := writeFile(t, filepath.Join(dir, "evil.zip"), buildZip(t, map[string]string{"../escape.txt": "x"}))

	require.Error(t, Extract(archive, filepath.Join(dir, "out")))

	_, err := os.Stat(filepath.Join(dir, "escape.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestStage checks the tree is copied, _metadata dropped and the version rewritten.
func TestStage(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, ManifestFilename), []byte(`{"name": "Shields", "version": "9.9.9", "permissions": ["storage"],}`))
	writeFile(t, filepath.Join(src, "rules", "list.txt"), []byte("||ads.example^"))
	writeFile(t, filepath.Join(src, metadataDirName, "verified_contents.json"), []byte("{}"))

	dst := filepath.Join(t.TempDir(), "stage")

	manifest, err := Stage(src, dst, release.MustParseVersion("1.0.7"))
	require.NoError(t, err)
	require.Equal(t, "1.0.7", manifest.Version)
	require.Equal(t, "Shields", manifest.Title)

	raw, err := os.ReadFile(filepath.Join(dst, ManifestFilename))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.Equal(t, "1.0.7", fields["version"])
	require.Equal(t, []any{"storage"}, fields["permissions"])

	_, err = os.Stat(filepath.Join(dst, "rules", "list.txt"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dst, metadataDirName))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestStage_NoManifest checks a tree without a descriptor is rejected.
func TestStage_NoManifest(t *testing.T) {
	t.Parallel()

	_, err := Stage(t.TempDir(), filepath.Join(t.TempDir(), "stage"), release.FirstVersion)
	require.ErrorIs(t, err, errNoManifest)
}
