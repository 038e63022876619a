package crx

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/tidwall/jsonc"
)

const (
	// ManifestFilename is the descriptor file at the root of every extension.
	ManifestFilename = "manifest.json"

	localesDir      = "_locales"
	messagesFile    = "messages.json"
	messagePrefix   = "__MSG_"
	messageSuffix   = "__"
	metadataDirName = "_metadata"
)

var errNoManifest = errors.New("manifest is missing")

// Manifest is the subset of the extension descriptor the pipeline relies on.
type Manifest struct {
	// Name is the declared name, possibly a __MSG_key__ reference.
	Name string `json:"name"`
	// Version is the declared version string.
	Version string `json:"version"`
	// DefaultLocale names the locale used to resolve message references.
	DefaultLocale string `json:"default_locale,omitempty"`
	// ManifestVersion is the manifest schema version.
	ManifestVersion int `json:"manifest_version,omitempty"`
	// Title is Name with message references resolved.
	Title string `json:"-"`
}

// message is one entry of a _locales/<locale>/messages.json file.
type message struct {
	Message string `json:"message"`
}

// ParseManifest decodes a manifest, tolerating comments and trailing commas.
func ParseManifest(contents []byte) (*Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(jsonc.ToJSON(contents), &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	manifest.Title = manifest.Name

	return &manifest, nil
}

// ReadManifest parses the descriptor of a packed CRX or zip archive and resolves its title.
func ReadManifest(archivePath string) (*Manifest, error) {
	reader, closer, err := openArchive(archivePath)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = closer.Close()
	}()

	contents, err := readZipFile(reader, ManifestFilename)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", archivePath, errNoManifest)
	}

	manifest, err := ParseManifest(contents)
	if err != nil {
		return nil, err
	}

	manifest.Title = resolveMessage(manifest.Name, manifest.DefaultLocale, func(name string) ([]byte, error) {
		return readZipFile(reader, name)
	})

	return manifest, nil
}

// resolveMessage expands a __MSG_key__ reference using the default locale messages.
// Unresolvable references are returned unchanged.
func resolveMessage(value, locale string, read func(name string) ([]byte, error)) string {
	if !strings.HasPrefix(value, messagePrefix) || !strings.HasSuffix(value, messageSuffix) || locale == "" {
		return value
	}

	key := strings.TrimSuffix(strings.TrimPrefix(value, messagePrefix), messageSuffix)

	contents, err := read(path.Join(localesDir, locale, messagesFile))
	if err != nil {
		return value
	}

	var messages map[string]message
	if err = json.Unmarshal(jsonc.ToJSON(contents), &messages); err != nil {
		return value
	}

	for name, entry := range messages {
		if strings.EqualFold(name, key) && entry.Message != "" {
			return entry.Message
		}
	}

	return value
}
