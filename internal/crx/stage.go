package crx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/oshokin/crx-release/internal/domain/release"
)

// Stage copies the source tree srcDir into dstDir (recreated) and rewrites the
// manifest version to v. The _metadata directory carries signatures of the
// upstream publisher and is left out.
func Stage(srcDir, dstDir string, v release.Version) (*Manifest, error) {
	manifestPath := filepath.Join(srcDir, ManifestFilename)
	if _, err := os.Stat(manifestPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", srcDir, errNoManifest)
		}

		return nil, err
	}

	if err := RecreateDir(dstDir); err != nil {
		return nil, err
	}

	err := filepath.WalkDir(srcDir, func(current string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, current)
		if err != nil {
			return err
		}

		if rel == "." {
			return nil
		}

		if entry.IsDir() && rel == metadataDirName {
			return filepath.SkipDir
		}

		target := filepath.Join(dstDir, rel)

		switch {
		case entry.IsDir():
			return os.MkdirAll(target, dirPermissions)
		case entry.Type().IsRegular():
			return copyFile(current, target)
		default:
			// Symlinks and devices are not part of a packable extension.
			return nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", srcDir, err)
	}

	return rewriteVersion(filepath.Join(dstDir, ManifestFilename), v)
}

// rewriteVersion sets the "version" field of the manifest at path, keeping every other field.
func rewriteVersion(manifestPath string, v release.Version) (*Manifest, error) {
	contents, err := os.ReadFile(filepath.Clean(manifestPath))
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err = json.Unmarshal(jsonc.ToJSON(contents), &fields); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	fields["version"] = v.String()

	updated, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(manifestPath), updated, filePermissions); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	manifest, err := ParseManifest(updated)
	if err != nil {
		return nil, err
	}

	manifest.Title = resolveMessage(manifest.Name, manifest.DefaultLocale, func(name string) ([]byte, error) {
		return os.ReadFile(filepath.Join(filepath.Dir(manifestPath), filepath.FromSlash(name)))
	})

	return manifest, nil
}

func copyFile(src, dst string) error {
	source, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = source.Close()
	}()

	output, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return err
	}

	if _, err = io.Copy(output, source); err != nil {
		_ = output.Close()

		return fmt.Errorf("copy %s: %w", src, err)
	}

	return output.Close()
}
