package delta

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oshokin/crx-release/internal/config"
	"github.com/oshokin/crx-release/internal/crx"
	"github.com/oshokin/crx-release/internal/domain/release"
	"github.com/oshokin/crx-release/internal/logger"
	"github.com/oshokin/crx-release/internal/repository/objectstore"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644

	previousDirName = "previous"
)

// Generator fetches previous artifacts and diffs them against a new one.
type Generator struct {
	// store holds previously published artifacts.
	store objectstore.Store
	// differ produces the patch files.
	differ Differ
	// verifier optionally checks every patch before it is accepted.
	verifier Verifier
	// buildDir is the root of the scratch tree.
	buildDir string
	// window is how many previous versions are considered.
	window int
	// extension is appended to a previous artifact base name to name its patch.
	extension string
}

// Option customizes a Generator.
type Option func(*Generator)

// WithVerifier enables patch verification.
func WithVerifier(verifier Verifier) Option {
	return func(g *Generator) {
		g.verifier = verifier
	}
}

// WithWindow overrides the number of previous versions to diff against.
func WithWindow(window int) Option {
	return func(g *Generator) {
		if window > 0 {
			g.window = window
		}
	}
}

// WithExtension overrides the patch file extension.
func WithExtension(extension string) Option {
	return func(g *Generator) {
		if extension != "" {
			g.extension = extension
		}
	}
}

// NewGenerator creates a generator using buildDir for scratch files.
func NewGenerator(store objectstore.Store, differ Differ, buildDir string, options ...Option) *Generator {
	g := &Generator{
		store:     store,
		differ:    differ,
		buildDir:  buildDir,
		window:    config.DefaultPreviousWindow,
		extension: config.DefaultPatchExtension,
	}

	for _, option := range options {
		option(g)
	}

	return g
}

// PreviousDir returns the directory previous artifacts of id are downloaded to.
func (g *Generator) PreviousDir(id release.Identity) string {
	return filepath.Join(g.buildDir, previousDirName, id.String())
}

// FetchPrevious recreates the previous-artifact directory of id and downloads the
// artifacts of up to window versions preceding target. Missing versions are skipped.
func (g *Generator) FetchPrevious(ctx context.Context, id release.Identity, target release.Version) (string, error) {
	dir := g.PreviousDir(id)
	if err := crx.RecreateDir(dir); err != nil {
		return "", err
	}

	for _, previous := range target.Previous(g.window) {
		key := release.ArtifactKey(id, previous)

		body, err := g.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, objectstore.ErrNotFound) {
				logger.DebugKV(ctx, "Previous artifact not found", "key", key)
				continue
			}

			return "", fmt.Errorf("download previous %s: %w", previous, err)
		}

		fileName := filepath.Join(dir, release.ArtifactFileName(previous))
		if err = os.WriteFile(fileName, body, filePermissions); err != nil {
			return "", fmt.Errorf("save previous %s: %w", previous, err)
		}

		logger.InfoKV(ctx, "Fetched previous artifact", "version", previous.String())
	}

	return dir, nil
}

// Generate recreates outputDir and diffs every artifact of previousDir against
// newArtifact, in file-name order. A failed diff or verification is logged and
// the previous artifact is left out of the manifest.
func (g *Generator) Generate(
	ctx context.Context,
	newArtifact, previousDir, outputDir string,
) (release.PatchManifest, error) {
	if err := crx.RecreateDir(outputDir); err != nil {
		return nil, err
	}

	previous, err := previousArtifacts(previousDir)
	if err != nil {
		return nil, err
	}

	manifest := make(release.PatchManifest, len(previous))

	for _, name := range previous {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		base := strings.TrimSuffix(name, filepath.Ext(name))
		patchName := base + g.extension
		oldPath := filepath.Join(previousDir, name)
		patchPath := filepath.Join(outputDir, patchName)

		entry, diffErr := g.diffOne(ctx, oldPath, newArtifact, patchPath)
		if diffErr != nil {
			logger.WarnKV(ctx, "Skipping patch", "previous", name, "error", diffErr)

			_ = os.Remove(patchPath)

			continue
		}

		entry.Name = patchName
		manifest[base] = entry

		logger.InfoKV(ctx, "Generated patch", "previous", name, "patch", patchName, "size", entry.Size)
	}

	return manifest, nil
}

// diffOne produces and measures a single patch.
func (g *Generator) diffOne(ctx context.Context, oldPath, newPath, patchPath string) (release.PatchEntry, error) {
	if err := g.differ.Diff(ctx, oldPath, newPath, patchPath); err != nil {
		return release.PatchEntry{}, err
	}

	if g.verifier != nil {
		if err := g.verifier.Verify(ctx, oldPath, newPath, patchPath); err != nil {
			return release.PatchEntry{}, err
		}
	}

	info, err := os.Stat(patchPath)
	if err != nil {
		return release.PatchEntry{}, err
	}

	hash, err := release.HashFile(patchPath)
	if err != nil {
		return release.PatchEntry{}, err
	}

	return release.PatchEntry{Hash: hash, Size: info.Size()}, nil
}

// previousArtifacts lists the artifact files of dir in sorted order.
// A missing directory yields no artifacts.
func previousArtifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("list previous artifacts: %w", err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.Type().IsRegular() || filepath.Ext(entry.Name()) != release.ArtifactExtension {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	return names, nil
}
