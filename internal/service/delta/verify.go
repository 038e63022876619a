package delta

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/crx-release/internal/domain/release"
)

// Verifier checks that a patch applied to oldPath reproduces newPath.
type Verifier interface {
	Verify(ctx context.Context, oldPath, newPath, patchPath string) error
}

// BSDiffVerifier applies bsdiff patches with go-update against a scratch copy
// of the old artifact and compares the result with the new artifact checksum.
type BSDiffVerifier struct {
	// scratchDir receives the temporary copies; empty means the system temp dir.
	scratchDir string
}

// NewBSDiffVerifier creates a verifier working in scratchDir.
func NewBSDiffVerifier(scratchDir string) *BSDiffVerifier {
	return &BSDiffVerifier{scratchDir: scratchDir}
}

// Verify applies the patch and fails if the output does not match newPath.
func (v *BSDiffVerifier) Verify(_ context.Context, oldPath, newPath, patchPath string) error {
	expected, err := fileChecksum(newPath)
	if err != nil {
		return err
	}

	oldContents, err := os.ReadFile(filepath.Clean(oldPath))
	if err != nil {
		return fmt.Errorf("read previous artifact: %w", err)
	}

	if v.scratchDir != "" {
		if err = os.MkdirAll(v.scratchDir, dirPermissions); err != nil {
			return fmt.Errorf("create scratch directory: %w", err)
		}
	}

	scratch, err := os.MkdirTemp(v.scratchDir, "verify-")
	if err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}

	defer func() {
		_ = os.RemoveAll(scratch)
	}()

	target := filepath.Join(scratch, filepath.Base(oldPath))
	if err = os.WriteFile(target, oldContents, filePermissions); err != nil {
		return fmt.Errorf("copy previous artifact: %w", err)
	}

	patch, err := os.Open(filepath.Clean(patchPath))
	if err != nil {
		return fmt.Errorf("open patch: %w", err)
	}

	defer func() {
		_ = patch.Close()
	}()

	err = goupdate.Apply(patch, goupdate.Options{
		TargetPath: target,
		TargetMode: filePermissions,
		Checksum:   expected,
		Hash:       release.DefaultHashFunction,
		Patcher:    goupdate.NewBSDiffPatcher(),
	})
	if err != nil {
		return fmt.Errorf("apply patch %s: %w", filepath.Base(patchPath), err)
	}

	return nil
}

// fileChecksum returns the raw digest of path using the release hash function.
func fileChecksum(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read new artifact: %w", err)
	}

	hasher := release.DefaultHashFunction.New()
	_, _ = hasher.Write(contents)

	return hasher.Sum(nil), nil
}
