package packer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/crx-release/internal/config"
	"github.com/oshokin/crx-release/internal/domain/release"
	"github.com/oshokin/crx-release/internal/logger"
	"github.com/oshokin/crx-release/internal/service/tool"
)

// errNoOutput indicates the tool exited successfully but produced no package.
var errNoOutput = errors.New("packer produced no output")

// Packer turns a staged directory into a signed package.
type Packer interface {
	// Check reports release.ErrConfiguration when packing cannot run at all.
	Check() error
	// Pack signs stageDir with the private key at keyFile and returns the package path.
	Pack(ctx context.Context, stageDir, keyFile string) (string, error)
}

// ExecPacker runs an external executable such as chromium --pack-extension.
type ExecPacker struct {
	// command is the packer executable with its argument template.
	command *tool.Command
	// extension is appended to the stage directory to locate the output.
	extension string
}

// NewExecPacker creates a packer from tool settings.
// Arguments may reference {dir}, {key} and {out}.
func NewExecPacker(cfg config.ToolConfig) *ExecPacker {
	extension := cfg.Extension
	if extension == "" {
		extension = release.ArtifactExtension
	}

	return &ExecPacker{
		command:   tool.New(cfg),
		extension: extension,
	}
}

// OutputPath returns where the package for stageDir is expected.
func (p *ExecPacker) OutputPath(stageDir string) string {
	return filepath.Clean(stageDir) + p.extension
}

// Check locates the packer binary.
func (p *ExecPacker) Check() error {
	_, err := p.command.Resolve()

	return err
}

// Pack runs the packer for stageDir. A missing key file or binary is reported as
// release.ErrConfiguration before the tool is started.
func (p *ExecPacker) Pack(ctx context.Context, stageDir, keyFile string) (string, error) {
	if _, err := os.Stat(keyFile); err != nil {
		return "", fmt.Errorf("signing key %s: %w: %w", keyFile, release.ErrConfiguration, err)
	}

	if err := p.Check(); err != nil {
		return "", err
	}

	output := p.OutputPath(stageDir)

	// Chromium refuses to overwrite an existing package.
	if err := os.Remove(output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove stale package: %w", err)
	}

	absDir, err := filepath.Abs(stageDir)
	if err != nil {
		return "", fmt.Errorf("resolve stage directory: %w", err)
	}

	absKey, err := filepath.Abs(keyFile)
	if err != nil {
		return "", fmt.Errorf("resolve key file: %w", err)
	}

	absOutput, err := filepath.Abs(output)
	if err != nil {
		return "", fmt.Errorf("resolve output: %w", err)
	}

	logger.InfoKV(ctx, "Packing extension", "dir", stageDir, "packer", p.command.Binary())

	err = p.command.Run(ctx, map[string]string{
		"dir": absDir,
		"key": absKey,
		"out": absOutput,
	})
	if err != nil {
		return "", fmt.Errorf("pack %s: %w", stageDir, err)
	}

	if _, err = os.Stat(output); err != nil {
		return "", fmt.Errorf("%s: %w", output, errNoOutput)
	}

	return output, nil
}
