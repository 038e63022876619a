package delta

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oshokin/crx-release/internal/config"
	"github.com/oshokin/crx-release/internal/service/tool"
)

// errNoPatch indicates the differ exited successfully without writing a patch.
var errNoPatch = errors.New("differ produced no patch")

// Differ writes a patch turning oldPath into newPath.
type Differ interface {
	Diff(ctx context.Context, oldPath, newPath, patchPath string) error
}

// ExecDiffer runs an external diff tool such as puffin -puffdiff.
type ExecDiffer struct {
	// command is the diff executable with its argument template.
	command *tool.Command
}

// NewExecDiffer creates a differ from tool settings.
// Arguments may reference {old}, {new} and {patch}.
func NewExecDiffer(cfg config.ToolConfig) *ExecDiffer {
	return &ExecDiffer{command: tool.New(cfg)}
}

// Diff runs the tool and checks that the patch was written.
func (d *ExecDiffer) Diff(ctx context.Context, oldPath, newPath, patchPath string) error {
	err := d.command.Run(ctx, map[string]string{
		"old":   oldPath,
		"new":   newPath,
		"patch": patchPath,
	})
	if err != nil {
		return err
	}

	if _, err = os.Stat(patchPath); err != nil {
		return fmt.Errorf("%s: %w", patchPath, errNoPatch)
	}

	return nil
}
