package tool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/oshokin/crx-release/internal/config"
	"github.com/oshokin/crx-release/internal/domain/release"
	"github.com/oshokin/crx-release/internal/logger"
)

// maxOutputInError is how much tool output is kept in a failure message.
const maxOutputInError = 2048

// Command is an external executable with an argument template.
type Command struct {
	// binary is the executable name or path.
	binary string
	// args may contain {name} placeholders.
	args []string
}

// New creates a Command from tool settings.
func New(cfg config.ToolConfig) *Command {
	return &Command{
		binary: cfg.Binary,
		args:   append([]string(nil), cfg.Args...),
	}
}

// Binary returns the configured executable.
func (c *Command) Binary() string {
	return c.binary
}

// Resolve locates the executable; a missing one is a configuration error.
func (c *Command) Resolve() (string, error) {
	if strings.TrimSpace(c.binary) == "" {
		return "", fmt.Errorf("tool binary is not set: %w", release.ErrConfiguration)
	}

	resolved, err := exec.LookPath(c.binary)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w: %w", c.binary, release.ErrConfiguration, err)
	}

	return resolved, nil
}

// Expand substitutes {name} placeholders of the argument template with values.
func (c *Command) Expand(values map[string]string) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}

	sort.Strings(names)

	pairs := make([]string, 0, len(values)*2) //nolint:mnd // Old/new pairs.
	for _, name := range names {
		pairs = append(pairs, "{"+name+"}", values[name])
	}

	replacer := strings.NewReplacer(pairs...)

	expanded := make([]string, 0, len(c.args))
	for _, arg := range c.args {
		expanded = append(expanded, replacer.Replace(arg))
	}

	return expanded
}

// Run executes the command with the expanded arguments and waits for it.
func (c *Command) Run(ctx context.Context, values map[string]string) error {
	binary, err := c.Resolve()
	if err != nil {
		return err
	}

	args := c.Expand(values)

	logger.DebugKV(ctx, "Running external tool", "binary", binary, "args", args)

	var output bytes.Buffer

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err = cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w: %s", c.binary, err, tail(output.String()))
	}

	return nil
}

// tail keeps the end of a tool's output, where failures are usually reported.
func tail(output string) string {
	output = strings.TrimSpace(output)
	if len(output) > maxOutputInError {
		output = "..." + output[len(output)-maxOutputInError:]
	}

	return output
}
