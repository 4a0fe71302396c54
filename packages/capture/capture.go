// Package capture invokes the external headless-browser script that
// renders a single chat message and writes it out as an image.
package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Runner spawns the screenshot script as a subprocess. The script takes
// three positional arguments: message id, output image path, site URL.
type Runner struct {
	command string
	script  string
	verbose bool
}

type Option func(*Runner)

func WithVerbose(v bool) Option {
	return func(r *Runner) {
		r.verbose = v
	}
}

// NewRunner builds a Runner that executes the script via the given
// command interpreter (typically "node").
func NewRunner(command, script string, opts ...Option) *Runner {
	r := &Runner{
		command: command,
		script:  script,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Capture renders the message to imagePath. A non-zero exit from the
// script propagates as an error carrying the script's combined output.
func (r *Runner) Capture(ctx context.Context, messageID int64, imagePath, siteURL string) error {
	if err := os.MkdirAll(filepath.Dir(imagePath), 0o755); err != nil {
		return fmt.Errorf("cannot create image directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.command, r.script,
		strconv.FormatInt(messageID, 10), imagePath, siteURL)
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("screenshot script failed: %v\nOutput: %s", err, output)
	}

	if r.verbose && len(output) > 0 {
		fmt.Printf("Screenshot output: %s\n", output)
	}

	return nil
}
