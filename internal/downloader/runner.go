package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/nao1215/debscraper/internal/model"
)

// maxOutputTail bounds the subprocess output kept in an error message.
const maxOutputTail = 512

// Runner starts an external tool in dir and waits for it.
// A non-zero exit must be returned as an error.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// ExecRunner runs tools with os/exec.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates an ExecRunner. A nil logger uses slog.Default.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{logger: logger}
}

// Run executes name with args. The process is killed when ctx is done.
// Failures carry the tail of the combined output.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // tool paths come from configuration
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	r.logger.Debug("running tool", "tool", name, "dir", dir, "args", len(args))

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return model.NewError(model.KindSubprocess, name, "", fmt.Errorf("%w: %w", ErrToolNotStarted, err))
		}
		msg := strings.TrimSpace(out.String())
		if len(msg) > maxOutputTail {
			msg = "..." + msg[len(msg)-maxOutputTail:]
		}
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return model.NewError(model.KindSubprocess, name, "", err)
	}
	return nil
}

// Resolve checks that name can be executed, looking it up in PATH when it
// has no path separator.
func (r *ExecRunner) Resolve(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrToolNotStarted, err)
	}
	return path, nil
}
