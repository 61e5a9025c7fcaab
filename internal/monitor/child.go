package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
)

// ChildEnv tells a re-executed binary which role it plays.
const ChildEnv = "SITEPRESS_CHILD"

// ModeBuild marks a process that runs exactly one build pass.
const ModeBuild = "build"

// ChildMode returns the role of the current process, or "" for the parent.
func ChildMode() string { return os.Getenv(ChildEnv) }

// Child re-executes the running binary in its own process so that user code
// and its crashes cannot affect the parent.
type Child struct {
	Mode string
	// Executable defaults to os.Executable().
	Executable string
	// Args defaults to os.Args[1:].
	Args   []string
	Env    []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// ChildBuilder returns a Child that runs one build pass with the parent's arguments.
func ChildBuilder(logger *slog.Logger) *Child {
	return &Child{Mode: ModeBuild, Logger: logger}
}

// Build runs the child and waits for it. A non-zero exit is returned as a
// build error; callers in monitor mode log it and keep going.
func (c *Child) Build(ctx context.Context) error {
	cmd, err := c.command(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	err = cmd.Run()
	code := cmd.ProcessState.ExitCode()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return ferrors.WrapError(err, ferrors.CategoryMonitor, "start build process").Build()
		}
		return ferrors.BuildError("build process failed").
			WithContext("exit_code", code).
			WithCause(err).
			Build()
	}
	c.logger().Debug("Build process finished", logfields.ExitCode(code), logfields.Duration(time.Since(start)))
	return nil
}

func (c *Child) command(ctx context.Context) (*exec.Cmd, error) {
	exe := c.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryMonitor, "locate executable").Build()
		}
	}
	args := c.Args
	if args == nil {
		args = os.Args[1:]
	}
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 5 * time.Second
	cmd.Dir = c.Dir
	cmd.Env = append(append(os.Environ(), ChildEnv+"="+c.Mode), c.Env...)
	cmd.Stdout = c.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	return cmd, nil
}

func (c *Child) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
