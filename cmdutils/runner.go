// Package cmdutils wraps external tool invocation behind a small interface
// so components that drive compilers, linkers and attestation clients can be
// tested without the toolchains installed.
package cmdutils

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Runner executes external programs. Programs are always started from an
// explicit argument list; Shell exists for the one build system that needs
// a composed command line and nothing else should use it.
type Runner interface {
	// Run executes a program with the given arguments and waits for it.
	Run(ctx context.Context, program string, args ...string) error

	// Output executes a program and returns its trimmed standard output.
	Output(ctx context.Context, program string, args ...string) ([]byte, error)

	// Shell executes a command line through the system shell.
	Shell(ctx context.Context, cmdline string) error
}

// ExecRunner runs programs as local subprocesses.
type ExecRunner struct {
	log *slog.Logger
}

// NewExecRunner creates a runner logging invocations at debug level.
func NewExecRunner(log *slog.Logger) *ExecRunner {
	return &ExecRunner{log: log}
}

// Run executes the program and waits for it, capturing stderr for the error
// message.
func (r *ExecRunner) Run(ctx context.Context, program string, args ...string) error {
	r.log.Debug("Running command", slog.String("program", program), slog.String("args", strings.Join(args, " ")))

	cmd := exec.CommandContext(ctx, program, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", program, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Output executes the program and returns its standard output with
// surrounding whitespace trimmed.
func (r *ExecRunner) Output(ctx context.Context, program string, args ...string) ([]byte, error) {
	r.log.Debug("Running command", slog.String("program", program), slog.String("args", strings.Join(args, " ")))

	cmd := exec.CommandContext(ctx, program, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", program, err, strings.TrimSpace(stderr.String()))
	}
	return bytes.TrimSpace(out), nil
}

// Shell executes the command line through /bin/sh.
func (r *ExecRunner) Shell(ctx context.Context, cmdline string) error {
	r.log.Debug("Running shell command", slog.String("cmdline", cmdline))

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("shell command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// CreateTemp creates an empty file with the given suffix in dir and returns
// its path. An empty dir means the system temp directory.
func CreateTemp(dir, suffix string) (string, error) {
	f, err := os.CreateTemp(dir, "*"+suffix)
	if err != nil {
		return "", fmt.Errorf("could not create temp file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("could not close temp file: %w", err)
	}
	return name, nil
}
