package cmdutils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

// DryRunner logs every command a run would execute without starting any
// process. Output fabricates key material deterministically from the
// command line so key derivation stages still complete; stages that read
// files an external tool was supposed to produce fail as they would with
// the tool missing.
type DryRunner struct {
	log *slog.Logger
}

// NewDryRunner creates a runner that only logs invocations.
func NewDryRunner(log *slog.Logger) *DryRunner {
	return &DryRunner{log: log}
}

// Run logs the invocation and reports success.
func (r *DryRunner) Run(_ context.Context, program string, args ...string) error {
	r.log.Info("Would run command", slog.String("program", program), slog.String("args", strings.Join(args, " ")))
	return nil
}

// Output logs the invocation and returns 16 bytes of hex derived from the
// command line.
func (r *DryRunner) Output(_ context.Context, program string, args ...string) ([]byte, error) {
	r.log.Info("Would run command", slog.String("program", program), slog.String("args", strings.Join(args, " ")))

	sum := sha256.Sum256([]byte(program + " " + strings.Join(args, " ")))
	return []byte(hex.EncodeToString(sum[:16])), nil
}

// Shell logs the command line and reports success.
func (r *DryRunner) Shell(_ context.Context, cmdline string) error {
	r.log.Info("Would run shell command", slog.String("cmdline", cmdline))
	return nil
}
