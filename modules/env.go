package modules

import (
	"log/slog"

	"github.com/ruteri/tee-module-provisioner/attestation"
	"github.com/ruteri/tee-module-provisioner/cmdutils"
)

// Env carries the shared build and attestation environment for modules.
// Every module in a deployment references the same Env, so build
// artifacts land under one directory and all external tools run
// through one runner.
type Env struct {
	// BuildDir is the directory build artifacts are written under.
	// Each module creates its own subdirectory below it.
	BuildDir string

	// Debug enables debug toolchain flags where the backend supports them.
	Debug bool

	// Runner executes the external toolchain commands.
	Runner cmdutils.Runner

	// Manager is the attestation manager client. When nil, modules fall
	// back to node-local attestation.
	Manager *attestation.Manager

	// Log is the base logger. Modules derive their own loggers from it.
	Log *slog.Logger
}
