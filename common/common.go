// Package common contains shared constants and logger setup used by all
// binaries in this project.
package common

// PackageName is used as the service identifier in logs and metrics.
const PackageName = "tee-module-provisioner"

// Version is set at build time via -ldflags.
var Version = "dev"
