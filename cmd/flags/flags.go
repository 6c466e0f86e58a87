package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/tee-module-provisioner/attestation"
	"github.com/ruteri/tee-module-provisioner/common"
	"github.com/ruteri/tee-module-provisioner/httpserver"
	"github.com/ruteri/tee-module-provisioner/nodes"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String("metrics-addr")
	enablePprof := cCtx.Bool("pprof")
	drainDuration := time.Duration(cCtx.Int64("drain-seconds")) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var DescriptorFlag *cli.StringFlag = &cli.StringFlag{
	Name:  "descriptor",
	Usage: "path to the deployment descriptor YAML file",
}

var StateURIFlag *cli.StringSliceFlag = &cli.StringSliceFlag{
	Name:    "state-uri",
	EnvVars: []string{"PROVISIONER_STATE_URI"},
	Usage:   "state backend URI (file://, s3://, ipfs:// or vault://), repeat for replicated storage",
}

var BuildDirFlag = &cli.StringFlag{
	Name:  "build-dir",
	Usage: "directory for build artifacts, a temporary directory otherwise",
}

var ToolchainDebugFlag = &cli.BoolFlag{
	Name:  "debug",
	Value: false,
	Usage: "pass debug flags to the module toolchains",
}

var DryRunFlag = &cli.BoolFlag{
	Name:  "dry-run",
	Value: false,
	Usage: "log external commands instead of executing them and skip state persistence",
}

var AttmanCLIFlag = &cli.StringFlag{
	Name:    "attman-cli",
	EnvVars: []string{"PROVISIONER_ATTMAN_CLI"},
	Value:   attestation.DefaultCLI,
	Usage:   "attestation manager client binary",
}

var DNSServerFlag = &cli.StringFlag{
	Name:  "dns-server",
	Value: nodes.DefaultDNSServer,
	Usage: "DNS server used to resolve dnssrv:// node addresses",
}

var OutputFlag = &cli.StringFlag{
	Name:  "output",
	Usage: "write the resulting deployment state document to this file",
}

var ArchiveFlag = &cli.BoolFlag{
	Name:  "archive-artifacts",
	Value: false,
	Usage: "store deployed module binaries in the state backends",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Usage: "if set, serve the deployment status API on this address after the run",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Usage: "address to listen on for Prometheus metrics, disabled when empty",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlagFn(common.PackageName),
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
