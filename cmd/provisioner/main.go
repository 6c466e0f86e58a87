package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/tee-module-provisioner/cmd/flags"
	"github.com/ruteri/tee-module-provisioner/cmdutils"
	"github.com/ruteri/tee-module-provisioner/common"
	"github.com/ruteri/tee-module-provisioner/deployment"
	"github.com/ruteri/tee-module-provisioner/httpserver"
	"github.com/ruteri/tee-module-provisioner/interfaces"
	"github.com/ruteri/tee-module-provisioner/metrics"
	"github.com/ruteri/tee-module-provisioner/nodes"
	"github.com/ruteri/tee-module-provisioner/statestore"
	"github.com/urfave/cli/v2"
)

var runFlags []cli.Flag = []cli.Flag{
	flags.BuildDirFlag,
	flags.ToolchainDebugFlag,
	flags.DryRunFlag,
	flags.AttmanCLIFlag,
	flags.DNSServerFlag,
	flags.OutputFlag,
	flags.ArchiveFlag,
	flags.ListenAddrFlag,
}

func main() {
	app := &cli.App{
		Name:  "provisioner",
		Usage: "Build, deploy and attest TEE software modules",
		Flags: append([]cli.Flag{
			flags.DescriptorFlag,
			flags.StateURIFlag,
		}, flags.CommonFlags...),
		Commands: []*cli.Command{
			&cli.Command{
				Name:        "build",
				Usage:       "Build every module of the deployment",
				Description: "Runs the build stage of every module without touching any node.",
				Flags:       runFlags,
				Action: func(cCtx *cli.Context) error {
					return runStages(cCtx, deployment.StageBuild)
				},
			},
			&cli.Command{
				Name:        "deploy",
				Usage:       "Build and deploy every module and derive its key",
				Description: "Runs the pipeline of every module up to and including key derivation. Stages recorded in the loaded state document are not repeated.",
				Flags:       runFlags,
				Action: func(cCtx *cli.Context) error {
					return runStages(cCtx, deployment.StageKey)
				},
			},
			&cli.Command{
				Name:        "attest",
				Usage:       "Attest every module of the deployment",
				Description: "Runs the full pipeline of every module including attestation, deploying first where the loaded state document records no deployment.",
				Flags:       runFlags,
				Action: func(cCtx *cli.Context) error {
					return runStages(cCtx, deployment.StageAttest)
				},
			},
			&cli.Command{
				Name:        "dump",
				Usage:       "Print the deployment state document",
				Description: "Loads the descriptor or persisted state and writes it back out without running any stage.",
				Flags:       []cli.Flag{flags.OutputFlag},
				Action:      dumpState,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runStages(cCtx *cli.Context, through deployment.Stage) error {
	logger := flags.SetupLogger(cCtx)

	desc, backend, err := loadState(cCtx, logger)
	if err != nil {
		logger.Error("Failed to load deployment state", "err", err)
		return err
	}

	cfg := &deployment.Config{
		BuildDir:  cCtx.String(flags.BuildDirFlag.Name),
		Debug:     cCtx.Bool(flags.ToolchainDebugFlag.Name),
		AttmanCLI: cCtx.String(flags.AttmanCLIFlag.Name),
		Resolver:  nodes.NewResolver(cCtx.String(flags.DNSServerFlag.Name)),
		Log:       logger,
	}

	if cCtx.Bool(flags.DryRunFlag.Name) {
		logger.Info("Dry run, external commands will be logged instead of executed")
		cfg.Runner = cmdutils.NewDryRunner(logger)
		// Remote attestation cannot be faked by stubbing tools, so dry
		// runs attest against the nodes directly.
		desc.AttestationManager = nil
	}

	dep, err := deployment.Load(desc, cfg)
	if err != nil {
		logger.Error("Failed to load deployment", "err", err)
		return err
	}

	// The status server carries its own metrics listener; without it the
	// metrics server runs alone.
	var server *httpserver.Server
	var metricsSrv *metrics.MetricsServer
	if listenAddr := cCtx.String(flags.ListenAddrFlag.Name); listenAddr != "" {
		server, err = httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr), httpserver.NewHandler(dep, logger))
		if err != nil {
			logger.Error("Failed to create status server", "err", err)
			return err
		}
		server.RunInBackground()
	} else if metricsAddr := cCtx.String(flags.MetricsAddrFlag.Name); metricsAddr != "" {
		metricsSrv, err = metrics.New(common.PackageName, metricsAddr)
		if err != nil {
			logger.Error("Failed to create metrics server", "err", err)
			return err
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "err", err)
			}
		}()
	}

	runErr := dep.Run(cCtx.Context, through)
	if runErr != nil {
		logger.Error("Provisioning run finished with failures", "stage", through.String(), "err", runErr)
	} else {
		logger.Info("Provisioning run finished", "stage", through.String())
	}

	if err := writeState(cCtx, logger, dep, backend); err != nil {
		logger.Error("Failed to persist deployment state", "err", err)
		return errors.Join(runErr, err)
	}

	if server != nil {
		exit := make(chan os.Signal, 1)
		signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

		logger.Info("Status API is serving, press Ctrl+C to stop", "listenAddr", cCtx.String(flags.ListenAddrFlag.Name))
		<-exit
		logger.Info("Shutdown signal received")
		server.Shutdown()
	}

	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logger.Error("Failed to shut down metrics server", "err", err)
		}
	}

	return runErr
}

// loadState assembles the state backend from the state-uri flags and loads
// the deployment document, preferring an explicit descriptor file over
// persisted state.
func loadState(cCtx *cli.Context, logger *slog.Logger) (*deployment.Descriptor, interfaces.StateBackend, error) {
	descriptorPath := cCtx.String(flags.DescriptorFlag.Name)
	stateURIs := cCtx.StringSlice(flags.StateURIFlag.Name)

	var backend interfaces.StateBackend
	if len(stateURIs) > 0 {
		locations := make([]interfaces.StateLocation, 0, len(stateURIs))
		for _, uri := range stateURIs {
			location, err := interfaces.NewStateLocation(uri)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid state URI %s: %w", uri, err)
			}
			locations = append(locations, location)
		}

		multi, err := statestore.NewStateBackendFactory(logger).CreateMultiBackend(locations)
		if err != nil {
			return nil, nil, err
		}
		backend = multi
	}

	if descriptorPath != "" {
		desc, err := deployment.LoadDescriptorFile(descriptorPath)
		return desc, backend, err
	}

	if backend == nil {
		return nil, nil, errors.New("either --descriptor or --state-uri is required")
	}

	data, err := backend.FetchState(cCtx.Context)
	if err != nil {
		return nil, nil, fmt.Errorf("could not fetch deployment state from %s: %w", backend.Name(), err)
	}

	desc, err := deployment.ParseDescriptor(data)
	return desc, backend, err
}

// writeState persists the state document of a finished run. Partially failed
// runs are persisted too so completed stages are not repeated next time.
func writeState(cCtx *cli.Context, logger *slog.Logger, dep *deployment.Deployment, backend interfaces.StateBackend) error {
	if cCtx.Bool(flags.DryRunFlag.Name) {
		data, err := dep.Dump().Marshal()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if backend != nil {
		if err := dep.Persist(cCtx.Context, backend); err != nil {
			return err
		}

		if cCtx.Bool(flags.ArchiveFlag.Name) {
			ids, err := dep.Archive(cCtx.Context, backend)
			if err != nil {
				return err
			}
			logger.Info("Module binaries archived", "count", len(ids))
		}
	}

	if output := cCtx.String(flags.OutputFlag.Name); output != "" {
		data, err := dep.Dump().Marshal()
		if err != nil {
			return err
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return fmt.Errorf("could not write state document: %w", err)
		}
	} else if backend == nil {
		data, err := dep.Dump().Marshal()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}

	return nil
}

func dumpState(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	desc, _, err := loadState(cCtx, logger)
	if err != nil {
		return err
	}

	data, err := desc.Marshal()
	if err != nil {
		return err
	}

	if output := cCtx.String(flags.OutputFlag.Name); output != "" {
		return os.WriteFile(output, data, 0o644)
	}

	fmt.Println(string(data))
	return nil
}
