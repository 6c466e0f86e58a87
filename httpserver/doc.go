/*
Package httpserver implements the HTTP status API of the module provisioner.

It exposes the state of a loaded deployment while a run is in progress or
after it completed: which modules exist, where they deploy and how far
through the provisioning pipeline each one is. It also resolves module
endpoint references, which lets operators and node tooling translate the
symbolic endpoint names of a descriptor into the IDs modules carry on their
nodes.

The server reads everything through the interfaces.ModuleRegistry a loaded
deployment implements. It never mutates the deployment; provisioning stays
with the pipeline that owns it.

# Status API Endpoints

  - GET /api/modules - List all modules with their lifecycle flags
  - GET /api/modules/{module} - Lifecycle flags of a single module
  - GET /api/modules/{module}/endpoints/{kind}/{ref} - Resolve an endpoint
    reference to its ID; kind is one of input, output, entry
  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready

# Endpoint Resolution

An endpoint reference is either a name from the deployment descriptor or a
numeric ID that was assigned externally. Numeric references short-circuit
and come back unchanged. Named references resolve through the module
backend: Sancus modules read the toolchain-emitted index symbol from the
linked binary, TrustZone modules look the name up in the descriptor's
endpoint maps. Resolving a named Sancus endpoint therefore requires the
module to be built and joins an in-flight build if one is running.

# Metrics

When MetricsAddr is configured, a separate metrics server publishes the
provisioning lifecycle collectors of the metrics package alongside process
and Go runtime metrics.

# Example Usage

	// Load the deployment the API reports on
	dep, err := deployment.Load(desc, &deployment.Config{Log: logger})
	if err != nil {
		log.Fatalf("Failed to load deployment: %v", err)
	}

	// Create handler and server
	handler := httpserver.NewHandler(dep, logger)
	server, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               ":8080",
		MetricsAddr:              ":9090",
		Log:                      logger,
		DrainDuration:            30 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              5 * time.Second,
		WriteTimeout:             10 * time.Second,
	}, handler)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Run in background while the deployment provisions
	server.RunInBackground()
	defer server.Shutdown()
*/
package httpserver
