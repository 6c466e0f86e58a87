/*
Package httpserver implements the HTTP status API of the module provisioner.

It reports the state of a loaded deployment and resolves module endpoint
references, reading everything through the interfaces.ModuleRegistry a
loaded deployment implements.

Main features:

  • Module listing with per-module deployed/attested lifecycle flags
  • Endpoint resolution from descriptor names to node-assigned IDs
  • Health and diagnostics endpoints
  • Optional Prometheus metrics server and pprof profiler

API Endpoints:

  • GET /api/modules - List all modules with their lifecycle flags
  • GET /api/modules/{module} - Lifecycle flags of a single module
  • GET /api/modules/{module}/endpoints/{kind}/{ref} - Resolve an endpoint reference
  • GET /livez - Liveness check
  • GET /readyz - Readiness check
  • GET /drain - Gracefully mark server as not ready
  • GET /undrain - Mark server as ready

Example usage:

	// Create the handler over a loaded deployment
	handler := httpserver.NewHandler(dep, logger)

	// Configure server
	config := &httpserver.HTTPServerConfig{
		ListenAddr:               ":8080",
		MetricsAddr:              ":9090",
		EnablePprof:              false,
		Log:                      logger,
		DrainDuration:            30 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              5 * time.Second,
		WriteTimeout:             10 * time.Second,
	}

	// Create and start server
	server, err := httpserver.New(config, handler)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Run in background
	server.RunInBackground()

	// Shutdown gracefully on exit
	defer server.Shutdown()
*/
package httpserver
