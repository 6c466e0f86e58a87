package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ruteri/tee-module-provisioner/common"
)

// MetricsServer serves the metrics registry over HTTP.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the named service listening on addr.
// The address may be empty when metrics are disabled; the server is still
// constructed so callers can wire it unconditionally, it just never serves.
func New(name, addr string) (*MetricsServer, error) {
	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "provisioner",
		Name:        "build_info",
		Help:        "Build information of the running service.",
		ConstLabels: prometheus.Labels{"service": name, "version": common.Version},
	})
	info.Set(1)

	// New runs once per server but tests construct several; a collector
	// registered by an earlier call is fine to reuse.
	if err := Registry.Register(info); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// ListenAndServe serves the metrics endpoint until Shutdown.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
