package statestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/tee-module-provisioner/interfaces"
)

// MultiBackend implements interfaces.StateBackend using multiple backends with fallback.
// Fetches return the first hit; stores go to every available backend.
type MultiBackend struct {
	backends []interfaces.StateBackend
	log      *slog.Logger
}

// NewMultiBackend creates a new multi-state backend with fallback.
func NewMultiBackend(backends []interfaces.StateBackend, logger *slog.Logger) *MultiBackend {
	// If no logger is provided, create a default one
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiBackend{
		backends: backends,
		log:      logger,
	}
}

// FetchState returns the state document from the first backend that has one.
// When every backend reports no state, the aggregate result is
// ErrStateNotFound so callers can tell a fresh deployment from an outage.
func (m *MultiBackend) FetchState(ctx context.Context) ([]byte, error) {
	data, err := m.fetchFirst(ctx, "state", interfaces.ErrStateNotFound, func(backend interfaces.StateBackend) ([]byte, error) {
		return backend.FetchState(ctx)
	})
	return data, err
}

// StoreState stores the state document in all available backends.
func (m *MultiBackend) StoreState(ctx context.Context, data []byte) error {
	return m.storeAll(ctx, "state", func(backend interfaces.StateBackend) error {
		return backend.StoreState(ctx, data)
	})
}

// FetchArtifact returns artifact data from the first backend that has it.
func (m *MultiBackend) FetchArtifact(ctx context.Context, id interfaces.ArtifactID) ([]byte, error) {
	data, err := m.fetchFirst(ctx, id.String(), interfaces.ErrArtifactNotFound, func(backend interfaces.StateBackend) ([]byte, error) {
		return backend.FetchArtifact(ctx, id)
	})
	return data, err
}

// StoreArtifact saves artifact data to all available backends.
// All backends derive the same SHA-256 identifier.
func (m *MultiBackend) StoreArtifact(ctx context.Context, data []byte) (interfaces.ArtifactID, error) {
	id := interfaces.ComputeArtifactID(data)
	err := m.storeAll(ctx, id.String(), func(backend interfaces.StateBackend) error {
		_, err := backend.StoreArtifact(ctx, data)
		return err
	})
	return id, err
}

// fetchFirst tries each backend in order and returns the first success.
// notFound is returned when every reachable backend reported it.
func (m *MultiBackend) fetchFirst(ctx context.Context, what string, notFound error, fetch func(interfaces.StateBackend) ([]byte, error)) ([]byte, error) {
	start := time.Now()
	var errs []error
	allNotFound := true

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("content", what))
			allNotFound = false
			continue
		}

		data, err := fetch(backend)
		if err == nil {
			m.log.Info("Successfully fetched content",
				slog.String("backend_name", backend.Name()),
				slog.String("content", what),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if !errors.Is(err, notFound) {
			allNotFound = false
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("content", what),
			"err", err)
	}

	if allNotFound && len(errs) > 0 {
		return nil, notFound
	}

	m.log.Error("All backends failed to fetch content",
		slog.String("content", what),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("all backends failed to fetch %s: %v", what, errs)
}

// storeAll stores to every available backend and succeeds when at least one did.
func (m *MultiBackend) storeAll(ctx context.Context, what string, store func(interfaces.StateBackend) error) error {
	start := time.Now()
	var success bool
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		if err := store(backend); err == nil {
			if !success {
				success = true
				m.log.Info("Successfully stored content",
					slog.String("backend_name", backend.Name()),
					slog.String("content", what),
					slog.Duration("duration", time.Since(start)))
			}
		} else {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
		}
	}

	if !success {
		m.log.Error("All backends failed to store data",
			slog.String("content", what),
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return fmt.Errorf("all backends failed to store %s: %v", what, errs)
	}

	return nil
}

// Available checks if any backend is available.
func (m *MultiBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend.
func (m *MultiBackend) Name() string {
	return "multi-state"
}

// LocationURI returns the combined URI of all aggregated backends.
func (m *MultiBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
