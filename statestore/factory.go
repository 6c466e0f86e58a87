package statestore

import (
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/ruteri/tee-module-provisioner/interfaces"
)

// StateBackendFactory creates state backends from location URIs and manages
// multi-backend configurations for redundant storage.
type StateBackendFactory struct {
	log *slog.Logger
}

// NewStateBackendFactory creates a new factory instance that can create state backends.
func NewStateBackendFactory(logger *slog.Logger) *StateBackendFactory {
	return &StateBackendFactory{
		log: logger,
	}
}

// StateBackendFor creates a state backend from a location.
// The URI format is [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:// - Local filesystem storage
//   - s3:// - Amazon S3 or compatible object storage
//   - ipfs:// - IPFS mutable file system storage
//   - vault:// - HashiCorp Vault KV v2 storage
//
// Returns an error if the scheme is unsupported or the location is incomplete.
func (sf *StateBackendFactory) StateBackendFor(location interfaces.StateLocation) (interfaces.StateBackend, error) {
	switch location.Scheme {
	case "file":
		return sf.createFileBackend(location)
	case "s3":
		return sf.createS3Backend(location)
	case "ipfs":
		return sf.createIPFSBackend(location)
	case "vault":
		return sf.createVaultBackend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiBackend creates a multi-state backend from a list of locations.
// The multi-backend aggregates all valid backends, providing redundancy for
// state operations. It will store to all available backends and fetch from
// the first one that has the content.
// Returns an error if no valid backends could be created from the provided locations.
func (sf *StateBackendFactory) CreateMultiBackend(locations []interfaces.StateLocation) (interfaces.StateBackend, error) {
	backends := make([]interfaces.StateBackend, 0, len(locations))

	for _, location := range locations {
		backend, err := sf.StateBackendFor(location)
		if err != nil {
			sf.log.Warn("Failed to create state backend",
				"err", err,
				slog.String("locationURI", location.String()))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid state backends created")
	}

	return NewMultiBackend(backends, sf.log), nil
}

// createFileBackend creates a file system state backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *StateBackendFactory) createFileBackend(location interfaces.StateLocation) (interfaces.StateBackend, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", location.String()))

	// Relative paths parse with the leading element as the URI host
	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidLocationURI, location.String())
	}

	return NewFileBackend(path, sf.log)
}

// createS3Backend creates an S3 or S3-compatible state backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
// The backend supports both public buckets (read-only) and authenticated access.
func (sf *StateBackendFactory) createS3Backend(location interfaces.StateLocation) (interfaces.StateBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("uri", location.String()))

	bucketName := location.Host
	if bucketName == "" {
		return nil, fmt.Errorf("%w: missing bucket name in S3 URI", interfaces.ErrInvalidLocationURI)
	}

	prefix := strings.TrimPrefix(location.Path, "/")

	region := location.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	endpoint := location.GetParam("endpoint")

	var accessKey, secretKey string
	if location.Auth != "" {
		accessKey, secretKey, _ = strings.Cut(location.Auth, ":")
		sf.log.Debug("Using embedded credentials for write access")
	} else {
		sf.log.Debug("No credentials provided, S3 bucket assumed to be public, write operations may fail")
	}

	return NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey, sf.log)
}

// createIPFSBackend creates an IPFS state backend.
// URI format: ipfs://host:port/mfs-root/?timeout=30s
func (sf *StateBackendFactory) createIPFSBackend(location interfaces.StateLocation) (interfaces.StateBackend, error) {
	sf.log.Debug("Creating IPFS backend", slog.String("uri", location.String()))

	host := location.Host
	port := "5001" // Default IPFS API port
	if h, p, err := net.SplitHostPort(location.Host); err == nil {
		host, port = h, p
	}

	timeout := location.GetParam("timeout")
	if timeout == "" {
		timeout = "30s"
	}

	return NewIPFSBackend(host, port, location.Path, timeout, sf.log)
}

// createVaultBackend creates a HashiCorp Vault state backend.
// URI format: vault://TOKEN@host:port/mount/path?scheme=https
func (sf *StateBackendFactory) createVaultBackend(location interfaces.StateLocation) (interfaces.StateBackend, error) {
	sf.log.Debug("Creating Vault backend", slog.String("uri", location.String()))

	token := location.Auth
	if token == "" {
		return nil, fmt.Errorf("%w: Vault URI requires a token, expected vault://TOKEN@host:port/mount/path", interfaces.ErrInvalidLocationURI)
	}

	parts := strings.SplitN(strings.Trim(location.Path, "/"), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: invalid Vault URI format, expected vault://TOKEN@host:port/mount/path", interfaces.ErrInvalidLocationURI)
	}
	mountPath, dataPath := parts[0], parts[1]

	scheme := location.GetParam("scheme")
	if scheme == "" {
		scheme = "https"
	}
	address := fmt.Sprintf("%s://%s", scheme, location.Host)

	return NewVaultBackend(address, mountPath, dataPath, token, sf.log)
}
