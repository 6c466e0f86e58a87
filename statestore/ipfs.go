package statestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/tee-module-provisioner/interfaces"
)

// IPFSBackend implements a state backend using the InterPlanetary File System (IPFS).
// It stores the state document and artifacts under a mutable files (MFS) root
// on the connected node, so the state document can be replaced in place.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	mfsRoot     string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a new IPFS state backend connected to the specified
// host and port. mfsRoot names the directory in the node's mutable file
// system under which the state document and artifacts live.
func NewIPFSBackend(host, port, mfsRoot, timeout string, log *slog.Logger) (*IPFSBackend, error) {
	// Construct API URL
	apiURL := fmt.Sprintf("%s:%s", host, port)

	if mfsRoot == "" || mfsRoot == "/" {
		mfsRoot = "/provisioner"
	}
	mfsRoot = "/" + strings.Trim(mfsRoot, "/")

	// Format the URI for tracking
	uri := fmt.Sprintf("ipfs://%s%s?timeout=%s", apiURL, mfsRoot, timeout)

	sh := shell.NewShell(apiURL)
	if timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid IPFS timeout %q: %w", timeout, err)
		}
		sh.SetTimeout(d)
	}

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		mfsRoot:     mfsRoot,
		log:         log,
		locationURI: uri,
	}, nil
}

// FetchState retrieves the deployment state document from the node's MFS.
// Returns ErrStateNotFound if no state has been stored yet, or
// ErrBackendUnavailable if the IPFS node is not accessible.
func (b *IPFSBackend) FetchState(ctx context.Context) ([]byte, error) {
	data, err := b.readFile(ctx, b.statePath())
	if err != nil {
		if isIPFSNotFound(err) {
			return nil, interfaces.ErrStateNotFound
		}
		return nil, err
	}
	return data, nil
}

// StoreState replaces the deployment state document in the node's MFS.
func (b *IPFSBackend) StoreState(ctx context.Context, data []byte) error {
	return b.writeFile(ctx, b.statePath(), data)
}

// FetchArtifact retrieves artifact data from IPFS by its content identifier.
// Returns ErrArtifactNotFound if the content doesn't exist.
func (b *IPFSBackend) FetchArtifact(ctx context.Context, id interfaces.ArtifactID) ([]byte, error) {
	data, err := b.readFile(ctx, b.artifactPath(id))
	if err != nil {
		if isIPFSNotFound(err) {
			return nil, interfaces.ErrArtifactNotFound
		}
		return nil, err
	}
	return data, nil
}

// StoreArtifact adds artifact data to IPFS and returns its content identifier.
// The identifier is the SHA-256 hash of the data.
func (b *IPFSBackend) StoreArtifact(ctx context.Context, data []byte) (interfaces.ArtifactID, error) {
	id := interfaces.ComputeArtifactID(data)
	if err := b.writeFile(ctx, b.artifactPath(id), data); err != nil {
		return id, err
	}
	return id, nil
}

// readFile fetches one MFS path. Not-found errors are returned unwrapped so
// callers can map them to the matching sentinel.
func (b *IPFSBackend) readFile(ctx context.Context, filePath string) ([]byte, error) {
	start := time.Now()

	// Check if the IPFS node is available
	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.FilesRead(ctx, filePath)
	if err != nil {
		if isIPFSNotFound(err) {
			b.log.Debug("Content not found in IPFS",
				slog.String("path", filePath),
				slog.Duration("duration", time.Since(start)))
			return nil, err
		}

		b.log.Error("Failed to fetch data from IPFS",
			slog.String("path", filePath),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to fetch data from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		b.log.Error("Failed to read data from IPFS",
			slog.String("path", filePath),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched content from IPFS",
		slog.String("path", filePath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// writeFile stores one MFS path, creating parent directories and truncating
// any previous content.
func (b *IPFSBackend) writeFile(ctx context.Context, filePath string, data []byte) error {
	// Check if the IPFS node is available
	if !b.shell.IsUp() {
		return interfaces.ErrBackendUnavailable
	}

	err := b.shell.FilesWrite(ctx, filePath, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return fmt.Errorf("failed to write data to IPFS: %w", err)
	}

	b.log.Debug("Stored content in IPFS",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this state backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this state backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

// statePath generates the MFS path of the state document.
func (b *IPFSBackend) statePath() string {
	return path.Join(b.mfsRoot, stateFileName)
}

// artifactPath generates an MFS path for an artifact ID.
func (b *IPFSBackend) artifactPath(id interfaces.ArtifactID) string {
	return path.Join(b.mfsRoot, artifactsSubdir, id.String())
}

// isIPFSNotFound reports whether an MFS error means the path does not exist.
func isIPFSNotFound(err error) bool {
	return strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "no link named")
}
