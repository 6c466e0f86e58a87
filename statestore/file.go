package statestore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/tee-module-provisioner/interfaces"
)

const (
	stateFileName   = "state.yaml"
	artifactsSubdir = "artifacts"
)

// FileBackend implements a state backend using the local file system.
// The deployment state document lives at a fixed name under the base
// directory; build artifacts are stored content-addressed next to it.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file state backend using the specified base directory.
// It creates the artifacts subdirectory if it doesn't exist.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(baseDir, artifactsSubdir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	// Format the URI for tracking
	uri := fmt.Sprintf("file://%s", baseDir)

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: uri,
	}, nil
}

// FetchState retrieves the deployment state document.
// Returns ErrStateNotFound if no state has been stored yet.
func (b *FileBackend) FetchState(ctx context.Context) ([]byte, error) {
	statePath := filepath.Join(b.baseDir, stateFileName)

	if _, err := os.Stat(statePath); os.IsNotExist(err) {
		return nil, interfaces.ErrStateNotFound
	}

	data, err := os.ReadFile(statePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	b.log.Debug("Fetched state from file",
		slog.String("path", statePath),
		slog.Int("size", len(data)))

	return data, nil
}

// StoreState replaces the deployment state document.
// The document is written through a temp file and renamed into place so a
// crash mid-write never leaves a torn document.
func (b *FileBackend) StoreState(ctx context.Context, data []byte) error {
	statePath := filepath.Join(b.baseDir, stateFileName)

	tmp, err := os.CreateTemp(b.baseDir, stateFileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write state file: %w", err)
	}

	if err := os.Rename(tmp.Name(), statePath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	b.log.Debug("Stored state in file",
		slog.String("path", statePath),
		slog.Int("size", len(data)))

	return nil
}

// FetchArtifact retrieves artifact data from the file system by its content
// identifier. Returns ErrArtifactNotFound if the file doesn't exist.
func (b *FileBackend) FetchArtifact(ctx context.Context, id interfaces.ArtifactID) ([]byte, error) {
	filePath := b.getArtifactPath(id)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, interfaces.ErrArtifactNotFound
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact file: %w", err)
	}

	b.log.Debug("Fetched artifact from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// StoreArtifact saves artifact data to the file system and returns its
// content identifier. The identifier is the SHA-256 hash of the data.
func (b *FileBackend) StoreArtifact(ctx context.Context, data []byte) (interfaces.ArtifactID, error) {
	id := interfaces.ComputeArtifactID(data)
	filePath := b.getArtifactPath(id)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return id, fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return id, fmt.Errorf("failed to write artifact file: %w", err)
	}

	b.log.Debug("Stored artifact in file",
		slog.String("path", filePath),
		slog.String("artifactID", id.String()))

	return id, nil
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this state backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this state backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

// getArtifactPath generates a file path for an artifact ID.
func (b *FileBackend) getArtifactPath(id interfaces.ArtifactID) string {
	return filepath.Join(b.baseDir, artifactsSubdir, id.String())
}
