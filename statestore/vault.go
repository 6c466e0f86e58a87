package statestore

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/tee-module-provisioner/interfaces"
)

// VaultBackend implements a state backend using HashiCorp Vault.
// It authenticates with a Vault token and stores documents in a KV v2
// secrets engine, which keeps module keys encrypted at rest.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a new Vault state backend.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: Vault KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "provisioner")
//   - token: Vault token used for authentication
//   - log: Structured logger for operational insights
func NewVaultBackend(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultBackend, error) {
	// Create Vault config
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	// Create Vault client
	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	// Ensure paths are properly formatted
	mountPath = strings.TrimSuffix(mountPath, "/")
	dataPath = strings.TrimPrefix(dataPath, "/")
	dataPath = strings.TrimSuffix(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
	}, nil
}

// FetchState retrieves the deployment state document from Vault.
// Returns ErrStateNotFound if no state has been stored yet.
func (b *VaultBackend) FetchState(ctx context.Context) ([]byte, error) {
	data, found, err := b.readPath(ctx, b.statePath())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, interfaces.ErrStateNotFound
	}
	return data, nil
}

// StoreState replaces the deployment state document in Vault.
func (b *VaultBackend) StoreState(ctx context.Context, data []byte) error {
	return b.writePath(ctx, b.statePath(), data)
}

// FetchArtifact retrieves artifact data from Vault by its content identifier.
// Returns ErrArtifactNotFound if the artifact doesn't exist.
func (b *VaultBackend) FetchArtifact(ctx context.Context, id interfaces.ArtifactID) ([]byte, error) {
	data, found, err := b.readPath(ctx, b.artifactPath(id))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, interfaces.ErrArtifactNotFound
	}
	return data, nil
}

// StoreArtifact saves artifact data to Vault and returns its content
// identifier. The identifier is the SHA-256 hash of the data.
func (b *VaultBackend) StoreArtifact(ctx context.Context, data []byte) (interfaces.ArtifactID, error) {
	id := interfaces.ComputeArtifactID(data)
	if err := b.writePath(ctx, b.artifactPath(id), data); err != nil {
		return id, err
	}
	return id, nil
}

// readPath reads one KV v2 path. It uses the KV v2 API which requires a
// specific path structure and reports found=false when the path is empty.
func (b *VaultBackend) readPath(ctx context.Context, path string) ([]byte, bool, error) {
	start := time.Now()

	// Read from Vault
	secret, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", path),
			"err", err)
		return nil, false, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		b.log.Debug("Content not found in Vault",
			slog.String("path", path))
		return nil, false, nil
	}

	// Extract data from the response (KV v2 format)
	data, ok := secret.Data["data"]
	if !ok {
		b.log.Error("Invalid data format in Vault response",
			slog.String("path", path))
		return nil, false, fmt.Errorf("invalid data format in Vault response")
	}

	// Extract content from the data map
	content, ok := data.(map[string]interface{})["content"]
	if !ok {
		b.log.Error("Content key not found in Vault data",
			slog.String("path", path))
		return nil, false, fmt.Errorf("content key not found in Vault data")
	}

	contentStr, ok := content.(string)
	if !ok {
		b.log.Error("Invalid content format in Vault data",
			slog.String("path", path))
		return nil, false, fmt.Errorf("invalid content format in Vault data")
	}

	// Content is base64 encoded since artifact bytes are not valid JSON strings
	decoded, err := base64.StdEncoding.DecodeString(contentStr)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode content from Vault: %w", err)
	}

	b.log.Debug("Fetched content from Vault",
		slog.String("path", path),
		slog.Int("size", len(decoded)),
		slog.Duration("duration", time.Since(start)))

	return decoded, true, nil
}

// writePath writes one KV v2 path.
func (b *VaultBackend) writePath(ctx context.Context, path string, data []byte) error {
	start := time.Now()

	// Prepare data for Vault (KV v2 format)
	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"content": base64.StdEncoding.EncodeToString(data),
		},
	}

	// Write to Vault
	_, err := b.client.Logical().WriteWithContext(ctx, path, secretData)
	if err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", path),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored content in Vault",
		slog.String("path", path),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return nil
}

// Available checks if the Vault backend is accessible.
// It uses the health endpoint to verify that Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this state backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this state backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

// statePath generates the Vault KV v2 path of the state document.
func (b *VaultBackend) statePath() string {
	return fmt.Sprintf("%s/data/%s/state", b.mountPath, b.dataPath)
}

// artifactPath generates a Vault KV v2 path for an artifact ID.
func (b *VaultBackend) artifactPath(id interfaces.ArtifactID) string {
	return fmt.Sprintf("%s/data/%s/artifacts/%s", b.mountPath, b.dataPath, id.String())
}
