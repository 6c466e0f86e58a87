// Package attestation implements the client side of the remote attestation
// manager. The manager is an external service reached through its CLI: the
// client serializes requests to temp files, invokes the CLI and parses the
// key material it prints.
package attestation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/ruteri/tee-module-provisioner/cmdutils"
)

// DefaultCLI is the attestation manager client binary resolved from PATH
// unless configured otherwise.
const DefaultCLI = "attman-cli"

// Config identifies an attestation manager endpoint. It is loaded from the
// deployment descriptor; there is no ambient default.
type Config struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`

	// Key is the hex-encoded key shared with the manager.
	Key string `json:"key" yaml:"key"`
}

// Manager invokes the attestation manager CLI with a fixed configuration.
type Manager struct {
	cli        string
	configFile string
	runner     cmdutils.Runner
	log        *slog.Logger

	mu       sync.Mutex
	spPubkey string
}

// NewManager writes the manager configuration to a temp file for the CLI
// and returns a client using it. An empty cli selects DefaultCLI.
func NewManager(cfg Config, cli string, runner cmdutils.Runner, log *slog.Logger) (*Manager, error) {
	if cli == "" {
		cli = DefaultCLI
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not marshal attestation manager config: %w", err)
	}

	configFile, err := cmdutils.CreateTemp("", ".json")
	if err != nil {
		return nil, fmt.Errorf("could not create attestation manager config file: %w", err)
	}
	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return nil, fmt.Errorf("could not write attestation manager config file: %w", err)
	}

	return &Manager{
		cli:        cli,
		configFile: configFile,
		runner:     runner,
		log:        log,
	}, nil
}

// SancusRequest is the attest-sancus request document.
type SancusRequest struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	EMPort int    `json:"em_port"`
	Key    []int  `json:"key"`
}

// NewSancusRequest builds an attest-sancus request for a deployed module.
func NewSancusRequest(id int, name, host string, port int, key []byte) SancusRequest {
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	return SancusRequest{
		ID:     id,
		Name:   name,
		Host:   host,
		Port:   port,
		EMPort: port,
		Key:    ints,
	}
}

// AttestSancus runs remote attestation for a Sancus module and returns the
// key material the manager echoes back on success.
func (m *Manager) AttestSancus(ctx context.Context, req SancusRequest) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("could not marshal attestation request: %w", err)
	}

	dataFile, err := cmdutils.CreateTemp("", ".json")
	if err != nil {
		return nil, fmt.Errorf("could not create attestation request file: %w", err)
	}
	defer os.Remove(dataFile)
	if err := os.WriteFile(dataFile, data, 0o600); err != nil {
		return nil, fmt.Errorf("could not write attestation request file: %w", err)
	}

	m.log.Debug("Requesting remote attestation", slog.String("module", req.Name), slog.Int("id", req.ID))

	out, err := m.runner.Output(ctx, m.cli, "--config", m.configFile, "--request", "attest-sancus", "--data", dataFile)
	if err != nil {
		return nil, fmt.Errorf("attestation manager request failed for %s: %w", req.Name, err)
	}

	key, err := ParseKeyResponse(out)
	if err != nil {
		return nil, fmt.Errorf("attestation manager response for %s: %w", req.Name, err)
	}
	return key, nil
}

// SPPubkey fetches the service provider public key, caching the PEM file
// path after the first call.
func (m *Manager) SPPubkey(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.spPubkey != "" {
		return m.spPubkey, nil
	}

	out, err := m.runner.Output(ctx, m.cli, "--config", m.configFile, "--request", "get-pub-key", "--data", "aa")
	if err != nil {
		return "", fmt.Errorf("could not fetch service provider public key: %w", err)
	}

	pemFile, err := cmdutils.CreateTemp("", ".pem")
	if err != nil {
		return "", fmt.Errorf("could not create public key file: %w", err)
	}
	if err := os.WriteFile(pemFile, out, 0o600); err != nil {
		return "", fmt.Errorf("could not write public key file: %w", err)
	}

	m.spPubkey = pemFile
	return m.spPubkey, nil
}
