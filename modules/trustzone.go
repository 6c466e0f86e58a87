package modules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ruteri/tee-module-provisioner/cryptoutils"
	"github.com/ruteri/tee-module-provisioner/interfaces"
)

// OP-TEE build settings for the vexpress-qemu_virt target.
const (
	tzCrossCompile = "CROSS_COMPILE=arm-linux-gnueabihf-"
	tzPlatform     = "PLATFORM=vexpress-qemu_virt"
	tzDevKitDir    = "TA_DEV_KIT_DIR=/optee/optee_os/out/arm/export-ta_arm32"
)

// TrustZoneModule is a trusted application for OP-TEE on ARM TrustZone.
// The TA is built with the OP-TEE dev kit under its UUID, deployed to
// the node's trusted OS, and its key is derived from the node secret and
// the TA hash embedded in the signed image header.
type TrustZoneModule struct {
	base

	filesDir    string
	uuid        uuid.UUID
	id          int
	inputs      map[string]int
	outputs     map[string]int
	entrypoints map[string]int

	outDir     string
	deviceNode interfaces.TrustZoneNode
}

// NewTrustZoneModule restores a TrustZone module from its persisted
// state. The descriptor assigns the module ID and the UUID up front;
// recorded stage results pre-resolve the memo cells.
func NewTrustZoneModule(state *interfaces.ModuleState, node interfaces.TrustZoneNode, env *Env) (*TrustZoneModule, error) {
	if state.FilesDir == "" {
		return nil, fmt.Errorf("module %s has no files directory", state.Name)
	}
	if state.ID == nil {
		return nil, fmt.Errorf("module %s has no id", state.Name)
	}
	id, err := uuid.Parse(state.UUID)
	if err != nil {
		return nil, fmt.Errorf("module %s has an invalid uuid: %w", state.Name, err)
	}

	m := &TrustZoneModule{
		filesDir:    state.FilesDir,
		uuid:        id,
		id:          *state.ID,
		inputs:      state.Inputs,
		outputs:     state.Outputs,
		entrypoints: state.Entrypoints,
		deviceNode:  node,
	}
	m.init(state, node, env)
	m.outDir = filepath.Join(env.BuildDir, state.Name)

	if state.Binary != "" {
		m.buildCell.Seed(state.Binary)
	}
	if state.Deployed {
		m.deployCell.Seed(interfaces.DeployInfo{ID: *state.ID})
	}
	if state.Key != "" {
		key, err := interfaces.NewModuleKeyFromHex(state.Key)
		if err != nil {
			return nil, fmt.Errorf("module %s has an invalid key: %w", state.Name, err)
		}
		m.keyCell.Seed(key)
	}
	if state.Attested {
		m.attestCell.Seed(struct{}{})
	}

	return m, nil
}

// UUID returns the trusted application UUID.
func (m *TrustZoneModule) UUID() uuid.UUID { return m.uuid }

// SupportedEncryption lists the authenticated encryption primitives the
// module supports for reactive connections.
func (m *TrustZoneModule) SupportedEncryption() []interfaces.Encryption {
	return []interfaces.Encryption{cryptoutils.EncryptionAES, cryptoutils.EncryptionSpongent}
}

// Build compiles the trusted application with the OP-TEE dev kit.
// Memoized: the first caller runs make, later callers join the result.
// Returns the path of the signed TA image.
func (m *TrustZoneModule) Build(ctx context.Context) (string, error) {
	return m.buildCell.Get(ctx, m.build)
}

func (m *TrustZoneModule) build(ctx context.Context) (string, error) {
	m.log.Info("Building trusted application", slog.String("uuid", m.uuid.String()))

	if err := os.MkdirAll(m.outDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: module %s: %w", interfaces.ErrBuildFailure, m.name, err)
	}

	// The dev kit makefiles expand variables inside recursive make
	// invocations, so this one runs through the shell instead of an
	// argument list.
	cmdline := fmt.Sprintf("make -C %s %s %s %s BINARY=%s O=%s",
		filepath.Join(m.filesDir, m.name), tzCrossCompile, tzPlatform, tzDevKitDir, m.uuid, m.outDir)
	if err := m.env.Runner.Shell(ctx, cmdline); err != nil {
		return "", fmt.Errorf("%w: module %s: %w", interfaces.ErrBuildFailure, m.name, err)
	}

	// The dev kit makefiles can exit zero without producing the image,
	// which counts as a failed build rather than a missing artifact.
	binary := filepath.Join(m.outDir, m.uuid.String()+".ta")
	if _, err := os.Stat(binary); err != nil {
		return "", fmt.Errorf("%w: module %s: build produced no image at %s", interfaces.ErrBuildFailure, m.name, binary)
	}

	m.log.Info("Trusted application built", slog.String("binary", binary))
	return binary, nil
}

// Deploy ships the built TA to the node's trusted OS. Memoized like
// Build. The module ID comes from the descriptor, not the node.
func (m *TrustZoneModule) Deploy(ctx context.Context) (interfaces.DeployInfo, error) {
	return m.deployCell.Get(ctx, m.deploy)
}

func (m *TrustZoneModule) deploy(ctx context.Context) (interfaces.DeployInfo, error) {
	if _, err := m.Build(ctx); err != nil {
		return interfaces.DeployInfo{}, err
	}

	if _, err := m.node.Deploy(ctx, m); err != nil {
		return interfaces.DeployInfo{}, fmt.Errorf("could not deploy module %s: %w", m.name, err)
	}

	m.deployed.Store(true)
	m.log.Info("Module deployed", slog.Int("id", m.id))
	return interfaces.DeployInfo{ID: m.id}, nil
}

// Key derives the module key from the node secret and the TA hash in
// the signed image header. Memoized like Build.
func (m *TrustZoneModule) Key(ctx context.Context) (interfaces.ModuleKey, error) {
	return m.keyCell.Get(ctx, m.deriveKey)
}

func (m *TrustZoneModule) deriveKey(ctx context.Context) (interfaces.ModuleKey, error) {
	binary, err := m.Build(ctx)
	if err != nil {
		return nil, err
	}

	image, err := os.ReadFile(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: module %s image %s", interfaces.ErrKeyDerivationFailure, interfaces.ErrArtifactMissing, m.name, binary)
	}

	measurement, err := cryptoutils.TAMeasurement(image)
	if err != nil {
		return nil, fmt.Errorf("%w: module %s: %w", interfaces.ErrKeyDerivationFailure, m.name, err)
	}

	key, err := cryptoutils.DeriveModuleKey(m.deviceNode.NodeKey().Bytes(), measurement, cryptoutils.EncryptionAES)
	if err != nil {
		return nil, fmt.Errorf("%w: module %s: %w", interfaces.ErrKeyDerivationFailure, m.name, err)
	}

	m.log.Info("Module key derived")
	return interfaces.ModuleKey(key), nil
}

// Attest delegates verification to the node's trusted OS. Memoized like
// Build.
func (m *TrustZoneModule) Attest(ctx context.Context) error {
	_, err := m.attestCell.Get(ctx, func(ctx context.Context) (struct{}, error) {
		if _, err := m.Deploy(ctx); err != nil {
			return struct{}{}, err
		}
		if err := m.node.Attest(ctx, m); err != nil {
			return struct{}{}, fmt.Errorf("could not attest module %s: %w", m.name, err)
		}
		m.attested.Store(true)
		m.log.Info("Module attested")
		return struct{}{}, nil
	})
	return err
}

// ID returns the module ID assigned by the descriptor.
func (m *TrustZoneModule) ID(ctx context.Context) (int, error) {
	return m.id, nil
}

// InputID resolves an input endpoint through the descriptor's input map.
func (m *TrustZoneModule) InputID(ctx context.Context, ref interfaces.EndpointRef) (int, error) {
	return m.lookupEndpoint("input", m.inputs, ref)
}

// OutputID resolves an output endpoint through the descriptor's output map.
func (m *TrustZoneModule) OutputID(ctx context.Context, ref interfaces.EndpointRef) (int, error) {
	return m.lookupEndpoint("output", m.outputs, ref)
}

// EntryID resolves an entry point through the descriptor's entrypoint map.
func (m *TrustZoneModule) EntryID(ctx context.Context, ref interfaces.EndpointRef) (int, error) {
	return m.lookupEndpoint("entry", m.entrypoints, ref)
}

func (m *TrustZoneModule) lookupEndpoint(kind string, table map[string]int, ref interfaces.EndpointRef) (int, error) {
	if ref.IsNumeric() {
		return ref.ID(), nil
	}
	id, ok := table[ref.Name()]
	if !ok {
		return 0, &interfaces.EndpointNotFoundError{Module: m.name, Kind: kind, Endpoint: ref.Name()}
	}
	return id, nil
}

// Dump captures the module's persisted form. The ID and endpoint maps
// come from the descriptor and are always recorded; the binary path and
// key only once the module is deployed.
func (m *TrustZoneModule) Dump() *interfaces.ModuleState {
	state := m.dumpCommon(ModuleTypeTrustZone)
	state.FilesDir = m.filesDir
	state.UUID = m.uuid.String()
	id := m.id
	state.ID = &id
	state.Inputs = m.inputs
	state.Outputs = m.outputs
	state.Entrypoints = m.entrypoints

	if !m.deployed.Load() {
		return state
	}

	if binary, ok := m.buildCell.Peek(); ok {
		state.Binary = binary
	}
	if key, ok := m.keyCell.Peek(); ok {
		state.Key = key.String()
	}

	return state
}
