package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ruteri/tee-module-provisioner/attestation"
	"github.com/ruteri/tee-module-provisioner/cmdutils"
	"github.com/ruteri/tee-module-provisioner/cryptoutils"
	"github.com/ruteri/tee-module-provisioner/elfutils"
	"github.com/ruteri/tee-module-provisioner/interfaces"
)

// Sancus toolchain programs.
const (
	sancusCC     = "sancus-cc"
	sancusLD     = "sancus-ld"
	sancusCrypto = "sancus-crypto"
	msp430LD     = "msp430-ld"
)

// smConfigFlag selects the protected-module configuration file in
// sancus-ld flags. The flag and its path travel as a single element of
// the ldflags list.
const smConfigFlag = "--sm-config-file"

// SancusModule is a software module protected by the Sancus extensions
// of the openMSP430. Sources are compiled and linked with the Sancus
// toolchain, the node assigns the protection ID and load addresses at
// deployment, and the module key is derived by relinking the binary at
// those addresses and running the vendor key derivation over the
// relocated image.
type SancusModule struct {
	base

	files       []string
	cflags      []string
	ldflags     []string
	connections int

	outDir     string
	vendorNode interfaces.SancusNode
}

// NewSancusModule restores a Sancus module from its persisted state.
// Stage results recorded in the state pre-resolve the corresponding
// memo cells, so reprovisioning an already deployed module runs no
// external tools.
func NewSancusModule(state *interfaces.ModuleState, node interfaces.SancusNode, env *Env) (*SancusModule, error) {
	if len(state.Files) == 0 {
		return nil, fmt.Errorf("module %s has no source files", state.Name)
	}

	m := &SancusModule{
		files:       state.Files,
		cflags:      state.CFlags,
		ldflags:     state.LDFlags,
		connections: state.Connections,
		vendorNode:  node,
	}
	m.init(state, node, env)
	m.outDir = filepath.Join(env.BuildDir, "sancus-"+state.Name)

	if state.Binary != "" {
		m.buildCell.Seed(state.Binary)
	}
	if state.ID != nil && state.Symtab != "" {
		m.deployCell.Seed(interfaces.DeployInfo{ID: *state.ID, Symtab: state.Symtab})
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

// SupportedEncryption lists the authenticated encryption primitives the
// module supports for reactive connections.
func (m *SancusModule) SupportedEncryption() []interfaces.Encryption {
	return []interfaces.Encryption{cryptoutils.EncryptionSpongent}
}

// Build compiles and links the module. The first caller triggers the
// toolchain, every later caller joins the same result. Returns the path
// of the linked binary.
func (m *SancusModule) Build(ctx context.Context) (string, error) {
	return m.buildCell.Get(ctx, m.build)
}

func (m *SancusModule) build(ctx context.Context) (string, error) {
	m.log.Info("Building module", slog.String("files", strings.Join(m.files, ", ")))

	if err := os.MkdirAll(m.outDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: module %s: %w", interfaces.ErrBuildFailure, m.name, err)
	}

	cflags, ldflags := m.toolchainFlags()

	objects := make([]string, len(m.files))
	for i := range m.files {
		obj, err := cmdutils.CreateTemp(m.outDir, ".o")
		if err != nil {
			return "", fmt.Errorf("%w: module %s: %w", interfaces.ErrBuildFailure, m.name, err)
		}
		objects[i] = obj
	}

	// Compile every source concurrently, join before linking.
	errs := make([]error, len(m.files))
	var wg sync.WaitGroup
	for i, file := range m.files {
		wg.Add(1)
		go func() {
			defer wg.Done()
			args := append(fieldsOf(cflags), "-c", "-o", objects[i], file)
			errs[i] = m.env.Runner.Run(ctx, sancusCC, args...)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return "", fmt.Errorf("%w: module %s source %s: %w", interfaces.ErrBuildFailure, m.name, m.files[i], err)
		}
	}

	binary, err := cmdutils.CreateTemp(m.outDir, ".elf")
	if err != nil {
		return "", fmt.Errorf("%w: module %s: %w", interfaces.ErrBuildFailure, m.name, err)
	}

	ldflags, err = m.mergeLinkerConfig(ldflags)
	if err != nil {
		return "", fmt.Errorf("%w: module %s: %w", interfaces.ErrBuildFailure, m.name, err)
	}

	args := append(fieldsOf(ldflags), "-o", binary)
	args = append(args, objects...)
	if err := m.env.Runner.Run(ctx, sancusLD, args...); err != nil {
		return "", fmt.Errorf("%w: module %s: %w", interfaces.ErrBuildFailure, m.name, err)
	}

	m.log.Info("Module built", slog.String("binary", binary))
	return binary, nil
}

// toolchainFlags assembles the effective compiler and linker flags:
// debug flags first, then the descriptor flags.
func (m *SancusModule) toolchainFlags() (cflags, ldflags []string) {
	if m.env.Debug {
		cflags = append(cflags, "--debug")
		ldflags = append(ldflags, "--debug")
	}
	ldflags = append(ldflags, "--inline-arithmetic")
	cflags = append(cflags, m.cflags...)
	ldflags = append(ldflags, m.ldflags...)
	return cflags, ldflags
}

// mergeLinkerConfig makes sure the linker configuration file referenced
// by the ldflags records at least the module's connection count. When no
// usable configuration is referenced, a fresh one is created in the
// module's build directory and the flag is repointed at it. The merge is
// idempotent: an existing entry is only raised, never duplicated.
func (m *SancusModule) mergeLinkerConfig(ldflags []string) ([]string, error) {
	var path string
	for _, flag := range ldflags {
		if !strings.Contains(flag, smConfigFlag) {
			continue
		}
		if fields := strings.Fields(flag); len(fields) >= 2 {
			path = fields[1]
		}
		break
	}

	config := map[string][]map[string]int{}
	loaded := false
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if yaml.Unmarshal(data, &config) == nil {
				loaded = true
			}
		}
	}

	if !loaded {
		fresh, err := cmdutils.CreateTemp(m.outDir, ".yaml")
		if err != nil {
			return nil, err
		}
		path = fresh
		config = map[string][]map[string]int{m.name: {}}

		flags := make([]string, 0, len(ldflags)+1)
		for _, flag := range ldflags {
			if strings.Contains(flag, smConfigFlag) {
				continue
			}
			flags = append(flags, flag)
		}
		ldflags = append(flags, smConfigFlag+" "+path)
	}

	merged := false
	for _, entry := range config[m.name] {
		if _, ok := entry["num_connections"]; !ok {
			continue
		}
		if entry["num_connections"] < m.connections {
			entry["num_connections"] = m.connections
		}
		merged = true
		break
	}
	if !merged {
		config[m.name] = append(config[m.name], map[string]int{"num_connections": m.connections})
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("could not write linker config: %w", err)
	}

	return ldflags, nil
}

// Deploy ships the built binary to the node and records the assigned
// protection ID and symbol table. Memoized like Build.
func (m *SancusModule) Deploy(ctx context.Context) (interfaces.DeployInfo, error) {
	return m.deployCell.Get(ctx, m.deploy)
}

func (m *SancusModule) deploy(ctx context.Context) (interfaces.DeployInfo, error) {
	if _, err := m.Build(ctx); err != nil {
		return interfaces.DeployInfo{}, err
	}

	info, err := m.node.Deploy(ctx, m)
	if err != nil {
		return interfaces.DeployInfo{}, fmt.Errorf("could not deploy module %s: %w", m.name, err)
	}

	m.deployed.Store(true)
	m.log.Info("Module deployed", slog.Int("id", info.ID))
	return info, nil
}

// Key derives the module key. The binary is relinked at its deployment
// addresses and the vendor tool derives the key from the relocated
// image. Memoized like Build.
func (m *SancusModule) Key(ctx context.Context) (interfaces.ModuleKey, error) {
	return m.keyCell.Get(ctx, m.deriveKey)
}

func (m *SancusModule) deriveKey(ctx context.Context) (interfaces.ModuleKey, error) {
	binary, err := m.Build(ctx)
	if err != nil {
		return nil, err
	}
	info, err := m.Deploy(ctx)
	if err != nil {
		return nil, err
	}

	linked, err := cmdutils.CreateTemp(m.outDir, ".elf")
	if err != nil {
		return nil, fmt.Errorf("%w: module %s: %w", interfaces.ErrKeyDerivationFailure, m.name, err)
	}

	// The linker complains about unaligned .bss addresses in the
	// relocated module; --noinhibit-exec keeps the output anyway.
	if err := m.env.Runner.Run(ctx, msp430LD, "-T", info.Symtab, "-o", linked, "--noinhibit-exec", binary); err != nil {
		return nil, fmt.Errorf("%w: module %s: %w", interfaces.ErrKeyDerivationFailure, m.name, err)
	}

	out, err := m.env.Runner.Output(ctx, sancusCrypto, linked, "--gen-sm-key", m.name, "--key", m.vendorNode.VendorKey().String())
	if err != nil {
		return nil, fmt.Errorf("%w: module %s: %w", interfaces.ErrKeyDerivationFailure, m.name, err)
	}

	key, err := interfaces.NewModuleKeyFromHex(strings.TrimSpace(string(out)))
	if err != nil {
		return nil, fmt.Errorf("%w: module %s returned malformed key material: %w", interfaces.ErrKeyDerivationFailure, m.name, err)
	}

	m.log.Info("Module key derived")
	return key, nil
}

// Attest verifies the deployed module. With an attestation manager
// configured the verification runs through it, otherwise the node
// attests the module itself. Memoized like Build.
func (m *SancusModule) Attest(ctx context.Context) error {
	_, err := m.attestCell.Get(ctx, func(ctx context.Context) (struct{}, error) {
		if err := m.attest(ctx); err != nil {
			return struct{}{}, err
		}
		m.attested.Store(true)
		return struct{}{}, nil
	})
	return err
}

func (m *SancusModule) attest(ctx context.Context) error {
	if m.env.Manager == nil {
		if _, err := m.Deploy(ctx); err != nil {
			return err
		}
		if err := m.node.Attest(ctx, m); err != nil {
			return fmt.Errorf("could not attest module %s: %w", m.name, err)
		}
		m.log.Info("Module attested")
		return nil
	}

	id, err := m.ID(ctx)
	if err != nil {
		return err
	}
	key, err := m.Key(ctx)
	if err != nil {
		return err
	}

	req := attestation.NewSancusRequest(id, m.name, m.node.Host(), m.node.ReactivePort(), key.Bytes())
	evidence, err := m.env.Manager.AttestSancus(ctx, req)
	if err != nil {
		return fmt.Errorf("could not attest module %s: %w", m.name, err)
	}
	if !key.Equal(evidence) {
		return &interfaces.AttestationMismatchError{Module: m.name}
	}

	m.log.Info("Module attested")
	return nil
}

// ID returns the protection ID the node assigned at deployment.
func (m *SancusModule) ID(ctx context.Context) (int, error) {
	info, err := m.Deploy(ctx)
	if err != nil {
		return 0, err
	}
	return info.ID, nil
}

// InputID resolves an input endpoint to its index in the module binary.
func (m *SancusModule) InputID(ctx context.Context, ref interfaces.EndpointRef) (int, error) {
	return m.ioID(ctx, ref)
}

// OutputID resolves an output endpoint to its index in the module binary.
func (m *SancusModule) OutputID(ctx context.Context, ref interfaces.EndpointRef) (int, error) {
	return m.ioID(ctx, ref)
}

// EntryID resolves an entry point to its index in the module binary.
func (m *SancusModule) EntryID(ctx context.Context, ref interfaces.EndpointRef) (int, error) {
	if ref.IsNumeric() {
		return ref.ID(), nil
	}
	symbol := fmt.Sprintf("__sm_%s_entry_%s_idx", m.name, ref.Name())
	return m.symbolValue(ctx, symbol, "entry", ref.Name())
}

func (m *SancusModule) ioID(ctx context.Context, ref interfaces.EndpointRef) (int, error) {
	if ref.IsNumeric() {
		return ref.ID(), nil
	}
	symbol := fmt.Sprintf("__sm_%s_io_%s_idx", m.name, ref.Name())
	return m.symbolValue(ctx, symbol, "endpoint", ref.Name())
}

// symbolValue reads the index a toolchain-emitted symbol resolves to in
// the linked binary.
func (m *SancusModule) symbolValue(ctx context.Context, symbol, kind, endpoint string) (int, error) {
	binary, err := m.Build(ctx)
	if err != nil {
		return 0, err
	}

	value, err := elfutils.DefinedSymbolValue(binary, symbol)
	if err != nil {
		var notFound *interfaces.SymbolNotFoundError
		if errors.As(err, &notFound) {
			return 0, &interfaces.EndpointNotFoundError{Module: m.name, Kind: kind, Endpoint: endpoint}
		}
		return 0, err
	}
	return int(value), nil
}

// Dump captures the module's persisted form. Stage results are only
// recorded once the module is deployed, so a reloaded state never
// references artifacts that never shipped.
func (m *SancusModule) Dump() *interfaces.ModuleState {
	state := m.dumpCommon(ModuleTypeSancus)
	state.Files = m.files
	state.CFlags = m.cflags
	state.LDFlags = m.ldflags
	state.Connections = m.connections

	if !m.deployed.Load() {
		return state
	}

	if binary, ok := m.buildCell.Peek(); ok {
		state.Binary = binary
	}
	if info, ok := m.deployCell.Peek(); ok {
		id := info.ID
		state.ID = &id
		state.Symtab = info.Symtab
	}
	if key, ok := m.keyCell.Peek(); ok {
		state.Key = key.String()
	}

	return state
}

// fieldsOf expands flag elements that carry embedded arguments, such as
// "--sm-config-file <path>", into separate argv tokens.
func fieldsOf(flags []string) []string {
	var out []string
	for _, flag := range flags {
		out = append(out, strings.Fields(flag)...)
	}
	return out
}
