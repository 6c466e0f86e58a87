package modules

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ruteri/tee-module-provisioner/attestation"
	"github.com/ruteri/tee-module-provisioner/cmdutils"
	"github.com/ruteri/tee-module-provisioner/interfaces"
)

const testVendorKeyHex = "4078d58901d3b7d4a3c9e2f10b5d6e7f"

// fakeSancusNode implements interfaces.SancusNode with canned responses.
type fakeSancusNode struct {
	vendorKey interfaces.VendorKey
	symtab    string
	deployErr error

	mu      sync.Mutex
	deploys int
	attests int
}

func newFakeSancusNode(t *testing.T) *fakeSancusNode {
	t.Helper()
	vendorKey, err := interfaces.NewVendorKeyFromHex(testVendorKeyHex)
	require.NoError(t, err)
	return &fakeSancusNode{vendorKey: vendorKey, symtab: "node-assigned.ld"}
}

func (n *fakeSancusNode) Name() string                    { return "node1" }
func (n *fakeSancusNode) Host() string                    { return "10.0.0.1" }
func (n *fakeSancusNode) ReactivePort() int               { return 2000 }
func (n *fakeSancusNode) VendorKey() interfaces.VendorKey { return n.vendorKey }
func (n *fakeSancusNode) Dump() *interfaces.NodeState     { return &interfaces.NodeState{} }

func (n *fakeSancusNode) Deploy(ctx context.Context, module interfaces.Module) (interfaces.DeployInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deploys++
	if n.deployErr != nil {
		return interfaces.DeployInfo{}, n.deployErr
	}
	return interfaces.DeployInfo{ID: 1, Symtab: n.symtab}, nil
}

func (n *fakeSancusNode) Attest(ctx context.Context, module interfaces.Module) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attests++
	return nil
}

func newTestEnv(t *testing.T, runner cmdutils.Runner) *Env {
	t.Helper()
	return &Env{
		BuildDir: t.TempDir(),
		Runner:   runner,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func sancusState() *interfaces.ModuleState {
	return &interfaces.ModuleState{
		Type:        ModuleTypeSancus,
		Name:        "sm1",
		Node:        "node1",
		Files:       []string{"sm1/main.c", "sm1/helpers.c"},
		Connections: 2,
	}
}

func TestSancusModuleBuild(t *testing.T) {
	runner := &cmdutils.FakeRunner{}
	env := newTestEnv(t, runner)
	m, err := NewSancusModule(sancusState(), newFakeSancusNode(t), env)
	require.NoError(t, err)

	binary, err := m.Build(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(binary, env.BuildDir), "binary should live under the build dir")
	assert.True(t, strings.HasSuffix(binary, ".elf"))

	compiles := runner.CallsFor("sancus-cc")
	require.Len(t, compiles, 2, "every source file should compile separately")
	for _, call := range compiles {
		assert.Contains(t, call.Args, "-c")
		assert.Contains(t, call.Args, "-o")
	}

	links := runner.CallsFor("sancus-ld")
	require.Len(t, links, 1)
	linkArgs := links[0].Args
	assert.Contains(t, linkArgs, "--inline-arithmetic")
	assert.Contains(t, linkArgs, "-o")

	// The linker config flag points at a file recording the module's
	// connection count.
	idx := -1
	for i, arg := range linkArgs {
		if arg == "--sm-config-file" {
			idx = i
		}
	}
	require.NotEqual(t, -1, idx, "link should reference a linker config file")
	data, err := os.ReadFile(linkArgs[idx+1])
	require.NoError(t, err)

	config := map[string][]map[string]int{}
	require.NoError(t, yaml.Unmarshal(data, &config))
	assert.Equal(t, []map[string]int{{"num_connections": 2}}, config["sm1"])

	// A second build joins the memoized result without new invocations.
	calls := len(runner.Calls())
	again, err := m.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, binary, again)
	assert.Len(t, runner.Calls(), calls, "a second build should run no tools")
}

func TestSancusModuleBuildDebugFlags(t *testing.T) {
	runner := &cmdutils.FakeRunner{}
	env := newTestEnv(t, runner)
	env.Debug = true

	state := sancusState()
	state.CFlags = []string{"-I include"}
	state.LDFlags = []string{"--standalone"}

	m, err := NewSancusModule(state, newFakeSancusNode(t), env)
	require.NoError(t, err)
	_, err = m.Build(context.Background())
	require.NoError(t, err)

	compile := runner.CallsFor("sancus-cc")[0]
	assert.Equal(t, []string{"--debug", "-I", "include"}, compile.Args[:3], "debug flags should precede descriptor flags")

	link := runner.CallsFor("sancus-ld")[0]
	assert.Equal(t, []string{"--debug", "--inline-arithmetic", "--standalone"}, link.Args[:3])
}

func TestSancusModuleBuildConcurrent(t *testing.T) {
	runner := &cmdutils.FakeRunner{}
	m, err := NewSancusModule(sancusState(), newFakeSancusNode(t), newTestEnv(t, runner))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Build(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, runner.CallsFor("sancus-cc"), 2, "concurrent builds should share one toolchain run")
	assert.Len(t, runner.CallsFor("sancus-ld"), 1)
}

func TestSancusModuleBuildFailureReplayed(t *testing.T) {
	failure := errors.New("sancus-cc: main.c: syntax error")
	runner := &cmdutils.FakeRunner{
		RunFn: func(program string, args ...string) error {
			if program == "sancus-cc" {
				return failure
			}
			return nil
		},
	}
	m, err := NewSancusModule(sancusState(), newFakeSancusNode(t), newTestEnv(t, runner))
	require.NoError(t, err)

	_, err = m.Build(context.Background())
	require.ErrorIs(t, err, interfaces.ErrBuildFailure)
	require.ErrorIs(t, err, failure)

	calls := len(runner.Calls())
	_, err2 := m.Build(context.Background())
	assert.Equal(t, err, err2, "the recorded failure should be replayed")
	assert.Len(t, runner.Calls(), calls, "a failed build should not be retried")
}

func TestSancusModuleDeployMemoized(t *testing.T) {
	runner := &cmdutils.FakeRunner{}
	node := newFakeSancusNode(t)
	m, err := NewSancusModule(sancusState(), node, newTestEnv(t, runner))
	require.NoError(t, err)

	info, err := m.Deploy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, info.ID)
	assert.Equal(t, "node-assigned.ld", info.Symtab)
	assert.True(t, m.Deployed())

	_, err = m.Deploy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, node.deploys, "deployment should happen at most once")

	id, err := m.ID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, id)
}

func TestSancusModuleDeployFailure(t *testing.T) {
	runner := &cmdutils.FakeRunner{}
	node := newFakeSancusNode(t)
	node.deployErr = errors.New("node unreachable")

	m, err := NewSancusModule(sancusState(), node, newTestEnv(t, runner))
	require.NoError(t, err)

	_, err = m.Deploy(context.Background())
	require.Error(t, err)
	assert.False(t, m.Deployed(), "a failed deployment should not mark the module deployed")
}

func TestSancusModuleKey(t *testing.T) {
	keyHex := "000102030405060708090a0b0c0d0e0f"
	runner := &cmdutils.FakeRunner{
		OutputFn: func(program string, args ...string) ([]byte, error) {
			require.Equal(t, "sancus-crypto", program)
			return []byte(keyHex + "\n"), nil
		},
	}
	node := newFakeSancusNode(t)
	m, err := NewSancusModule(sancusState(), node, newTestEnv(t, runner))
	require.NoError(t, err)

	key, err := m.Key(context.Background())
	require.NoError(t, err)
	assert.Equal(t, keyHex, key.String())

	relinks := runner.CallsFor("msp430-ld")
	require.Len(t, relinks, 1)
	args := relinks[0].Args
	require.Len(t, args, 6)
	assert.Equal(t, "-T", args[0])
	assert.Equal(t, "node-assigned.ld", args[1], "the relink should use the node's symbol table")
	assert.Equal(t, "-o", args[2])
	assert.Equal(t, "--noinhibit-exec", args[4])

	crypto := runner.CallsFor("sancus-crypto")
	require.Len(t, crypto, 1)
	assert.Equal(t, []string{"--gen-sm-key", "sm1", "--key", testVendorKeyHex}, crypto[0].Args[1:])

	// Key derivation is memoized like every other stage.
	_, err = m.Key(context.Background())
	require.NoError(t, err)
	assert.Len(t, runner.CallsFor("sancus-crypto"), 1)
}

func TestSancusModuleKeyMalformedOutput(t *testing.T) {
	runner := &cmdutils.FakeRunner{
		OutputFn: func(program string, args ...string) ([]byte, error) {
			return []byte("not hex at all"), nil
		},
	}
	m, err := NewSancusModule(sancusState(), newFakeSancusNode(t), newTestEnv(t, runner))
	require.NoError(t, err)

	_, err = m.Key(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrKeyDerivationFailure)
}

func TestSancusModuleEndpointNumericPassthrough(t *testing.T) {
	runner := &cmdutils.FakeRunner{}
	m, err := NewSancusModule(sancusState(), newFakeSancusNode(t), newTestEnv(t, runner))
	require.NoError(t, err)

	id, err := m.InputID(context.Background(), interfaces.NewEndpointRefFromID(7))
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	id, err = m.EntryID(context.Background(), interfaces.NewEndpointRefFromString("12"))
	require.NoError(t, err)
	assert.Equal(t, 12, id)

	assert.Empty(t, runner.Calls(), "numeric references should not trigger a build")
}

func TestSancusModuleEndpointSymbols(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "sm1.elf")
	writeTestELF(t, binary, []testELFSymbol{
		{name: "__sm_sm1_io_button_idx", value: 3, defined: true},
		{name: "__sm_sm1_entry_toggle_idx", value: 1, defined: true},
		{name: "__sm_sm1_io_ghost_idx", value: 9, defined: false},
	})

	state := sancusState()
	state.Binary = binary

	runner := &cmdutils.FakeRunner{}
	m, err := NewSancusModule(state, newFakeSancusNode(t), newTestEnv(t, runner))
	require.NoError(t, err)

	id, err := m.InputID(context.Background(), interfaces.NewEndpointRefFromString("button"))
	require.NoError(t, err)
	assert.Equal(t, 3, id)

	id, err = m.OutputID(context.Background(), interfaces.NewEndpointRefFromString("button"))
	require.NoError(t, err)
	assert.Equal(t, 3, id, "inputs and outputs should share the io symbol namespace")

	id, err = m.EntryID(context.Background(), interfaces.NewEndpointRefFromString("toggle"))
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	_, err = m.InputID(context.Background(), interfaces.NewEndpointRefFromString("missing"))
	var notFound *interfaces.EndpointNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "endpoint", notFound.Kind)

	_, err = m.InputID(context.Background(), interfaces.NewEndpointRefFromString("ghost"))
	assert.ErrorAs(t, err, &notFound, "undefined symbols should not resolve endpoints")

	assert.Empty(t, runner.Calls(), "a restored binary should resolve endpoints without tools")
}

func TestSancusModuleAttestLocal(t *testing.T) {
	runner := &cmdutils.FakeRunner{}
	node := newFakeSancusNode(t)
	m, err := NewSancusModule(sancusState(), node, newTestEnv(t, runner))
	require.NoError(t, err)

	require.NoError(t, m.Attest(context.Background()))
	assert.True(t, m.Attested())
	assert.Equal(t, 1, node.deploys, "attestation should deploy first")

	require.NoError(t, m.Attest(context.Background()))
	assert.Equal(t, 1, node.attests, "attestation should happen at most once")
}

func TestSancusModuleAttestRemote(t *testing.T) {
	keyHex := "4078d58901d3b7d4a3c9e2f10b5d6e7f"
	keyJSON := "[64,120,213,137,1,211,183,212,163,201,226,241,11,93,110,127]"

	tests := []struct {
		name     string
		response string
		wantErr  bool
	}{
		{name: "matching evidence", response: keyJSON, wantErr: false},
		{name: "mismatching evidence", response: "[1,2,3,4]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &cmdutils.FakeRunner{
				OutputFn: func(program string, args ...string) ([]byte, error) {
					require.Equal(t, attestation.DefaultCLI, program)
					assert.Contains(t, args, "attest-sancus")
					return []byte(tt.response), nil
				},
			}
			log := slog.New(slog.NewTextHandler(io.Discard, nil))
			manager, err := attestation.NewManager(attestation.Config{Host: "10.0.0.9", Port: 5000}, attestation.DefaultCLI, runner, log)
			require.NoError(t, err)

			env := newTestEnv(t, runner)
			env.Manager = manager

			id := 1
			state := sancusState()
			state.Deployed = true
			state.Binary = "sm1.elf"
			state.ID = &id
			state.Symtab = "sm1.ld"
			state.Key = keyHex

			node := newFakeSancusNode(t)
			m, err := NewSancusModule(state, node, env)
			require.NoError(t, err)

			err = m.Attest(context.Background())
			if tt.wantErr {
				var mismatch *interfaces.AttestationMismatchError
				require.ErrorAs(t, err, &mismatch)
				assert.False(t, m.Attested())

				again := m.Attest(context.Background())
				assert.Equal(t, err, again, "a failed attestation should be replayed, not retried")
				assert.Len(t, runner.CallsFor(attestation.DefaultCLI), 1)
			} else {
				require.NoError(t, err)
				assert.True(t, m.Attested())
				assert.Equal(t, 0, node.attests, "remote attestation should bypass the node")
			}
		})
	}
}

func TestSancusModuleDumpRoundTrip(t *testing.T) {
	keyHex := "000102030405060708090a0b0c0d0e0f"
	runner := &cmdutils.FakeRunner{
		OutputFn: func(program string, args ...string) ([]byte, error) {
			return []byte(keyHex), nil
		},
	}
	node := newFakeSancusNode(t)
	m, err := NewSancusModule(sancusState(), node, newTestEnv(t, runner))
	require.NoError(t, err)

	// Before deployment the dump must omit every stage result.
	state := m.Dump()
	assert.Empty(t, state.Binary)
	assert.Nil(t, state.ID)
	assert.Empty(t, state.Symtab)
	assert.Empty(t, state.Key)

	binary, err := m.Build(context.Background())
	require.NoError(t, err)
	_, err = m.Deploy(context.Background())
	require.NoError(t, err)
	key, err := m.Key(context.Background())
	require.NoError(t, err)

	state = m.Dump()
	assert.Equal(t, binary, state.Binary)
	require.NotNil(t, state.ID)
	assert.Equal(t, 1, *state.ID)
	assert.Equal(t, "node-assigned.ld", state.Symtab)
	assert.Equal(t, keyHex, state.Key)
	assert.True(t, state.Deployed)

	// Restoring from the dump resolves every stage without tools.
	restoredRunner := &cmdutils.FakeRunner{}
	restoredEnv := newTestEnv(t, restoredRunner)
	restored, err := NewSancusModule(state, node, restoredEnv)
	require.NoError(t, err)

	restoredKey, err := restored.Key(context.Background())
	require.NoError(t, err)
	assert.True(t, key.Equal(restoredKey), "the key should survive the round trip byte for byte")

	restoredBinary, err := restored.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, binary, restoredBinary)

	assert.Empty(t, restoredRunner.Calls(), "a restored module should run no tools")
	assert.Equal(t, 1, node.deploys, "a restored module should not redeploy")
}

func TestSancusModuleMergeLinkerConfig(t *testing.T) {
	newModule := func(t *testing.T) *SancusModule {
		m, err := NewSancusModule(sancusState(), newFakeSancusNode(t), newTestEnv(t, &cmdutils.FakeRunner{}))
		require.NoError(t, err)
		require.NoError(t, os.MkdirAll(m.outDir, 0o755))
		return m
	}

	readConfig := func(t *testing.T, flags []string) map[string][]map[string]int {
		t.Helper()
		for _, flag := range flags {
			if strings.Contains(flag, "--sm-config-file") {
				data, err := os.ReadFile(strings.Fields(flag)[1])
				require.NoError(t, err)
				config := map[string][]map[string]int{}
				require.NoError(t, yaml.Unmarshal(data, &config))
				return config
			}
		}
		t.Fatal("no config flag present")
		return nil
	}

	t.Run("creates fresh config when none referenced", func(t *testing.T) {
		m := newModule(t)
		flags, err := m.mergeLinkerConfig([]string{"--inline-arithmetic"})
		require.NoError(t, err)

		config := readConfig(t, flags)
		assert.Equal(t, []map[string]int{{"num_connections": 2}}, config["sm1"])
	})

	t.Run("raises lower count in place", func(t *testing.T) {
		m := newModule(t)
		path := filepath.Join(m.outDir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("sm1:\n- num_connections: 1\nother:\n- num_connections: 5\n"), 0o644))

		flags, err := m.mergeLinkerConfig([]string{"--sm-config-file " + path})
		require.NoError(t, err)
		assert.Equal(t, []string{"--sm-config-file " + path}, flags, "a usable config file should keep its flag")

		config := readConfig(t, flags)
		assert.Equal(t, []map[string]int{{"num_connections": 2}}, config["sm1"])
		assert.Equal(t, []map[string]int{{"num_connections": 5}}, config["other"], "other modules' entries should survive the merge")
	})

	t.Run("keeps higher count", func(t *testing.T) {
		m := newModule(t)
		path := filepath.Join(m.outDir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("sm1:\n- num_connections: 5\n"), 0o644))

		flags, err := m.mergeLinkerConfig([]string{"--sm-config-file " + path})
		require.NoError(t, err)

		config := readConfig(t, flags)
		assert.Equal(t, []map[string]int{{"num_connections": 5}}, config["sm1"])
	})

	t.Run("merge is idempotent", func(t *testing.T) {
		m := newModule(t)
		flags, err := m.mergeLinkerConfig(nil)
		require.NoError(t, err)
		flags, err = m.mergeLinkerConfig(flags)
		require.NoError(t, err)

		config := readConfig(t, flags)
		assert.Len(t, config["sm1"], 1, "repeated merges should not duplicate entries")
	})

	t.Run("replaces unreadable config", func(t *testing.T) {
		m := newModule(t)
		path := filepath.Join(m.outDir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(":\tnot yaml"), 0o644))

		flags, err := m.mergeLinkerConfig([]string{"--sm-config-file " + path, "--inline-arithmetic"})
		require.NoError(t, err)
		assert.NotContains(t, flags, "--sm-config-file "+path, "the stale flag should be dropped")

		config := readConfig(t, flags)
		assert.Equal(t, []map[string]int{{"num_connections": 2}}, config["sm1"])
	})
}

// testELFSymbol describes one symbol of a hand-built ELF fixture.
type testELFSymbol struct {
	name    string
	value   uint32
	defined bool
}

// writeTestELF writes a minimal ELF32 little-endian binary containing a
// symbol table with the given symbols, the shape the MSP430 toolchain
// produces.
func writeTestELF(t *testing.T, path string, symbols []testELFSymbol) {
	t.Helper()

	strtab := []byte{0}
	var syms bytes.Buffer
	syms.Write(make([]byte, 16))
	for _, sym := range symbols {
		nameOff := uint32(len(strtab))
		strtab = append(strtab, sym.name...)
		strtab = append(strtab, 0)

		shndx := uint16(0)
		if sym.defined {
			shndx = 0xfff1
		}
		require.NoError(t, binary.Write(&syms, binary.LittleEndian, nameOff))
		require.NoError(t, binary.Write(&syms, binary.LittleEndian, sym.value))
		require.NoError(t, binary.Write(&syms, binary.LittleEndian, uint32(0)))
		syms.WriteByte(0x11)
		syms.WriteByte(0)
		require.NoError(t, binary.Write(&syms, binary.LittleEndian, shndx))
	}

	shstrtab := []byte("\x00.symtab\x00.strtab\x00.shstrtab\x00")
	symtabOff := uint32(52)
	strtabOff := symtabOff + uint32(syms.Len())
	shstrtabOff := strtabOff + uint32(len(strtab))
	shoff := shstrtabOff + uint32(len(shstrtab))

	var buf bytes.Buffer
	buf.Write([]byte{0x7f, 'E', 'L', 'F', 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	for _, field := range []any{
		uint16(2), uint16(105), uint32(1), uint32(0), uint32(0), shoff, uint32(0),
		uint16(52), uint16(0), uint16(0), uint16(40), uint16(4), uint16(3),
	} {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, field))
	}

	buf.Write(syms.Bytes())
	buf.Write(strtab)
	buf.Write(shstrtab)

	section := func(name, typ, off, size, link, entsize uint32) {
		for _, field := range []uint32{name, typ, 0, 0, off, size, link, 0, 1, entsize} {
			require.NoError(t, binary.Write(&buf, binary.LittleEndian, field))
		}
	}
	section(0, 0, 0, 0, 0, 0)
	section(1, 2, symtabOff, uint32(syms.Len()), 2, 16)
	section(9, 3, strtabOff, uint32(len(strtab)), 0, 0)
	section(17, 3, shstrtabOff, uint32(len(shstrtab)), 0, 0)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

