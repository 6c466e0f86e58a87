package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ruteri/tee-module-provisioner/cmdutils"
	"github.com/ruteri/tee-module-provisioner/interfaces"
)

// SimulatedSancusNode stands in for a Sancus device. It assigns
// protection IDs sequentially and fabricates the symbol table file a
// device would return after loading a module, without reaching any
// hardware. Real device transports implement interfaces.SancusNode the
// same way.
type SimulatedSancusNode struct {
	state     interfaces.NodeState
	host      string
	port      int
	vendorKey interfaces.VendorKey
	log       *slog.Logger

	mu     sync.Mutex
	nextID int
}

// NewSimulatedSancusNode restores a Sancus node from its persisted
// state. The host and port carry the resolved runtime address, which
// may differ from the descriptor form when SRV resolution is in play.
func NewSimulatedSancusNode(state *interfaces.NodeState, host string, port int, log *slog.Logger) (*SimulatedSancusNode, error) {
	vendorKey, err := interfaces.NewVendorKeyFromHex(state.VendorKey)
	if err != nil {
		return nil, fmt.Errorf("node %s has an invalid vendor key: %w", state.Name, err)
	}

	return &SimulatedSancusNode{
		state:     *state,
		host:      host,
		port:      port,
		vendorKey: vendorKey,
		log:       log.With(slog.String("node", state.Name)),
	}, nil
}

// Name returns the node name referenced by module descriptors.
func (n *SimulatedSancusNode) Name() string { return n.state.Name }

// Host returns the resolved network address of the node.
func (n *SimulatedSancusNode) Host() string { return n.host }

// ReactivePort returns the port of the node's event manager.
func (n *SimulatedSancusNode) ReactivePort() int { return n.port }

// VendorKey returns the vendor signing key used to derive module keys.
func (n *SimulatedSancusNode) VendorKey() interfaces.VendorKey { return n.vendorKey }

// Deploy assigns the next protection ID and an empty symbol table file
// in place of the load addresses a device would report.
func (n *SimulatedSancusNode) Deploy(ctx context.Context, module interfaces.Module) (interfaces.DeployInfo, error) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.mu.Unlock()

	symtab, err := cmdutils.CreateTemp("", ".ld")
	if err != nil {
		return interfaces.DeployInfo{}, fmt.Errorf("could not create symbol table for module %s: %w", module.Name(), err)
	}

	n.log.Info("Simulated deployment", slog.String("module", module.Name()), slog.Int("id", id))
	return interfaces.DeployInfo{ID: id, Symtab: symtab}, nil
}

// Attest accepts every module.
func (n *SimulatedSancusNode) Attest(ctx context.Context, module interfaces.Module) error {
	n.log.Info("Simulated attestation", slog.String("module", module.Name()))
	return nil
}

// Dump captures the node's persisted form, preserving the descriptor's
// host notation.
func (n *SimulatedSancusNode) Dump() *interfaces.NodeState {
	state := n.state
	return &state
}
