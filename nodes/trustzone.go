package nodes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-module-provisioner/interfaces"
)

// SimulatedTrustZoneNode stands in for an OP-TEE device. Deployments
// and attestations are accepted without reaching any hardware; module
// IDs come from the deployment descriptor, so there is nothing to
// assign. Real device transports implement interfaces.TrustZoneNode the
// same way.
type SimulatedTrustZoneNode struct {
	state   interfaces.NodeState
	host    string
	port    int
	nodeKey interfaces.NodeKey
	log     *slog.Logger
}

// NewSimulatedTrustZoneNode restores a TrustZone node from its
// persisted state. The host and port carry the resolved runtime
// address.
func NewSimulatedTrustZoneNode(state *interfaces.NodeState, host string, port int, log *slog.Logger) (*SimulatedTrustZoneNode, error) {
	nodeKey, err := interfaces.NewNodeKeyFromHex(state.NodeKey)
	if err != nil {
		return nil, fmt.Errorf("node %s has an invalid node key: %w", state.Name, err)
	}

	return &SimulatedTrustZoneNode{
		state:   *state,
		host:    host,
		port:    port,
		nodeKey: nodeKey,
		log:     log.With(slog.String("node", state.Name)),
	}, nil
}

// Name returns the node name referenced by module descriptors.
func (n *SimulatedTrustZoneNode) Name() string { return n.state.Name }

// Host returns the resolved network address of the node.
func (n *SimulatedTrustZoneNode) Host() string { return n.host }

// ReactivePort returns the port of the node's event manager.
func (n *SimulatedTrustZoneNode) ReactivePort() int { return n.port }

// NodeKey returns the device secret mixed into module key derivation.
func (n *SimulatedTrustZoneNode) NodeKey() interfaces.NodeKey { return n.nodeKey }

// Deploy accepts the module without shipping it anywhere.
func (n *SimulatedTrustZoneNode) Deploy(ctx context.Context, module interfaces.Module) (interfaces.DeployInfo, error) {
	n.log.Info("Simulated deployment", slog.String("module", module.Name()))
	return interfaces.DeployInfo{}, nil
}

// Attest accepts every module.
func (n *SimulatedTrustZoneNode) Attest(ctx context.Context, module interfaces.Module) error {
	n.log.Info("Simulated attestation", slog.String("module", module.Name()))
	return nil
}

// Dump captures the node's persisted form, preserving the descriptor's
// host notation.
func (n *SimulatedTrustZoneNode) Dump() *interfaces.NodeState {
	state := n.state
	return &state
}
