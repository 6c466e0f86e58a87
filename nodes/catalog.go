package nodes

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/tee-module-provisioner/interfaces"
)

// Node type discriminators as they appear in deployment descriptors and
// persisted state.
const (
	NodeTypeSancus    = "sancus"
	NodeTypeTrustZone = "trustzone"
)

// Catalog holds the node set of a deployment and resolves the node name
// references of module descriptors.
type Catalog struct {
	nodes map[string]interfaces.Node
	order []string
}

// NewCatalog constructs the node set from persisted node states. Hosts
// in SRV notation are resolved once at construction; a descriptor port
// of zero takes the port from the SRV record.
func NewCatalog(states []*interfaces.NodeState, resolver *Resolver, log *slog.Logger) (*Catalog, error) {
	c := &Catalog{nodes: make(map[string]interfaces.Node, len(states))}

	for _, state := range states {
		if _, ok := c.nodes[state.Name]; ok {
			return nil, fmt.Errorf("duplicate node %s", state.Name)
		}

		host, port := state.Host, state.ReactivePort
		if service, ok := strings.CutPrefix(state.Host, SRVScheme); ok {
			srvHost, srvPort, err := resolver.ResolveSRV(service)
			if err != nil {
				return nil, fmt.Errorf("could not resolve node %s: %w", state.Name, err)
			}
			host = srvHost
			if port == 0 {
				port = srvPort
			}
		}

		var node interfaces.Node
		var err error
		switch state.Type {
		case NodeTypeSancus:
			node, err = NewSimulatedSancusNode(state, host, port, log)
		case NodeTypeTrustZone:
			node, err = NewSimulatedTrustZoneNode(state, host, port, log)
		default:
			return nil, fmt.Errorf("node %s has unknown type %s", state.Name, state.Type)
		}
		if err != nil {
			return nil, err
		}

		c.nodes[state.Name] = node
		c.order = append(c.order, state.Name)
	}

	return c, nil
}

// Node returns the node a module descriptor references.
func (c *Catalog) Node(name string) (interfaces.Node, error) {
	node, ok := c.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNodeNotFound, name)
	}
	return node, nil
}

// Nodes returns all nodes in descriptor order.
func (c *Catalog) Nodes() []interfaces.Node {
	nodes := make([]interfaces.Node, 0, len(c.order))
	for _, name := range c.order {
		nodes = append(nodes, c.nodes[name])
	}
	return nodes
}

// Dump captures the persisted form of every node in descriptor order.
func (c *Catalog) Dump() []*interfaces.NodeState {
	states := make([]*interfaces.NodeState, 0, len(c.order))
	for _, name := range c.order {
		states = append(states, c.nodes[name].Dump())
	}
	return states
}
