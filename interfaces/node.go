package interfaces

import (
	"context"
)

// Node is a device that can receive module deployments. Implementations
// wrap the transport to the actual hardware; the lifecycle engine only
// depends on this surface.
type Node interface {
	// Name returns the node name referenced by module descriptors.
	Name() string

	// Host returns the resolved network address of the node.
	Host() string

	// ReactivePort returns the port of the node's event manager.
	ReactivePort() int

	// Deploy ships the module's binary to the node and returns the
	// assigned deployment info.
	Deploy(ctx context.Context, module Module) (DeployInfo, error)

	// Attest runs the node-local attestation protocol for the module.
	Attest(ctx context.Context, module Module) error

	// Dump captures the node's persisted form.
	Dump() *NodeState
}

// SancusNode is a node hosting Sancus protected modules.
type SancusNode interface {
	Node

	// VendorKey returns the vendor signing key used to derive module keys.
	VendorKey() VendorKey
}

// TrustZoneNode is a node hosting OP-TEE trusted applications.
type TrustZoneNode interface {
	Node

	// NodeKey returns the device secret mixed into module key derivation.
	NodeKey() NodeKey
}

// NodeState is the persisted form of a node, one entry of the deployment
// state document.
type NodeState struct {
	Type         string `yaml:"type"`
	Name         string `yaml:"name"`
	Host         string `yaml:"host"`
	ReactivePort int    `yaml:"reactive_port"`

	// VendorKey is set for Sancus nodes, NodeKey for TrustZone nodes.
	VendorKey string `yaml:"vendor_key,omitempty"`
	NodeKey   string `yaml:"node_key,omitempty"`
}
