// Package interfaces defines the core interfaces and types for the module
// provisioning system. It provides the contract between different components
// without implementation details.
package interfaces

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ruteri/tee-module-provisioner/cryptoutils"
)

// Encryption re-exports the symmetric scheme type used to size module keys.
type Encryption = cryptoutils.Encryption

// ModuleKey is the symmetric key provisioned into a deployed module. Its
// length is fixed by the module's encryption scheme.
type ModuleKey []byte

// NewModuleKeyFromHex parses a module key from its persisted hex form.
func NewModuleKeyFromHex(s string) (ModuleKey, error) {
	clean := strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid module key hex: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("empty module key")
	}
	return ModuleKey(raw), nil
}

// String returns the hex representation used in state dumps.
func (k ModuleKey) String() string {
	return hex.EncodeToString(k)
}

// Bytes returns the raw key bytes.
func (k ModuleKey) Bytes() []byte {
	return k
}

// Equal compares two module keys.
func (k ModuleKey) Equal(other ModuleKey) bool {
	return bytes.Equal(k, other)
}

// VendorKey is the Sancus vendor signing key held by a node. The external
// key tool receives it hex-encoded.
type VendorKey []byte

// NewVendorKeyFromHex parses a vendor key from its descriptor hex form.
func NewVendorKeyFromHex(s string) (VendorKey, error) {
	clean := strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid vendor key hex: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("empty vendor key")
	}
	return VendorKey(raw), nil
}

// String returns the hex representation passed to external tools.
func (k VendorKey) String() string {
	return hex.EncodeToString(k)
}

// Bytes returns the raw key bytes.
func (k VendorKey) Bytes() []byte {
	return k
}

// NodeKey is the device secret of a TrustZone node, mixed into module key
// derivation.
type NodeKey []byte

// NewNodeKeyFromHex parses a node key from its descriptor hex form.
func NewNodeKeyFromHex(s string) (NodeKey, error) {
	clean := strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid node key hex: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("empty node key")
	}
	return NodeKey(raw), nil
}

// String returns the hex representation used in state dumps.
func (k NodeKey) String() string {
	return hex.EncodeToString(k)
}

// Bytes returns the raw key bytes.
func (k NodeKey) Bytes() []byte {
	return k
}

// DeployInfo is what a node reports back for a successfully deployed module.
// Symtab is only produced by Sancus nodes; other backends leave it empty.
type DeployInfo struct {
	// ID is the module ID assigned by the node's event manager.
	ID int

	// Symtab is the path of the symbol table file emitted during deployment.
	Symtab string
}

// EndpointRef identifies a module input, output, or entry point either by a
// symbolic name or by an ID already assigned externally. A numeric reference
// bypasses resolution entirely and is returned as-is by the resolvers.
type EndpointRef struct {
	name    string
	id      int
	numeric bool
}

// NewEndpointRefFromID creates a reference carrying a pre-assigned ID.
func NewEndpointRefFromID(id int) EndpointRef {
	return EndpointRef{id: id, numeric: true}
}

// NewEndpointRefFromString creates a reference from a descriptor string. An
// all-digit string is treated as a pre-assigned ID rather than a name.
func NewEndpointRefFromString(s string) EndpointRef {
	if isAllDigits(s) {
		if id, err := strconv.Atoi(s); err == nil {
			return EndpointRef{id: id, numeric: true}
		}
	}
	return EndpointRef{name: s}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsNumeric reports whether the reference carries a pre-assigned ID.
func (r EndpointRef) IsNumeric() bool {
	return r.numeric
}

// ID returns the pre-assigned ID. Only meaningful when IsNumeric is true.
func (r EndpointRef) ID() int {
	return r.id
}

// Name returns the symbolic name. Only meaningful when IsNumeric is false.
func (r EndpointRef) Name() string {
	return r.name
}

// String returns the descriptor representation of the reference.
func (r EndpointRef) String() string {
	if r.numeric {
		return strconv.Itoa(r.id)
	}
	return r.name
}
