package interfaces

import (
	"errors"
	"fmt"
)

var (
	// ErrBuildFailure is returned when an external build tool fails to
	// produce the module binary.
	ErrBuildFailure = errors.New("module build failed")

	// ErrKeyDerivationFailure is returned when the module key cannot be
	// computed from the binary material and node secrets.
	ErrKeyDerivationFailure = errors.New("module key derivation failed")

	// ErrArtifactMissing is returned when a binary expected at a recorded
	// path is absent or unreadable.
	ErrArtifactMissing = errors.New("module artifact missing")

	// ErrModuleNotFound is returned when looking up an unknown module name.
	ErrModuleNotFound = errors.New("module not found")

	// ErrNodeNotFound is returned when a module references a node name the
	// deployment does not declare.
	ErrNodeNotFound = errors.New("node not found")
)

// SymbolNotFoundError reports a symbol absent from a binary's symbol table.
type SymbolNotFoundError struct {
	Binary string
	Symbol string
}

func (e *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("symbol %s not defined in %s", e.Symbol, e.Binary)
}

// EndpointNotFoundError reports an input, output or entry point name the
// module does not expose.
type EndpointNotFoundError struct {
	Module   string
	Kind     string
	Endpoint string
}

func (e *EndpointNotFoundError) Error() string {
	return fmt.Sprintf("module %s has no %s named %s", e.Module, e.Kind, e.Endpoint)
}

// AttestationMismatchError reports attestation evidence that does not match
// the deployer's expectation for the module.
type AttestationMismatchError struct {
	Module string
}

func (e *AttestationMismatchError) Error() string {
	return fmt.Sprintf("attestation evidence for module %s does not match its key", e.Module)
}
