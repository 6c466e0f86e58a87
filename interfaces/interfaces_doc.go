// Package interfaces defines the core interfaces and types for the module
// provisioning system.
//
// This package provides the contracts between different components of the
// system without including implementation details. It separates the interface
// definitions from their implementations, allowing for:
//
//   - Clear separation of concerns
//   - Multiple implementations of the same interface
//   - Better testability through mock implementations
//   - Reduced coupling between components
//
// The package contains several key interfaces:
//
// # Lifecycle Interfaces
//
//   - Module: A software module with memoized build/deploy/attest/key stages
//   - ModuleRegistry: Read access to the modules of a deployment run
//
// # Node Interfaces
//
//   - Node: A device accepting module deployments
//   - SancusNode: A node holding the Sancus vendor key
//   - TrustZoneNode: A node holding the TrustZone device key
//
// # State Interfaces
//
//   - StateBackend: Persists the state document and content-addressed artifacts
//   - StateBackendFactory: Creates state backends from URI strings
//
// # Type Definitions
//
// The package defines various types used throughout the system:
//
//   - ModuleKey, VendorKey, NodeKey: key material with hex constructors
//   - EndpointRef: symbolic or pre-assigned numeric endpoint reference
//   - DeployInfo: node-assigned module ID plus optional symbol table path
//   - ModuleState, NodeState: entries of the persisted state document
//   - ArtifactID: A 32-byte hash that uniquely identifies an artifact
//
// # Error Types
//
// Standard errors returned by state storage operations:
//
//   - ErrStateNotFound: No state document stored yet
//   - ErrArtifactNotFound: Artifact not found in the storage system
//   - ErrBackendUnavailable: Storage backend is not accessible
//   - ErrInvalidLocationURI: State location URI is malformed
//
// # Usage Patterns
//
// Components should depend on interfaces rather than concrete implementations:
//
//	func NewHandler(
//	    registry interfaces.ModuleRegistry,
//	    backend interfaces.StateBackend,
//	) *Handler {
//	    // ...
//	}
//
// This allows for better testability and flexibility in changing implementations.
package interfaces
