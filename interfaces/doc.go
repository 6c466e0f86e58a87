// Package interfaces defines core interfaces and types for the module
// provisioning system, separating interface definitions from implementations.
//
// The package provides interfaces for the key components of the system:
//
// # Lifecycle Interfaces
//
// Module: A software module moving through the build, deploy, attest and key
// derivation stages. Every stage is memoized: it runs at most once per module
// lifetime, concurrent callers join the in-flight run, and failures are
// replayed to later callers.
//
// ModuleRegistry: Read access to the modules of a deployment, used by the
// status API.
//
// # Node Interfaces
//
// Node: A device receiving module deployments, hiding the hardware transport.
// SancusNode and TrustZoneNode extend it with the secrets their backends mix
// into module keys (vendor key, device node key).
//
// # State Interfaces
//
// StateBackend: Persists the deployment state document and content-addressed
// build artifacts across multiple backend types (file, S3, IPFS, Vault).
//
// StateBackendFactory: Creates state backends from URI strings and manages
// multi-backend configurations for redundant storage.
//
// # Core Types
//
// The package also defines the value types shared across components:
//
// - ModuleKey/VendorKey/NodeKey: key material with hex round-tripping
// - EndpointRef: a symbolic-or-numeric reference to a module endpoint
// - DeployInfo: what a node assigns to a deployed module
// - ModuleState/NodeState: persisted forms making up the state document
// - ArtifactID: 32-byte SHA-256 hash for artifact addressing
//
// # Error Types
//
// Lifecycle failures carry enough context to diagnose them: build and key
// derivation failures name the module, resolution failures name the missing
// symbol or endpoint, attestation mismatches name the module whose evidence
// diverged.
package interfaces
