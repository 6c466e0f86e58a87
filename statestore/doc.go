// Package statestore persists deployment state documents and build artifacts
// behind pluggable backends.
//
// The statestore package offers a unified interface for replacing and
// retrieving the single mutable deployment state document, plus storing and
// retrieving build artifacts identified by SHA-256 hash, across multiple
// backends:
//
//   - File system storage for local development and testing
//   - S3-compatible storage for cloud deployments
//   - IPFS mutable file system storage for distributed setups
//   - Vault KV v2 storage keeping module keys encrypted at rest
//
// # Storage URI Format
//
// State backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/provisioner/
//   - s3://bucket-name/prefix/?region=us-west-2
//   - ipfs://ipfs.example.com:5001/provisioner/
//   - vault://TOKEN@vault.example.com:8200/secret/provisioner
//
// # State Document and Artifacts
//
// Each backend holds exactly one deployment state document at a well-known
// location inside its namespace. The document is replaced wholesale on every
// store; FetchState returns ErrStateNotFound until the first run has
// persisted one. Build artifacts are immutable and content-addressed: the
// artifact identifier is the SHA-256 hash of the data, so every backend
// derives the same identifier for the same bytes.
//
// # Vault Storage
//
// The VaultBackend stores documents in HashiCorp Vault using the KV v2
// secrets engine:
//
//   - Authentication: A Vault token carried in the location URI
//   - Path Structure: {mount}/data/{path}/state and {mount}/data/{path}/artifacts/{id}
//   - Security: Module keys in the state document stay encrypted at rest
//
// URI format: vault://TOKEN@vault.example.com:8200/secret/provisioner
//
// # Multi-Backend Example
//
//	// Create a multi-backend from multiple locations including Vault
//	locations := []interfaces.StateLocation{fileLoc, s3Loc, vaultLoc}
//	multiBackend, err := factory.CreateMultiBackend(locations)
package statestore
