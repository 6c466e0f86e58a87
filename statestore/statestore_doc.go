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
// # Types and Interfaces
//
// ArtifactID represents a unique identifier for a build artifact:
//
//	type ArtifactID [32]byte
//
// Error definitions:
//
//	var (
//	    // ErrStateNotFound is returned when no state document exists yet
//	    ErrStateNotFound = errors.New("deployment state not found")
//	    // ErrArtifactNotFound is returned when a requested artifact cannot be found
//	    ErrArtifactNotFound = errors.New("artifact not found")
//	    // ErrBackendUnavailable is returned when a backend is not accessible
//	    ErrBackendUnavailable = errors.New("state backend unavailable")
//	    // ErrInvalidLocationURI is returned when a location URI is invalid
//	    ErrInvalidLocationURI = errors.New("invalid state location URI")
//	)
//
// The StateBackend interface represents any system that can persist the
// deployment state and its artifacts:
//
//	type StateBackend interface {
//	    // FetchState retrieves the current deployment state document
//	    FetchState(ctx context.Context) ([]byte, error)
//
//	    // StoreState replaces the deployment state document
//	    StoreState(ctx context.Context, data []byte) error
//
//	    // FetchArtifact retrieves artifact data by content ID
//	    FetchArtifact(ctx context.Context, id ArtifactID) ([]byte, error)
//
//	    // StoreArtifact saves artifact data and returns its content ID
//	    StoreArtifact(ctx context.Context, data []byte) (ArtifactID, error)
//
//	    // Available checks if this backend is currently accessible
//	    Available(ctx context.Context) bool
//
//	    // Name returns the backend type (for logging/monitoring)
//	    Name() string
//
//	    // LocationURI returns the URI of this backend
//	    LocationURI() string
//	}
//
// The StateBackendFactory interface creates state backends from locations:
//
//	type StateBackendFactory interface {
//	    // StateBackendFor creates a state backend from a location
//	    StateBackendFor(location StateLocation) (StateBackend, error)
//
//	    // CreateMultiBackend creates a multi-state backend from a list of locations
//	    CreateMultiBackend(locations []StateLocation) (StateBackend, error)
//	}
//
// # Multi-Backend Storage
//
// The MultiBackend aggregates multiple backends for redundancy:
//
//   - Store: Attempts to store in all available backends
//   - Fetch: Tries each backend until content is found
//   - Available: Returns true if any backend is available
//
// # Usage Example
//
//	// Create a state backend factory
//	factory := statestore.NewStateBackendFactory(logger)
//
//	// Create a file backend
//	location, err := interfaces.NewStateLocation("file:///var/lib/provisioner/")
//	if err != nil {
//	    log.Fatalf("Invalid location: %v", err)
//	}
//	fileBackend, err := factory.StateBackendFor(location)
//	if err != nil {
//	    log.Fatalf("Failed to create file backend: %v", err)
//	}
//
//	// Persist the state document after a run
//	if err := fileBackend.StoreState(context.Background(), stateYAML); err != nil {
//	    log.Fatalf("Failed to store state: %v", err)
//	}
//
//	// Retrieve it on the next run
//	stateYAML, err = fileBackend.FetchState(context.Background())
//	if errors.Is(err, interfaces.ErrStateNotFound) {
//	    // first run, start from the descriptor
//	}
package statestore
