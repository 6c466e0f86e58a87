package interfaces

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ArtifactID is a 32-byte SHA-256 hash uniquely identifying a stored build
// artifact.
type ArtifactID [32]byte

// NewArtifactIDFromBytes creates an artifact ID from raw hash bytes.
func NewArtifactIDFromBytes(source []byte) (ArtifactID, error) {
	if len(source) != 32 {
		return ArtifactID{}, errors.New("invalid ArtifactID conversion from bytes: incorrect length")
	}

	var hash [32]byte
	copy(hash[:], source)
	return ArtifactID(hash), nil
}

// NewArtifactIDFromHex creates an artifact ID from its hex representation.
func NewArtifactIDFromHex(source string) (ArtifactID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ArtifactID{}, errors.New("invalid artifact ID length: hex string must be 64 characters")
	}

	hashBytes, err := hex.DecodeString(clean)
	if err != nil {
		return ArtifactID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var hash [32]byte
	copy(hash[:], hashBytes)
	return ArtifactID(hash), nil
}

// ComputeArtifactID calculates the artifact ID of data.
func ComputeArtifactID(data []byte) ArtifactID {
	hash := sha256.Sum256(data)
	return ArtifactID(hash)
}

// String returns hex representation.
func (id ArtifactID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns raw 32-byte hash.
func (id ArtifactID) Bytes() []byte {
	return id[:]
}

// Equal compares two artifact IDs.
func (id ArtifactID) Equal(other ArtifactID) bool {
	return bytes.Equal(id[:], other[:])
}

// StateLocation represents the URI of a state storage backend.
type StateLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewStateLocation creates a new state location from a URI string with
// validation.
func NewStateLocation(uri string) (StateLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StateLocation{}, fmt.Errorf("invalid URI format: %w", err)
	}

	scheme := parsed.Scheme
	switch scheme {
	case "file", "s3", "ipfs", "vault":
		// Valid scheme
	default:
		return StateLocation{}, fmt.Errorf("unsupported state storage scheme: %s", scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return StateLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI string.
func (loc StateLocation) String() string {
	return loc.Raw
}

// IsFile checks if this is a file system location.
func (loc StateLocation) IsFile() bool {
	return loc.Scheme == "file"
}

// IsS3 checks if this is an S3 location.
func (loc StateLocation) IsS3() bool {
	return loc.Scheme == "s3"
}

// IsIPFS checks if this is an IPFS location.
func (loc StateLocation) IsIPFS() bool {
	return loc.Scheme == "ipfs"
}

// IsVault checks if this is a Vault location.
func (loc StateLocation) IsVault() bool {
	return loc.Scheme == "vault"
}

// GetParam returns a query parameter value.
func (loc StateLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StateLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

var (
	// ErrStateNotFound is returned when no deployment state document exists
	// in the backend yet.
	ErrStateNotFound = errors.New("deployment state not found")

	// ErrArtifactNotFound is returned when a requested artifact cannot be
	// found in the storage backend.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrBackendUnavailable is returned when a storage backend is not
	// accessible. This could be due to network issues, authentication
	// failures, or service outages.
	ErrBackendUnavailable = errors.New("state backend unavailable")

	// ErrInvalidLocationURI is returned when a state location URI is
	// malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid state location URI")
)

// StateBackend persists deployment state documents and build artifacts.
// State is a single mutable document; artifacts are content-addressed.
type StateBackend interface {
	// FetchState retrieves the current deployment state document.
	FetchState(ctx context.Context) ([]byte, error)

	// StoreState replaces the deployment state document.
	StoreState(ctx context.Context, data []byte) error

	// FetchArtifact retrieves artifact data by content ID.
	FetchArtifact(ctx context.Context, id ArtifactID) ([]byte, error)

	// StoreArtifact saves artifact data and returns its content ID.
	StoreArtifact(ctx context.Context, data []byte) (ArtifactID, error)

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// StateBackendFactory creates state backends.
type StateBackendFactory interface {
	// StateBackendFor creates a backend from a URI.
	// Supports file://, s3://, ipfs://, vault://
	StateBackendFor(location StateLocation) (StateBackend, error)

	// CreateMultiBackend creates an aggregated state backend.
	CreateMultiBackend(locations []StateLocation) (StateBackend, error)
}
