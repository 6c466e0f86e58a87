package cryptoutils

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// Encryption identifies a symmetric encryption scheme supported by deployed
// modules. Each scheme fixes the size of the module key.
type Encryption int

const (
	// EncryptionAES is AES-128-GCM, available on nodes with a full crypto stack.
	EncryptionAES Encryption = iota

	// EncryptionSpongent is the SPONGENT-based authenticated encryption
	// implemented by Sancus hardware.
	EncryptionSpongent
)

// ErrUnknownEncryption is returned when parsing an unrecognized scheme name.
var ErrUnknownEncryption = errors.New("unknown encryption scheme")

// NewEncryptionFromString parses a scheme name as it appears in deployment
// descriptors.
func NewEncryptionFromString(name string) (Encryption, error) {
	switch name {
	case "aes":
		return EncryptionAES, nil
	case "spongent":
		return EncryptionSpongent, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownEncryption, name)
	}
}

// String returns the descriptor name of the scheme.
func (e Encryption) String() string {
	switch e {
	case EncryptionAES:
		return "aes"
	case EncryptionSpongent:
		return "spongent"
	default:
		return "unknown"
	}
}

// KeySize returns the module key size in bytes for the scheme.
func (e Encryption) KeySize() int {
	switch e {
	case EncryptionAES:
		return 16
	case EncryptionSpongent:
		return 16
	default:
		return 0
	}
}

// DeriveModuleKey computes a module key by hashing the node key together with
// the module's binary measurement and truncating the digest to the scheme's
// key size. Fails if the scheme needs more bytes than SHA-256 produces.
func DeriveModuleKey(nodeKey, measurement []byte, enc Encryption) ([]byte, error) {
	keySize := enc.KeySize()
	if keySize > sha256.Size {
		return nil, fmt.Errorf("sha256 cannot produce a %d-byte key for scheme %s", keySize, enc)
	}

	h := sha256.New()
	h.Write(nodeKey)
	h.Write(measurement)
	return h.Sum(nil)[:keySize], nil
}
