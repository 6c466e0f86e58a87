// Package cryptoutils provides the cryptographic primitives of module key
// provisioning.
//
// Module keys are symmetric secrets shared between a deployed module and the
// parties allowed to talk to it. Their size is fixed by the encryption scheme
// the module's hardware supports:
//
//   - EncryptionAES: AES-128-GCM on nodes with a full crypto stack
//   - EncryptionSpongent: the SPONGENT-based authenticated encryption
//     implemented by Sancus hardware
//
// # Key Derivation
//
// DeriveModuleKey mirrors what trusted hardware computes internally: the
// node's device key hashed together with the module's binary measurement,
// truncated to the scheme's key size. Deriving the same key on the
// provisioning side is what makes module attestation work without ever
// transporting the key.
//
// # Trusted Application Measurement
//
// TAMeasurement extracts the content digest from a signed trusted
// application image, the measurement a TrustZone node verifies when loading
// the TA. The image layout is a 20-byte signed header followed by the
// SHA-256 digest of the TA contents.
//
// # Usage Example
//
//	image, err := os.ReadFile(binaryPath)
//	if err != nil {
//	    return err
//	}
//
//	measurement, err := cryptoutils.TAMeasurement(image)
//	if err != nil {
//	    return err
//	}
//
//	key, err := cryptoutils.DeriveModuleKey(nodeKey, measurement, cryptoutils.EncryptionAES)
//	if err != nil {
//	    return err
//	}
package cryptoutils
