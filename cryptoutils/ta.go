package cryptoutils

import (
	"errors"
	"fmt"
)

// Signed trusted application images start with a 20-byte signed header
// followed by the SHA-256 digest of the TA contents.
const (
	taHeaderSize      = 20
	taMeasurementSize = 32
)

// ErrTruncatedTA is returned when an image is too short to contain the
// signed header and digest.
var ErrTruncatedTA = errors.New("trusted application image too short")

// TAMeasurement extracts the content digest embedded after the signed header
// of a trusted application image.
func TAMeasurement(image []byte) ([]byte, error) {
	if len(image) < taHeaderSize+taMeasurementSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncatedTA, len(image))
	}

	out := make([]byte, taMeasurementSize)
	copy(out, image[taHeaderSize:taHeaderSize+taMeasurementSize])
	return out, nil
}
