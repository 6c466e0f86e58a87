package attestation

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxKeyResponseLen bounds the number of key bytes accepted from the
// attestation manager. No supported scheme uses keys longer than this.
const MaxKeyResponseLen = 64

// ErrMalformedResponse is returned when the manager output is not a flat
// JSON array of byte values within bounds.
var ErrMalformedResponse = errors.New("malformed attestation manager response")

// ParseKeyResponse parses key material printed by the manager CLI. The only
// accepted form is a JSON array of at most MaxKeyResponseLen integers, each
// in [0, 255]. Anything else is rejected without further interpretation.
func ParseKeyResponse(data []byte) ([]byte, error) {
	var vals []int
	if err := json.Unmarshal(data, &vals); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrMalformedResponse)
	}
	if len(vals) > MaxKeyResponseLen {
		return nil, fmt.Errorf("%w: %d values exceeds limit of %d", ErrMalformedResponse, len(vals), MaxKeyResponseLen)
	}

	key := make([]byte, len(vals))
	for i, v := range vals {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: value %d out of byte range", ErrMalformedResponse, v)
		}
		key[i] = byte(v)
	}
	return key, nil
}
