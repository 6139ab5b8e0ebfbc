// Package encoding serializes face feature vectors to a portable textual form.
// The format is the one persisted artifact this engine owns, so the layout is
// versioned explicitly: any change to the byte layout bumps the version tag
// instead of silently changing the meaning of stored data.
package encoding

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// layoutVersion tags the current byte layout (little-endian float32s).
const layoutVersion = "v1"

// ErrMalformedEncoding is returned when a textual encoding cannot be parsed
// back into a feature vector.
var ErrMalformedEncoding = errors.New("malformed vector encoding")

// Encode serializes a feature vector as "<algorithm>:v1:<base64 payload>".
// The payload is the raw little-endian float32 values, so the round trip is
// bit-exact, not merely within epsilon.
func Encode(algorithmID string, vector []float32) string {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return algorithmID + ":" + layoutVersion + ":" + base64.StdEncoding.EncodeToString(buf)
}

// Decode parses a textual encoding produced by Encode and returns the
// algorithm tag and the vector. Dimensionality is not checked here; callers
// validate the length against the algorithm's expected dimension.
func Decode(text string) (string, []float32, error) {
	parts := strings.SplitN(text, ":", 3)
	if len(parts) != 3 {
		return "", nil, fmt.Errorf("%w: expected algorithm:version:payload, got %d segments", ErrMalformedEncoding, len(parts))
	}

	algorithmID, version, payload := parts[0], parts[1], parts[2]
	if algorithmID == "" {
		return "", nil, fmt.Errorf("%w: empty algorithm tag", ErrMalformedEncoding)
	}
	if version != layoutVersion {
		return "", nil, fmt.Errorf("%w: unsupported layout version %q", ErrMalformedEncoding, version)
	}

	buf, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	if len(buf)%4 != 0 {
		return "", nil, fmt.Errorf("%w: payload length %d is not a multiple of 4", ErrMalformedEncoding, len(buf))
	}

	vector := make([]float32, len(buf)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return algorithmID, vector, nil
}
