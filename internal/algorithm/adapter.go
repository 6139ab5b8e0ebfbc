// Package algorithm provides the face recognition algorithm adapters.
// Each supported algorithm is wrapped in an Adapter that fixes the feature
// vector dimensionality, the distance metric and a default confidence
// threshold. Adapter selection happens once, at construction time; callers
// never branch on the algorithm id again.
package algorithm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Supported algorithm identifiers. These match the tags stored alongside
// gallery entries and encoded vectors, so they are part of the persisted
// format and must stay stable.
const (
	HaarCascade = "haar_cascade"
	HOG         = "hog"
	LBPH        = "lbph"
	Eigenfaces  = "eigenfaces"
	Fisherfaces = "fisherfaces"
	MTCNN       = "mtcnn"
	Facenet     = "facenet"
	DlibCNN     = "dlib_cnn"
)

var (
	// ErrUnsupportedAlgorithm is returned for an unknown algorithm id.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

	// ErrImageDecode is returned when the input image cannot be decoded.
	ErrImageDecode = errors.New("image decode failed")

	// ErrDimensionMismatch is returned when a vector does not match the
	// algorithm's expected dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Detection is one detected face: a bounding box in pixel coordinates
// [x1, y1, x2, y2], the feature vector and a detector score.
type Detection struct {
	BBox   []float64
	Vector []float32
	Score  float64
}

// Adapter is the uniform interface over all recognition algorithms.
// DetectAndEncode and Distance are pure with respect to adapter state and safe
// for concurrent use.
type Adapter interface {
	// ID returns the stable algorithm identifier.
	ID() string
	// Dim returns the fixed feature vector dimensionality.
	Dim() int
	// DefaultThreshold returns the confidence threshold used when the
	// caller does not supply one.
	DefaultThreshold() float64
	// DetectAndEncode decodes the image and returns zero or more detected
	// faces with their feature vectors. Zero faces is not an error.
	DetectAndEncode(ctx context.Context, image []byte) ([]Detection, error)
	// Distance computes the algorithm's metric between two vectors.
	// It is deterministic, symmetric and non-negative.
	Distance(a, b []float32) (float64, error)
	// Confidence maps a distance to a confidence in (0, 1] using the
	// algorithm's fixed normalization.
	Confidence(distance float64) float64
}

// Options tunes adapter construction. The zero value selects built-in
// defaults for everything.
type Options struct {
	// Threshold overrides the algorithm's default confidence threshold.
	Threshold float64
	// ServiceURL is the base URL of the embedding service backing the
	// remote adapters (mtcnn, facenet, dlib_cnn).
	ServiceURL string
	// HTTPClient overrides the client used by remote adapters.
	HTTPClient *http.Client
}

// IDs lists all supported algorithm identifiers.
func IDs() []string {
	return []string{HaarCascade, HOG, LBPH, Eigenfaces, Fisherfaces, MTCNN, Facenet, DlibCNN}
}

// New constructs the adapter for the given algorithm id.
// Returns ErrUnsupportedAlgorithm for an unknown id.
func New(id string, opts Options) (Adapter, error) {
	switch id {
	case HaarCascade:
		return newHaarAdapter(opts), nil
	case HOG:
		return newHOGAdapter(opts), nil
	case LBPH:
		return newLBPHAdapter(opts), nil
	case Eigenfaces:
		return newEigenAdapter(opts), nil
	case Fisherfaces:
		return newFisherAdapter(opts), nil
	case MTCNN, Facenet, DlibCNN:
		return newRemoteAdapter(id, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, id)
	}
}

// checkDims validates that both vectors match the expected dimensionality.
func checkDims(dim int, a, b []float32) error {
	if len(a) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(a), dim)
	}
	if len(b) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(b), dim)
	}
	return nil
}
