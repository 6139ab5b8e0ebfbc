package algorithm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// Remote adapters cover the deep models (mtcnn, facenet, dlib_cnn) which run
// in a separate embedding service. The adapter posts the image and gets back
// detected faces with their embeddings, so multi-face frames work here even
// though the classical adapters only see single crops.

const defaultServiceURL = "http://localhost:8000"

// Remote model dimensionalities and thresholds. The dims are fixed by the
// models the embedding service serves; the service response is validated
// against them.
const (
	mtcnnDim   = 256
	facenetDim = 512
	dlibCNNDim = 128

	mtcnnDefaultThreshold   = 0.70
	facenetDefaultThreshold = 0.70
	dlibCNNDefaultThreshold = 0.60
)

// remoteAdapter implements Adapter by calling the embedding service.
type remoteAdapter struct {
	id        string
	dim       int
	threshold float64
	baseURL   string
	client    *http.Client
}

// faceDetection mirrors one detected face in the service response.
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse mirrors the embedding service's detect endpoint response.
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

func newRemoteAdapter(id string, opts Options) Adapter {
	a := &remoteAdapter{
		id:      id,
		baseURL: strings.TrimSuffix(opts.ServiceURL, "/"),
		client:  opts.HTTPClient,
	}
	if a.baseURL == "" {
		a.baseURL = defaultServiceURL
	}
	if a.client == nil {
		a.client = &http.Client{}
	}

	switch id {
	case MTCNN:
		a.dim, a.threshold = mtcnnDim, mtcnnDefaultThreshold
	case Facenet:
		a.dim, a.threshold = facenetDim, facenetDefaultThreshold
	case DlibCNN:
		a.dim, a.threshold = dlibCNNDim, dlibCNNDefaultThreshold
	}
	if opts.Threshold > 0 {
		a.threshold = opts.Threshold
	}
	return a
}

func (a *remoteAdapter) ID() string                { return a.id }
func (a *remoteAdapter) Dim() int                  { return a.dim }
func (a *remoteAdapter) DefaultThreshold() float64 { return a.threshold }

func (a *remoteAdapter) DetectAndEncode(ctx context.Context, image []byte) ([]Detection, error) {
	body, err := a.postMultipartImage(ctx, "/detect/"+a.id, image)
	if err != nil {
		return nil, err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing embedding service response: %w", err)
	}

	detections := make([]Detection, 0, len(resp.Faces))
	for _, face := range resp.Faces {
		if len(face.Embedding) != a.dim {
			return nil, fmt.Errorf("%w: service returned %d for %s, want %d",
				ErrDimensionMismatch, len(face.Embedding), a.id, a.dim)
		}
		detections = append(detections, Detection{
			BBox:   face.BBox,
			Vector: face.Embedding,
			Score:  face.DetScore,
		})
	}
	return detections, nil
}

func (a *remoteAdapter) Distance(x, y []float32) (float64, error) {
	if err := checkDims(a.dim, x, y); err != nil {
		return 0, err
	}
	return cosineDistance(x, y), nil
}

func (a *remoteAdapter) Confidence(distance float64) float64 {
	return cosineConfidence(distance)
}

// postMultipartImage posts the image as a multipart form to the given
// endpoint with an explicit Content-Type from magic byte detection.
func (a *remoteAdapter) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding service request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		// The service rejected the payload as an image.
		return nil, fmt.Errorf("%w: %s", ErrImageDecode, strings.TrimSpace(string(body)))
	default:
		return nil, fmt.Errorf("embedding service error (status %d): %s", resp.StatusCode, string(body))
	}
}

// detectMIMEType detects the MIME type from image data.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
