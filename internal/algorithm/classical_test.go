package algorithm

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// testFacePNG renders a synthetic high-contrast crop with per-seed structure,
// so different seeds produce distinguishable descriptors.
func testFacePNG(t *testing.T, seed int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 96, 96))
	for x := range 96 {
		for y := range 96 {
			v := uint8((x*7 + y*13 + seed*31) % 256)
			if (x/8+y/8+seed)%2 == 0 {
				v = 255 - v
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// blankPNG renders a uniform gray crop with no face-like structure.
func blankPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := range 64 {
		for y := range 64 {
			img.Set(x, y, color.RGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode blank image: %v", err)
	}
	return buf.Bytes()
}

func classicalIDs() []string {
	return []string{HaarCascade, HOG, LBPH, Eigenfaces, Fisherfaces}
}

func TestClassicalAdapters_EncodeProperties(t *testing.T) {
	ctx := context.Background()
	crop := testFacePNG(t, 1)

	for _, id := range classicalIDs() {
		t.Run(id, func(t *testing.T) {
			adapter, err := New(id, Options{})
			if err != nil {
				t.Fatalf("New(%q) failed: %v", id, err)
			}

			detections, err := adapter.DetectAndEncode(ctx, crop)
			if err != nil {
				t.Fatalf("DetectAndEncode failed: %v", err)
			}
			if len(detections) != 1 {
				t.Fatalf("expected one detection for a face crop, got %d", len(detections))
			}
			if len(detections[0].Vector) != adapter.Dim() {
				t.Errorf("expected dim %d, got %d", adapter.Dim(), len(detections[0].Vector))
			}

			// Same crop encodes identically.
			again, err := adapter.DetectAndEncode(ctx, crop)
			if err != nil {
				t.Fatalf("second DetectAndEncode failed: %v", err)
			}
			d, err := adapter.Distance(detections[0].Vector, again[0].Vector)
			if err != nil {
				t.Fatalf("Distance failed: %v", err)
			}
			if d > 1e-6 {
				t.Errorf("expected near-zero self-distance, got %f", d)
			}
			if adapter.Confidence(d) < 0.99 {
				t.Errorf("expected near-full confidence at self-distance, got %f", adapter.Confidence(d))
			}
		})
	}
}

func TestClassicalAdapters_DifferentCropsDiffer(t *testing.T) {
	ctx := context.Background()
	cropA := testFacePNG(t, 1)
	cropB := testFacePNG(t, 5)

	for _, id := range classicalIDs() {
		t.Run(id, func(t *testing.T) {
			adapter, err := New(id, Options{})
			if err != nil {
				t.Fatalf("New(%q) failed: %v", id, err)
			}

			da, err := adapter.DetectAndEncode(ctx, cropA)
			if err != nil {
				t.Fatalf("encode A failed: %v", err)
			}
			db, err := adapter.DetectAndEncode(ctx, cropB)
			if err != nil {
				t.Fatalf("encode B failed: %v", err)
			}

			d, err := adapter.Distance(da[0].Vector, db[0].Vector)
			if err != nil {
				t.Fatalf("Distance failed: %v", err)
			}
			if d <= 0 {
				t.Errorf("expected positive distance between different crops, got %f", d)
			}
		})
	}
}

func TestClassicalAdapters_BlankCropNoFace(t *testing.T) {
	ctx := context.Background()
	blank := blankPNG(t)

	adapter, err := New(HOG, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	detections, err := adapter.DetectAndEncode(ctx, blank)
	if err != nil {
		t.Fatalf("expected no error for blank crop, got %v", err)
	}
	if len(detections) != 0 {
		t.Errorf("expected zero detections for blank crop, got %d", len(detections))
	}
}

func TestClassicalAdapters_UndecodableImage(t *testing.T) {
	adapter, err := New(Eigenfaces, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = adapter.DetectAndEncode(context.Background(), []byte("definitely not an image"))
	if !errors.Is(err, ErrImageDecode) {
		t.Errorf("expected ErrImageDecode, got %v", err)
	}
}

func TestClassicalAdapters_DimensionMismatch(t *testing.T) {
	adapter, err := New(HOG, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = adapter.Distance(make([]float32, 3), make([]float32, adapter.Dim()))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestNew_UnsupportedAlgorithm(t *testing.T) {
	_, err := New("deepface_9000", Options{})
	if !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestNew_ThresholdOverride(t *testing.T) {
	adapter, err := New(LBPH, Options{Threshold: 0.42})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if adapter.DefaultThreshold() != 0.42 {
		t.Errorf("expected threshold 0.42, got %f", adapter.DefaultThreshold())
	}
}
