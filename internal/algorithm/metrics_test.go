package algorithm

import (
	"math"
	"testing"
)

func TestEuclideanDistance(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 6, 3}

	if d := euclideanDistance(a, a); d != 0 {
		t.Errorf("expected zero self-distance, got %f", d)
	}
	if d := euclideanDistance(a, b); math.Abs(d-5) > 1e-9 {
		t.Errorf("expected distance 5, got %f", d)
	}
	if euclideanDistance(a, b) != euclideanDistance(b, a) {
		t.Error("expected symmetric distance")
	}
}

func TestCosineDistance(t *testing.T) {
	a := []float32{1, 0, 0}

	if d := cosineDistance(a, a); d > 1e-9 {
		t.Errorf("expected near-zero self-distance, got %f", d)
	}
	if d := cosineDistance(a, []float32{0, 1, 0}); math.Abs(d-1) > 1e-9 {
		t.Errorf("expected orthogonal distance 1, got %f", d)
	}
	if d := cosineDistance(a, []float32{-1, 0, 0}); math.Abs(d-2) > 1e-9 {
		t.Errorf("expected opposite distance 2, got %f", d)
	}
	// Scaled vectors have the same direction.
	if d := cosineDistance(a, []float32{42, 0, 0}); d > 1e-9 {
		t.Errorf("expected zero distance for scaled vector, got %f", d)
	}
}

func TestCosineDistanceZeroVector(t *testing.T) {
	if d := cosineDistance([]float32{0, 0}, []float32{1, 1}); d != 2 {
		t.Errorf("expected maximum distance 2 for zero vector, got %f", d)
	}
}

func TestChiSquaredDistance(t *testing.T) {
	a := []float32{0.5, 0.25, 0.25}

	if d := chiSquaredDistance(a, a); d != 0 {
		t.Errorf("expected zero self-distance, got %f", d)
	}

	b := []float32{0.25, 0.5, 0.25}
	if chiSquaredDistance(a, b) != chiSquaredDistance(b, a) {
		t.Error("expected symmetric distance")
	}
	if d := chiSquaredDistance(a, b); d <= 0 {
		t.Errorf("expected positive distance for different histograms, got %f", d)
	}

	// Empty bins on both sides contribute nothing.
	if d := chiSquaredDistance([]float32{0, 1}, []float32{0, 1}); d != 0 {
		t.Errorf("expected zero distance, got %f", d)
	}
}

func TestConfidenceMappings(t *testing.T) {
	if c := inverseConfidence(0); c != 1 {
		t.Errorf("expected confidence 1 at zero distance, got %f", c)
	}
	if c := inverseConfidence(1); c != 0.5 {
		t.Errorf("expected confidence 0.5 at distance 1, got %f", c)
	}
	if inverseConfidence(0.5) <= inverseConfidence(2) {
		t.Error("expected confidence to decrease with distance")
	}

	if c := cosineConfidence(0); c != 1 {
		t.Errorf("expected confidence 1 at zero distance, got %f", c)
	}
	if c := cosineConfidence(2); c != 0 {
		t.Errorf("expected confidence 0 at maximum distance, got %f", c)
	}
	if c := cosineConfidence(1); c != 0.5 {
		t.Errorf("expected confidence 0.5 at distance 1, got %f", c)
	}
	// Out-of-range distances are clamped, not extrapolated.
	if c := cosineConfidence(3); c != 0 {
		t.Errorf("expected clamped confidence 0, got %f", c)
	}
}
