package matcher

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/algorithm"
)

// stubAdapter is a one-dimensional adapter where a candidate at value v gets
// confidence 1-|probe-v|, making test confidences easy to stage.
type stubAdapter struct{}

func (stubAdapter) ID() string                { return "stub" }
func (stubAdapter) Dim() int                  { return 1 }
func (stubAdapter) DefaultThreshold() float64 { return 0.6 }

func (stubAdapter) DetectAndEncode(ctx context.Context, image []byte) ([]algorithm.Detection, error) {
	return nil, nil
}

func (stubAdapter) Distance(a, b []float32) (float64, error) {
	if len(a) != 1 || len(b) != 1 {
		return 0, algorithm.ErrDimensionMismatch
	}
	return math.Abs(float64(a[0]) - float64(b[0])), nil
}

func (stubAdapter) Confidence(distance float64) float64 {
	c := 1 - distance
	if c < 0 {
		c = 0
	}
	return c
}

func probeAt(v float32) Probe {
	return Probe{
		Vector:      []float32{v},
		AlgorithmID: "stub",
		CapturedAt:  time.Date(2026, 3, 2, 8, 5, 0, 0, time.UTC),
	}
}

func TestResolve_BestCandidateWins(t *testing.T) {
	m := New(stubAdapter{})

	// A at confidence 0.9, B at confidence 0.7.
	candidates := map[string][]float32{
		"student-a": {0.1},
		"student-b": {0.3},
	}

	verdict, err := m.Resolve(probeAt(0), candidates, 0.6)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if verdict.Decision != Matched {
		t.Fatalf("expected Matched, got %s", verdict.Decision)
	}
	if verdict.StudentID != "student-a" {
		t.Errorf("expected student-a, got %s", verdict.StudentID)
	}
	if math.Abs(verdict.Confidence-0.9) > 1e-6 {
		t.Errorf("expected confidence 0.9, got %f", verdict.Confidence)
	}
	if verdict.AlgorithmID != "stub" {
		t.Errorf("expected algorithm 'stub', got %s", verdict.AlgorithmID)
	}
	if verdict.CheckInTime.IsZero() {
		t.Error("expected check-in time carried from probe")
	}
}

func TestResolve_AllBelowThreshold(t *testing.T) {
	m := New(stubAdapter{})

	candidates := map[string][]float32{
		"student-a": {0.8}, // confidence 0.2
		"student-b": {0.9}, // confidence 0.1
	}

	verdict, err := m.Resolve(probeAt(0), candidates, 0.6)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if verdict.Decision != RejectedLowConfidence {
		t.Fatalf("expected RejectedLowConfidence, got %s", verdict.Decision)
	}
	if verdict.StudentID != "" {
		t.Errorf("expected empty student id, got %s", verdict.StudentID)
	}
	// The best candidate's confidence is still reported for auditing.
	if math.Abs(verdict.Confidence-0.2) > 1e-6 {
		t.Errorf("expected confidence 0.2, got %f", verdict.Confidence)
	}
}

func TestResolve_EmptyCandidates(t *testing.T) {
	m := New(stubAdapter{})

	for _, threshold := range []float64{0.1, 0.6, 0.99} {
		verdict, err := m.Resolve(probeAt(0), map[string][]float32{}, threshold)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if verdict.Decision != RejectedNoCandidate {
			t.Errorf("threshold %f: expected RejectedNoCandidate, got %s", threshold, verdict.Decision)
		}
		if verdict.StudentID != "" {
			t.Errorf("expected empty student id, got %s", verdict.StudentID)
		}
	}
}

func TestResolve_TieBreaksToLowestStudentID(t *testing.T) {
	m := New(stubAdapter{})

	// Identical vectors, float-equal confidences.
	candidates := map[string][]float32{
		"student-c": {0.1},
		"student-a": {0.1},
		"student-b": {0.1},
	}

	// Repeat to shake out map iteration order effects.
	for range 20 {
		verdict, err := m.Resolve(probeAt(0), candidates, 0.5)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if verdict.StudentID != "student-a" {
			t.Fatalf("expected deterministic tie-break to student-a, got %s", verdict.StudentID)
		}
	}
}

func TestResolve_DimensionMismatch(t *testing.T) {
	m := New(stubAdapter{})

	probe := Probe{Vector: []float32{1, 2, 3}}
	_, err := m.Resolve(probe, map[string][]float32{"student-a": {0.1}}, 0.5)
	if !errors.Is(err, algorithm.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestResolve_DefaultThreshold(t *testing.T) {
	m := New(stubAdapter{})

	// Confidence 0.5 is below the stub's 0.6 default.
	verdict, err := m.Resolve(probeAt(0), map[string][]float32{"student-a": {0.5}}, 0)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if verdict.Decision != RejectedLowConfidence {
		t.Errorf("expected default threshold to apply, got %s", verdict.Decision)
	}
}
