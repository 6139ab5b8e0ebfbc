// Package matcher resolves probe face vectors against gallery candidates.
// Resolution is pure: given the same probe and candidates it always produces
// the same verdict, which makes frame processing safe to parallelize and to
// retry.
package matcher

import (
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/algorithm"
)

// Decision classifies a verdict. Rejections are normal outcomes, not errors.
type Decision string

const (
	Matched              Decision = "matched"
	RejectedLowConfidence Decision = "rejected_low_confidence"
	RejectedNoCandidate   Decision = "rejected_no_candidate"
)

// Probe is a single face vector extracted from a captured frame, awaiting
// identification. Probes are transient and never persisted by the engine.
type Probe struct {
	BBox        []float64
	Vector      []float32
	AlgorithmID string
	CapturedAt  time.Time
}

// Verdict is the matcher's decision for one probe. StudentID is empty unless
// Decision is Matched.
type Verdict struct {
	StudentID   string
	AlgorithmID string
	Distance    float64
	Confidence  float64
	Decision    Decision
	CheckInTime time.Time
}

// Matcher resolves probes using one algorithm's metric and normalization.
type Matcher struct {
	adapter algorithm.Adapter
}

// New creates a Matcher for the given algorithm adapter.
func New(adapter algorithm.Adapter) *Matcher {
	return &Matcher{adapter: adapter}
}

// Resolve finds the best candidate for the probe. The candidate with the
// highest confidence wins; ties at float-equal confidence break to the lowest
// student id so the result is stable regardless of map iteration order.
// A best confidence below the threshold yields RejectedLowConfidence, an
// empty candidate set RejectedNoCandidate. A probe vector with the wrong
// dimensionality fails before any distance computation.
func (m *Matcher) Resolve(probe Probe, candidates map[string][]float32, threshold float64) (Verdict, error) {
	if len(probe.Vector) != m.adapter.Dim() {
		return Verdict{}, fmt.Errorf("probe vector: %w: got %d, want %d",
			algorithm.ErrDimensionMismatch, len(probe.Vector), m.adapter.Dim())
	}

	if threshold <= 0 {
		threshold = m.adapter.DefaultThreshold()
	}

	verdict := Verdict{
		AlgorithmID: m.adapter.ID(),
		CheckInTime: probe.CapturedAt,
	}

	if len(candidates) == 0 {
		verdict.Decision = RejectedNoCandidate
		return verdict, nil
	}

	var (
		bestStudent    string
		bestDistance   float64
		bestConfidence = -1.0
	)
	for studentID, vector := range candidates {
		distance, err := m.adapter.Distance(probe.Vector, vector)
		if err != nil {
			return Verdict{}, fmt.Errorf("candidate %s: %w", studentID, err)
		}

		confidence := m.adapter.Confidence(distance)
		better := confidence > bestConfidence ||
			(confidence == bestConfidence && (bestStudent == "" || studentID < bestStudent))
		if better {
			bestStudent = studentID
			bestDistance = distance
			bestConfidence = confidence
		}
	}

	verdict.Distance = bestDistance
	verdict.Confidence = bestConfidence

	if bestConfidence < threshold {
		verdict.Decision = RejectedLowConfidence
		return verdict, nil
	}

	verdict.StudentID = bestStudent
	verdict.Decision = Matched
	return verdict, nil
}
