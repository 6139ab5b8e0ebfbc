// Package pipeline connects the capture layer to the engine: frames go in,
// verdicts come out and are reconciled against the session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/kozaktomas/attendance-engine/internal/algorithm"
	"github.com/kozaktomas/attendance-engine/internal/gallery"
	"github.com/kozaktomas/attendance-engine/internal/matcher"
	"github.com/kozaktomas/attendance-engine/internal/session"
)

// ErrNoFaceFound is returned by enrollment when the supplied image contains
// no detectable face.
var ErrNoFaceFound = errors.New("no face found in image")

// Processor runs frames through one algorithm adapter and applies the
// resulting verdicts to sessions. Frames are independent of each other, so a
// Processor is safe for concurrent use.
type Processor struct {
	adapter    algorithm.Adapter
	gallery    *gallery.Gallery
	matcher    *matcher.Matcher
	reconciler *session.Reconciler
	threshold  float64
}

// NewProcessor builds a Processor around the given adapter. A threshold of 0
// uses the adapter's default.
func NewProcessor(adapter algorithm.Adapter, g *gallery.Gallery, r *session.Reconciler, threshold float64) *Processor {
	return &Processor{
		adapter:    adapter,
		gallery:    g,
		matcher:    matcher.New(adapter),
		reconciler: r,
		threshold:  threshold,
	}
}

// Frame is one captured image awaiting processing.
type Frame struct {
	Image      []byte
	CapturedAt time.Time
}

// FrameResult is the outcome of processing a single frame.
type FrameResult struct {
	FacesFound int               `json:"faces_found"`
	Verdicts   []matcher.Verdict `json:"verdicts"`
}

// ProcessFrame detects faces in the frame, resolves each probe against the
// session's roster-scoped gallery slice and applies the verdicts. Rejected
// probes appear in the result but change nothing. Fails with
// session.ErrNotActive when the session cannot accept verdicts.
func (p *Processor) ProcessFrame(ctx context.Context, sessionID string, frame Frame) (*FrameResult, error) {
	roster, err := p.reconciler.Roster(sessionID)
	if err != nil {
		return nil, err
	}

	detections, err := p.adapter.DetectAndEncode(ctx, frame.Image)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}

	result := &FrameResult{FacesFound: len(detections)}
	if len(detections) == 0 {
		return result, nil
	}

	// An empty roster means nobody can match. The store treats an empty id
	// list as unscoped, so skip the gallery load instead of passing it one.
	var candidates map[string][]float32
	if len(roster) > 0 {
		candidates, err = p.gallery.ActiveVectors(ctx, roster, p.adapter.ID())
		if err != nil {
			return nil, err
		}
	}

	capturedAt := frame.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	for _, det := range detections {
		probe := matcher.Probe{
			BBox:        det.BBox,
			Vector:      det.Vector,
			AlgorithmID: p.adapter.ID(),
			CapturedAt:  capturedAt,
		}

		verdict, err := p.matcher.Resolve(probe, p.scopedCandidates(probe, candidates), p.threshold)
		if err != nil {
			return nil, fmt.Errorf("resolving probe: %w", err)
		}

		if err := p.reconciler.ApplyVerdict(ctx, sessionID, verdict); err != nil {
			return nil, err
		}
		result.Verdicts = append(result.Verdicts, verdict)
	}

	return result, nil
}

// candidateSearchK bounds how many nearest neighbors the index pre-filter
// keeps per probe. Exact distances are still computed on the survivors.
const candidateSearchK = 16

// scopedCandidates narrows the candidate map through the gallery's HNSW
// index when one is enabled for the algorithm. Without an index the full
// roster slice is matched exactly.
func (p *Processor) scopedCandidates(probe matcher.Probe, candidates map[string][]float32) map[string][]float32 {
	nearest := p.gallery.SearchCandidates(p.adapter.ID(), probe.Vector, candidateSearchK)
	if nearest == nil || len(candidates) <= candidateSearchK {
		return candidates
	}

	scoped := make(map[string][]float32, len(nearest))
	for _, id := range nearest {
		if v, ok := candidates[id]; ok {
			scoped[id] = v
		}
	}
	if len(scoped) == 0 {
		return candidates
	}
	return scoped
}

// EnrollStudent extracts the best face from the image and stores it as the
// student's active reference vector. With multiple faces in frame the one
// with the highest detection score wins.
func (p *Processor) EnrollStudent(ctx context.Context, studentID string, image []byte) (gallery.Entry, error) {
	detections, err := p.adapter.DetectAndEncode(ctx, image)
	if err != nil {
		return gallery.Entry{}, fmt.Errorf("detecting faces: %w", err)
	}
	if len(detections) == 0 {
		return gallery.Entry{}, fmt.Errorf("enrolling %s: %w", studentID, ErrNoFaceFound)
	}

	best := detections[0]
	for _, det := range detections[1:] {
		if det.Score > best.Score {
			best = det
		}
	}

	threshold := p.threshold
	if threshold <= 0 {
		threshold = p.adapter.DefaultThreshold()
	}
	return p.gallery.Enroll(ctx, studentID, p.adapter.ID(), best.Vector, threshold)
}

// ProgressInfo is delivered to the progress callback after each frame.
type ProgressInfo struct {
	Current int
	Total   int
	Matched int
}

// BatchOptions tune ProcessFrames.
type BatchOptions struct {
	Concurrency int                // parallel frames, defaults to 4
	HideBar     bool               // suppress the terminal progress bar
	OnProgress  func(ProgressInfo) // optional callback after each frame
}

// BatchResult summarizes a ProcessFrames run.
type BatchResult struct {
	ProcessedCount int
	MatchedCount   int
	Results        []*FrameResult
	Errors         []error
}

type frameOutcome struct {
	index  int
	result *FrameResult
	err    error
}

// ProcessFrames runs a batch of frames through the session with a bounded
// worker pool. Frame order in the result matches the input; per-frame
// failures are collected, not fatal to the batch.
func (p *Processor) ProcessFrames(ctx context.Context, sessionID string, frames []Frame, opts BatchOptions) (*BatchResult, error) {
	if _, err := p.reconciler.Roster(sessionID); err != nil {
		return nil, err
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	bar := progressbar.NewOptions(len(frames),
		progressbar.OptionSetDescription(fmt.Sprintf("Processing frames (%d workers)", concurrency)),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetVisibility(!opts.HideBar),
	)

	outcomes := make(chan frameOutcome, len(frames))
	semaphore := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i := range frames {
		wg.Add(1)
		go func(idx int, frame Frame) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if ctx.Err() != nil {
				outcomes <- frameOutcome{index: idx, err: ctx.Err()}
				return
			}

			result, err := p.ProcessFrame(ctx, sessionID, frame)
			outcomes <- frameOutcome{index: idx, result: result, err: err}
		}(i, frames[i])
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	batch := &BatchResult{Results: make([]*FrameResult, len(frames))}
	var done int
	for outcome := range outcomes {
		done++
		bar.Add(1)

		if outcome.err != nil {
			batch.Errors = append(batch.Errors, fmt.Errorf("frame %d: %w", outcome.index, outcome.err))
		} else {
			batch.Results[outcome.index] = outcome.result
			batch.ProcessedCount++
			for _, v := range outcome.result.Verdicts {
				if v.Decision == matcher.Matched {
					batch.MatchedCount++
				}
			}
		}

		if opts.OnProgress != nil {
			opts.OnProgress(ProgressInfo{Current: done, Total: len(frames), Matched: batch.MatchedCount})
		}
	}

	return batch, nil
}
