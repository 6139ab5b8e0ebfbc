// Package gallery manages the per-student, per-algorithm reference face
// vectors used as match candidates. Entries are append-only: retraining a
// student deactivates the old entry and activates a new one, it never mutates
// or deletes history.
package gallery

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one stored reference vector. At most one entry per
// (student, algorithm) pair is active at a time.
type Entry struct {
	ID          uuid.UUID
	StudentID   string
	AlgorithmID string
	Vector      []float32
	Threshold   float64
	Active      bool
	CreatedAt   time.Time
}

// Store is the persistence backend for gallery entries.
type Store interface {
	// SwapActive atomically deactivates any currently active entry for the
	// entry's (student, algorithm) pair and inserts the given entry as the
	// new active one. Observers never see both active or both inactive.
	SwapActive(ctx context.Context, entry Entry) error

	// DeactivateActive retires the active entry for the pair without a
	// replacement. Not an error if no active entry exists.
	DeactivateActive(ctx context.Context, studentID, algorithmID string) error

	// ActiveEntries returns the active entries for the given algorithm.
	// An empty studentIDs slice means all students. Students without an
	// active entry are simply absent from the result.
	ActiveEntries(ctx context.Context, studentIDs []string, algorithmID string) ([]Entry, error)

	// EntriesByStudent returns the full entry history for a student,
	// newest first.
	EntriesByStudent(ctx context.Context, studentID string) ([]Entry, error)
}

// enrollStripes bounds the number of distinct enroll locks. Concurrent
// enrolls for different (student, algorithm) pairs proceed in parallel;
// enrolls for the same pair serialize.
const enrollStripes = 64

// Gallery fronts a Store with per-pair enroll serialization and optional
// HNSW candidate indexes for the cosine-metric algorithms.
type Gallery struct {
	store   Store
	locks   [enrollStripes]sync.Mutex
	mu      sync.RWMutex
	indexes map[string]*Index // keyed by algorithm id
}

// New creates a Gallery backed by the given store.
func New(store Store) *Gallery {
	return &Gallery{
		store:   store,
		indexes: make(map[string]*Index),
	}
}

func stripeFor(studentID, algorithmID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(studentID))
	h.Write([]byte{0})
	h.Write([]byte(algorithmID))
	return h.Sum32() % enrollStripes
}

// Enroll stores a new reference vector for the student, atomically replacing
// any prior active entry for the same algorithm. Last writer wins under
// concurrent enrolls for the same pair.
func (g *Gallery) Enroll(ctx context.Context, studentID, algorithmID string, vector []float32, threshold float64) (Entry, error) {
	entry := Entry{
		ID:          uuid.New(),
		StudentID:   studentID,
		AlgorithmID: algorithmID,
		Vector:      vector,
		Threshold:   threshold,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}

	lock := &g.locks[stripeFor(studentID, algorithmID)]
	lock.Lock()
	defer lock.Unlock()

	if err := g.store.SwapActive(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("enrolling %s/%s: %w", studentID, algorithmID, err)
	}

	if idx := g.indexFor(algorithmID); idx != nil {
		idx.Upsert(studentID, vector)
	}
	return entry, nil
}

// Deactivate retires the active entry for the pair without a replacement.
func (g *Gallery) Deactivate(ctx context.Context, studentID, algorithmID string) error {
	lock := &g.locks[stripeFor(studentID, algorithmID)]
	lock.Lock()
	defer lock.Unlock()

	if err := g.store.DeactivateActive(ctx, studentID, algorithmID); err != nil {
		return fmt.Errorf("deactivating %s/%s: %w", studentID, algorithmID, err)
	}

	if idx := g.indexFor(algorithmID); idx != nil {
		idx.Remove(studentID)
	}
	return nil
}

// ActiveVectors returns a map from student id to active reference vector for
// the given algorithm. Students with no active entry are omitted.
func (g *Gallery) ActiveVectors(ctx context.Context, studentIDs []string, algorithmID string) (map[string][]float32, error) {
	entries, err := g.store.ActiveEntries(ctx, studentIDs, algorithmID)
	if err != nil {
		return nil, fmt.Errorf("loading active gallery for %s: %w", algorithmID, err)
	}

	vectors := make(map[string][]float32, len(entries))
	for _, e := range entries {
		vectors[e.StudentID] = e.Vector
	}
	return vectors, nil
}

// History returns the full entry history for a student across algorithms.
func (g *Gallery) History(ctx context.Context, studentID string) ([]Entry, error) {
	entries, err := g.store.EntriesByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("loading gallery history for %s: %w", studentID, err)
	}
	return entries, nil
}

// EnableIndex builds an HNSW candidate index over the active entries for the
// given algorithm. Only useful for cosine-metric algorithms; the index is a
// pre-filter, the matcher still computes exact distances.
func (g *Gallery) EnableIndex(ctx context.Context, algorithmID string) error {
	entries, err := g.store.ActiveEntries(ctx, nil, algorithmID)
	if err != nil {
		return fmt.Errorf("building candidate index for %s: %w", algorithmID, err)
	}

	idx := NewIndex()
	for _, e := range entries {
		idx.Upsert(e.StudentID, e.Vector)
	}

	g.mu.Lock()
	g.indexes[algorithmID] = idx
	g.mu.Unlock()
	return nil
}

// SearchCandidates returns up to k student ids with reference vectors nearest
// to the probe, or nil if no index is enabled for the algorithm.
func (g *Gallery) SearchCandidates(algorithmID string, probe []float32, k int) []string {
	idx := g.indexFor(algorithmID)
	if idx == nil {
		return nil
	}
	return idx.Search(probe, k)
}

// IndexCount returns the number of students in the algorithm's candidate
// index, or 0 if no index is enabled.
func (g *Gallery) IndexCount(algorithmID string) int {
	idx := g.indexFor(algorithmID)
	if idx == nil {
		return 0
	}
	return idx.Count()
}

func (g *Gallery) indexFor(algorithmID string) *Index {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.indexes[algorithmID]
}
