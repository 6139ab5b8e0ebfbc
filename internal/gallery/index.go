package gallery

import (
	"sync"

	"github.com/coder/hnsw"
)

// HNSW parameters for the candidate index.
const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	hnswMaxNeighbors = 16

	// hnswSearchMultiplier requests extra candidates from the graph so
	// enough survive the liveness filter after deactivations.
	hnswSearchMultiplier = 3
)

// Index is an in-memory HNSW index over active reference vectors, keyed by
// student id. The graph does not support true deletion, so removals are
// tracked in the students map and filtered out of search results.
type Index struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[string]
	students map[string][]float32
}

// NewIndex creates an empty candidate index.
func NewIndex() *Index {
	return &Index{
		students: make(map[string][]float32),
	}
}

// Upsert adds or replaces the vector for a student.
func (idx *Index) Upsert(studentID string, vector []float32) {
	if len(vector) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.graph == nil {
		g := hnsw.NewGraph[string]()
		g.M = hnswMaxNeighbors
		g.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
		g.Distance = hnsw.CosineDistance
		idx.graph = g
	}

	idx.graph.Add(hnsw.MakeNode(studentID, vector))
	idx.students[studentID] = vector
}

// Remove drops a student from search results. The graph node stays behind
// but is filtered out by the liveness map.
func (idx *Index) Remove(studentID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.students, studentID)
}

// Search returns up to k live student ids nearest to the query vector.
func (idx *Index) Search(query []float32, k int) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph == nil || k <= 0 {
		return nil
	}

	neighbors := idx.graph.Search(query, k*hnswSearchMultiplier)

	ids := make([]string, 0, k)
	for _, n := range neighbors {
		if _, ok := idx.students[n.Key]; !ok {
			continue
		}
		ids = append(ids, n.Key)
		if len(ids) == k {
			break
		}
	}
	return ids
}

// Count returns the number of live students in the index.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.students)
}
