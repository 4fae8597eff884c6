package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process vector index using brute-force cosine similarity.
//
// Memory is safe for concurrent use by multiple goroutines. The dimension of
// the index is fixed by the first upserted vector; later vectors with a
// different dimension are rejected with ErrDimensionMismatch.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	entries   []memoryEntry    // insertion order, which also decides ties
	byID      map[string]int   // chunk ID -> position in entries
	byDoc     map[string][]int // document ID -> positions in entries
}

type memoryEntry struct {
	chunk   Chunk
	vector  []float32
	deleted bool
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{byID: make(map[string]int), byDoc: make(map[string][]int)}
}

// Upsert inserts or replaces the entry for chunk.ID.
//
// Replacing an entry keeps its original insertion position, so repeating an
// upsert leaves query results byte-for-byte identical.
func (m *Memory) Upsert(_ context.Context, chunk Chunk, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector for chunk %q", ErrDimensionMismatch, chunk.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dimension == 0 {
		m.dimension = len(vector)
	} else if len(vector) != m.dimension {
		return fmt.Errorf("%w: index holds %d-dimensional vectors, got %d",
			ErrDimensionMismatch, m.dimension, len(vector))
	}

	v := make([]float32, len(vector))
	copy(v, vector)

	if pos, ok := m.byID[chunk.ID]; ok {
		prev := m.entries[pos].chunk.DocumentID
		m.entries[pos] = memoryEntry{chunk: chunk, vector: v}
		if prev != chunk.DocumentID {
			m.removeDocRef(prev, pos)
			m.byDoc[chunk.DocumentID] = append(m.byDoc[chunk.DocumentID], pos)
		}
		return nil
	}

	m.entries = append(m.entries, memoryEntry{chunk: chunk, vector: v})
	pos := len(m.entries) - 1
	m.byID[chunk.ID] = pos
	m.byDoc[chunk.DocumentID] = append(m.byDoc[chunk.DocumentID], pos)
	return nil
}

// Query returns up to k entries ranked by descending cosine similarity to
// vector, ties broken by insertion order. An empty index yields an empty
// result; k larger than the index yields everything.
func (m *Memory) Query(_ context.Context, vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dimension != 0 && len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: index holds %d-dimensional vectors, query has %d",
			ErrDimensionMismatch, m.dimension, len(vector))
	}

	type scored struct {
		pos        int
		similarity float32
	}
	hits := make([]scored, 0, len(m.entries))
	for pos, e := range m.entries {
		if e.deleted {
			continue
		}
		hits = append(hits, scored{pos: pos, similarity: cosine(vector, e.vector)})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].similarity > hits[j].similarity })

	if k > len(hits) {
		k = len(hits)
	}
	results := make([]Result, 0, k)
	for _, h := range hits[:k] {
		results = append(results, Result{Chunk: m.entries[h.pos].chunk, Similarity: h.similarity})
	}
	return results, nil
}

// DeleteDocument removes all entries belonging to documentID.
// Deleting an unknown document is a no-op.
func (m *Memory) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, pos := range m.byDoc[documentID] {
		if !m.entries[pos].deleted {
			m.entries[pos].deleted = true
			delete(m.byID, m.entries[pos].chunk.ID)
		}
	}
	delete(m.byDoc, documentID)
	return nil
}

// Count returns the number of live entries.
func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID), nil
}

func (m *Memory) removeDocRef(documentID string, pos int) {
	refs := m.byDoc[documentID]
	for i, p := range refs {
		if p == pos {
			m.byDoc[documentID] = append(refs[:i], refs[i+1:]...)
			return
		}
	}
}

// cosine computes cosine similarity. Zero-norm vectors score 0 rather than
// NaN so that degenerate embeddings sort last instead of poisoning the sort.
func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
