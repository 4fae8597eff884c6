// Package index stores embedded manual chunks and answers top-k vector
// similarity queries.
//
// Two implementations are provided: Memory, a brute-force in-process store
// used by tests and single-node development, and Postgres, backed by
// PostgreSQL with the pgvector extension for persistence across restarts.
// Both rank by cosine similarity and break ties by insertion order, so a
// query against either returns the same chunks in the same order for the
// same contents.
package index

import "errors"

// ErrDimensionMismatch indicates a vector whose dimensionality differs from
// the vectors already in the index. Mixing dimensionalities would make
// similarity scores meaningless, so it is rejected outright.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Chunk is an immutable fragment of a source document. Chunks are created
// during ingestion and never mutated; re-ingesting a document replaces all
// of its chunks.
type Chunk struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Page        int    `json:"page"`
	StartOffset int    `json:"start_offset"`
	Text        string `json:"text"`
}

// Result is a single query hit.
type Result struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float32 `json:"similarity"`
}
