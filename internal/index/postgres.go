package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Postgres is a vector index backed by PostgreSQL with the pgvector
// extension. Chunks live in the chunks table (see db/migrations); cosine
// distance ordering is done by the <=> operator, with the monotonically
// increasing seq column breaking ties in insertion order.
//
// Writes are visible to subsequent queries on the same pool, and the index
// survives process restarts pointed at the same database.
//
// Postgres is safe for concurrent use by multiple goroutines.
type Postgres struct {
	pool      *pgxpool.Pool
	dimension int
	logger    *slog.Logger
}

// NewPostgres creates a Postgres index on the given pool.
//
// dimension must match the vector(N) column created by the migrations and
// the embedding gateway's output; it is checked client-side on every write
// so a misconfigured embedder fails with ErrDimensionMismatch instead of an
// opaque database error.
func NewPostgres(pool *pgxpool.Pool, dimension int, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, dimension: dimension, logger: logger}
}

// Upsert inserts or replaces the entry for chunk.ID. The seq column is
// assigned on first insert and left untouched on conflict, so replacing an
// entry keeps its position in tie-break ordering.
func (p *Postgres) Upsert(ctx context.Context, chunk Chunk, vector []float32) error {
	if len(vector) != p.dimension {
		return fmt.Errorf("%w: index is configured for %d dimensions, got %d",
			ErrDimensionMismatch, p.dimension, len(vector))
	}

	embedding := pgvector.NewVector(vector)
	_, err := p.pool.Exec(ctx, `
		INSERT INTO chunks (id, document_id, page, start_offset, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			document_id  = EXCLUDED.document_id,
			page         = EXCLUDED.page,
			start_offset = EXCLUDED.start_offset,
			content      = EXCLUDED.content,
			embedding    = EXCLUDED.embedding`,
		chunk.ID, chunk.DocumentID, chunk.Page, chunk.StartOffset, chunk.Text, embedding)
	if err != nil {
		return fmt.Errorf("upserting chunk %q: %w", chunk.ID, err)
	}

	p.logger.Debug("upserted chunk", "id", chunk.ID, "document_id", chunk.DocumentID)
	return nil
}

// Query returns up to k chunks ranked by descending cosine similarity.
func (p *Postgres) Query(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) != p.dimension {
		return nil, fmt.Errorf("%w: index is configured for %d dimensions, query has %d",
			ErrDimensionMismatch, p.dimension, len(vector))
	}

	embedding := pgvector.NewVector(vector)
	rows, err := p.pool.Query(ctx, `
		SELECT id, document_id, page, start_offset, content,
		       1 - (embedding <=> $1) AS similarity
		FROM chunks
		ORDER BY embedding <=> $1, seq
		LIMIT $2`,
		embedding, k)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var similarity float64
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.DocumentID, &r.Chunk.Page,
			&r.Chunk.StartOffset, &r.Chunk.Text, &similarity); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		r.Similarity = float32(similarity)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunk rows: %w", err)
	}
	return results, nil
}

// DeleteDocument removes all chunks belonging to documentID. Used before
// re-ingesting a document so its old chunks never shadow the new ones.
// Deleting an unknown document is a no-op.
func (p *Postgres) DeleteDocument(ctx context.Context, documentID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("deleting chunks for document %q: %w", documentID, err)
	}
	p.logger.Debug("deleted document chunks", "document_id", documentID, "count", tag.RowsAffected())
	return nil
}

// Count returns the number of indexed chunks.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var count int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}
