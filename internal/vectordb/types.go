package vectordb

import (
	"context"
	"errors"

	"github.com/infrawatch/ai-agent/internal/chunking"
)

// ErrDimensionMismatch is returned when a vector's dimension differs from the
// dimension the index was established with. Mixing dimensions is a fatal
// configuration error.
var ErrDimensionMismatch = errors.New("vectordb: embedding dimension mismatch")

// Entry is one indexed (vector, chunk, metadata) tuple. ID is the chunk ID;
// upserting an existing ID overwrites the stored entry.
type Entry struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Vector     []float32         `json:"vector"`
	Chunk      chunking.Chunk    `json:"chunk"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ScoredChunk pairs a retrieved chunk with its similarity score
type ScoredChunk struct {
	Chunk chunking.Chunk `json:"chunk"`
	Score float64        `json:"score"`
}

// Result is an ordered retrieval result, highest score first, length <= k
type Result []ScoredChunk

// ChunkIDs returns the IDs of the retrieved chunks in result order.
func (r Result) ChunkIDs() []string {
	ids := make([]string, len(r))
	for i, sc := range r {
		ids[i] = sc.Chunk.ID
	}
	return ids
}

// Store is the vector index. Every structural mutation is atomic with respect
// to concurrent queries: a query never observes a half-applied batch.
type Store interface {
	Upsert(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, vector []float32, k int) (Result, error)
	DeleteDocument(ctx context.Context, documentID string) error
}
