package vectordb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infrawatch/ai-agent/internal/chunking"
)

func entry(id, docID string, vec []float32) Entry {
	return Entry{
		ID:         id,
		DocumentID: docID,
		Vector:     vec,
		Chunk:      chunking.Chunk{ID: id, DocumentID: docID, Text: "chunk " + id},
	}
}

func TestMemoryStoreQueryOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, nil)

	require.NoError(t, s.Upsert(ctx, []Entry{
		entry("a", "doc1", []float32{1, 0, 0}),
		entry("b", "doc1", []float32{0.9, 0.1, 0}),
		entry("c", "doc2", []float32{0, 1, 0}),
	}))

	res, err := s.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].Chunk.ID)
	assert.Equal(t, "b", res[1].Chunk.ID)
	assert.Greater(t, res[0].Score, res[1].Score)
}

func TestMemoryStoreTieBreakByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, nil)

	// Identical vectors score identically; the earlier insertion must win.
	require.NoError(t, s.Upsert(ctx, []Entry{entry("first", "doc1", []float32{1, 1})}))
	require.NoError(t, s.Upsert(ctx, []Entry{entry("second", "doc2", []float32{1, 1})}))

	res, err := s.Query(ctx, []float32{1, 1}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "first", res[0].Chunk.ID)
	assert.Equal(t, "second", res[1].Chunk.ID)
}

func TestMemoryStoreUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, nil)

	require.NoError(t, s.Upsert(ctx, []Entry{entry("a", "doc1", []float32{1, 0})}))
	require.NoError(t, s.Upsert(ctx, []Entry{entry("a", "doc1", []float32{0, 1})}))
	assert.Equal(t, 1, s.Len())

	res, err := s.Query(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
}

func TestMemoryStoreDeleteDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, nil)

	require.NoError(t, s.Upsert(ctx, []Entry{
		entry("a1", "doc1", []float32{1, 0}),
		entry("a2", "doc1", []float32{0.5, 0.5}),
		entry("b1", "doc2", []float32{0, 1}),
	}))

	require.NoError(t, s.DeleteDocument(ctx, "doc1"))
	assert.Equal(t, 1, s.Len())

	res, err := s.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b1", res[0].Chunk.ID)
}

func TestMemoryStoreDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3, nil)

	err := s.Upsert(ctx, []Entry{entry("a", "doc1", []float32{1, 0})})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	require.NoError(t, s.Upsert(ctx, []Entry{entry("a", "doc1", []float32{1, 0, 0})}))
	_, err = s.Query(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryStoreEmptyIndex(t *testing.T) {
	s := NewMemoryStore(0, nil)
	res, err := s.Query(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestMemoryStoreBatchValidationIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2, nil)

	// One bad vector rejects the whole batch; nothing is applied.
	err := s.Upsert(ctx, []Entry{
		entry("good", "doc1", []float32{1, 0}),
		entry("bad", "doc1", []float32{1, 0, 0}),
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreRejectedBatchDoesNotPinDimension(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, nil)

	// A mixed-dimension batch on a fresh index fails outright
	err := s.Upsert(ctx, []Entry{
		entry("a", "doc1", []float32{1, 0}),
		entry("b", "doc1", []float32{1, 0, 0}),
	})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	// and must not have adopted the rejected batch's dimension
	require.NoError(t, s.Upsert(ctx, []Entry{
		entry("c", "doc2", []float32{1, 0, 0}),
	}))
	res, err := s.Query(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "c", res[0].Chunk.ID)
}
