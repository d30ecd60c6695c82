package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infrawatch/ai-agent/internal/chunking"
	"github.com/infrawatch/ai-agent/internal/embeddings"
	"github.com/infrawatch/ai-agent/internal/retriever"
	"github.com/infrawatch/ai-agent/internal/vectordb"
)

func newIngestorFixture(t *testing.T) (*Ingestor, *hashEmbedder, *vectordb.MemoryStore) {
	t.Helper()
	chunker, err := chunking.NewChunker(chunking.Config{ChunkSize: 200, ChunkOverlap: 40})
	require.NoError(t, err)
	embedder := newHashEmbedder()
	store := vectordb.NewMemoryStore(0, nil)
	return NewIngestor(chunker, embedder, store, nil), embedder, store
}

func doc(id, text string) Document {
	return Document{ID: id, Source: "test", Category: "infrastructure_data", Timestamp: time.Now(), Text: text}
}

func TestIngestThenRetrieveVerbatim(t *testing.T) {
	ing, embedder, store := newIngestorFixture(t)
	ctx := context.Background()

	require.NoError(t, ing.Ingest(ctx, doc("doc1", "Disk usage on node-7 reached 92% at 14:02")))
	require.NoError(t, ing.Ingest(ctx, doc("doc2", "Memory pressure on node-3 is nominal")))
	require.NoError(t, ing.Ingest(ctx, doc("doc3", "Network throughput on switch-1 dropped briefly")))

	ret := retriever.New(embedder, store, 3, nil)
	res, err := ret.Retrieve(ctx, "what is the disk usage on node-7?", 3)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "doc1", res[0].Chunk.DocumentID)
	assert.Contains(t, res[0].Chunk.Text, "92%")
}

func TestIngestIdempotent(t *testing.T) {
	ing, _, store := newIngestorFixture(t)
	ctx := context.Background()

	d := doc("doc1", "CPU load on node-1 averaged 40% over the last hour")
	require.NoError(t, ing.Ingest(ctx, d))
	first := store.Len()
	require.Greater(t, first, 0)

	require.NoError(t, ing.Ingest(ctx, d))
	assert.Equal(t, first, store.Len(), "re-ingestion must overwrite, not duplicate")
}

func TestReingestShrinksEntrySet(t *testing.T) {
	chunker, err := chunking.NewChunker(chunking.Config{ChunkSize: 20, ChunkOverlap: 4, Separators: []string{"\x00"}})
	require.NoError(t, err)
	embedder := newHashEmbedder()
	store := vectordb.NewMemoryStore(0, nil)
	ing := NewIngestor(chunker, embedder, store, nil)
	ctx := context.Background()

	long := "metric alpha beta gamma delta epsilon zeta eta theta iota"
	require.NoError(t, ing.Ingest(ctx, doc("doc1", long)))
	before := store.Len()
	require.Greater(t, before, 1)

	require.NoError(t, ing.Ingest(ctx, doc("doc1", "short")))
	assert.Equal(t, 1, store.Len(), "stale chunks from the longer version must be gone")
}

func TestIngestEmptyDocument(t *testing.T) {
	ing, _, store := newIngestorFixture(t)
	ctx := context.Background()

	require.NoError(t, ing.Ingest(ctx, doc("doc1", "some content here")))
	require.Greater(t, store.Len(), 0)

	// Re-ingesting the ID with empty text supersedes the old entries
	require.NoError(t, ing.Ingest(ctx, doc("doc1", "")))
	assert.Equal(t, 0, store.Len())
}

func TestIngestRejectsEmptyID(t *testing.T) {
	ing, _, _ := newIngestorFixture(t)
	assert.Error(t, ing.Ingest(context.Background(), doc("", "text")))
}

func TestIngestBatchCollectsFailures(t *testing.T) {
	ing, embedder, store := newIngestorFixture(t)
	embedder.failOn = "poison"
	embedder.err = errors.New("provider exploded")
	ctx := context.Background()

	failures := ing.IngestBatch(ctx, []Document{
		doc("good-1", "disk usage fine"),
		doc("bad-1", "poison pill document"),
		doc("good-2", "memory usage fine"),
	})

	require.Len(t, failures, 1)
	assert.Equal(t, "bad-1", failures[0].DocumentID)
	assert.ErrorContains(t, failures[0], "provider exploded")

	// The failing document must not abort the others
	assert.Equal(t, 2, store.Len())
}

func TestIngestEmbeddingErrorPropagates(t *testing.T) {
	chunker, err := chunking.NewChunker(chunking.Config{ChunkSize: 200, ChunkOverlap: 40})
	require.NoError(t, err)
	store := vectordb.NewMemoryStore(0, nil)
	// A real adapter against a dead endpoint yields a classified error
	embedder := embeddings.NewService(embeddings.Config{BaseURL: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond}, nil)
	ing := NewIngestor(chunker, embedder, store, nil)

	err = ing.Ingest(context.Background(), doc("doc1", "text"))
	assert.ErrorIs(t, err, embeddings.ErrEmbedding)
	assert.Equal(t, 0, store.Len())
}
