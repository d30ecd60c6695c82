package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/infrawatch/ai-agent/internal/chunking"
	"github.com/infrawatch/ai-agent/internal/metrics"
	"github.com/infrawatch/ai-agent/internal/vectordb"
)

// Document is a unit of knowledge pulled from the monitoring backend.
// Documents are immutable once ingested; re-ingesting the same ID supersedes
// the previous entries.
type Document struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// DocumentError reports a per-document ingestion failure
type DocumentError struct {
	DocumentID string
	Err        error
}

func (e DocumentError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.DocumentID, e.Err)
}

func (e DocumentError) Unwrap() error { return e.Err }

// BatchEmbedder embeds a batch of texts in one provider round-trip
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Ingestor runs the chunk → embed → index pipeline
type Ingestor struct {
	chunker  *chunking.Chunker
	embedder BatchEmbedder
	store    vectordb.Store
	logger   *zap.Logger
}

func NewIngestor(chunker *chunking.Chunker, embedder BatchEmbedder, store vectordb.Store, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{chunker: chunker, embedder: embedder, store: store, logger: logger}
}

// Ingest chunks, embeds, and indexes one document. Existing entries for the
// document ID are removed first, so a repeat ingestion yields exactly one
// entry set.
func (i *Ingestor) Ingest(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("ingest: document ID must not be empty")
	}

	chunks := i.chunker.Split(doc.ID, doc.Text)
	if len(chunks) == 0 {
		// Nothing to index; still supersede any previous version
		if err := i.store.DeleteDocument(ctx, doc.ID); err != nil {
			return fmt.Errorf("ingest: delete previous entries: %w", err)
		}
		return nil
	}

	texts := make([]string, len(chunks))
	for idx, ch := range chunks {
		texts[idx] = ch.Text
	}
	vecs, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		metrics.DocumentsIngested.WithLabelValues("error").Inc()
		return fmt.Errorf("ingest: embed chunks: %w", err)
	}

	entries := make([]vectordb.Entry, len(chunks))
	for idx, ch := range chunks {
		entries[idx] = vectordb.Entry{
			ID:         ch.ID,
			DocumentID: doc.ID,
			Vector:     vecs[idx],
			Chunk:      ch,
			Metadata: map[string]string{
				"source":   doc.Source,
				"category": doc.Category,
			},
		}
	}

	if err := i.store.DeleteDocument(ctx, doc.ID); err != nil {
		metrics.DocumentsIngested.WithLabelValues("error").Inc()
		return fmt.Errorf("ingest: delete previous entries: %w", err)
	}
	if err := i.store.Upsert(ctx, entries); err != nil {
		metrics.DocumentsIngested.WithLabelValues("error").Inc()
		return fmt.Errorf("ingest: index entries: %w", err)
	}

	metrics.DocumentsIngested.WithLabelValues("ok").Inc()
	i.logger.Info("Ingested document",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// IngestBatch ingests documents independently: one document's failure never
// aborts the rest. Failures are collected and reported per document.
func (i *Ingestor) IngestBatch(ctx context.Context, docs []Document) []DocumentError {
	var failures []DocumentError
	for _, doc := range docs {
		if err := i.Ingest(ctx, doc); err != nil {
			i.logger.Warn("Document ingestion failed",
				zap.String("document_id", doc.ID),
				zap.Error(err),
			)
			failures = append(failures, DocumentError{DocumentID: doc.ID, Err: err})
		}
	}
	return failures
}
