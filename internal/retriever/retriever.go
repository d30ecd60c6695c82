// Package retriever is the only sanctioned read path into the vector index:
// it embeds a query once, runs the nearest-neighbor search, and returns the
// result unchanged.
package retriever

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/infrawatch/ai-agent/internal/vectordb"
)

// Embedder turns a query into its vector representation
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever answers "given a query, return the top-k most relevant chunks"
type Retriever struct {
	embedder Embedder
	store    vectordb.Store
	topK     int
	logger   *zap.Logger
}

func New(embedder Embedder, store vectordb.Store, topK int, logger *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, store: store, topK: topK, logger: logger}
}

// Retrieve returns at most k chunks by descending similarity. An empty index
// yields an empty result and generation proceeds without retrieved context.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (vectordb.Result, error) {
	if k <= 0 {
		k = r.topK
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed query: %w", err)
	}

	res, err := r.store.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("retriever: index query: %w", err)
	}

	r.logger.Debug("Retrieved context",
		zap.Int("requested", k),
		zap.Int("returned", len(res)),
	)
	return res, nil
}
