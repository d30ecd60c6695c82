package vectordb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	ometrics "github.com/infrawatch/ai-agent/internal/metrics"
)

// MemoryStore is an in-process vector index with cosine similarity. A single
// RWMutex guards the whole index so that a multi-entry upsert or a
// per-document delete is one atomic unit from the point of view of queries.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	dim     int
	seq     uint64
	logger  *zap.Logger
}

type memoryEntry struct {
	entry Entry
	norm  float64
	// seq preserves first-insertion order for deterministic tie-breaking;
	// overwrites keep the original position.
	seq uint64
}

// NewMemoryStore creates an empty index. dim > 0 pins the dimension up front;
// dim == 0 adopts the dimension of the first upserted vector.
func NewMemoryStore(dim int, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		dim:     dim,
		logger:  logger,
	}
}

// Upsert inserts or overwrites entries as one atomic batch.
func (s *MemoryStore) Upsert(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before mutating anything, including the
	// dimension adopted from the first vector of an empty index.
	dim := s.dim
	for _, e := range entries {
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: got %d, index dimension %d", ErrDimensionMismatch, len(e.Vector), dim)
		}
	}
	s.dim = dim

	for _, e := range entries {
		if existing, ok := s.entries[e.ID]; ok {
			existing.entry = e
			existing.norm = vectorNorm(e.Vector)
			continue
		}
		s.seq++
		s.entries[e.ID] = &memoryEntry{entry: e, norm: vectorNorm(e.Vector), seq: s.seq}
	}
	return nil
}

// Query returns at most k entries by descending cosine similarity. Ties break
// by insertion order, earlier wins. An empty index returns an empty result.
func (s *MemoryStore) Query(_ context.Context, vector []float32, k int) (Result, error) {
	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return Result{}, nil
	}
	if len(vector) != s.dim {
		ometrics.RecordVectorSearch("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", ErrDimensionMismatch, len(vector), s.dim)
	}
	if k <= 0 {
		return Result{}, nil
	}

	qnorm := vectorNorm(vector)
	type scored struct {
		e     *memoryEntry
		score float64
	}
	candidates := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		candidates = append(candidates, scored{e: e, score: cosine(vector, qnorm, e.entry.Vector, e.norm)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].e.seq < candidates[j].e.seq
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make(Result, 0, k)
	for _, c := range candidates[:k] {
		out = append(out, ScoredChunk{Chunk: c.e.entry.Chunk, Score: c.score})
	}
	ometrics.RecordVectorSearch("ok", time.Since(start).Seconds())
	return out, nil
}

// DeleteDocument removes every entry whose chunk references the document.
func (s *MemoryStore) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if e.entry.DocumentID == documentID {
			delete(s.entries, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("Deleted document entries",
			zap.String("document_id", documentID),
			zap.Int("removed", removed),
		)
	}
	return nil
}

// Len reports the number of indexed entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, anorm float64, b []float32, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (anorm * bnorm)
}
