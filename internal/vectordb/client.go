package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/infrawatch/ai-agent/internal/chunking"
	ometrics "github.com/infrawatch/ai-agent/internal/metrics"
)

// HTTPConfig controls the external similarity-engine client
type HTTPConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// HTTPStore delegates Store operations to a Qdrant-compatible similarity
// engine over REST. Ordering and overwrite semantics are the engine's;
// delete-by-document is expressed as a payload filter.
type HTTPStore struct {
	cfg  HTTPConfig
	http *http.Client
	base string
	log  *zap.Logger
}

func NewHTTPStore(cfg HTTPConfig, logger *zap.Logger) *HTTPStore {
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Collection == "" {
		cfg.Collection = "infrawatch_knowledge"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPStore{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		base: fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		log:  logger,
	}
}

type enginePoint struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score,omitempty"`
	Vector  []float32              `json:"vector,omitempty"`
	Payload map[string]interface{} `json:"payload"`
}

type engineQueryRequest struct {
	Query       []float32 `json:"query"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type engineQueryResponse struct {
	Result struct {
		Points []enginePoint `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

func (s *HTTPStore) do(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("vectordb: engine status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// pointID maps a chunk ID onto the engine's ID space. Qdrant only accepts
// unsigned integers or UUIDs as point IDs, so the chunk ID is hashed into a
// name-based UUID: deterministic, so re-ingesting a document overwrites its
// points instead of duplicating them.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

// Upsert writes entries as a single engine batch.
func (s *HTTPStore) Upsert(ctx context.Context, entries []Entry) error {
	points := make([]enginePoint, 0, len(entries))
	for _, e := range entries {
		points = append(points, enginePoint{
			ID:     pointID(e.ID),
			Vector: e.Vector,
			Payload: map[string]interface{}{
				"chunk_id":    e.ID,
				"document_id": e.DocumentID,
				"chunk_index": e.Chunk.Index,
				"chunk_start": e.Chunk.Start,
				"text":        e.Chunk.Text,
			},
		})
	}
	url := fmt.Sprintf("%s/collections/%s/points", s.base, s.cfg.Collection)
	return s.do(ctx, http.MethodPut, url, map[string]interface{}{"points": points}, nil)
}

// Query runs a nearest-neighbor search against the engine.
func (s *HTTPStore) Query(ctx context.Context, vector []float32, k int) (Result, error) {
	start := time.Now()
	url := fmt.Sprintf("%s/collections/%s/points/query", s.base, s.cfg.Collection)
	var qr engineQueryResponse
	if err := s.do(ctx, http.MethodPost, url, engineQueryRequest{Query: vector, Limit: k, WithPayload: true}, &qr); err != nil {
		ometrics.RecordVectorSearch("error", time.Since(start).Seconds())
		return nil, err
	}

	out := make(Result, 0, len(qr.Result.Points))
	for _, p := range qr.Result.Points {
		chunk := chunking.Chunk{ID: p.ID}
		if v, ok := p.Payload["chunk_id"].(string); ok {
			chunk.ID = v
		}
		if v, ok := p.Payload["document_id"].(string); ok {
			chunk.DocumentID = v
		}
		if v, ok := p.Payload["text"].(string); ok {
			chunk.Text = v
		}
		if v, ok := p.Payload["chunk_index"].(float64); ok {
			chunk.Index = int(v)
		}
		if v, ok := p.Payload["chunk_start"].(float64); ok {
			chunk.Start = int(v)
		}
		out = append(out, ScoredChunk{Chunk: chunk, Score: p.Score})
	}
	ometrics.RecordVectorSearch("ok", time.Since(start).Seconds())
	return out, nil
}

// DeleteDocument removes all points whose payload references the document.
func (s *HTTPStore) DeleteDocument(ctx context.Context, documentID string) error {
	url := fmt.Sprintf("%s/collections/%s/points/delete", s.base, s.cfg.Collection)
	filter := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": "document_id", "match": map[string]interface{}{"value": documentID}},
			},
		},
	}
	return s.do(ctx, http.MethodPost, url, filter, nil)
}
