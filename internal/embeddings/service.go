// Package embeddings adapts an external embedding provider to the retrieval
// core. The adapter is deliberately cache-free: memoization happens at the
// response-cache layer, keyed on full request fingerprints.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	ometrics "github.com/infrawatch/ai-agent/internal/metrics"
)

// ErrEmbedding wraps all provider-side embedding failures. Callers own the
// retry policy.
var ErrEmbedding = errors.New("embeddings: provider failure")

// Config controls the embedding adapter
type Config struct {
	// BaseURL points to the service providing /embeddings
	BaseURL string `mapstructure:"base_url"`
	// Model is the embedding model identifier sent to the provider
	Model string `mapstructure:"model"`
	// Dimension is the expected vector dimension; responses with any other
	// dimension are rejected. Fixed for the lifetime of an index.
	Dimension int `mapstructure:"dimension"`
	// Timeout for outbound HTTP calls
	Timeout time.Duration `mapstructure:"timeout"`
}

// Service generates embedding vectors via the configured provider
type Service struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

func NewService(cfg Config, logger *zap.Logger) *Service {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Dimension reports the configured vector dimension.
func (s *Service) Dimension() int { return s.cfg.Dimension }

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	ModelUsed  string      `json:"model_used"`
}

// Embed returns the vector for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds multiple texts in a single round-trip. The returned slice
// is positionally aligned with the input.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	url := fmt.Sprintf("%s/embeddings/", s.cfg.BaseURL)
	payload := embedRequest{Texts: texts, Model: s.cfg.Model}
	buf, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		ometrics.RecordEmbedding(s.cfg.Model, "error", time.Since(start).Seconds())
		s.logger.Warn("Embedding request failed",
			zap.String("model", s.cfg.Model),
			zap.Int("texts", len(texts)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		ometrics.RecordEmbedding(s.cfg.Model, "error", time.Since(start).Seconds())
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.logger.Warn("Embedding provider rejected request",
			zap.String("model", s.cfg.Model),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbedding, resp.StatusCode, string(body))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		ometrics.RecordEmbedding(s.cfg.Model, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: decode: %v", ErrEmbedding, err)
	}
	if len(er.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbedding, len(er.Embeddings), len(texts))
	}

	out := make([][]float32, len(er.Embeddings))
	for i, embedding := range er.Embeddings {
		if s.cfg.Dimension > 0 && len(embedding) != s.cfg.Dimension {
			return nil, fmt.Errorf("%w: dimension %d, expected %d", ErrEmbedding, len(embedding), s.cfg.Dimension)
		}
		vec := make([]float32, len(embedding))
		for j, f := range embedding {
			vec[j] = float32(f)
		}
		out[i] = vec
	}

	ometrics.RecordEmbedding(s.cfg.Model, "ok", time.Since(start).Seconds())
	return out, nil
}
