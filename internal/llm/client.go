// Package llm sends assembled prompts to the external language-model provider
// and classifies its failures for the orchestrator's retry policy.
package llm

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

// GenerationConfig enumerates the provider knobs, validated once at startup
type GenerationConfig struct {
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
}

// DefaultGenerationConfig mirrors the provider defaults the agent ships with
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Model:       "gemini-2.0-flash",
		MaxTokens:   2048,
		Temperature: 0.7,
		TopP:        0.9,
	}
}

// Validate rejects out-of-range generation knobs.
func (c GenerationConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("llm: model must be set")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("llm: max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("llm: temperature %.2f out of range [0,2]", c.Temperature)
	}
	if c.TopP <= 0 || c.TopP > 1 {
		return fmt.Errorf("llm: top_p %.2f out of range (0,1]", c.TopP)
	}
	return nil
}

// Completion is the provider's answer plus optional usage metadata
type Completion struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used,omitempty"`
	Model      string `json:"model,omitempty"`
}

// Config controls the generation client
type Config struct {
	// BaseURL points to the provider endpoint serving /completions
	BaseURL string `mapstructure:"base_url"`
	// APIKey is passed as a bearer token when set
	APIKey string `mapstructure:"api_key"`
	// Provider names the upstream for pacing limits (e.g. "google")
	Provider string `mapstructure:"provider"`
	// Timeout for outbound HTTP calls; a timeout classifies as transient
	Timeout time.Duration `mapstructure:"timeout"`
}

// Client calls the language-model provider
type Client struct {
	cfg    Config
	http   *http.Client
	pacer  *Pacer
	logger *zap.Logger
}

func NewClient(cfg Config, pacer *Pacer, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		pacer:  pacer,
		logger: logger,
	}
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type completionResponse struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate performs one provider call. Failures are classified; retries
// belong to the caller.
func (c *Client) Generate(ctx context.Context, prompt string, gen GenerationConfig) (Completion, error) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx, c.cfg.Provider); err != nil {
			return Completion{}, fmt.Errorf("%w: pacing aborted: %v", ErrTransient, err)
		}
	}

	start := time.Now()
	payload := completionRequest{
		Model:       gen.Model,
		Prompt:      prompt,
		MaxTokens:   gen.MaxTokens,
		Temperature: gen.Temperature,
		TopP:        gen.TopP,
	}
	buf, _ := json.Marshal(payload)

	url := fmt.Sprintf("%s/completions", c.cfg.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return Completion{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		ometrics.RecordGeneration(gen.Model, "error", time.Since(start).Seconds())
		if errors.Is(err, context.Canceled) {
			return Completion{}, err
		}
		// Transport errors and timeouts are transient
		return Completion{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		classified := classifyStatus(resp.StatusCode)
		ometrics.RecordGeneration(gen.Model, statusLabel(classified), time.Since(start).Seconds())
		c.logger.Warn("Provider call failed",
			zap.Int("status", resp.StatusCode),
			zap.String("model", gen.Model),
		)
		return Completion{}, fmt.Errorf("%w: status %d: %s", classified, resp.StatusCode, string(body))
	}

	var cr completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		ometrics.RecordGeneration(gen.Model, "error", time.Since(start).Seconds())
		return Completion{}, fmt.Errorf("%w: decode: %v", ErrTransient, err)
	}

	ometrics.RecordGeneration(gen.Model, "ok", time.Since(start).Seconds())
	if cr.Usage.TotalTokens > 0 {
		ometrics.GenerationTokensUsed.Observe(float64(cr.Usage.TotalTokens))
	}
	model := cr.Model
	if model == "" {
		model = gen.Model
	}
	return Completion{Text: cr.Text, TokensUsed: cr.Usage.TotalTokens, Model: model}, nil
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrProviderRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge:
		return ErrInvalidRequest
	case status >= 500:
		return ErrTransient
	default:
		return ErrTransient
	}
}

func statusLabel(err error) string {
	switch {
	case errors.Is(err, ErrProviderRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}
