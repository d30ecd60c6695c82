package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL}, nil, nil)
}

func TestGenerateSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gemini-2.0-flash", req.Model)
		assert.Equal(t, 2048, req.MaxTokens)

		resp := completionResponse{Text: "node-7 disk usage is at 92%"}
		resp.Usage.TotalTokens = 42
		json.NewEncoder(w).Encode(resp)
	})

	completion, err := c.Generate(context.Background(), "prompt", DefaultGenerationConfig())
	require.NoError(t, err)
	assert.Equal(t, "node-7 disk usage is at 92%", completion.Text)
	assert.Equal(t, 42, completion.TokensUsed)
}

func TestGenerateClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"provider rate limit", http.StatusTooManyRequests, ErrProviderRateLimited},
		{"unauthorized", http.StatusUnauthorized, ErrAuth},
		{"forbidden", http.StatusForbidden, ErrAuth},
		{"bad request", http.StatusBadRequest, ErrInvalidRequest},
		{"payload too large", http.StatusRequestEntityTooLarge, ErrInvalidRequest},
		{"server error", http.StatusInternalServerError, ErrTransient},
		{"bad gateway", http.StatusBadGateway, ErrTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			_, err := c.Generate(context.Background(), "prompt", DefaultGenerationConfig())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestGenerateTransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on
	c := NewClient(Config{BaseURL: srv.URL}, nil, nil)

	_, err := c.Generate(context.Background(), "prompt", DefaultGenerationConfig())
	assert.ErrorIs(t, err, ErrTransient)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(ErrTransient))
	assert.True(t, Retryable(ErrProviderRateLimited))
	assert.False(t, Retryable(ErrInvalidRequest))
	assert.False(t, Retryable(ErrAuth))
}

func TestGenerationConfigValidate(t *testing.T) {
	require.NoError(t, DefaultGenerationConfig().Validate())

	bad := DefaultGenerationConfig()
	bad.Temperature = 3
	assert.Error(t, bad.Validate())

	bad = DefaultGenerationConfig()
	bad.TopP = 0
	assert.Error(t, bad.Validate())

	bad = DefaultGenerationConfig()
	bad.MaxTokens = 0
	assert.Error(t, bad.Validate())

	bad = DefaultGenerationConfig()
	bad.Model = ""
	assert.Error(t, bad.Validate())
}

func TestPacerProviderLimits(t *testing.T) {
	p := NewPacer("", nil)

	// Built-in limits mean a configured provider gets a finite limiter
	l := p.limiter("openai")
	assert.Equal(t, float64(30)/60.0, float64(l.Limit()))

	// Unknown providers are unpaced
	u := p.limiter("homegrown")
	assert.Equal(t, rate.Inf, u.Limit())
}

func TestPacerConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rate_limits:
  default_rpm: 120
  provider_overrides:
    openai:
      rpm: 6
`), 0o644))

	p := NewPacer(path, nil)
	assert.Equal(t, float64(6)/60.0, float64(p.limiter("openai").Limit()))
	assert.Equal(t, float64(120)/60.0, float64(p.limiter("homegrown").Limit()))
}

func TestPacerMalformedConfigFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limits: [not: a: map"), 0o644))

	core, logs := observer.New(zap.WarnLevel)
	p := NewPacer(path, zap.New(core))

	// Built-in limits still apply and the fallback is visible in the log
	assert.Equal(t, float64(20)/60.0, float64(p.limiter("anthropic").Limit()))
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "malformed")
}
