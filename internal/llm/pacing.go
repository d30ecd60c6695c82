package llm

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// pacingConfig mirrors the rate_limits block of models.yaml
type pacingConfig struct {
	RateLimits struct {
		DefaultRPM        int `yaml:"default_rpm"`
		ProviderOverrides map[string]struct {
			RPM int `yaml:"rpm"`
		} `yaml:"provider_overrides"`
	} `yaml:"rate_limits"`
}

var builtInProviderRPM = map[string]int{
	"openai":    30,
	"anthropic": 20,
	"google":    40,
	"mistral":   50,
}

// Pacer spaces outbound provider requests so the agent stays under published
// requests-per-minute limits. This is client-side pacing, separate from both
// the local per-caller limiter and provider-side 429 handling.
type Pacer struct {
	mu       sync.Mutex
	cfg      pacingConfig
	limiters map[string]*rate.Limiter
}

// NewPacer loads provider limits from the given models.yaml path. A missing,
// unreadable, or malformed file falls back to built-in limits; the fallback
// is logged so a broken config does not pass silently.
func NewPacer(path string, logger *zap.Logger) *Pacer {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pacer{limiters: make(map[string]*rate.Limiter)}
	if path == "" {
		return p
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Pacing config unreadable, using built-in limits",
			zap.String("path", path),
			zap.Error(err),
		)
		return p
	}
	if err := yaml.Unmarshal(data, &p.cfg); err != nil {
		logger.Warn("Pacing config malformed, using built-in limits",
			zap.String("path", path),
			zap.Error(err),
		)
		p.cfg = pacingConfig{}
	}
	return p
}

// Wait blocks until the provider's limiter admits one request or the context
// is cancelled.
func (p *Pacer) Wait(ctx context.Context, provider string) error {
	return p.limiter(provider).Wait(ctx)
}

func (p *Pacer) limiter(provider string) *rate.Limiter {
	name := strings.ToLower(strings.TrimSpace(provider))
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[name]; ok {
		return l
	}
	rpm := p.rpmFor(name)
	var l *rate.Limiter
	if rpm <= 0 {
		l = rate.NewLimiter(rate.Inf, 1)
	} else {
		l = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
	}
	p.limiters[name] = l
	return l
}

func (p *Pacer) rpmFor(provider string) int {
	if override, ok := p.cfg.RateLimits.ProviderOverrides[provider]; ok && override.RPM > 0 {
		return override.RPM
	}
	if p.cfg.RateLimits.DefaultRPM > 0 {
		return p.cfg.RateLimits.DefaultRPM
	}
	if rpm, ok := builtInProviderRPM[provider]; ok {
		return rpm
	}
	return 0
}
