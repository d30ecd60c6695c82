package llm

import "errors"

// Provider failure classification. Retryable kinds get bounded exponential
// backoff at the orchestration layer; the rest surface immediately.
var (
	// ErrProviderRateLimited means the provider throttled us (HTTP 429).
	// Retryable with backoff. Distinct from the local rate limiter.
	ErrProviderRateLimited = errors.New("llm: provider rate limited")

	// ErrTransient covers network failures, timeouts, and provider 5xx.
	// Retryable with backoff and a bounded attempt count.
	ErrTransient = errors.New("llm: transient provider failure")

	// ErrInvalidRequest means the prompt violates provider constraints
	// (HTTP 400/413). Non-retryable.
	ErrInvalidRequest = errors.New("llm: invalid request")

	// ErrAuth means credentials were rejected (HTTP 401/403). Non-retryable
	// and fatal until credentials are fixed.
	ErrAuth = errors.New("llm: authentication failure")
)

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrProviderRateLimited)
}
