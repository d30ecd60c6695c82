// Package agent is the top-level entry point of the RAG core: it coordinates
// retrieval, prompt assembly, caching, rate limiting, and generation, and
// owns per-session conversational state.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/infrawatch/ai-agent/internal/llm"
	"github.com/infrawatch/ai-agent/internal/metrics"
	"github.com/infrawatch/ai-agent/internal/prompt"
	"github.com/infrawatch/ai-agent/internal/ratelimit"
	"github.com/infrawatch/ai-agent/internal/respcache"
	"github.com/infrawatch/ai-agent/internal/retriever"
	"github.com/infrawatch/ai-agent/internal/session"
	"github.com/infrawatch/ai-agent/internal/vectordb"
)

// UnavailableAnswer is returned after retryable provider failures exhaust
// their attempt budget.
const UnavailableAnswer = "The assistant is temporarily unavailable. Please try again in a moment."

// ThrottledAnswer is returned on local rate-limit denials.
const ThrottledAnswer = "You have sent too many requests. Please wait a moment before asking again."

// Generator is the language-model call the orchestrator drives
type Generator interface {
	Generate(ctx context.Context, promptText string, cfg llm.GenerationConfig) (llm.Completion, error)
}

// Source identifies a document that grounded an answer
type Source struct {
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
}

// ChatResult is the orchestrator's answer to one chat request
type ChatResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources,omitempty"`
	Cached  bool     `json:"cached,omitempty"`
}

// Config controls orchestration behavior
type Config struct {
	TopK        int           `mapstructure:"top_k"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// Orchestrator serializes requests per session and runs the
// retrieve → assemble → cache → rate-limit → generate pipeline
type Orchestrator struct {
	retriever *retriever.Retriever
	assembler *prompt.Assembler
	cache     respcache.Cache
	limiter   ratelimit.Limiter
	generator Generator
	sessions  *session.Manager
	genCfg    llm.GenerationConfig
	cfg       Config
	logger    *zap.Logger

	mu           sync.Mutex
	sessionLocks map[string]*sync.Mutex
	inflight     map[string]*inflightCall
}

// inflightCall dedupes concurrent generations with the same fingerprint:
// followers wait for the leader's result instead of calling the provider.
type inflightCall struct {
	done       chan struct{}
	completion llm.Completion
	err        error
}

func NewOrchestrator(
	retriever *retriever.Retriever,
	assembler *prompt.Assembler,
	cache respcache.Cache,
	limiter ratelimit.Limiter,
	generator Generator,
	sessions *session.Manager,
	genCfg llm.GenerationConfig,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		retriever:    retriever,
		assembler:    assembler,
		cache:        cache,
		limiter:      limiter,
		generator:    generator,
		sessions:     sessions,
		genCfg:       genCfg,
		cfg:          cfg,
		logger:       logger,
		sessionLocks: make(map[string]*sync.Mutex),
		inflight:     make(map[string]*inflightCall),
	}
}

// HandleChat processes one chat turn. Requests within a session run strictly
// one at a time; distinct sessions proceed independently.
func (o *Orchestrator) HandleChat(ctx context.Context, sessionID, message string) (ChatResult, error) {
	lock := o.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := o.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return ChatResult{}, fmt.Errorf("session: %w", err)
	}

	result, err := o.retrieveWithRetry(ctx, message)
	if err != nil {
		metrics.ChatRequests.WithLabelValues("retrieval_error").Inc()
		return ChatResult{Answer: UnavailableAnswer}, err
	}

	p, err := o.assembler.Assemble(message, result, sess.History)
	if err != nil {
		// Only ErrPromptTooLarge: a configuration fault, operator-actionable
		o.logger.Error("Prompt assembly failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		metrics.ChatRequests.WithLabelValues("prompt_error").Inc()
		return ChatResult{}, err
	}

	fp := respcache.Fingerprint(message, p.ChunkIDs, sess.RecentHistory(p.Turns))

	if completion, ok := o.cache.Get(ctx, fp); ok {
		if err := o.appendTurns(ctx, sessionID, message, completion.Text); err != nil {
			return ChatResult{}, err
		}
		metrics.ChatRequests.WithLabelValues("cache_hit").Inc()
		return ChatResult{Answer: completion.Text, Sources: sources(result), Cached: true}, nil
	}

	allowed, err := o.limiter.Allow(ctx, sessionID)
	if err != nil {
		return ChatResult{}, fmt.Errorf("rate limiter: %w", err)
	}
	if !allowed {
		o.logger.Warn("Rate limit exceeded", zap.String("session_id", sessionID))
		metrics.ChatRequests.WithLabelValues("rate_limited").Inc()
		return ChatResult{Answer: ThrottledAnswer}, ratelimit.ErrRateLimited
	}

	completion, err := o.generateDeduped(ctx, fp, p.Text)
	if err != nil {
		// Failed turns are not recorded in history
		metrics.ChatRequests.WithLabelValues("generation_error").Inc()
		if llm.Retryable(err) {
			return ChatResult{Answer: UnavailableAnswer}, err
		}
		o.logger.Error("Generation failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return ChatResult{}, err
	}

	o.cache.Put(ctx, fp, completion)
	if err := o.appendTurns(ctx, sessionID, message, completion.Text); err != nil {
		return ChatResult{}, err
	}

	metrics.ChatRequests.WithLabelValues("ok").Inc()
	return ChatResult{Answer: completion.Text, Sources: sources(result)}, nil
}

func (o *Orchestrator) appendTurns(ctx context.Context, sessionID, userMsg, answer string) error {
	now := time.Now()
	return o.sessions.AppendTurns(ctx, sessionID,
		session.Message{Role: "user", Content: userMsg, Timestamp: now},
		session.Message{Role: "assistant", Content: answer, Timestamp: now},
	)
}

// retrieveWithRetry retries embedding/index failures with the same bounded
// backoff policy as generation.
func (o *Orchestrator) retrieveWithRetry(ctx context.Context, query string) (vectordb.Result, error) {
	var lastErr error
	backoff := o.cfg.BackoffBase
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		result, err := o.retriever.Retrieve(ctx, query, o.cfg.TopK)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt < o.cfg.MaxAttempts {
			if sleepErr := sleepCtx(ctx, backoff); sleepErr != nil {
				return nil, sleepErr
			}
			backoff *= 2
		}
	}
	return nil, lastErr
}

// generateDeduped guarantees at most one provider call per fingerprint at a
// time; concurrent equivalent requests join the in-flight call.
func (o *Orchestrator) generateDeduped(ctx context.Context, fp, promptText string) (llm.Completion, error) {
	o.mu.Lock()
	if call, ok := o.inflight[fp]; ok {
		o.mu.Unlock()
		select {
		case <-call.done:
			return call.completion, call.err
		case <-ctx.Done():
			return llm.Completion{}, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	o.inflight[fp] = call
	o.mu.Unlock()

	call.completion, call.err = o.generateWithRetry(ctx, promptText)
	close(call.done)

	o.mu.Lock()
	delete(o.inflight, fp)
	o.mu.Unlock()
	return call.completion, call.err
}

func (o *Orchestrator) generateWithRetry(ctx context.Context, promptText string) (llm.Completion, error) {
	var lastErr error
	backoff := o.cfg.BackoffBase
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		completion, err := o.generator.Generate(ctx, promptText, o.genCfg)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		if !llm.Retryable(err) {
			return llm.Completion{}, err
		}
		o.logger.Warn("Generation attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < o.cfg.MaxAttempts {
			if sleepErr := sleepCtx(ctx, backoff); sleepErr != nil {
				return llm.Completion{}, sleepErr
			}
			backoff *= 2
		}
	}
	return llm.Completion{}, lastErr
}

func (o *Orchestrator) lockFor(sessionID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.sessionLocks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		o.sessionLocks[sessionID] = lock
	}
	return lock
}

func sources(result vectordb.Result) []Source {
	seen := make(map[string]bool, len(result))
	out := make([]Source, 0, len(result))
	for _, sc := range result {
		if seen[sc.Chunk.DocumentID] {
			continue
		}
		seen[sc.Chunk.DocumentID] = true
		out = append(out, Source{DocumentID: sc.Chunk.DocumentID, Score: sc.Score})
	}
	return out
}

// IsThrottled reports whether err is the local rate-limit rejection.
func IsThrottled(err error) bool {
	return errors.Is(err, ratelimit.ErrRateLimited)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
