package agent

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/infrawatch/ai-agent/internal/llm"
)

// hashEmbedder is a deterministic bag-of-words embedder: texts sharing words
// land close in cosine space, which makes verbatim-query retrieval behave
// like a real embedding model.
type hashEmbedder struct {
	dim int

	mu     sync.Mutex
	calls  int
	failOn string // substring that triggers a failure
	err    error
}

func newHashEmbedder() *hashEmbedder { return &hashEmbedder{dim: 64} }

func (e *hashEmbedder) embedOne(text string) []float32 {
	v := make([]float32, e.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '%'
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(e.dim)]++
	}
	return v
}

func (e *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(context.Background(), []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *hashEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.failOn != "" && strings.Contains(t, e.failOn) {
			return nil, e.err
		}
		out[i] = e.embedOne(t)
	}
	return out, nil
}

// fakeGenerator scripts provider behavior: queued errors are returned first,
// then every call succeeds with the canned answer.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	errs    []error
	answer  string
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, promptText string, _ llm.GenerationConfig) (llm.Completion, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompts = append(g.prompts, promptText)
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return llm.Completion{}, err
	}
	return llm.Completion{Text: g.answer, TokensUsed: 10}, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}
