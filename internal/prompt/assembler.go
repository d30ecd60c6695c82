// Package prompt assembles generation requests from system instructions,
// retrieved context, conversation history, and the current query. Assembly is
// deterministic: the same inputs always produce the same prompt text, and
// truncation removes whole chunks or turns, never partial content.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/infrawatch/ai-agent/internal/session"
	"github.com/infrawatch/ai-agent/internal/vectordb"
)

// ErrPromptTooLarge is returned when the mandatory system instructions plus
// the current query alone exceed the hard ceiling. This is a configuration
// fault, not a per-request condition.
var ErrPromptTooLarge = errors.New("prompt: system instructions and query exceed hard ceiling")

// DefaultSystemInstructions frame the agent as an infrastructure telemetry
// analyst grounded in retrieved monitoring data.
const DefaultSystemInstructions = `You are an infrastructure monitoring assistant. You analyze server metrics,
SNMP telemetry, and alert history for systems administrators. Ground every
answer in the retrieved context when it is present, cite concrete numbers,
and state clearly when the knowledge base has no relevant data.`

// Config controls prompt assembly
type Config struct {
	// SystemInstructions is the mandatory preamble
	SystemInstructions string `mapstructure:"system_instructions"`
	// MaxContextChars bounds the serialized retrieved-context section, in runes
	MaxContextChars int `mapstructure:"max_context_chars"`
	// HistoryWindow is the number of trailing conversation turns included
	HistoryWindow int `mapstructure:"history_window"`
	// MaxPromptChars is the hard ceiling for the whole prompt, in runes
	MaxPromptChars int `mapstructure:"max_prompt_chars"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		SystemInstructions: DefaultSystemInstructions,
		MaxContextChars:    1500,
		HistoryWindow:      5,
		MaxPromptChars:     16000,
	}
}

// Prompt is an assembled generation request
type Prompt struct {
	Text string
	// ChunkIDs are the IDs of the chunks that survived the context budget,
	// in serialization order
	ChunkIDs []string
	// Turns is the number of history turns included
	Turns int
}

// Assembler builds prompts under fixed ordering and budget rules
type Assembler struct {
	cfg Config
}

func NewAssembler(cfg Config) *Assembler {
	if cfg.SystemInstructions == "" {
		cfg.SystemInstructions = DefaultSystemInstructions
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 1500
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 5
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = 16000
	}
	return &Assembler{cfg: cfg}
}

// Assemble concatenates, in fixed order: system instructions, retrieved
// chunks (highest similarity first, whole chunks dropped lowest-similarity
// first once over budget), the trailing history window, and the query.
func (a *Assembler) Assemble(query string, result vectordb.Result, history []session.Message) (Prompt, error) {
	mandatory := runeLen(a.cfg.SystemInstructions) + runeLen(querySection(query))
	if mandatory > a.cfg.MaxPromptChars {
		return Prompt{}, fmt.Errorf("%w: %d runes, ceiling %d", ErrPromptTooLarge, mandatory, a.cfg.MaxPromptChars)
	}

	turns := history
	if len(turns) > a.cfg.HistoryWindow {
		turns = turns[len(turns)-a.cfg.HistoryWindow:]
	}

	// Results arrive highest score first; keep that order and trim from the
	// tail (lowest similarity) until the context section fits its budget,
	// then keep trimming chunks and oldest turns until the whole prompt fits.
	kept := append(vectordb.Result{}, result...)
	for {
		ctxSection := contextSection(kept)
		for runeLen(ctxSection) > a.cfg.MaxContextChars && len(kept) > 0 {
			kept = kept[:len(kept)-1]
			ctxSection = contextSection(kept)
		}

		text := a.render(query, ctxSection, turns)
		if runeLen(text) <= a.cfg.MaxPromptChars {
			return Prompt{Text: text, ChunkIDs: chunkIDs(kept), Turns: len(turns)}, nil
		}
		if len(kept) > 0 {
			kept = kept[:len(kept)-1]
			continue
		}
		if len(turns) > 0 {
			turns = turns[1:]
			continue
		}
		// Nothing left to trim but mandatory content fits; render bare.
		return Prompt{Text: a.render(query, "", nil)}, nil
	}
}

func (a *Assembler) render(query, ctxSection string, turns []session.Message) string {
	var sb strings.Builder
	sb.WriteString(a.cfg.SystemInstructions)
	sb.WriteString("\n")
	if ctxSection != "" {
		sb.WriteString("\nRETRIEVED CONTEXT:\n")
		sb.WriteString(ctxSection)
	}
	if len(turns) > 0 {
		sb.WriteString("\nCONVERSATION:\n")
		for _, m := range turns {
			sb.WriteString(m.Role)
			sb.WriteString(": ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
	}
	sb.WriteString(querySection(query))
	return sb.String()
}

func contextSection(result vectordb.Result) string {
	if len(result) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, sc := range result {
		sb.WriteString(fmt.Sprintf("[source: %s#%d]\n", sc.Chunk.DocumentID, sc.Chunk.Index))
		sb.WriteString(sc.Chunk.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

func querySection(query string) string {
	return "\nUSER QUERY:\n" + query + "\n"
}

func chunkIDs(result vectordb.Result) []string {
	ids := make([]string, len(result))
	for i, sc := range result {
		ids[i] = sc.Chunk.ID
	}
	return ids
}

func runeLen(s string) int { return len([]rune(s)) }
