package chunking

import (
	"errors"
	"fmt"
)

// ErrOverlapTooLarge is returned when chunk overlap is not smaller than chunk size.
var ErrOverlapTooLarge = errors.New("chunking: overlap must be smaller than chunk size")

// Chunk is a contiguous segment of a source document. Offsets and sizes are
// measured in runes so that re-concatenating the non-overlapping prefixes of
// successive chunks reproduces the source text exactly.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
	Start      int    `json:"start"`
	Text       string `json:"text"`
}

// Config controls chunking behavior
type Config struct {
	ChunkSize    int      `mapstructure:"chunk_size"`
	ChunkOverlap int      `mapstructure:"chunk_overlap"`
	Separators   []string `mapstructure:"separators"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		ChunkSize:    800,
		ChunkOverlap: 100,
		Separators:   []string{"\n\n", "\n", ". ", " "},
	}
}

// Chunker splits raw text into overlapping chunks with separator-aware boundaries
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

// NewChunker validates the configuration and returns a chunker.
// overlap >= size is a fatal configuration error.
func NewChunker(cfg Config) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrOverlapTooLarge, cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("%w: overlap %d, size %d", ErrOverlapTooLarge, cfg.ChunkOverlap, cfg.ChunkSize)
	}
	seps := cfg.Separators
	if len(seps) == 0 {
		seps = DefaultConfig().Separators
	}
	return &Chunker{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap, separators: seps}, nil
}

// Split cuts text into chunks of at most the configured size, consecutive
// chunks sharing exactly the configured overlap. Empty input yields an empty
// slice, not an error.
func (c *Chunker) Split(docID, text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return []Chunk{}
	}

	chunks := []Chunk{}
	start := 0
	for {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.cutPoint(runes, start, end)
		}

		// Deterministic IDs: re-splitting the same document yields the same
		// chunk identities, so re-ingestion overwrites instead of duplicating.
		chunks = append(chunks, Chunk{
			ID:         fmt.Sprintf("%s:%d", docID, len(chunks)),
			DocumentID: docID,
			Index:      len(chunks),
			Start:      start,
			Text:       string(runes[start:end]),
		})

		if end == len(runes) {
			break
		}
		start = end - c.overlap
	}
	return chunks
}

// cutPoint moves a provisional chunk end backwards to the nearest separator
// boundary when one exists late enough in the window. The adjusted end always
// stays past start+overlap so the loop advances.
func (c *Chunker) cutPoint(runes []rune, start, end int) int {
	floor := start + c.overlap + 1
	window := string(runes[start:end])
	for _, sep := range c.separators {
		if idx := lastIndexRunes(window, sep); idx >= 0 {
			cut := start + idx + len([]rune(sep))
			if cut >= floor && cut < end {
				return cut
			}
		}
	}
	return end
}

// lastIndexRunes returns the rune index of the last occurrence of sep in s
func lastIndexRunes(s, sep string) int {
	sr := []rune(s)
	pr := []rune(sep)
	if len(pr) == 0 || len(pr) > len(sr) {
		return -1
	}
	for i := len(sr) - len(pr); i >= 0; i-- {
		match := true
		for j := range pr {
			if sr[i+j] != pr[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Overlap reports the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }
