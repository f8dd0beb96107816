package indexer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunker splits text into token windows with overlap. Windows that end
// mid-sentence are snapped back to the previous sentence boundary when one
// falls inside the final portion of the window.
type Chunker struct {
	encoding *tiktoken.Tiktoken
	size     int
	overlap  int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}

	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load token encoding: %w", err)
	}

	return &Chunker{
		encoding: encoding,
		size:     size,
		overlap:  overlap,
	}, nil
}

// Split returns overlapping token windows of the input. Empty and
// whitespace-only windows are dropped.
func (c *Chunker) Split(text string) []string {
	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) <= c.size {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	var out []string
	step := c.size - c.overlap

	for start := 0; start < len(tokens); start += step {
		end := start + c.size
		last := end >= len(tokens)
		if last {
			end = len(tokens)
		}

		piece := c.encoding.Decode(tokens[start:end])
		if !last {
			piece = snapToSentence(piece)
		}

		piece = strings.TrimSpace(piece)
		if piece != "" {
			out = append(out, piece)
		}

		if last {
			break
		}
	}

	return out
}

// CountTokens reports the token length of text under the chunker's encoding.
func (c *Chunker) CountTokens(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// snapToSentence trims a window back to its last sentence terminator, but
// only when the terminator sits within the final 15% of the window. Earlier
// terminators would discard too much content to be worth the cleaner edge.
func snapToSentence(piece string) string {
	cutoff := len(piece) * 85 / 100
	best := -1
	for _, term := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if idx := strings.LastIndex(piece, term); idx > best {
			best = idx
		}
	}
	if best >= cutoff {
		return piece[:best+1]
	}
	return piece
}
