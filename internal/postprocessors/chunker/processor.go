// Package chunker provides a fixed-size text splitter.
package chunker

import (
	"context"

	"github.com/custodia-labs/jam/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.Splitter = (*Processor)(nil)

// DefaultChunkSize is the default number of characters per passage.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Processor splits text into fixed-size passages measured in runes.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the passage size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between passages in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Split cuts text into passages of at most chunkSize runes. Adjacent
// passages share overlap runes. Multi-byte characters are never cut.
func (p *Processor) Split(ctx context.Context, text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	step := p.chunkSize - p.overlap
	passages := make([]string, 0, len(runes)/step+1)

	for start := 0; start < len(runes); start += step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+p.chunkSize, len(runes))
		passages = append(passages, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return passages, nil
}
