package driven

import (
	"context"

	"github.com/custodia-labs/jam/internal/core/domain"
)

// Normaliser extracts plain text from raw file content.
// Each normaliser handles specific MIME types (e.g., Markdown, HTML).
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	// "*/*" marks a fallback normaliser.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Specific MIME normalisers should return 50-89.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Normalise extracts the text of a raw document.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.NormalisedText, error)
}
