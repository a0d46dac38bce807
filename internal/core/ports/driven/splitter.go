package driven

import "context"

// Splitter breaks long text into passages, each of which becomes its own
// document on ingestion.
type Splitter interface {
	// Name returns the splitter name for logging.
	Name() string

	// Split returns the passages of text in order. Empty text yields none.
	Split(ctx context.Context, text string) ([]string, error)
}
