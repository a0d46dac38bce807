package driving

import (
	"context"

	"github.com/custodia-labs/jam/internal/core/domain"
)

// IngestService turns raw input into documents and writes them to the store.
type IngestService interface {
	// IngestRecords builds one document per record (splitting when
	// configured) using opts.FieldMap to rename keys.
	IngestRecords(ctx context.Context, records []map[string]any, opts domain.IngestOptions) (domain.IngestResult, error)

	// IngestTexts builds one document per text carrying opts.Meta.
	IngestTexts(ctx context.Context, texts []string, opts domain.IngestOptions) (domain.IngestResult, error)

	// IngestFile reads, normalises and ingests a single file. JSON Lines
	// files are treated as record streams.
	IngestFile(ctx context.Context, path string, opts domain.IngestOptions) (domain.IngestResult, error)
}
