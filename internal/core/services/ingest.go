package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driven"
	"github.com/custodia-labs/jam/internal/core/ports/driving"
	"github.com/custodia-labs/jam/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// Meta keys set on ingested documents.
const (
	MetaSplitID  = "_split_id"
	MetaName     = "name"
	MetaURI      = "uri"
	MetaMIMEType = "mime_type"
)

// MIMETypeJSONLines marks files holding one JSON record per line.
const MIMETypeJSONLines = "application/jsonl"

// embedBatchSize bounds the texts per EmbedBatch request.
const embedBatchSize = 32

// embedConcurrency bounds the EmbedBatch requests in flight.
const embedConcurrency = 4

// SplitterFactory builds a splitter for a passage length and overlap.
type SplitterFactory func(length, overlap int) (driven.Splitter, error)

// extensionTypes covers extensions the mime package does not know everywhere.
var extensionTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".text":     "text/plain",
	".htm":      "text/html",
	".html":     "text/html",
	".jsonl":    MIMETypeJSONLines,
	".ndjson":   MIMETypeJSONLines,
}

// IngestService turns records, texts and files into documents and writes
// them through the document store.
type IngestService struct {
	store       driving.DocumentStore
	normalisers driven.NormaliserRegistry
	embedder    driven.EmbeddingService
	newSplitter SplitterFactory
}

// NewIngestService creates an ingest service. normalisers is required for
// IngestFile; embedder is optional and needed only when Embed is set;
// newSplitter is needed only when SplitLength is set.
func NewIngestService(
	store driving.DocumentStore,
	normalisers driven.NormaliserRegistry,
	embedder driven.EmbeddingService,
	newSplitter SplitterFactory,
) *IngestService {
	return &IngestService{
		store:       store,
		normalisers: normalisers,
		embedder:    embedder,
		newSplitter: newSplitter,
	}
}

// IngestRecords builds one document per record and writes them.
// opts.Meta supplies defaults that record keys override.
func (s *IngestService) IngestRecords(
	ctx context.Context, records []map[string]any, opts domain.IngestOptions,
) (domain.IngestResult, error) {
	docs := make([]domain.Document, 0, len(records))
	for i, record := range records {
		doc, err := domain.FromDict(record, opts.FieldMap,
			append(idOptions(opts), domain.WithDefaultMeta(opts.Meta))...)
		if err != nil {
			return domain.IngestResult{}, fmt.Errorf("record %d: %w", i, err)
		}
		docs = append(docs, doc)
	}
	return s.ingest(ctx, docs, opts)
}

// IngestTexts builds one document per text carrying opts.Meta.
func (s *IngestService) IngestTexts(
	ctx context.Context, texts []string, opts domain.IngestOptions,
) (domain.IngestResult, error) {
	docs := make([]domain.Document, 0, len(texts))
	for i, text := range texts {
		doc, err := domain.NewDocument(text, append(idOptions(opts), domain.WithMeta(opts.Meta))...)
		if err != nil {
			return domain.IngestResult{}, fmt.Errorf("text %d: %w", i, err)
		}
		docs = append(docs, doc)
	}
	return s.ingest(ctx, docs, opts)
}

// IngestFile reads path and ingests its content. JSON Lines files are
// ingested as records; anything else goes through the normaliser registry.
// Every document carries the file name, URI and MIME type in its meta.
func (s *IngestService) IngestFile(
	ctx context.Context, path string, opts domain.IngestOptions,
) (domain.IngestResult, error) {
	logger.Section("Ingest File")
	logger.Debug("Path: %s", path)

	content, err := os.ReadFile(path)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("read %s: %w", path, err)
	}
	mimeType := DetectMIMEType(path, content)
	logger.Debug("MIME type: %s, size: %d bytes", mimeType, len(content))

	uri, err := filepath.Abs(path)
	if err != nil {
		uri = path
	}
	fileMeta := map[string]any{
		MetaName:     filepath.Base(path),
		MetaURI:      uri,
		MetaMIMEType: mimeType,
	}

	if mimeType == MIMETypeJSONLines {
		records, err := ParseJSONLines(bytes.NewReader(content))
		if err != nil {
			return domain.IngestResult{}, fmt.Errorf("parse %s: %w", path, err)
		}
		opts.Meta = mergeMeta(opts.Meta, fileMeta)
		return s.IngestRecords(ctx, records, opts)
	}

	if s.normalisers == nil {
		return domain.IngestResult{}, fmt.Errorf("%w: no normalisers configured", domain.ErrUnsupportedType)
	}
	normalised, err := s.normalisers.Normalise(ctx, &domain.RawDocument{
		URI:      uri,
		MIMEType: mimeType,
		Content:  content,
		Metadata: opts.Meta,
	})
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("normalise %s: %w", path, err)
	}
	if strings.TrimSpace(normalised.Text) == "" {
		logger.Debug("No text extracted from %s", path)
		return domain.IngestResult{}, nil
	}

	opts.Meta = mergeMeta(normalised.Meta, fileMeta)
	return s.IngestTexts(ctx, []string{normalised.Text}, opts)
}

// ingest splits, embeds and writes docs.
func (s *IngestService) ingest(
	ctx context.Context, docs []domain.Document, opts domain.IngestOptions,
) (domain.IngestResult, error) {
	if opts.SplitLength > 0 {
		var err error
		docs, err = s.split(ctx, docs, opts)
		if err != nil {
			return domain.IngestResult{}, err
		}
	}

	if opts.Embed {
		if err := s.embed(ctx, docs); err != nil {
			return domain.IngestResult{}, err
		}
	}

	written, err := s.store.WriteDocuments(ctx, docs, opts.Write)
	if err != nil {
		return domain.IngestResult{}, err
	}

	logger.Info("Ingested %d documents, %d written", len(docs), written)
	return domain.IngestResult{Submitted: len(docs), Written: written}, nil
}

// split replaces every document longer than opts.SplitLength runes by its
// passages. Each passage records its position in meta under "_split_id"
// and gets an ID derived from its own content.
func (s *IngestService) split(
	ctx context.Context, docs []domain.Document, opts domain.IngestOptions,
) ([]domain.Document, error) {
	if s.newSplitter == nil {
		return nil, fmt.Errorf("%w: splitting requested but no splitter configured", domain.ErrInvalidArgument)
	}
	if opts.SplitOverlap < 0 || opts.SplitOverlap >= opts.SplitLength {
		return nil, fmt.Errorf("%w: split overlap %d must be in [0, %d)",
			domain.ErrInvalidArgument, opts.SplitOverlap, opts.SplitLength)
	}
	splitter, err := s.newSplitter(opts.SplitLength, opts.SplitOverlap)
	if err != nil {
		return nil, fmt.Errorf("build splitter: %w", err)
	}

	out := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		if utf8.RuneCountInString(doc.Text) <= opts.SplitLength {
			out = append(out, doc)
			continue
		}
		passages, err := splitter.Split(ctx, doc.Text)
		if err != nil {
			return nil, fmt.Errorf("split document %s: %w", doc.ID, err)
		}
		for i, passage := range passages {
			meta := mergeMeta(doc.Meta, map[string]any{MetaSplitID: i})
			part, err := domain.NewDocument(passage, append(idOptions(opts),
				domain.WithMeta(meta),
				domain.WithQuestion(doc.Question),
			)...)
			if err != nil {
				return nil, err
			}
			out = append(out, part)
		}
	}

	logger.Debug("Split with %s: %d documents became %d", splitter.Name(), len(docs), len(out))
	return out, nil
}

// embed fills in the embedding of every document that has none.
func (s *IngestService) embed(ctx context.Context, docs []domain.Document) error {
	if s.embedder == nil {
		return domain.ErrEmbeddingUnavailable
	}

	var missing []int
	for i := range docs {
		if len(docs[i].Embedding) == 0 {
			missing = append(missing, i)
		}
	}
	logger.Debug("Embedding %d of %d documents with %s", len(missing), len(docs), s.embedder.ModelName())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(missing); start += embedBatchSize {
		batch := missing[start:min(start+embedBatchSize, len(missing))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, idx := range batch {
				texts[j] = docs[idx].Text
			}
			vectors, err := s.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed documents: %w", err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embed documents: got %d vectors for %d texts", len(vectors), len(batch))
			}
			for j, idx := range batch {
				docs[idx].Embedding = vectors[j]
			}
			return nil
		})
	}
	return g.Wait()
}

func idOptions(opts domain.IngestOptions) []domain.DocumentOption {
	return []domain.DocumentOption{
		domain.WithHashScheme(opts.HashScheme),
		domain.WithIDHashKeys(opts.IDHashKeys...),
	}
}

// mergeMeta returns a new map holding base overlaid with override.
func mergeMeta(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// DetectMIMEType guesses the MIME type of a file from its extension,
// falling back to sniffing its content.
func DetectMIMEType(path string, content []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return strings.TrimSpace(strings.SplitN(t, ";", 2)[0])
	}
	t := http.DetectContentType(content)
	return strings.TrimSpace(strings.SplitN(t, ";", 2)[0])
}

// ParseJSONLines decodes one JSON object per non-blank line.
func ParseJSONLines(r io.Reader) ([]map[string]any, error) {
	var records []map[string]any
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrInvalidInput, line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
