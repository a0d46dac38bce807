package domain

import (
	"encoding/json"
	"reflect"
)

// Document field names as they appear in the dict/JSON schema.
const (
	FieldID          = "id"
	FieldText        = "text"
	FieldScore       = "score"
	FieldProbability = "probability"
	FieldQuestion    = "question"
	FieldMeta        = "meta"
	FieldEmbedding   = "embedding"
)

// documentFields lists every recognised Document field.
var documentFields = []string{
	FieldID, FieldText, FieldScore, FieldProbability, FieldQuestion, FieldMeta, FieldEmbedding,
}

// Document is a content record with a deterministic identity.
// A long source text may yield several Documents, one per passage.
//
// Documents are not mutated after construction; helpers such as
// WithRanking return modified copies.
type Document struct {
	// ID is the unique identifier. Supplied by the caller or derived from
	// the content (see HashScheme).
	ID string

	// Text is the document content and the default identity input.
	Text string

	// Score is the retriever's query score. Not part of identity.
	Score *float64

	// Probability is the score scaled into the range 0 to 1.
	Probability *float64

	// Question is an optional question text, e.g. for FAQ style documents.
	Question string

	// Meta holds arbitrary extra attributes such as name, url or author.
	Meta map[string]any

	// Embedding is the vector encoding of the text.
	Embedding []float32
}

// documentConfig collects constructor options.
type documentConfig struct {
	id          string
	idHashKeys  []string
	hashScheme  HashScheme
	meta        map[string]any
	defaultMeta map[string]any
	embedding   []float32
	score       *float64
	probability *float64
	question    string
}

// DocumentOption configures NewDocument.
type DocumentOption func(*documentConfig)

// WithID sets an explicit document ID, used verbatim.
// An empty ID means the ID is derived from the content.
func WithID(id string) DocumentOption {
	return func(c *documentConfig) {
		c.id = id
	}
}

// WithIDHashKeys selects the fields that take part in ID derivation.
// Accepted keys are text, question, meta, meta.<key> and embedding.
func WithIDHashKeys(keys ...string) DocumentOption {
	return func(c *documentConfig) {
		c.idHashKeys = append([]string(nil), keys...)
	}
}

// WithHashScheme selects the ID derivation scheme.
func WithHashScheme(scheme HashScheme) DocumentOption {
	return func(c *documentConfig) {
		c.hashScheme = scheme
	}
}

// WithMeta sets the meta attributes. The map is copied.
func WithMeta(meta map[string]any) DocumentOption {
	return func(c *documentConfig) {
		c.meta = meta
	}
}

// WithDefaultMeta sets meta attributes that keys set with WithMeta
// override. Both take part in ID derivation.
func WithDefaultMeta(meta map[string]any) DocumentOption {
	return func(c *documentConfig) {
		c.defaultMeta = meta
	}
}

// WithEmbedding sets the embedding vector. The slice is copied.
func WithEmbedding(embedding []float32) DocumentOption {
	return func(c *documentConfig) {
		c.embedding = embedding
	}
}

// WithScore sets the ranking score.
func WithScore(score float64) DocumentOption {
	return func(c *documentConfig) {
		c.score = &score
	}
}

// WithProbability sets the ranking probability.
func WithProbability(probability float64) DocumentOption {
	return func(c *documentConfig) {
		c.probability = &probability
	}
}

// WithQuestion sets the question text.
func WithQuestion(question string) DocumentOption {
	return func(c *documentConfig) {
		c.question = question
	}
}

// NewDocument builds a Document from text. Unless an ID is supplied, the ID
// is derived deterministically from the text (or the fields selected with
// WithIDHashKeys) using the configured hash scheme.
func NewDocument(text string, opts ...DocumentOption) (Document, error) {
	var cfg documentConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if !cfg.hashScheme.IsValid() {
		return Document{}, schemeError(cfg.hashScheme)
	}

	doc := Document{
		Text:        text,
		Score:       copyFloat(cfg.score),
		Probability: copyFloat(cfg.probability),
		Question:    cfg.question,
		Meta:        mergedMeta(cfg.defaultMeta, cfg.meta),
		Embedding:   copyEmbedding(cfg.embedding),
	}

	if cfg.id != "" {
		doc.ID = cfg.id
		return doc, nil
	}

	input, err := hashInput(&doc, cfg.idHashKeys)
	if err != nil {
		return Document{}, err
	}
	id, err := cfg.hashScheme.Hash(input)
	if err != nil {
		return Document{}, err
	}
	doc.ID = id
	return doc, nil
}

func schemeError(scheme HashScheme) error {
	_, err := scheme.Hash("")
	return err
}

// Field returns the value of a top-level field or, for any other name, the
// meta attribute with that name.
func (d Document) Field(name string) (any, bool) {
	switch name {
	case FieldID:
		return d.ID, true
	case FieldText:
		return d.Text, true
	case FieldQuestion:
		if d.Question == "" {
			return nil, false
		}
		return d.Question, true
	default:
		v, ok := d.Meta[name]
		return v, ok
	}
}

// WithRanking returns a copy carrying the given score and probability.
func (d Document) WithRanking(score, probability float64) Document {
	out := d.Clone()
	out.Score = &score
	out.Probability = &probability
	return out
}

// WithoutEmbedding returns a copy with the embedding dropped.
func (d Document) WithoutEmbedding() Document {
	out := d.Clone()
	out.Embedding = nil
	return out
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	return Document{
		ID:          d.ID,
		Text:        d.Text,
		Score:       copyFloat(d.Score),
		Probability: copyFloat(d.Probability),
		Question:    d.Question,
		Meta:        copyMeta(d.Meta),
		Embedding:   copyEmbedding(d.Embedding),
	}
}

// Equal reports whether both documents hold the same values in every field.
// A nil and an empty meta map are equal, as are nil and empty embeddings.
func (d Document) Equal(other Document) bool {
	if d.ID != other.ID || d.Text != other.Text || d.Question != other.Question {
		return false
	}
	if !floatPtrEqual(d.Score, other.Score) || !floatPtrEqual(d.Probability, other.Probability) {
		return false
	}
	if len(d.Meta) != 0 || len(other.Meta) != 0 {
		if !reflect.DeepEqual(d.Meta, other.Meta) {
			return false
		}
	}
	if len(d.Embedding) != len(other.Embedding) {
		return false
	}
	for i := range d.Embedding {
		if d.Embedding[i] != other.Embedding[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the document using the dict schema.
func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.ToDict(nil))
}

// UnmarshalJSON decodes a document from the dict schema. Unknown keys are
// folded into Meta.
func (d *Document) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	doc, err := FromDict(m, nil)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}

// IDs returns the IDs of docs in order.
func IDs(docs []Document) []string {
	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = docs[i].ID
	}
	return ids
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// copyMeta returns a deep copy of nested maps and slices so that callers
// cannot mutate a document through a shared map.
func copyMeta(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

// mergedMeta deep-copies base and then override into one map.
func mergedMeta(base, override map[string]any) map[string]any {
	if len(base) == 0 {
		return copyMeta(override)
	}
	out := copyMeta(base)
	for k, v := range override {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMeta(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	default:
		return v
	}
}

func copyEmbedding(src []float32) []float32 {
	if len(src) == 0 {
		return nil
	}
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}
