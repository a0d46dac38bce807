package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// ToDict returns a flat mapping of every field. fieldMap maps external key
// names to Document field names; a field named as a value in fieldMap is
// emitted under its external key instead. Entries rejected by
// ValidateFieldMap are not applied, so no field is ever overwritten.
//
// Absent optional fields are emitted as nil.
func (d Document) ToDict(fieldMap map[string]string) map[string]any {
	rename := invertFieldMap(fieldMap)

	out := make(map[string]any, len(documentFields))
	put := func(field string, v any) {
		if external, ok := rename[field]; ok {
			field = external
		}
		out[field] = v
	}

	put(FieldID, d.ID)
	put(FieldText, d.Text)
	put(FieldScore, floatOrNil(d.Score))
	put(FieldProbability, floatOrNil(d.Probability))
	if d.Question == "" {
		put(FieldQuestion, nil)
	} else {
		put(FieldQuestion, d.Question)
	}
	put(FieldMeta, copyMeta(d.Meta))
	if d.Embedding == nil {
		put(FieldEmbedding, nil)
	} else {
		put(FieldEmbedding, copyEmbedding(d.Embedding))
	}

	return out
}

// FromDict builds a Document from a mapping. Keys present in fieldMap are
// renamed to the Document field they map to. Any other key that is not a
// Document field is folded into Meta. The input is not modified.
//
// opts are applied after the mapped fields, so WithHashScheme and
// WithIDHashKeys control derivation of a missing ID. A null or empty id
// counts as missing.
func FromDict(m map[string]any, fieldMap map[string]string, opts ...DocumentOption) (Document, error) {
	if err := ValidateFieldMap(fieldMap); err != nil {
		return Document{}, err
	}

	fields := make(map[string]any, len(documentFields))
	extras := make(map[string]any)

	for k, v := range m {
		if _, mapped := fieldMap[k]; mapped {
			continue
		}
		if isDocumentField(k) {
			fields[k] = v
			continue
		}
		extras[k] = v
	}

	// Mapped keys win over a plain key naming the same field.
	for _, k := range sortedKeys(fieldMap) {
		v, ok := m[k]
		if !ok {
			continue
		}
		fields[fieldMap[k]] = v
	}

	text, ok := fields[FieldText].(string)
	if !ok {
		return Document{}, fmt.Errorf("%w: %q is required and must be a string", ErrInvalidInput, FieldText)
	}

	meta, err := toMeta(fields[FieldMeta])
	if err != nil {
		return Document{}, err
	}
	for k, v := range extras {
		meta[k] = v
	}

	docOpts := []DocumentOption{WithMeta(meta)}

	if v := fields[FieldID]; v != nil {
		docOpts = append(docOpts, WithID(fmt.Sprint(v)))
	}
	if v := fields[FieldQuestion]; v != nil {
		q, ok := v.(string)
		if !ok {
			return Document{}, fmt.Errorf("%w: %q must be a string", ErrInvalidInput, FieldQuestion)
		}
		docOpts = append(docOpts, WithQuestion(q))
	}
	score, err := toFloat(FieldScore, fields[FieldScore])
	if err != nil {
		return Document{}, err
	}
	if score != nil {
		docOpts = append(docOpts, WithScore(*score))
	}
	probability, err := toFloat(FieldProbability, fields[FieldProbability])
	if err != nil {
		return Document{}, err
	}
	if probability != nil {
		docOpts = append(docOpts, WithProbability(*probability))
	}
	embedding, err := toEmbedding(fields[FieldEmbedding])
	if err != nil {
		return Document{}, err
	}
	if embedding != nil {
		docOpts = append(docOpts, WithEmbedding(embedding))
	}

	return NewDocument(text, append(docOpts, opts...)...)
}

func isDocumentField(name string) bool {
	return slices.Contains(documentFields, name)
}

// ValidateFieldMap checks that every value names a Document field and that
// no external key is the name of a different Document field. Such a key
// would hide that field and lose its value on the way through ToDict.
func ValidateFieldMap(fieldMap map[string]string) error {
	for _, external := range sortedKeys(fieldMap) {
		if err := checkFieldMapEntry(external, fieldMap[external]); err != nil {
			return err
		}
	}
	return nil
}

func checkFieldMapEntry(external, field string) error {
	if !isDocumentField(field) {
		return fmt.Errorf("%w: field map %q -> %q names no document field", ErrInvalidArgument, external, field)
	}
	if external != field && isDocumentField(external) {
		return fmt.Errorf("%w: field map key %q is itself a document field", ErrInvalidArgument, external)
	}
	return nil
}

// invertFieldMap maps Document field names back to external keys. When two
// external keys name the same field the lexically last key wins. Invalid
// entries are dropped.
func invertFieldMap(fieldMap map[string]string) map[string]string {
	inv := make(map[string]string, len(fieldMap))
	for _, external := range sortedKeys(fieldMap) {
		field := fieldMap[external]
		if checkFieldMapEntry(external, field) != nil {
			continue
		}
		inv[field] = external
	}
	return inv
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func floatOrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func toMeta(v any) (map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return make(map[string]any), nil
	case map[string]any:
		return copyMeta(t), nil
	case map[string]string:
		meta := make(map[string]any, len(t))
		for k, s := range t {
			meta[k] = s
		}
		return meta, nil
	default:
		return nil, fmt.Errorf("%w: %q must be a mapping, got %T", ErrInvalidInput, FieldMeta, v)
	}
}

func toFloat(field string, v any) (*float64, error) {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidInput, field, err)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("%w: %q must be a number, got %T", ErrInvalidInput, field, v)
	}
	return &f, nil
}

func toEmbedding(v any) ([]float32, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []float32:
		return copyEmbedding(t), nil
	case []float64:
		out := make([]float32, len(t))
		for i, f := range t {
			out[i] = float32(f)
		}
		return out, nil
	case []any:
		out := make([]float32, len(t))
		for i, item := range t {
			f, err := toFloat(FieldEmbedding, item)
			if err != nil {
				return nil, err
			}
			if f == nil {
				return nil, fmt.Errorf("%w: %q contains null", ErrInvalidInput, FieldEmbedding)
			}
			out[i] = float32(*f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q must be a list of numbers, got %T", ErrInvalidInput, FieldEmbedding, v)
	}
}
