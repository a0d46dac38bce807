package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
)

// HashScheme selects how a Document ID is derived from its content.
type HashScheme string

// Available hash schemes.
const (
	// HashSchemeMurmur3 renders the seedless 128-bit murmur3 hash of the
	// input as 32 hex digits. It is the default.
	HashSchemeMurmur3 HashScheme = "murmur3"

	// HashSchemeUUID3 is the RFC 4122 name-based MD5 UUID in the DNS namespace.
	HashSchemeUUID3 HashScheme = "uuid3"

	// HashSchemeUUID5 is the RFC 4122 name-based SHA-1 UUID in the DNS namespace.
	HashSchemeUUID5 HashScheme = "uuid5"
)

// hashKeySeparator joins the values selected by id hash keys.
const hashKeySeparator = "\x1f"

// ParseHashScheme converts a configuration string into a HashScheme.
// The empty string selects the default scheme.
func ParseHashScheme(s string) (HashScheme, error) {
	scheme := HashScheme(strings.ToLower(strings.TrimSpace(s)))
	if scheme == "" {
		return HashSchemeMurmur3, nil
	}
	if !scheme.IsValid() {
		return "", fmt.Errorf("%w: hash scheme %q, choose murmur3, uuid3 or uuid5", ErrInvalidArgument, s)
	}
	return scheme, nil
}

// IsValid returns true if the scheme is recognised. The zero value is valid
// and means the default scheme.
func (h HashScheme) IsValid() bool {
	switch h {
	case "", HashSchemeMurmur3, HashSchemeUUID3, HashSchemeUUID5:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (h HashScheme) String() string {
	if h == "" {
		return string(HashSchemeMurmur3)
	}
	return string(h)
}

// Hash derives an identifier from input. The result depends only on the
// scheme and the input bytes.
func (h HashScheme) Hash(input string) (string, error) {
	switch h {
	case "", HashSchemeMurmur3:
		h1, h2 := murmur3.Sum128([]byte(input))
		return fmt.Sprintf("%016x%016x", h2, h1), nil
	case HashSchemeUUID3:
		return uuid.NewMD5(uuid.NameSpaceDNS, []byte(input)).String(), nil
	case HashSchemeUUID5:
		return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(input)).String(), nil
	default:
		return "", fmt.Errorf("%w: hash scheme %q, choose murmur3, uuid3 or uuid5", ErrInvalidArgument, string(h))
	}
}

// hashInput builds the canonical identity input for a document.
// Without keys the input is the raw text.
func hashInput(doc *Document, keys []string) (string, error) {
	if len(keys) == 0 {
		return doc.Text, nil
	}

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		switch {
		case key == FieldText:
			parts = append(parts, doc.Text)
		case key == FieldQuestion:
			parts = append(parts, doc.Question)
		case key == FieldMeta:
			encoded, err := json.Marshal(doc.Meta)
			if err != nil {
				return "", fmt.Errorf("%w: encoding meta for id hash: %w", ErrInvalidInput, err)
			}
			parts = append(parts, string(encoded))
		case key == FieldEmbedding:
			parts = append(parts, formatEmbedding(doc.Embedding))
		case strings.HasPrefix(key, FieldMeta+"."):
			value, ok := doc.Meta[strings.TrimPrefix(key, FieldMeta+".")]
			if !ok {
				parts = append(parts, "")
				continue
			}
			parts = append(parts, canonicalValue(value))
		default:
			return "", fmt.Errorf("%w: id hash key %q", ErrInvalidArgument, key)
		}
	}

	return strings.Join(parts, hashKeySeparator), nil
}

// canonicalValue renders a meta value deterministically.
func canonicalValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(encoded)
}

func formatEmbedding(embedding []float32) string {
	values := make([]string, len(embedding))
	for i, v := range embedding {
		values[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return strings.Join(values, ",")
}
