package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates an unrecognised option value, such as an
	// unknown hash scheme or id hash key.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidInput indicates malformed or invalid input data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateDocument indicates a write under the fail policy hit IDs
	// that already exist in the target index.
	ErrDuplicateDocument = errors.New("duplicate document")

	// ErrUnsupportedType indicates an unknown backend, provider or file type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrStoreUnavailable indicates no document backend is configured.
	ErrStoreUnavailable = errors.New("document store unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Embedding retrieval and ingest-time embedding are disabled without it.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
)

// DuplicateDocumentError reports every colliding ID of a rejected write.
// It matches ErrDuplicateDocument with errors.Is.
type DuplicateDocumentError struct {
	// IDs are the document IDs that already exist, in input order.
	IDs []string

	// Index is the index the write targeted.
	Index string
}

// Error implements the error interface.
func (e *DuplicateDocumentError) Error() string {
	return fmt.Sprintf("documents with ids '%s' already exist in index '%s'",
		strings.Join(e.IDs, ", "), e.Index)
}

// Unwrap returns ErrDuplicateDocument.
func (e *DuplicateDocumentError) Unwrap() error {
	return ErrDuplicateDocument
}
