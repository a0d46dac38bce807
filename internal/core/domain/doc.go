// Package domain defines the core entities of the jam document store.
//
// This package is part of the hexagonal architecture's innermost layer.
// It defines the fundamental types:
//
//   - Document: An immutable content record with a deterministic identity
//   - Label: A relevance judgment that references a Document by ID
//   - Filters: Conjunctive/disjunctive field filters shared by every backend
//   - DuplicatePolicy: How a write treats IDs that already exist
//   - RawDocument: Opaque bytes read from a file before normalisation
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. Besides the standard library it
// only imports the hashing libraries that define document and label
// identity (murmur3 and uuid). All other packages depend on domain, never
// the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library, identity hashing libraries
//   - Cannot Import: Any internal/ package
package domain
