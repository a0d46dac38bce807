// Package sqlite provides a SQLite implementation of driven.DocumentBackend.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. Queries go through jmoiron/sqlx.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.jam/data/jam.db
//
// # Filtering and Ranking
//
// Filters on id, text and question run in SQL. Filters on meta keys and
// cosine ranking run in Go over the rows SQL returns.
package sqlite
