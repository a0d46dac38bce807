package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/jam/internal/adapters/driven/storage/rank"
	"github.com/custodia-labs/jam/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driven"
)

// jsonNull is the JSON representation of null.
const jsonNull = "null"

// dbFile is the database file name inside the data directory.
const dbFile = "jam.db"

// idChunk bounds the IDs bound into one IN list.
const idChunk = 500

// sqlFields are the document fields filtered in SQL. Any other filtered
// field is a meta key and is matched in Go.
var sqlFields = []string{domain.FieldID, domain.FieldText, domain.FieldQuestion}

// Ensure Store implements the interface.
var _ driven.DocumentBackend = (*Store)(nil)

// Store is a SQLite-backed document and label backend.
type Store struct {
	db   *sqlx.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.jam/data/jam.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".jam", "data")
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFile)

	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies every NNN_name.up.sql newer than the recorded version.
// Each migration records its own version in schema_migrations.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Documents ====================

const upsertDocument = `
	INSERT INTO documents (index_name, id, text, question, meta, embedding)
	VALUES (:index_name, :id, :text, :question, :meta, :embedding)
	ON CONFLICT(index_name, id) DO UPDATE SET
		text = excluded.text,
		question = excluded.question,
		meta = excluded.meta,
		embedding = excluded.embedding
`

// documentRow is the stored form of a document.
type documentRow struct {
	IndexName string         `db:"index_name"`
	ID        string         `db:"id"`
	Text      string         `db:"text"`
	Question  sql.NullString `db:"question"`
	Meta      string         `db:"meta"`
	Embedding []byte         `db:"embedding"`
}

func toDocumentRow(index string, doc domain.Document) (documentRow, error) {
	meta, err := json.Marshal(doc.Meta)
	if err != nil {
		return documentRow{}, fmt.Errorf("marshaling meta of %s: %w", doc.ID, err)
	}
	return documentRow{
		IndexName: index,
		ID:        doc.ID,
		Text:      doc.Text,
		Question:  sql.NullString{String: doc.Question, Valid: doc.Question != ""},
		Meta:      string(meta),
		Embedding: float32SliceToBytes(doc.Embedding),
	}, nil
}

func (r documentRow) document() (domain.Document, error) {
	doc := domain.Document{
		ID:        r.ID,
		Text:      r.Text,
		Question:  r.Question.String,
		Embedding: bytesToFloat32Slice(r.Embedding),
	}
	if r.Meta != "" && r.Meta != jsonNull {
		if err := json.Unmarshal([]byte(r.Meta), &doc.Meta); err != nil {
			return domain.Document{}, fmt.Errorf("unmarshaling meta of %s: %w", r.ID, err)
		}
	}
	return doc, nil
}

// WriteDocuments upserts docs in one transaction.
func (s *Store) WriteDocuments(ctx context.Context, index string, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareNamedContext(ctx, upsertDocument)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for i := range docs {
		row, err := toDocumentRow(index, docs[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("writing document %s: %w", docs[i].ID, err)
		}
	}

	return tx.Commit()
}

// GetDocumentsByID returns the stored documents among ids in insertion order.
func (s *Store) GetDocumentsByID(ctx context.Context, index string, ids []string) ([]domain.Document, error) {
	var out []domain.Document
	for start := 0; start < len(ids); start += idChunk {
		chunk := ids[start:min(start+idChunk, len(ids))]
		docs, err := s.selectDocuments(ctx, index, domain.Filters{domain.FieldID: chunk}, true)
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	return out, nil
}

// GetAllDocuments returns documents matching filters in insertion order.
func (s *Store) GetAllDocuments(
	ctx context.Context, index string, filters domain.Filters, returnEmbedding bool,
) ([]domain.Document, error) {
	return s.selectDocuments(ctx, index, filters, returnEmbedding)
}

// GetDocumentCount counts documents matching filters. The count runs in SQL
// unless a meta key is filtered.
func (s *Store) GetDocumentCount(ctx context.Context, index string, filters domain.Filters) (int, error) {
	if matchesNothing(filters) {
		return 0, nil
	}
	if !filters.Without(sqlFields...).IsEmpty() {
		docs, err := s.selectDocuments(ctx, index, filters, false)
		return len(docs), err
	}

	where, args, err := documentWhere(index, filters)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM documents WHERE "+where), args...); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// QueryByEmbedding ranks the matching documents by cosine similarity.
func (s *Store) QueryByEmbedding(
	ctx context.Context, index string, embedding []float32, filters domain.Filters, topK int, returnEmbedding bool,
) ([]domain.Document, error) {
	candidates, err := s.selectDocuments(ctx, index, filters, true)
	if err != nil {
		return nil, err
	}
	return rank.TopK(candidates, embedding, topK, returnEmbedding), nil
}

// DeleteDocuments removes documents matching filters.
func (s *Store) DeleteDocuments(ctx context.Context, index string, filters domain.Filters) error {
	if matchesNothing(filters) {
		return nil
	}

	if filters.Without(sqlFields...).IsEmpty() {
		where, args, err := documentWhere(index, filters)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM documents WHERE "+where), args...); err != nil {
			return fmt.Errorf("deleting documents: %w", err)
		}
		return nil
	}

	docs, err := s.selectDocuments(ctx, index, filters, false)
	if err != nil {
		return err
	}
	ids := domain.IDs(docs)
	for start := 0; start < len(ids); start += idChunk {
		chunk := ids[start:min(start+idChunk, len(ids))]
		query, args, err := sqlx.In("DELETE FROM documents WHERE index_name = ? AND id IN (?)", index, chunk)
		if err != nil {
			return fmt.Errorf("building delete: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
			return fmt.Errorf("deleting documents: %w", err)
		}
	}
	return nil
}

// selectDocuments loads the documents of index matching filters.
func (s *Store) selectDocuments(
	ctx context.Context, index string, filters domain.Filters, withEmbedding bool,
) ([]domain.Document, error) {
	if matchesNothing(filters) {
		return nil, nil
	}

	where, args, err := documentWhere(index, filters)
	if err != nil {
		return nil, err
	}
	columns := "index_name, id, text, question, meta"
	if withEmbedding {
		columns += ", embedding"
	}
	query := s.db.Rebind("SELECT " + columns + " FROM documents WHERE " + where + " ORDER BY rowid")

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}

	metaFilters := filters.Without(sqlFields...)
	out := make([]domain.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := r.document()
		if err != nil {
			return nil, err
		}
		if metaFilters.Match(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// documentWhere renders the index and SQL-side filters as a WHERE clause.
func documentWhere(index string, filters domain.Filters) (string, []any, error) {
	clauses := []string{"index_name = ?"}
	args := []any{index}
	for _, field := range sqlFields {
		values, ok := filters[field]
		if !ok {
			continue
		}
		clauses = append(clauses, field+" IN (?)")
		args = append(args, values)
	}
	where, args, err := sqlx.In(strings.Join(clauses, " AND "), args...)
	if err != nil {
		return "", nil, fmt.Errorf("building filters: %w", err)
	}
	return where, args, nil
}

// matchesNothing reports whether a filtered field accepts no value.
func matchesNothing(filters domain.Filters) bool {
	for _, values := range filters {
		if len(values) == 0 {
			return true
		}
	}
	return false
}

// ==================== Labels ====================

const upsertLabel = `
	INSERT INTO labels (
		index_name, id, question, answer, is_correct_answer, is_correct_document,
		origin, document_id, offset_start_in_doc, no_answer, model_id, created_at, updated_at
	) VALUES (
		:index_name, :id, :question, :answer, :is_correct_answer, :is_correct_document,
		:origin, :document_id, :offset_start_in_doc, :no_answer, :model_id, :created_at, :updated_at
	)
	ON CONFLICT(index_name, id) DO UPDATE SET
		question = excluded.question,
		answer = excluded.answer,
		is_correct_answer = excluded.is_correct_answer,
		is_correct_document = excluded.is_correct_document,
		origin = excluded.origin,
		document_id = excluded.document_id,
		offset_start_in_doc = excluded.offset_start_in_doc,
		no_answer = excluded.no_answer,
		model_id = excluded.model_id,
		updated_at = excluded.updated_at
`

const labelColumns = `index_name, id, question, answer, is_correct_answer, is_correct_document,
	origin, document_id, offset_start_in_doc, no_answer, model_id, created_at, updated_at`

// labelRow is the stored form of a label.
type labelRow struct {
	IndexName         string         `db:"index_name"`
	ID                string         `db:"id"`
	Question          string         `db:"question"`
	Answer            string         `db:"answer"`
	IsCorrectAnswer   bool           `db:"is_correct_answer"`
	IsCorrectDocument bool           `db:"is_correct_document"`
	Origin            string         `db:"origin"`
	DocumentID        sql.NullString `db:"document_id"`
	OffsetStartInDoc  sql.NullInt64  `db:"offset_start_in_doc"`
	NoAnswer          sql.NullBool   `db:"no_answer"`
	ModelID           sql.NullInt64  `db:"model_id"`
	CreatedAt         string         `db:"created_at"`
	UpdatedAt         string         `db:"updated_at"`
}

func toLabelRow(index string, l domain.Label) labelRow {
	row := labelRow{
		IndexName:         index,
		ID:                l.ID,
		Question:          l.Question,
		Answer:            l.Answer,
		IsCorrectAnswer:   l.IsCorrectAnswer,
		IsCorrectDocument: l.IsCorrectDocument,
		Origin:            l.Origin,
		DocumentID:        sql.NullString{String: l.DocumentID, Valid: l.DocumentID != ""},
		CreatedAt:         l.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:         l.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if l.OffsetStartInDoc != nil {
		row.OffsetStartInDoc = sql.NullInt64{Int64: int64(*l.OffsetStartInDoc), Valid: true}
	}
	if l.NoAnswer != nil {
		row.NoAnswer = sql.NullBool{Bool: *l.NoAnswer, Valid: true}
	}
	if l.ModelID != nil {
		row.ModelID = sql.NullInt64{Int64: int64(*l.ModelID), Valid: true}
	}
	return row
}

func (r labelRow) label() domain.Label {
	l := domain.Label{
		ID:                r.ID,
		Question:          r.Question,
		Answer:            r.Answer,
		IsCorrectAnswer:   r.IsCorrectAnswer,
		IsCorrectDocument: r.IsCorrectDocument,
		Origin:            r.Origin,
		DocumentID:        r.DocumentID.String,
	}
	if r.OffsetStartInDoc.Valid {
		v := int(r.OffsetStartInDoc.Int64)
		l.OffsetStartInDoc = &v
	}
	if r.NoAnswer.Valid {
		v := r.NoAnswer.Bool
		l.NoAnswer = &v
	}
	if r.ModelID.Valid {
		v := int(r.ModelID.Int64)
		l.ModelID = &v
	}
	// Timestamps were written by toLabelRow; a parse failure leaves zero.
	l.CreatedAt, _ = time.Parse(time.RFC3339Nano, r.CreatedAt)
	l.UpdatedAt, _ = time.Parse(time.RFC3339Nano, r.UpdatedAt)
	return l
}

// WriteLabels upserts labels by ID in one transaction.
func (s *Store) WriteLabels(ctx context.Context, index string, labels []domain.Label) error {
	if len(labels) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareNamedContext(ctx, upsertLabel)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, l := range labels {
		if _, err := stmt.ExecContext(ctx, toLabelRow(index, l)); err != nil {
			return fmt.Errorf("writing label %s: %w", l.ID, err)
		}
	}

	return tx.Commit()
}

// GetAllLabels returns labels matching filters in insertion order.
func (s *Store) GetAllLabels(ctx context.Context, index string, filters domain.Filters) ([]domain.Label, error) {
	var rows []labelRow
	query := s.db.Rebind("SELECT " + labelColumns + " FROM labels WHERE index_name = ? ORDER BY rowid")
	if err := s.db.SelectContext(ctx, &rows, query, index); err != nil {
		return nil, fmt.Errorf("querying labels: %w", err)
	}

	var out []domain.Label
	for _, r := range rows {
		if l := r.label(); filters.MatchLabel(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

// GetLabelCount counts labels in the index.
func (s *Store) GetLabelCount(ctx context.Context, index string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM labels WHERE index_name = ?"), index); err != nil {
		return 0, fmt.Errorf("counting labels: %w", err)
	}
	return n, nil
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a little-endian byte slice.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
