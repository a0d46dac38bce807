// Package postgres provides a PostgreSQL implementation of
// driven.DocumentBackend. Embeddings live in a pgvector column and are
// ranked in the database by cosine distance; filters, including meta keys,
// are pushed down into SQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/jam/internal/adapters/driven/storage/postgres/migrations"
	"github.com/custodia-labs/jam/internal/adapters/driven/storage/rank"
	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driven"
)

// maxRowsPerInsert keeps multi-row inserts under the 65535 parameter limit.
const maxRowsPerInsert = 1000

// columnFields maps filterable document fields to their columns. Any other
// field is a meta key.
var columnFields = map[string]string{
	domain.FieldID:       "id",
	domain.FieldText:     "text",
	domain.FieldQuestion: "question",
}

// labelColumnFields maps filterable label fields to their columns.
var labelColumnFields = map[string]string{
	domain.LabelFieldID:         "id",
	domain.LabelFieldQuestion:   "question",
	domain.LabelFieldAnswer:     "answer",
	domain.LabelFieldOrigin:     "origin",
	domain.LabelFieldDocumentID: "document_id",
	domain.LabelFieldModelID:    "model_id::text",
}

const documentColumns = "index_name, id, text, question, meta"

const labelColumns = `index_name, id, question, answer, is_correct_answer, is_correct_document,
	origin, document_id, offset_start_in_doc, no_answer, model_id, created_at, updated_at`

// Ensure Store implements the interface.
var _ driven.DocumentBackend = (*Store)(nil)

// Store is a PostgreSQL-backed document and label backend.
type Store struct {
	db *sqlx.DB
}

// NewStore connects to dsn and applies the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening postgres: %v", domain.ErrStoreUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: connecting to postgres: %v", domain.ErrStoreUnavailable, err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs every embedded .sql file in name order, one statement at a
// time. Statements are idempotent.
func (s *Store) migrate(ctx context.Context, fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", file, err)
		}
		for _, stmt := range strings.Split(string(content), ";") {
			if stmt = strings.TrimSpace(stmt); stmt == "" {
				continue
			}
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("executing migration %s: %w", file, err)
			}
		}
	}
	return nil
}

// ==================== Documents ====================

// documentRow is the stored form of a document.
type documentRow struct {
	IndexName string           `db:"index_name"`
	ID        string           `db:"id"`
	Text      string           `db:"text"`
	Question  sql.NullString   `db:"question"`
	Meta      []byte           `db:"meta"`
	Embedding *pgvector.Vector `db:"embedding"`
}

// rankedRow is a document row with its similarity score.
type rankedRow struct {
	documentRow
	Score float64 `db:"score"`
}

func (r documentRow) document() (domain.Document, error) {
	doc := domain.Document{
		ID:       r.ID,
		Text:     r.Text,
		Question: r.Question.String,
		Meta:     map[string]any{},
	}
	if r.Embedding != nil {
		doc.Embedding = r.Embedding.Slice()
	}
	if len(r.Meta) > 0 {
		if err := json.Unmarshal(r.Meta, &doc.Meta); err != nil {
			return domain.Document{}, fmt.Errorf("unmarshaling meta of %s: %w", r.ID, err)
		}
	}
	return doc, nil
}

// collapse keeps one document per ID: the last occurrence's content at the
// first occurrence's position. A single INSERT cannot touch a row twice.
func collapse(docs []domain.Document) []domain.Document {
	pos := make(map[string]int, len(docs))
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if i, ok := pos[d.ID]; ok {
			out[i] = d
			continue
		}
		pos[d.ID] = len(out)
		out = append(out, d)
	}
	return out
}

// buildUpsert renders a multi-row upsert of docs into index.
func buildUpsert(index string, docs []domain.Document) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO documents (index_name, id, text, question, meta, embedding) VALUES ")
	args := make([]any, 0, len(docs)*6)
	for i, d := range docs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")

		var meta any
		if len(d.Meta) > 0 {
			encoded, err := json.Marshal(d.Meta)
			if err != nil {
				return "", nil, fmt.Errorf("marshaling meta of %s: %w", d.ID, err)
			}
			meta = string(encoded)
		}
		var embedding any
		if len(d.Embedding) > 0 {
			embedding = pgvector.NewVector(d.Embedding)
		}
		args = append(args, index, d.ID, d.Text,
			sql.NullString{String: d.Question, Valid: d.Question != ""}, meta, embedding)
	}
	sb.WriteString(` ON CONFLICT (index_name, id) DO UPDATE SET
		text = EXCLUDED.text,
		question = EXCLUDED.question,
		meta = EXCLUDED.meta,
		embedding = EXCLUDED.embedding`)
	return sqlx.Rebind(sqlx.DOLLAR, sb.String()), args, nil
}

// buildWhere renders the index and filters as a WHERE clause using ?
// placeholders. Meta keys compare their text rendering.
func buildWhere(index string, filters domain.Filters, columns map[string]string) (string, []any) {
	clauses := []string{"index_name = ?"}
	args := []any{index}
	for _, field := range filters.Keys() {
		values := filters[field]
		if col, ok := columns[field]; ok {
			clauses = append(clauses, col+" = ANY(?)")
			args = append(args, pq.Array(values))
			continue
		}
		clauses = append(clauses, "meta ->> ? = ANY(?)")
		args = append(args, field, pq.Array(values))
	}
	return strings.Join(clauses, " AND "), args
}

// WriteDocuments upserts docs in one transaction. Repeated IDs collapse to
// their last occurrence.
func (s *Store) WriteDocuments(ctx context.Context, index string, docs []domain.Document) error {
	docs = collapse(docs)
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for start := 0; start < len(docs); start += maxRowsPerInsert {
		query, args, err := buildUpsert(index, docs[start:min(start+maxRowsPerInsert, len(docs))])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("writing documents: %w", err)
		}
	}
	return tx.Commit()
}

// GetDocumentsByID returns the stored documents among ids in insertion order.
func (s *Store) GetDocumentsByID(ctx context.Context, index string, ids []string) ([]domain.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.selectDocuments(ctx, index, domain.Filters{domain.FieldID: ids}, true)
}

// GetAllDocuments returns documents matching filters in insertion order.
func (s *Store) GetAllDocuments(
	ctx context.Context, index string, filters domain.Filters, returnEmbedding bool,
) ([]domain.Document, error) {
	return s.selectDocuments(ctx, index, filters, returnEmbedding)
}

func (s *Store) selectDocuments(
	ctx context.Context, index string, filters domain.Filters, withEmbedding bool,
) ([]domain.Document, error) {
	where, args := buildWhere(index, filters, columnFields)
	columns := documentColumns
	if withEmbedding {
		columns += ", embedding"
	}
	query := sqlx.Rebind(sqlx.DOLLAR, "SELECT "+columns+" FROM documents WHERE "+where+" ORDER BY seq")

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	out := make([]domain.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := r.document()
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// GetDocumentCount counts documents matching filters.
func (s *Store) GetDocumentCount(ctx context.Context, index string, filters domain.Filters) (int, error) {
	where, args := buildWhere(index, filters, columnFields)
	var n int
	if err := s.db.GetContext(ctx, &n, sqlx.Rebind(sqlx.DOLLAR, "SELECT COUNT(*) FROM documents WHERE "+where), args...); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// buildQueryByEmbedding renders the nearest-neighbour query. Distance is
// pgvector's cosine distance, so the score is 1 - distance.
func buildQueryByEmbedding(
	index string, embedding []float32, filters domain.Filters, topK int, withEmbedding bool,
) (string, []any) {
	where, args := buildWhere(index, filters, columnFields)
	columns := documentColumns
	if withEmbedding {
		columns += ", embedding"
	}
	vec := pgvector.NewVector(embedding)
	query := "SELECT " + columns + ", 1 - (embedding <=> ?) AS score FROM documents WHERE " + where +
		" AND embedding IS NOT NULL AND vector_dims(embedding) = ? ORDER BY embedding <=> ?, id LIMIT ?"
	args = append([]any{vec}, args...)
	args = append(args, len(embedding), vec, topK)
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

// QueryByEmbedding ranks the matching documents by cosine similarity in SQL.
func (s *Store) QueryByEmbedding(
	ctx context.Context, index string, embedding []float32, filters domain.Filters, topK int, returnEmbedding bool,
) ([]domain.Document, error) {
	if len(embedding) == 0 || topK <= 0 {
		return nil, nil
	}
	query, args := buildQueryByEmbedding(index, embedding, filters, topK, returnEmbedding)

	var rows []rankedRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying by embedding: %w", err)
	}
	out := make([]domain.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := r.document()
		if err != nil {
			return nil, err
		}
		out = append(out, doc.WithRanking(r.Score, rank.Probability(r.Score)))
	}
	return out, nil
}

// DeleteDocuments removes documents matching filters.
func (s *Store) DeleteDocuments(ctx context.Context, index string, filters domain.Filters) error {
	where, args := buildWhere(index, filters, columnFields)
	if _, err := s.db.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, "DELETE FROM documents WHERE "+where), args...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
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
	ON CONFLICT (index_name, id) DO UPDATE SET
		question = EXCLUDED.question,
		answer = EXCLUDED.answer,
		is_correct_answer = EXCLUDED.is_correct_answer,
		is_correct_document = EXCLUDED.is_correct_document,
		origin = EXCLUDED.origin,
		document_id = EXCLUDED.document_id,
		offset_start_in_doc = EXCLUDED.offset_start_in_doc,
		no_answer = EXCLUDED.no_answer,
		model_id = EXCLUDED.model_id,
		updated_at = EXCLUDED.updated_at
`

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
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
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
		CreatedAt:         l.CreatedAt.UTC(),
		UpdatedAt:         l.UpdatedAt.UTC(),
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
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
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
	for field := range filters {
		if _, ok := labelColumnFields[field]; !ok {
			// Labels have no meta; an unknown field matches nothing.
			return nil, nil
		}
	}
	where, args := buildWhere(index, filters, labelColumnFields)
	query := sqlx.Rebind(sqlx.DOLLAR, "SELECT "+labelColumns+" FROM labels WHERE "+where+" ORDER BY seq")

	var rows []labelRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying labels: %w", err)
	}
	out := make([]domain.Label, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.label())
	}
	return out, nil
}

// GetLabelCount counts labels in the index.
func (s *Store) GetLabelCount(ctx context.Context, index string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM labels WHERE index_name = $1", index); err != nil {
		return 0, fmt.Errorf("counting labels: %w", err)
	}
	return n, nil
}
