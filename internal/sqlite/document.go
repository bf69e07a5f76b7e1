package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rpggio/entityhub/internal/repository"
)

// Backend implements repository.Backend on a single SQLite documents table
type Backend struct {
	db *DB
}

// NewBackend creates a Backend over an open, migrated DB
func NewBackend(db *DB) *Backend {
	return &Backend{db: db}
}

// Collection returns a handle scoped to one collection name
func (b *Backend) Collection(ctx context.Context, name string) (repository.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty collection name", repository.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &DocumentRepository{db: b.db, collection: name}, nil
}

// Ping checks the database connection
func (b *Backend) Ping(ctx context.Context) error {
	return classify(b.db.PingContext(ctx), "ping database")
}

// Close closes the database
func (b *Backend) Close(context.Context) error {
	return b.db.Close()
}

// DocumentRepository implements repository.Collection for SQLite
type DocumentRepository struct {
	db         *DB
	collection string
}

// Name returns the collection name
func (r *DocumentRepository) Name() string {
	return r.collection
}

// InsertOne inserts a new document
func (r *DocumentRepository) InsertOne(ctx context.Context, doc repository.Document) error {
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("%w: document has no string id", repository.ErrInvalidInput)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encode document: %v", repository.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO documents (collection, id, body)
		VALUES (?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query, r.collection, id, string(body))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", repository.ErrDuplicateKey, id)
	}
	return classify(err, "insert document")
}

// FindOne returns the first document matching filter
func (r *DocumentRepository) FindOne(ctx context.Context, filter repository.Filter) (repository.Document, error) {
	where, args, err := r.where(filter)
	if err != nil {
		return nil, err
	}

	query := `SELECT body FROM documents WHERE ` + where + ` ORDER BY seq LIMIT 1`

	var body string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, "find document")
	}
	return decodeBody(body)
}

// Find returns matching documents ordered by insertion
func (r *DocumentRepository) Find(ctx context.Context, filter repository.Filter, opts repository.FindOptions) ([]repository.Document, error) {
	where, args, err := r.where(filter)
	if err != nil {
		return nil, err
	}

	query := `SELECT body FROM documents WHERE ` + where + ` ORDER BY seq`
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	} else if opts.Skip > 0 {
		query += " LIMIT -1"
	}
	if opts.Skip > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Skip)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "list documents")
	}
	defer rows.Close()

	docs := []repository.Document{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}

	return docs, nil
}

// Count returns the number of matching documents
func (r *DocumentRepository) Count(ctx context.Context, filter repository.Filter) (int64, error) {
	where, args, err := r.where(filter)
	if err != nil {
		return 0, err
	}

	var n int64
	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&n)
	if err != nil {
		return 0, classify(err, "count documents")
	}
	return n, nil
}

// UpdateOne merges patch into the first matching document inside a transaction
func (r *DocumentRepository) UpdateOne(ctx context.Context, filter repository.Filter, patch repository.Document) (repository.Document, error) {
	where, args, err := r.where(filter)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err, "begin transaction")
	}
	defer tx.Rollback()

	var (
		seq  int64
		body string
	)
	err = tx.QueryRowContext(ctx, `SELECT seq, body FROM documents WHERE `+where+` ORDER BY seq LIMIT 1`, args...).Scan(&seq, &body)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, "load document")
	}

	doc, err := decodeBody(body)
	if err != nil {
		return nil, err
	}
	doc.Merge(patch)
	if doc, err = repository.Normalize(doc); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode document: %v", repository.ErrInvalidInput, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE documents SET body = ? WHERE seq = ?`, string(encoded), seq); err != nil {
		return nil, classify(err, "update document")
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(err, "commit transaction")
	}

	return doc, nil
}

// DeleteOne removes the first matching document
func (r *DocumentRepository) DeleteOne(ctx context.Context, filter repository.Filter) error {
	where, args, err := r.where(filter)
	if err != nil {
		return err
	}

	query := `
		DELETE FROM documents
		WHERE seq = (SELECT seq FROM documents WHERE ` + where + ` ORDER BY seq LIMIT 1)
	`

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(err, "delete document")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// where builds the WHERE clause for a filter, always scoped to the collection.
func (r *DocumentRepository) where(filter repository.Filter) (string, []any, error) {
	if err := repository.ValidateFilter(filter); err != nil {
		return "", nil, err
	}

	conditions := []string{"collection = ?"}
	args := []any{r.collection}

	for _, field := range filter.Keys() {
		value := filter[field]
		if field == repository.IDField {
			conditions = append(conditions, "id = ?")
			args = append(args, value)
			continue
		}

		path := fmt.Sprintf(`$."%s"`, field)
		if value == nil {
			conditions = append(conditions, "json_extract(body, ?) IS NULL")
			args = append(args, path)
			continue
		}
		if b, ok := value.(bool); ok {
			value = 0
			if b {
				value = 1
			}
		}
		conditions = append(conditions, "json_extract(body, ?) = ?")
		args = append(args, path, value)
	}

	return strings.Join(conditions, " AND "), args, nil
}

func decodeBody(body string) (repository.Document, error) {
	return repository.DecodeJSON([]byte(body))
}
