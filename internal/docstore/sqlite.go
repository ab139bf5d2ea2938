package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	media_type   TEXT NOT NULL DEFAULT '',
	size_bytes   INTEGER NOT NULL DEFAULT 0,
	owner        TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	error_detail TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`

// SQLiteStore persists documents in an embedded sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at path. ":memory:" is
// accepted for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single writer keeps sqlite's locking out of the picture.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Create inserts a new document record.
func (s *SQLiteStore) Create(ctx context.Context, doc *Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = StatusProcessing
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, name, media_type, size_bytes, owner, content, status, error_detail, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.MediaType, doc.SizeBytes, doc.Owner, doc.Content,
		string(doc.Status), doc.ErrorDetail, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, doc.ID)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Get returns the document by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, media_type, size_bytes, owner, content, status, error_detail, created_at, updated_at
		 FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// List returns every document, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, media_type, size_bytes, owner, content, status, error_detail, created_at, updated_at
		 FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateStatus sets the document's status. Re-applying the current status
// only refreshes updated_at; unknown ids return ErrNotFound.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status Status, errorDetail string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error_detail = ?, updated_at = ? WHERE id = ?`,
		string(status), errorDetail, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Delete removes the document record.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var status string
	err := row.Scan(&doc.ID, &doc.Name, &doc.MediaType, &doc.SizeBytes, &doc.Owner,
		&doc.Content, &status, &doc.ErrorDetail, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Status = Status(status)
	return &doc, nil
}
