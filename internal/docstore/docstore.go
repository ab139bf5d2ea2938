// Package docstore persists document records and their lifecycle status.
package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the document id is unknown.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyExists indicates a create with a duplicate id.
	ErrAlreadyExists = errors.New("document already exists")
)

// Status is the persisted lifecycle stage of a document. The in-flight
// ingestion stages (uploading, chunking, embedding) all persist as
// StatusProcessing; only the terminal stages are distinguished durably.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusIndexed    Status = "indexed"
	StatusError      Status = "error"
)

// Valid reports whether s is one of the persisted statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusIndexed, StatusError:
		return true
	}
	return false
}

// Document is the stored record for one uploaded document. Content holds
// the extracted plain text, not the original bytes.
type Document struct {
	ID        string
	Name      string
	MediaType string
	SizeBytes int64
	Owner     string
	Content   string
	Status    Status
	// ErrorDetail carries the failure reason while Status is StatusError.
	ErrorDetail string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store persists documents. UpdateStatus is idempotent: re-applying the
// current status is a no-op, not an error.
type Store interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]*Document, error)
	UpdateStatus(ctx context.Context, id string, status Status, errorDetail string) error
	Delete(ctx context.Context, id string) error
	Close() error
}
