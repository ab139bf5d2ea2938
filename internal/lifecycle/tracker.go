// Package lifecycle tracks each document's ingestion stage and keeps the
// persisted status consistent with it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bull/docchat/internal/docstore"
)

// Stage is the fine-grained in-flight ingestion state. Only the coarse
// processing/indexed/error distinction is persisted; stages exist so
// consumers can show progress.
type Stage string

const (
	StageUploading Stage = "uploading"
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
	StageIndexed   Stage = "indexed"
	StageError     Stage = "error"
)

// ErrInvalidTransition indicates a stage change the state machine forbids.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// transitions lists the allowed forward edges. StageError is reachable from
// every non-terminal stage and handled separately.
var transitions = map[Stage]Stage{
	StageUploading: StageChunking,
	StageChunking:  StageEmbedding,
	StageEmbedding: StageIndexed,
}

// Tracker maintains per-document stages and mirrors terminal states into
// the document store. A fresh Begin supersedes any prior attempt for the
// same id; resuming a previous attempt is never supported.
type Tracker struct {
	store  docstore.Store
	logger *slog.Logger

	mu     sync.RWMutex
	stages map[string]Stage
}

// NewTracker creates a tracker over the given document store.
func NewTracker(store docstore.Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:  store,
		logger: logger,
		stages: make(map[string]Stage),
	}
}

// Begin starts a fresh ingestion attempt at StageUploading and persists the
// processing status.
func (t *Tracker) Begin(ctx context.Context, docID string) error {
	t.mu.Lock()
	t.stages[docID] = StageUploading
	t.mu.Unlock()

	if err := t.store.UpdateStatus(ctx, docID, docstore.StatusProcessing, ""); err != nil {
		return fmt.Errorf("persist processing status: %w", err)
	}
	return nil
}

// Advance moves the document to the next stage. Re-applying the current
// stage is a no-op; skipping stages or moving backwards fails.
func (t *Tracker) Advance(ctx context.Context, docID string, to Stage) error {
	t.mu.Lock()
	current, ok := t.stages[docID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: no ingestion in flight for %s", ErrInvalidTransition, docID)
	}
	if current == to {
		t.mu.Unlock()
		return nil
	}
	if transitions[current] != to {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
	}
	t.stages[docID] = to
	t.mu.Unlock()

	if to == StageIndexed {
		if err := t.store.UpdateStatus(ctx, docID, docstore.StatusIndexed, ""); err != nil {
			return fmt.Errorf("persist indexed status: %w", err)
		}
	}
	return nil
}

// Fail moves the document to StageError from any non-terminal stage and
// persists the terminal error status best-effort: a failure to write the
// status is logged, not escalated, since the document is already degraded.
func (t *Tracker) Fail(ctx context.Context, docID string, cause error) {
	t.mu.Lock()
	current := t.stages[docID]
	if current == StageIndexed {
		t.mu.Unlock()
		t.logger.Warn("ignoring failure for already-indexed document", "doc", docID, "error", cause)
		return
	}
	t.stages[docID] = StageError
	t.mu.Unlock()

	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	if err := t.store.UpdateStatus(ctx, docID, docstore.StatusError, detail); err != nil {
		t.logger.Error("failed to persist error status", "doc", docID, "cause", cause, "error", err)
	}
}

// Stage returns the current in-flight stage, or false when no attempt is
// tracked for the id.
func (t *Tracker) Stage(docID string) (Stage, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stage, ok := t.stages[docID]
	return stage, ok
}
