package out

import (
	"context"
	"time"

	"autoreply_worker/core/domain"
)

// ProcessedStore tracks which message IDs have been handled, across
// process restarts. It is the source of truth for "has this message
// already been handled" and must be consulted before any classification
// or reply attempt.
type ProcessedStore interface {
	// HasProcessed reports whether a record exists for the message ID,
	// reflecting the latest committed state at call time.
	HasProcessed(ctx context.Context, messageID string) (bool, error)

	// RecordOutcome persists the record. Inserting a duplicate message ID
	// is a silent no-op that preserves the first record, so concurrent
	// pollers cannot both claim a message.
	RecordOutcome(ctx context.Context, rec *domain.ProcessedRecord) error

	// ListRecent returns records processed within the window, newest first.
	ListRecent(ctx context.Context, window time.Duration) ([]*domain.ProcessedRecord, error)

	// Clear deletes all records. Operator action only.
	Clear(ctx context.Context) (int64, error)
}
