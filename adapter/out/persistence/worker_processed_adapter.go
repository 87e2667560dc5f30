// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"autoreply_worker/core/domain"
	"autoreply_worker/core/port/out"
)

// =============================================================================
// Processed Message Adapter
// =============================================================================

// processedSchema creates the dedup table. message_id carries a unique
// constraint; the ON CONFLICT DO NOTHING insert against it is what makes
// replies at-most-once even with concurrent pollers.
const processedSchema = `
CREATE TABLE IF NOT EXISTS processed_messages (
    id           UUID PRIMARY KEY,
    message_id   TEXT NOT NULL UNIQUE,
    subject      TEXT NOT NULL DEFAULT '',
    from_email   TEXT NOT NULL DEFAULT '',
    category     TEXT NOT NULL,
    priority     TEXT NOT NULL,
    should_reply BOOLEAN NOT NULL,
    confidence   DOUBLE PRECISION NOT NULL,
    source       TEXT NOT NULL,
    model_used   TEXT,
    tokens_used  INTEGER NOT NULL DEFAULT 0,
    tags         TEXT[],
    reply_text   TEXT,
    status       TEXT NOT NULL,
    error_detail TEXT,
    processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_processed_messages_processed_at
    ON processed_messages (processed_at DESC);
`

// ProcessedAdapter implements out.ProcessedStore on Postgres.
type ProcessedAdapter struct {
	db *sqlx.DB
}

// NewProcessedAdapter creates a new ProcessedAdapter.
func NewProcessedAdapter(db *sqlx.DB) *ProcessedAdapter {
	return &ProcessedAdapter{db: db}
}

// EnsureSchema creates the table if it does not exist.
func (a *ProcessedAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, processedSchema); err != nil {
		return fmt.Errorf("failed to create processed_messages schema: %w", err)
	}
	return nil
}

// processedRow represents the database row.
type processedRow struct {
	ID          uuid.UUID      `db:"id"`
	MessageID   string         `db:"message_id"`
	Subject     string         `db:"subject"`
	FromEmail   string         `db:"from_email"`
	Category    string         `db:"category"`
	Priority    string         `db:"priority"`
	ShouldReply bool           `db:"should_reply"`
	Confidence  float64        `db:"confidence"`
	Source      string         `db:"source"`
	ModelUsed   sql.NullString `db:"model_used"`
	TokensUsed  int            `db:"tokens_used"`
	Tags        pq.StringArray `db:"tags"`
	ReplyText   sql.NullString `db:"reply_text"`
	Status      string         `db:"status"`
	ErrorDetail sql.NullString `db:"error_detail"`
	ProcessedAt time.Time      `db:"processed_at"`
}

func (r *processedRow) toEntity() *domain.ProcessedRecord {
	rec := &domain.ProcessedRecord{
		ID:        r.ID,
		MessageID: r.MessageID,
		Subject:   r.Subject,
		FromEmail: r.FromEmail,
		Classification: domain.ClassificationResult{
			ShouldReply: r.ShouldReply,
			Priority:    domain.Priority(r.Priority),
			Category:    domain.Category(r.Category),
			Confidence:  r.Confidence,
			Tags:        []string(r.Tags),
			Source:      domain.ClassificationSource(r.Source),
			ModelUsed:   r.ModelUsed.String,
			TokensUsed:  r.TokensUsed,
		},
		Status:      domain.ProcessedStatus(r.Status),
		ProcessedAt: r.ProcessedAt,
	}
	if r.ReplyText.Valid {
		rec.ReplyText = &r.ReplyText.String
	}
	if r.ErrorDetail.Valid {
		rec.ErrorDetail = &r.ErrorDetail.String
	}
	return rec
}

// HasProcessed reports whether a record exists for the message ID.
func (a *ProcessedAdapter) HasProcessed(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM processed_messages WHERE message_id = $1)`

	if err := a.db.GetContext(ctx, &exists, query, messageID); err != nil {
		return false, fmt.Errorf("failed to check processed message: %w", err)
	}
	return exists, nil
}

// RecordOutcome persists the record. A duplicate message_id is a silent
// no-op; the first record wins.
func (a *ProcessedAdapter) RecordOutcome(ctx context.Context, rec *domain.ProcessedRecord) error {
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	processedAt := rec.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO processed_messages (
			id, message_id, subject, from_email,
			category, priority, should_reply, confidence, source, model_used, tokens_used, tags,
			reply_text, status, error_detail, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (message_id) DO NOTHING`

	_, err := a.db.ExecContext(ctx, query,
		id,
		rec.MessageID,
		rec.Subject,
		rec.FromEmail,
		string(rec.Classification.Category),
		string(rec.Classification.Priority),
		rec.Classification.ShouldReply,
		rec.Classification.Confidence,
		string(rec.Classification.Source),
		nullString(rec.Classification.ModelUsed),
		rec.Classification.TokensUsed,
		pq.Array(rec.Classification.Tags),
		nullStringPtr(rec.ReplyText),
		string(rec.Status),
		nullStringPtr(rec.ErrorDetail),
		processedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// ListRecent returns records processed within the window, newest first.
func (a *ProcessedAdapter) ListRecent(ctx context.Context, window time.Duration) ([]*domain.ProcessedRecord, error) {
	cutoff := time.Now().UTC().Add(-window)

	var rows []processedRow
	query := `SELECT * FROM processed_messages WHERE processed_at >= $1 ORDER BY processed_at DESC`

	if err := a.db.SelectContext(ctx, &rows, query, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list recent records: %w", err)
	}

	records := make([]*domain.ProcessedRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].toEntity()
	}
	return records, nil
}

// Clear deletes all records and returns how many were removed.
func (a *ProcessedAdapter) Clear(ctx context.Context) (int64, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM processed_messages`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear processed messages: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

var _ out.ProcessedStore = (*ProcessedAdapter)(nil)
