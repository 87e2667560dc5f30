package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedStatus is the terminal outcome of one pass through the pipeline.
type ProcessedStatus string

const (
	StatusProcessed ProcessedStatus = "processed" // Handled, no reply sent
	StatusReplied   ProcessedStatus = "replied"   // Handled, reply sent
	StatusError     ProcessedStatus = "error"     // Handled, but a step failed
)

// IsValid checks if the status is one of the known values.
func (s ProcessedStatus) IsValid() bool {
	switch s {
	case StatusProcessed, StatusReplied, StatusError:
		return true
	}
	return false
}

// ProcessedRecord is the durable outcome of one message.
// At most one record exists per MessageID; this is the at-most-once-reply
// guarantee. Records are never mutated and only deleted by an explicit
// operator clear.
type ProcessedRecord struct {
	ID             uuid.UUID            `json:"id"`
	MessageID      string               `json:"message_id"` // Provider-assigned external ID
	Subject        string               `json:"subject"`
	FromEmail      string               `json:"from_email"`
	Classification ClassificationResult `json:"classification"`
	ReplyText      *string              `json:"reply_text,omitempty"`
	Status         ProcessedStatus      `json:"status"`
	ErrorDetail    *string              `json:"error_detail,omitempty"`
	ProcessedAt    time.Time            `json:"processed_at"`
}
