package domain

import (
	"strings"
	"time"
)

// InboundMessage is a message fetched from the mailbox provider.
// Immutable once fetched; owned by the provider adapter for the
// duration of a single processing cycle.
type InboundMessage struct {
	ExternalID  string    `json:"external_id"`
	Subject     string    `json:"subject"`
	FromEmail   string    `json:"from_email"`
	FromName    string    `json:"from_name,omitempty"`
	BodyPreview string    `json:"body_preview"`
	ReceivedAt  time.Time `json:"received_at"`
	IsRead      bool      `json:"is_read"`
}

// SenderDomain returns the domain part of the sender address, lowercased.
// Returns "" when the address has no @.
func (m *InboundMessage) SenderDomain() string {
	at := strings.LastIndex(m.FromEmail, "@")
	if at < 0 || at == len(m.FromEmail)-1 {
		return ""
	}
	return strings.ToLower(m.FromEmail[at+1:])
}

// SenderLower returns the sender address lowercased and trimmed.
func (m *InboundMessage) SenderLower() string {
	return strings.ToLower(strings.TrimSpace(m.FromEmail))
}
