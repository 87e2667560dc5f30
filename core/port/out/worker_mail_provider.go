// Package out defines outbound ports implemented by adapters.
package out

import (
	"context"

	"autoreply_worker/core/domain"
)

// MailProvider wraps the remote mailbox API.
//
// All operations are rate-limited by the implementation; callers block
// until admitted rather than receiving a rejection.
type MailProvider interface {
	// ListUnread fetches up to limit unread messages, newest first.
	// Zero unread messages yields an empty slice, never an error.
	ListUnread(ctx context.Context, limit int) ([]*domain.InboundMessage, error)

	// MarkRead marks a message as read. Idempotent; failures surface to
	// the caller and are not retried internally.
	MarkRead(ctx context.Context, messageID string) error

	// SendReply sends a reply on the message's thread. A credential
	// missing send scope yields a permission error (apperr
	// CodePermissionDenied); anything else is a transport error.
	SendReply(ctx context.Context, messageID, body string) error

	// Address returns the mailbox owner's own address.
	Address() string
}
