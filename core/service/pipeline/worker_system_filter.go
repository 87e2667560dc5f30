// Package pipeline runs the per-cycle processing flow: fetch unread mail,
// drop duplicates and system mail, classify, reply, record outcomes.
package pipeline

import (
	"regexp"
	"strings"

	"autoreply_worker/core/domain"
)

// SystemMailPolicy decides which senders never get an automated reply.
// Replying to bounce notifications or to the mailbox's own address
// creates mail loops, so these are filtered before classification.
type SystemMailPolicy struct {
	SenderSubstrings []string // matched against the local part and full address
	SubjectKeywords  []string
	SystemDomains    []string // matched against the sender domain
	OwnerAddress     string   // the mailbox's own address
}

// DefaultSystemMailPolicy returns the shipped filter lists.
func DefaultSystemMailPolicy(ownerAddress string) SystemMailPolicy {
	return SystemMailPolicy{
		SenderSubstrings: []string{
			"no-reply", "noreply", "no_reply", "donotreply", "do-not-reply",
			"mailer-daemon", "postmaster", "bounce", "notification",
			"notificac", "newsletter", "marketing",
		},
		SubjectKeywords: []string{
			"undeliverable", "delivery failure", "delivery status",
			"mail delivery", "returned mail", "out of office",
			"automatic reply", "auto-reply", "autoreply",
			"resposta automática", "resposta automatica", "ausência do escritório",
		},
		SystemDomains: []string{
			"mailchimp.com", "sendgrid.net", "amazonses.com", "mailgun.org",
		},
		OwnerAddress: strings.ToLower(strings.TrimSpace(ownerAddress)),
	}
}

// selfReplyPattern matches subjects whose reply chain already contains
// two or more "Re:" prefixes. A self-addressed message with such a
// subject is almost certainly our own auto-reply echoed back.
var selfReplyPattern = regexp.MustCompile(`(?i)^(re:\s*){2,}`)

// IsSystemMail reports whether the message must be recorded without a
// reply. Mail from the mailbox's own address is only treated as system
// mail when the subject shows a reply loop; operators do mail the
// mailbox directly to test it.
func (p SystemMailPolicy) IsSystemMail(msg *domain.InboundMessage) bool {
	sender := msg.SenderLower()

	if p.OwnerAddress != "" && sender == p.OwnerAddress {
		return selfReplyPattern.MatchString(strings.TrimSpace(msg.Subject))
	}

	for _, sub := range p.SenderSubstrings {
		if sub != "" && strings.Contains(sender, sub) {
			return true
		}
	}

	senderDomain := msg.SenderDomain()
	for _, dom := range p.SystemDomains {
		if dom != "" && (senderDomain == dom || strings.HasSuffix(senderDomain, "."+dom)) {
			return true
		}
	}

	subject := strings.ToLower(msg.Subject)
	for _, kw := range p.SubjectKeywords {
		if kw != "" && strings.Contains(subject, kw) {
			return true
		}
	}

	return false
}
