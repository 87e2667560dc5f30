package classify

import (
	"fmt"
	"strings"

	"autoreply_worker/core/domain"
)

// PromptConfig carries institution-specific context embedded in every
// classification prompt.
type PromptConfig struct {
	InstitutionName string
	Instructions    string // operator-supplied reply guidance
	KnowledgeBase   string // optional excerpt grounding suggested replies
}

const maxPromptBody = 2000
const maxBatchSnippet = 500

func buildSystemPrompt(cfg PromptConfig) string {
	var sb strings.Builder

	institution := cfg.InstitutionName
	if institution == "" {
		institution = "the institution"
	}

	sb.WriteString(fmt.Sprintf(`You are an email triage assistant for %s. Analyze the email and respond with JSON only.

Categories (pick ONE):
- question: Asks something you can answer
- complaint: Dissatisfaction, frustration, escalation
- support: Needs help using the service
- spam: Unwanted or suspicious mail
- general: Anything else worth a polite reply

Priority: low, medium, high. Complaints are high unless trivially resolved.

should_reply: true when a reply helps the sender; always false for spam.

suggested_reply: a complete, polite reply in the sender's language when
should_reply is true, otherwise empty.
`, institution))

	if cfg.Instructions != "" {
		sb.WriteString("\nReply guidance (MUST follow):\n")
		sb.WriteString(cfg.Instructions)
		sb.WriteString("\n")
	}

	if cfg.KnowledgeBase != "" {
		sb.WriteString("\nKnowledge base excerpt (ground factual answers in this):\n")
		sb.WriteString(truncateText(cfg.KnowledgeBase, 3000))
		sb.WriteString("\n")
	}

	sb.WriteString(`
Respond with this exact JSON format:
{
  "should_reply": true,
  "priority": "low|medium|high",
  "category": "question|complaint|support|spam|general",
  "confidence": 0.0-1.0,
  "suggested_reply": "reply text or empty",
  "tags": ["tag1", "tag2"]
}`)

	return sb.String()
}

func buildUserPrompt(msg *domain.InboundMessage) string {
	from := msg.FromEmail
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
	}
	return fmt.Sprintf("From: %s\nSubject: %s\n\nBody:\n%s",
		from, msg.Subject, truncateText(msg.BodyPreview, maxPromptBody))
}

func buildBatchSystemPrompt(cfg PromptConfig) string {
	return buildSystemPrompt(cfg) + `

You will receive several emails, each tagged [index]. Respond with:
{
  "results": [
    {"index": 0, "should_reply": true, "priority": "medium", "category": "question", "confidence": 0.9, "suggested_reply": "...", "tags": []},
    ...
  ]
}
Include exactly one result per input index.`
}

func buildBatchUserPrompt(msgs []*domain.InboundMessage) string {
	var sb strings.Builder
	for i, msg := range msgs {
		sb.WriteString(fmt.Sprintf("[%d]\nFrom: %s\nSubject: %s\nSnippet: %s\n\n",
			i, msg.FromEmail, msg.Subject, truncateText(msg.BodyPreview, maxBatchSnippet)))
	}
	return sb.String()
}

func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
