// Package classify implements the message classifiers: an LLM-backed
// classifier and a deterministic keyword fallback.
package classify

import (
	"context"
	"strings"

	"autoreply_worker/core/domain"
	"autoreply_worker/core/port/out"
)

// KeywordLists holds the category word lists. Product-specific tuning
// lives in configuration, not here; these are only shipped defaults.
type KeywordLists struct {
	Question  []string
	Complaint []string
	Support   []string
	Spam      []string
}

// DefaultKeywordLists returns the shipped word lists. The audience is
// Brazilian applicants, so Portuguese terms sit next to English ones.
func DefaultKeywordLists() KeywordLists {
	return KeywordLists{
		Question: []string{
			"?", "how ", "what ", "when ", "where ", "which ",
			"como ", "quando ", "onde ", "qual ", "dúvida", "duvida", "pergunta",
		},
		Complaint: []string{
			"complaint", "unacceptable", "disappointed", "refund", "terrible",
			"reclamação", "reclamacao", "insatisf", "absurdo", "péssimo", "pessimo",
		},
		Support: []string{
			"help", "support", "error", "cannot", "can't", "not working", "broken",
			"ajuda", "suporte", "erro", "não consigo", "nao consigo", "problema",
		},
		Spam: []string{
			"unsubscribe", "lottery", "prize", "winner", "bitcoin", "casino",
			"click here", "limited offer", "ganhe dinheiro",
		},
	}
}

// KeywordClassifier is the deterministic local fallback. It guarantees a
// usable decision even when the LLM backend is degraded.
type KeywordClassifier struct {
	lists KeywordLists
}

// NewKeywordClassifier creates a keyword classifier.
func NewKeywordClassifier(lists KeywordLists) *KeywordClassifier {
	if len(lists.Question) == 0 && len(lists.Complaint) == 0 &&
		len(lists.Support) == 0 && len(lists.Spam) == 0 {
		lists = DefaultKeywordLists()
	}
	return &KeywordClassifier{lists: lists}
}

// Classify matches subject+body against the word lists. Checks run in
// precedence order: spam wins over complaint wins over support wins over
// question; no match means general.
func (c *KeywordClassifier) Classify(_ context.Context, msg *domain.InboundMessage) (*domain.ClassificationResult, error) {
	text := strings.ToLower(msg.Subject + " " + msg.BodyPreview)

	if tags := matchAny(text, c.lists.Spam); len(tags) > 0 {
		return &domain.ClassificationResult{
			ShouldReply: false,
			Priority:    domain.PriorityLow,
			Category:    domain.CategorySpam,
			Confidence:  0.8,
			Tags:        tags,
			Source:      domain.ClassificationSourceKeyword,
		}, nil
	}

	if tags := matchAny(text, c.lists.Complaint); len(tags) > 0 {
		return &domain.ClassificationResult{
			ShouldReply: true,
			Priority:    domain.PriorityHigh,
			Category:    domain.CategoryComplaint,
			Confidence:  0.7,
			Tags:        tags,
			Source:      domain.ClassificationSourceKeyword,
		}, nil
	}

	if tags := matchAny(text, c.lists.Support); len(tags) > 0 {
		return &domain.ClassificationResult{
			ShouldReply: true,
			Priority:    domain.PriorityMedium,
			Category:    domain.CategorySupport,
			Confidence:  0.7,
			Tags:        tags,
			Source:      domain.ClassificationSourceKeyword,
		}, nil
	}

	if tags := matchAny(text, c.lists.Question); len(tags) > 0 {
		return &domain.ClassificationResult{
			ShouldReply: true,
			Priority:    domain.PriorityMedium,
			Category:    domain.CategoryQuestion,
			Confidence:  0.7,
			Tags:        tags,
			Source:      domain.ClassificationSourceKeyword,
		}, nil
	}

	return &domain.ClassificationResult{
		ShouldReply: true,
		Priority:    domain.PriorityMedium,
		Category:    domain.CategoryGeneral,
		Confidence:  0.5,
		Source:      domain.ClassificationSourceKeyword,
	}, nil
}

// ClassifyBatch classifies each message individually; the keyword matcher
// has no batching advantage.
func (c *KeywordClassifier) ClassifyBatch(ctx context.Context, msgs []*domain.InboundMessage) ([]*domain.ClassificationResult, error) {
	results := make([]*domain.ClassificationResult, len(msgs))
	for i, msg := range msgs {
		res, err := c.Classify(ctx, msg)
		if err != nil {
			return nil, err
		}
		results[i] = res
	}
	return results, nil
}

func matchAny(text string, words []string) []string {
	var matched []string
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			matched = append(matched, strings.TrimSpace(w))
		}
	}
	return matched
}

var _ out.Classifier = (*KeywordClassifier)(nil)
