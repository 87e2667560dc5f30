package out

import (
	"context"

	"autoreply_worker/core/domain"
)

// Classifier decides whether and how to reply to a message.
type Classifier interface {
	// Classify produces a decision for a single message.
	Classify(ctx context.Context, msg *domain.InboundMessage) (*domain.ClassificationResult, error)

	// ClassifyBatch classifies several messages together. Results are
	// positional: results[i] corresponds to msgs[i]. Partial failure of
	// one message must not lose the others.
	ClassifyBatch(ctx context.Context, msgs []*domain.InboundMessage) ([]*domain.ClassificationResult, error)
}
