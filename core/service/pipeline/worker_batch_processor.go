package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"autoreply_worker/core/domain"
	"autoreply_worker/core/port/out"
	"autoreply_worker/pkg/apperr"
)

// ===== Configuration =====

// ProcessorConfig tunes one processing cycle.
type ProcessorConfig struct {
	FetchLimit int           // max unread messages fetched per cycle
	BatchSize  int           // messages per classification call
	BatchDelay time.Duration // pause between batches, spreads LLM load
}

// DefaultProcessorConfig returns the shipped cycle tuning.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		FetchLimit: 20,
		BatchSize:  1,
		BatchDelay: 5 * time.Minute,
	}
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.FetchLimit <= 0 {
		c.FetchLimit = 20
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	return c
}

// ===== Cycle stats =====

// CycleStats summarizes one completed processing cycle.
type CycleStats struct {
	Fetched    int `json:"fetched"`
	Duplicates int `json:"duplicates"`
	SystemMail int `json:"system_mail"`
	Replied    int `json:"replied"`
	Processed  int `json:"processed"` // handled without a reply
	Errors     int `json:"errors"`
}

// Handled returns how many messages reached a terminal outcome.
func (s CycleStats) Handled() int {
	return s.SystemMail + s.Replied + s.Processed + s.Errors
}

// ===== Processor =====

// BatchProcessor runs one processing cycle: fetch unread messages, drop
// duplicates and system mail, classify the rest in batches, reply where
// warranted, and record every outcome.
//
// Failure of one message never aborts the cycle; each message reaches
// its own terminal outcome independently.
type BatchProcessor struct {
	provider   out.MailProvider
	classifier out.Classifier
	store      out.ProcessedStore
	policy     SystemMailPolicy
	cfg        ProcessorConfig
	log        zerolog.Logger
}

// NewBatchProcessor wires a processor from its ports.
func NewBatchProcessor(
	provider out.MailProvider,
	classifier out.Classifier,
	store out.ProcessedStore,
	policy SystemMailPolicy,
	cfg ProcessorConfig,
	log zerolog.Logger,
) *BatchProcessor {
	return &BatchProcessor{
		provider:   provider,
		classifier: classifier,
		store:      store,
		policy:     policy,
		cfg:        cfg.withDefaults(),
		log:        log.With().Str("component", "batch_processor").Logger(),
	}
}

// RunCycle executes one full cycle. It returns an error only when the
// cycle cannot start at all (fetch failure, cancelled context); once
// messages are in hand, per-message failures are absorbed into the
// stats and the cycle runs to completion.
func (p *BatchProcessor) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	msgs, err := p.provider.ListUnread(ctx, p.cfg.FetchLimit)
	if err != nil {
		return stats, fmt.Errorf("list unread: %w", err)
	}
	stats.Fetched = len(msgs)

	if len(msgs) == 0 {
		p.log.Debug().Msg("no unread messages")
		return stats, nil
	}
	p.log.Info().Int("count", len(msgs)).Msg("fetched unread messages")

	pending := p.filterMessages(ctx, msgs, &stats)
	if len(pending) == 0 {
		return stats, nil
	}

	for start := 0; start < len(pending); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}

		p.processBatch(ctx, pending[start:end], &stats)

		if end < len(pending) && p.cfg.BatchDelay > 0 {
			select {
			case <-time.After(p.cfg.BatchDelay):
			case <-ctx.Done():
				p.log.Warn().Int("remaining", len(pending)-end).Msg("cycle cancelled between batches")
				return stats, ctx.Err()
			}
		}
	}

	p.log.Info().
		Int("fetched", stats.Fetched).
		Int("duplicates", stats.Duplicates).
		Int("system", stats.SystemMail).
		Int("replied", stats.Replied).
		Int("errors", stats.Errors).
		Msg("cycle complete")

	return stats, nil
}

// filterMessages drops already-processed and system messages, returning
// only those that need classification.
func (p *BatchProcessor) filterMessages(ctx context.Context, msgs []*domain.InboundMessage, stats *CycleStats) []*domain.InboundMessage {
	pending := make([]*domain.InboundMessage, 0, len(msgs))

	for _, msg := range msgs {
		seen, err := p.store.HasProcessed(ctx, msg.ExternalID)
		if err != nil {
			// When the store cannot answer, skipping is the safe side:
			// a missed message returns next cycle, a double reply does not.
			p.log.Warn().Err(err).Str("message_id", msg.ExternalID).
				Msg("dedup check failed, skipping message this cycle")
			stats.Errors++
			continue
		}
		if seen {
			stats.Duplicates++
			continue
		}

		if p.policy.IsSystemMail(msg) {
			p.handleSystemMail(ctx, msg, stats)
			continue
		}

		pending = append(pending, msg)
	}

	return pending
}

// handleSystemMail records a system message without classifying or
// replying, and marks it read so it stops showing up as unread.
func (p *BatchProcessor) handleSystemMail(ctx context.Context, msg *domain.InboundMessage, stats *CycleStats) {
	p.log.Debug().Str("message_id", msg.ExternalID).Str("from", msg.FromEmail).
		Msg("system mail, recording without reply")

	if err := p.provider.MarkRead(ctx, msg.ExternalID); err != nil {
		p.log.Warn().Err(err).Str("message_id", msg.ExternalID).Msg("mark read failed")
	}

	sys := domain.SystemClassification()
	rec := newRecord(msg, &sys, domain.StatusProcessed)
	if err := p.store.RecordOutcome(ctx, rec); err != nil {
		p.log.Error().Err(err).Str("message_id", msg.ExternalID).Msg("record system mail failed")
		stats.Errors++
		return
	}
	stats.SystemMail++
}

// processBatch classifies one batch and finishes each message. The
// classifier contract hides backend failures behind its fallback, but a
// hard error here still only costs this batch its classifications, not
// the cycle.
func (p *BatchProcessor) processBatch(ctx context.Context, batch []*domain.InboundMessage, stats *CycleStats) {
	results, err := p.classifier.ClassifyBatch(ctx, batch)
	if err != nil || len(results) != len(batch) {
		if err == nil {
			err = fmt.Errorf("classifier returned %d results for %d messages", len(results), len(batch))
		}
		p.log.Error().Err(err).Int("batch", len(batch)).Msg("batch classification failed")
		for _, msg := range batch {
			p.recordError(ctx, msg, nil, err, stats)
		}
		return
	}

	for i, msg := range batch {
		p.finishMessage(ctx, msg, results[i], stats)
	}
}

// finishMessage replies when warranted, marks the message read, and
// records exactly one terminal outcome.
func (p *BatchProcessor) finishMessage(ctx context.Context, msg *domain.InboundMessage, result *domain.ClassificationResult, stats *CycleStats) {
	status := domain.StatusProcessed
	var replyText *string

	if result.ShouldReply && result.SuggestedReply != "" {
		if err := p.provider.SendReply(ctx, msg.ExternalID, result.SuggestedReply); err != nil {
			if apperr.IsPermission(err) {
				p.log.Error().Err(err).Str("message_id", msg.ExternalID).
					Msg("reply rejected: credential lacks send permission")
			} else {
				p.log.Error().Err(err).Str("message_id", msg.ExternalID).Msg("send reply failed")
			}
			p.recordError(ctx, msg, result, err, stats)
			return
		}
		status = domain.StatusReplied
		replyText = &result.SuggestedReply
		p.log.Info().Str("message_id", msg.ExternalID).
			Str("category", string(result.Category)).
			Str("priority", string(result.Priority)).
			Msg("reply sent")
	}

	// Read-state is cosmetic next to the reply, so a failure here is
	// logged and the outcome still recorded.
	if err := p.provider.MarkRead(ctx, msg.ExternalID); err != nil {
		p.log.Warn().Err(err).Str("message_id", msg.ExternalID).Msg("mark read failed")
	}

	rec := newRecord(msg, result, status)
	rec.ReplyText = replyText
	if err := p.store.RecordOutcome(ctx, rec); err != nil {
		p.log.Error().Err(err).Str("message_id", msg.ExternalID).Msg("record outcome failed")
		stats.Errors++
		return
	}

	if status == domain.StatusReplied {
		stats.Replied++
	} else {
		stats.Processed++
	}
}

// recordError writes an error outcome so the message is not retried
// forever. The classification may be nil when the failure happened
// before a result existed.
func (p *BatchProcessor) recordError(ctx context.Context, msg *domain.InboundMessage, result *domain.ClassificationResult, cause error, stats *CycleStats) {
	if result == nil {
		result = &domain.ClassificationResult{
			Priority:   domain.PriorityLow,
			Category:   domain.CategoryGeneral,
			Confidence: 0,
			Source:     domain.ClassificationSourceKeyword,
		}
	}

	ae := apperr.AsAppError(cause)
	detail := fmt.Sprintf("[%s] %s", ae.Code, ae.Message)

	rec := newRecord(msg, result, domain.StatusError)
	rec.ErrorDetail = &detail
	if err := p.store.RecordOutcome(ctx, rec); err != nil {
		p.log.Error().Err(err).Str("message_id", msg.ExternalID).Msg("record error outcome failed")
	}
	stats.Errors++
}

func newRecord(msg *domain.InboundMessage, result *domain.ClassificationResult, status domain.ProcessedStatus) *domain.ProcessedRecord {
	return &domain.ProcessedRecord{
		ID:             uuid.New(),
		MessageID:      msg.ExternalID,
		Subject:        msg.Subject,
		FromEmail:      msg.FromEmail,
		Classification: *result,
		Status:         status,
		ProcessedAt:    time.Now().UTC(),
	}
}
