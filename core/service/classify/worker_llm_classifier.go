package classify

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"autoreply_worker/core/domain"
	"autoreply_worker/core/port/out"
	"autoreply_worker/pkg/logger"
)

// Completer is the completion backend the LLM classifier calls.
// *Client implements it; tests substitute fakes.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (completion string, tokensUsed int, err error)
	Model() string
}

// LLMClassifier classifies messages with a remote LLM and falls back to
// the deterministic keyword classifier on any failure. Classify never
// returns an error: a degraded backend downgrades silently to the
// fallback so the pipeline always gets a usable decision.
type LLMClassifier struct {
	completer Completer
	fallback  *KeywordClassifier
	prompts   PromptConfig
}

// NewLLMClassifier creates an LLM classifier with a keyword fallback.
func NewLLMClassifier(completer Completer, fallback *KeywordClassifier, prompts PromptConfig) *LLMClassifier {
	if fallback == nil {
		fallback = NewKeywordClassifier(DefaultKeywordLists())
	}
	return &LLMClassifier{
		completer: completer,
		fallback:  fallback,
		prompts:   prompts,
	}
}

// Classify produces a decision for a single message.
func (c *LLMClassifier) Classify(ctx context.Context, msg *domain.InboundMessage) (*domain.ClassificationResult, error) {
	raw, tokens, err := c.completer.CompleteJSON(ctx, buildSystemPrompt(c.prompts), buildUserPrompt(msg))
	if err != nil {
		logger.Warn("[LLMClassifier] backend failed for %s, using keyword fallback: %v", msg.ExternalID, err)
		return c.fallback.Classify(ctx, msg)
	}

	result, err := parseClassification(raw)
	if err != nil {
		logger.Warn("[LLMClassifier] unparseable response for %s, using keyword fallback: %v", msg.ExternalID, err)
		return c.fallback.Classify(ctx, msg)
	}

	result.ModelUsed = c.completer.Model()
	result.TokensUsed = tokens
	return result, nil
}

// batchResponse is the JSON shape of a batched classification call.
type batchResponse struct {
	Results []struct {
		Index int `json:"index"`
		classificationResponse
	} `json:"results"`
}

// ClassifyBatch classifies messages in one call where possible. A failed
// batch call degrades to individual Classify calls, so one bad message
// never loses its siblings.
func (c *LLMClassifier) ClassifyBatch(ctx context.Context, msgs []*domain.InboundMessage) ([]*domain.ClassificationResult, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	if len(msgs) == 1 {
		res, err := c.Classify(ctx, msgs[0])
		if err != nil {
			return nil, err
		}
		return []*domain.ClassificationResult{res}, nil
	}

	results, err := c.classifyBatchCall(ctx, msgs)
	if err == nil {
		return results, nil
	}
	logger.Warn("[LLMClassifier] batch call failed for %d messages, classifying individually: %v", len(msgs), err)

	results = make([]*domain.ClassificationResult, len(msgs))
	for i, msg := range msgs {
		res, cerr := c.Classify(ctx, msg)
		if cerr != nil {
			return nil, cerr
		}
		results[i] = res
	}
	return results, nil
}

func (c *LLMClassifier) classifyBatchCall(ctx context.Context, msgs []*domain.InboundMessage) ([]*domain.ClassificationResult, error) {
	raw, tokens, err := c.completer.CompleteJSON(ctx, buildBatchSystemPrompt(c.prompts), buildBatchUserPrompt(msgs))
	if err != nil {
		return nil, err
	}
	// One call covered the whole batch; charge each message its share.
	tokensPer := tokens / len(msgs)

	obj, ok := extractJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object in batch response")
	}

	var resp batchResponse
	if err := json.Unmarshal([]byte(obj), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse batch response: %w", err)
	}

	results := make([]*domain.ClassificationResult, len(msgs))
	for _, entry := range resp.Results {
		if entry.Index < 0 || entry.Index >= len(msgs) {
			continue
		}
		res, err := normalizeClassification(&entry.classificationResponse)
		if err != nil {
			continue // fallback fills this slot below
		}
		res.ModelUsed = c.completer.Model()
		res.TokensUsed = tokensPer
		results[entry.Index] = res
	}

	// A missing or invalid entry for one message must not lose the batch.
	for i, res := range results {
		if res == nil {
			fb, err := c.fallback.Classify(ctx, msgs[i])
			if err != nil {
				return nil, err
			}
			results[i] = fb
		}
	}

	return results, nil
}

var _ out.Classifier = (*LLMClassifier)(nil)
