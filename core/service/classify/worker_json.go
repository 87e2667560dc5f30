package classify

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"autoreply_worker/core/domain"
)

// classificationResponse is the JSON shape the LLM is asked to return.
type classificationResponse struct {
	ShouldReply    bool     `json:"should_reply"`
	Priority       string   `json:"priority"`
	Category       string   `json:"category"`
	Confidence     float64  `json:"confidence"`
	SuggestedReply string   `json:"suggested_reply"`
	Tags           []string `json:"tags"`
}

// extractJSONObject returns the first balanced {...} object in s.
// Backends wrap JSON in prose or code fences, so scanning for the object
// beats trusting the raw response.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// parseClassification extracts and validates a ClassificationResult from a
// raw LLM response.
func parseClassification(raw string) (*domain.ClassificationResult, error) {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var resp classificationResponse
	if err := json.Unmarshal([]byte(obj), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse classification response: %w", err)
	}

	return normalizeClassification(&resp)
}

// normalizeClassification maps a raw response onto the domain shape,
// rejecting unknown categories and clamping out-of-range values.
func normalizeClassification(resp *classificationResponse) (*domain.ClassificationResult, error) {
	category := domain.Category(strings.ToLower(strings.TrimSpace(resp.Category)))
	if category == "" {
		category = domain.CategoryGeneral
	}
	if !category.IsValid() || category == domain.CategorySystem {
		// The classifier never decides "system"; that is the filter's call.
		return nil, fmt.Errorf("unknown category %q", resp.Category)
	}

	priority := domain.Priority(strings.ToLower(strings.TrimSpace(resp.Priority)))
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.IsValid() {
		return nil, fmt.Errorf("unknown priority %q", resp.Priority)
	}

	confidence := resp.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &domain.ClassificationResult{
		ShouldReply:    resp.ShouldReply && category != domain.CategorySpam,
		Priority:       priority,
		Category:       category,
		Confidence:     confidence,
		SuggestedReply: strings.TrimSpace(resp.SuggestedReply),
		Tags:           resp.Tags,
		Source:         domain.ClassificationSourceLLM,
	}, nil
}
