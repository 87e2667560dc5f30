package domain

// Category represents the AI-assigned message category.
type Category string

const (
	CategoryQuestion  Category = "question"  // Asks something answerable
	CategoryComplaint Category = "complaint" // Dissatisfaction, escalation material
	CategorySupport   Category = "support"   // Needs help with the product
	CategorySpam      Category = "spam"      // Unwanted mail, never replied to
	CategoryGeneral   Category = "general"   // Everything else worth a reply
	CategorySystem    Category = "system"    // System-originated, excluded before classification
)

// IsValid checks if the category is one of the known values.
func (c Category) IsValid() bool {
	switch c {
	case CategoryQuestion, CategoryComplaint, CategorySupport,
		CategorySpam, CategoryGeneral, CategorySystem:
		return true
	}
	return false
}

// Priority represents the reply urgency of a message.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// IsValid checks if the priority is one of the known values.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ClassificationSource indicates how the classification was determined.
type ClassificationSource string

const (
	ClassificationSourceLLM     ClassificationSource = "llm"     // Remote LLM call
	ClassificationSourceKeyword ClassificationSource = "keyword" // Deterministic keyword fallback
	ClassificationSourceSystem  ClassificationSource = "system"  // System-mail short-circuit
)

// ClassificationResult is the decision produced once per message.
// Never mutated after creation.
type ClassificationResult struct {
	ShouldReply    bool                 `json:"should_reply"`
	Priority       Priority             `json:"priority"`
	Category       Category             `json:"category"`
	Confidence     float64              `json:"confidence"` // 0.0 - 1.0
	SuggestedReply string               `json:"suggested_reply,omitempty"`
	Tags           []string             `json:"tags,omitempty"`
	Source         ClassificationSource `json:"source"`

	// Processing info
	ModelUsed  string `json:"model_used,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// SystemClassification returns the fixed result recorded for
// system-originated mail that never reaches the classifier.
func SystemClassification() ClassificationResult {
	return ClassificationResult{
		ShouldReply: false,
		Priority:    PriorityLow,
		Category:    CategorySystem,
		Confidence:  1.0,
		Source:      ClassificationSourceSystem,
	}
}
