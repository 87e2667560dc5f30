package classify

import (
	"context"
	"testing"

	"autoreply_worker/core/domain"
)

func TestKeywordClassifier(t *testing.T) {
	classifier := NewKeywordClassifier(DefaultKeywordLists())

	tests := []struct {
		name            string
		subject         string
		body            string
		wantCategory    domain.Category
		wantPriority    domain.Priority
		wantShouldReply bool
	}{
		{
			name:            "portuguese complaint elevates priority",
			subject:         "Reclamação sobre o processo",
			body:            "Estou muito insatisfeito",
			wantCategory:    domain.CategoryComplaint,
			wantPriority:    domain.PriorityHigh,
			wantShouldReply: true,
		},
		{
			name:            "english complaint",
			subject:         "This is unacceptable",
			body:            "I want a refund",
			wantCategory:    domain.CategoryComplaint,
			wantPriority:    domain.PriorityHigh,
			wantShouldReply: true,
		},
		{
			name:            "support request",
			subject:         "Não consigo acessar minha conta",
			body:            "Aparece um erro quando tento entrar",
			wantCategory:    domain.CategorySupport,
			wantPriority:    domain.PriorityMedium,
			wantShouldReply: true,
		},
		{
			name:            "question mark classifies as question",
			subject:         "Admission deadline",
			body:            "When does the application close?",
			wantCategory:    domain.CategoryQuestion,
			wantPriority:    domain.PriorityMedium,
			wantShouldReply: true,
		},
		{
			name:            "spam never gets a reply",
			subject:         "You are our lottery WINNER",
			body:            "Click here to claim your prize",
			wantCategory:    domain.CategorySpam,
			wantPriority:    domain.PriorityLow,
			wantShouldReply: false,
		},
		{
			name:            "no match defaults to general",
			subject:         "Olá",
			body:            "Segue em anexo o documento solicitado",
			wantCategory:    domain.CategoryGeneral,
			wantPriority:    domain.PriorityMedium,
			wantShouldReply: true,
		},
		{
			name:            "spam wins over question",
			subject:         "Winner! How does it feel?",
			body:            "Click here",
			wantCategory:    domain.CategorySpam,
			wantPriority:    domain.PriorityLow,
			wantShouldReply: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &domain.InboundMessage{
				ExternalID:  "msg-1",
				Subject:     tt.subject,
				FromEmail:   "applicant@example.com",
				BodyPreview: tt.body,
			}

			res, err := classifier.Classify(context.Background(), msg)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}

			if res.Category != tt.wantCategory {
				t.Errorf("category = %q, want %q", res.Category, tt.wantCategory)
			}
			if res.Priority != tt.wantPriority {
				t.Errorf("priority = %q, want %q", res.Priority, tt.wantPriority)
			}
			if res.ShouldReply != tt.wantShouldReply {
				t.Errorf("shouldReply = %v, want %v", res.ShouldReply, tt.wantShouldReply)
			}
			if res.Source != domain.ClassificationSourceKeyword {
				t.Errorf("source = %q, want keyword", res.Source)
			}
		})
	}
}

// TestKeywordClassifierDeterministic runs the same message repeatedly and
// expects identical decisions every time.
func TestKeywordClassifierDeterministic(t *testing.T) {
	classifier := NewKeywordClassifier(DefaultKeywordLists())
	msg := &domain.InboundMessage{
		Subject:     "reclamação",
		BodyPreview: "problema com a matrícula",
	}

	first, err := classifier.Classify(context.Background(), msg)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}

	for i := 0; i < 10; i++ {
		res, err := classifier.Classify(context.Background(), msg)
		if err != nil {
			t.Fatalf("classify %d: %v", i, err)
		}
		if res.Category != first.Category || res.Priority != first.Priority ||
			res.ShouldReply != first.ShouldReply || res.Confidence != first.Confidence {
			t.Fatalf("run %d diverged: %+v vs %+v", i, res, first)
		}
	}
}
