package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"autoreply_worker/core/domain"
)

// fakeCompleter scripts backend responses for the LLM classifier.
type fakeCompleter struct {
	response string
	tokens   int
	err      error
	calls    int
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, _, _ string) (string, int, error) {
	f.calls++
	if f.err != nil {
		return "", 0, f.err
	}
	return f.response, f.tokens, nil
}

func (f *fakeCompleter) Model() string { return "fake-model" }

func newTestLLMClassifier(completer Completer) *LLMClassifier {
	return NewLLMClassifier(completer, NewKeywordClassifier(DefaultKeywordLists()), PromptConfig{
		InstitutionName: "Test University",
	})
}

func TestLLMClassifierSuccess(t *testing.T) {
	completer := &fakeCompleter{
		response: `{"should_reply":true,"priority":"high","category":"complaint","confidence":0.95,"suggested_reply":"Lamentamos o ocorrido."}`,
		tokens:   321,
	}
	classifier := newTestLLMClassifier(completer)

	msg := &domain.InboundMessage{ExternalID: "m-1", Subject: "Problema", BodyPreview: "..."}
	res, err := classifier.Classify(context.Background(), msg)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}

	if res.Category != domain.CategoryComplaint || res.Priority != domain.PriorityHigh {
		t.Errorf("got %s/%s, want complaint/high", res.Category, res.Priority)
	}
	if res.Source != domain.ClassificationSourceLLM {
		t.Errorf("source = %q, want llm", res.Source)
	}
	if res.ModelUsed != "fake-model" {
		t.Errorf("modelUsed = %q, want fake-model", res.ModelUsed)
	}
	if res.TokensUsed != 321 {
		t.Errorf("tokensUsed = %d, want 321", res.TokensUsed)
	}
}

// A dead backend must degrade to the keyword fallback, never error out.
// The fallback decision for a Portuguese complaint is fixed: complaint,
// high priority, reply wanted.
func TestLLMClassifierFallbackOnBackendError(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("connection refused")}
	classifier := newTestLLMClassifier(completer)

	msg := &domain.InboundMessage{
		ExternalID:  "m-2",
		Subject:     "Reclamação",
		FromEmail:   "applicant@example.com",
		BodyPreview: "Estou esperando há semanas",
	}

	for i := 0; i < 5; i++ {
		res, err := classifier.Classify(context.Background(), msg)
		if err != nil {
			t.Fatalf("run %d: classify should not error when fallback works: %v", i, err)
		}
		if res.Category != domain.CategoryComplaint {
			t.Errorf("run %d: category = %q, want complaint", i, res.Category)
		}
		if res.Priority != domain.PriorityHigh {
			t.Errorf("run %d: priority = %q, want high", i, res.Priority)
		}
		if !res.ShouldReply {
			t.Errorf("run %d: shouldReply = false, want true", i)
		}
		if res.Source != domain.ClassificationSourceKeyword {
			t.Errorf("run %d: source = %q, want keyword", i, res.Source)
		}
	}
}

func TestLLMClassifierFallbackOnMalformedResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"prose without JSON", "I think this email is a complaint."},
		{"truncated JSON", `{"should_reply":true,"category":"comp`},
		{"invalid category", `{"should_reply":true,"category":"urgent","confidence":0.9}`},
	}

	msg := &domain.InboundMessage{
		ExternalID:  "m-3",
		Subject:     "Não consigo acessar o portal",
		BodyPreview: "aparece erro 500",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := newTestLLMClassifier(&fakeCompleter{response: tt.response})

			res, err := classifier.Classify(context.Background(), msg)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if res.Source != domain.ClassificationSourceKeyword {
				t.Errorf("source = %q, want keyword fallback", res.Source)
			}
			if res.Category != domain.CategorySupport {
				t.Errorf("category = %q, want support", res.Category)
			}
		})
	}
}

func TestLLMClassifierExtractsFencedJSON(t *testing.T) {
	completer := &fakeCompleter{
		response: "Sure! Here is the classification:\n```json\n{\"should_reply\":true,\"priority\":\"medium\",\"category\":\"question\",\"confidence\":0.88,\"suggested_reply\":\"The deadline is June 30.\"}\n```",
	}
	classifier := newTestLLMClassifier(completer)

	msg := &domain.InboundMessage{ExternalID: "m-4", Subject: "Deadline?"}
	res, err := classifier.Classify(context.Background(), msg)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Source != domain.ClassificationSourceLLM {
		t.Fatalf("source = %q, want llm (fenced JSON should parse)", res.Source)
	}
	if res.Category != domain.CategoryQuestion {
		t.Errorf("category = %q, want question", res.Category)
	}
	if res.SuggestedReply != "The deadline is June 30." {
		t.Errorf("suggestedReply = %q", res.SuggestedReply)
	}
}

func TestLLMClassifierBatch(t *testing.T) {
	msgs := []*domain.InboundMessage{
		{ExternalID: "b-0", Subject: "When do classes start?"},
		{ExternalID: "b-1", Subject: "Reclamação formal"},
		{ExternalID: "b-2", Subject: "Hello"},
	}

	t.Run("full batch response maps by index", func(t *testing.T) {
		completer := &fakeCompleter{response: `{"results":[
			{"index":2,"should_reply":true,"priority":"low","category":"general","confidence":0.6},
			{"index":0,"should_reply":true,"priority":"medium","category":"question","confidence":0.9},
			{"index":1,"should_reply":true,"priority":"high","category":"complaint","confidence":0.85}
		]}`}
		classifier := newTestLLMClassifier(completer)

		results, err := classifier.ClassifyBatch(context.Background(), msgs)
		if err != nil {
			t.Fatalf("classifyBatch: %v", err)
		}
		if len(results) != len(msgs) {
			t.Fatalf("got %d results, want %d", len(results), len(msgs))
		}
		if results[0].Category != domain.CategoryQuestion {
			t.Errorf("results[0] = %q, want question", results[0].Category)
		}
		if results[1].Category != domain.CategoryComplaint {
			t.Errorf("results[1] = %q, want complaint", results[1].Category)
		}
		if results[2].Category != domain.CategoryGeneral {
			t.Errorf("results[2] = %q, want general", results[2].Category)
		}
	})

	t.Run("missing index filled by fallback", func(t *testing.T) {
		completer := &fakeCompleter{response: `{"results":[
			{"index":0,"should_reply":true,"priority":"medium","category":"question","confidence":0.9},
			{"index":2,"should_reply":true,"priority":"low","category":"general","confidence":0.6}
		]}`}
		classifier := newTestLLMClassifier(completer)

		results, err := classifier.ClassifyBatch(context.Background(), msgs)
		if err != nil {
			t.Fatalf("classifyBatch: %v", err)
		}
		if results[1] == nil {
			t.Fatal("results[1] is nil, want fallback classification")
		}
		if results[1].Source != domain.ClassificationSourceKeyword {
			t.Errorf("results[1].source = %q, want keyword", results[1].Source)
		}
		if results[1].Category != domain.CategoryComplaint {
			t.Errorf("results[1] = %q, want complaint", results[1].Category)
		}
	})

	t.Run("dead backend degrades whole batch to fallback", func(t *testing.T) {
		completer := &fakeCompleter{err: fmt.Errorf("timeout")}
		classifier := newTestLLMClassifier(completer)

		results, err := classifier.ClassifyBatch(context.Background(), msgs)
		if err != nil {
			t.Fatalf("classifyBatch: %v", err)
		}
		if len(results) != len(msgs) {
			t.Fatalf("got %d results, want %d", len(results), len(msgs))
		}
		for i, res := range results {
			if res.Source != domain.ClassificationSourceKeyword {
				t.Errorf("results[%d].source = %q, want keyword", i, res.Source)
			}
		}
	})

	t.Run("single message skips batch prompt", func(t *testing.T) {
		completer := &fakeCompleter{
			response: `{"should_reply":true,"priority":"medium","category":"question","confidence":0.9}`,
		}
		classifier := newTestLLMClassifier(completer)

		results, err := classifier.ClassifyBatch(context.Background(), msgs[:1])
		if err != nil {
			t.Fatalf("classifyBatch: %v", err)
		}
		if len(results) != 1 || results[0].Category != domain.CategoryQuestion {
			t.Fatalf("unexpected results: %+v", results)
		}
		if completer.calls != 1 {
			t.Errorf("calls = %d, want 1", completer.calls)
		}
	})
}
