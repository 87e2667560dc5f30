package classify

import (
	"testing"

	"autoreply_worker/core/domain"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{
			name:   "bare object",
			input:  `{"a":1}`,
			want:   `{"a":1}`,
			wantOK: true,
		},
		{
			name:   "code fence with prose",
			input:  "Here is the result:\n```json\n{\"should_reply\":true}\n```",
			want:   `{"should_reply":true}`,
			wantOK: true,
		},
		{
			name:   "nested objects",
			input:  `prefix {"a":{"b":2}} suffix`,
			want:   `{"a":{"b":2}}`,
			wantOK: true,
		},
		{
			name:   "braces inside strings ignored",
			input:  `{"reply":"use {curly} braces"}`,
			want:   `{"reply":"use {curly} braces"}`,
			wantOK: true,
		},
		{
			name:   "escaped quote inside string",
			input:  `{"reply":"she said \"hi\" {"}`,
			want:   `{"reply":"she said \"hi\" {"}`,
			wantOK: true,
		},
		{
			name:   "no object",
			input:  "sorry, I cannot help with that",
			wantOK: false,
		},
		{
			name:   "unterminated object",
			input:  `{"a":1`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSONObject(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    *domain.ClassificationResult
		wantErr bool
	}{
		{
			name: "fenced response parses",
			raw:  "Here is the result:\n```json\n{\"should_reply\":true,\"priority\":\"high\",\"category\":\"complaint\",\"confidence\":0.92,\"suggested_reply\":\"Sorry to hear that.\"}\n```",
			want: &domain.ClassificationResult{
				ShouldReply:    true,
				Priority:       domain.PriorityHigh,
				Category:       domain.CategoryComplaint,
				Confidence:     0.92,
				SuggestedReply: "Sorry to hear that.",
			},
		},
		{
			name: "defaults applied for empty fields",
			raw:  `{"should_reply":true,"confidence":0.5}`,
			want: &domain.ClassificationResult{
				ShouldReply: true,
				Priority:    domain.PriorityMedium,
				Category:    domain.CategoryGeneral,
				Confidence:  0.5,
			},
		},
		{
			name: "confidence clamped",
			raw:  `{"should_reply":false,"priority":"low","category":"spam","confidence":3.7}`,
			want: &domain.ClassificationResult{
				ShouldReply: false,
				Priority:    domain.PriorityLow,
				Category:    domain.CategorySpam,
				Confidence:  1.0,
			},
		},
		{
			name: "spam never replies even if backend says so",
			raw:  `{"should_reply":true,"priority":"low","category":"spam","confidence":0.9}`,
			want: &domain.ClassificationResult{
				ShouldReply: false,
				Priority:    domain.PriorityLow,
				Category:    domain.CategorySpam,
				Confidence:  0.9,
			},
		},
		{
			name:    "unknown category rejected",
			raw:     `{"should_reply":true,"category":"banana","confidence":0.5}`,
			wantErr: true,
		},
		{
			name:    "system category rejected",
			raw:     `{"should_reply":false,"category":"system","confidence":1.0}`,
			wantErr: true,
		},
		{
			name:    "prose only",
			raw:     "I could not classify this email.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClassification(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}

			if got.ShouldReply != tt.want.ShouldReply {
				t.Errorf("shouldReply = %v, want %v", got.ShouldReply, tt.want.ShouldReply)
			}
			if got.Priority != tt.want.Priority {
				t.Errorf("priority = %q, want %q", got.Priority, tt.want.Priority)
			}
			if got.Category != tt.want.Category {
				t.Errorf("category = %q, want %q", got.Category, tt.want.Category)
			}
			if got.Confidence != tt.want.Confidence {
				t.Errorf("confidence = %v, want %v", got.Confidence, tt.want.Confidence)
			}
			if got.SuggestedReply != tt.want.SuggestedReply {
				t.Errorf("suggestedReply = %q, want %q", got.SuggestedReply, tt.want.SuggestedReply)
			}
			if got.Source != domain.ClassificationSourceLLM {
				t.Errorf("source = %q, want llm", got.Source)
			}
		})
	}
}
