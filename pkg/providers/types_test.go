package providers

import (
	"errors"
	"testing"
)

func TestValidateRequest(t *testing.T) {
	valid := func() *CompletionRequest {
		return &CompletionRequest{
			Model:     "claude-3-5-haiku-latest",
			MaxTokens: 50,
			Messages:  []Message{{Role: RoleUser, Content: "pick a task"}},
		}
	}

	tests := []struct {
		name      string
		req       *CompletionRequest
		wantField string
	}{
		{"valid", valid(), ""},
		{"nil request", nil, "request"},
		{"missing model", func() *CompletionRequest { r := valid(); r.Model = " "; return r }(), "model"},
		{"no messages", func() *CompletionRequest { r := valid(); r.Messages = nil; return r }(), "messages"},
		{"negative max tokens", func() *CompletionRequest { r := valid(); r.MaxTokens = -1; return r }(), "max_tokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestRoleConstants(t *testing.T) {
	if RoleSystem != "system" || RoleUser != "user" || RoleAssistant != "assistant" {
		t.Errorf("unexpected role constants: %q %q %q", RoleSystem, RoleUser, RoleAssistant)
	}
}
