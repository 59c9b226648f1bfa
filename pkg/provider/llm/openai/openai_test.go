package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docassist/docassist/pkg/provider/llm"
)

func TestParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.params(llm.CompletionRequest{
		SystemPrompt: "be brief",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "transcript"},
			{Role: llm.RoleAssistant, Content: "draft"},
			{Role: llm.RoleSystem, Content: "shorter"},
		},
		Temperature: 0.2,
		MaxTokens:   300,
	})
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if len(params.Messages) != 4 {
		t.Fatalf("messages = %d, want system prompt plus 3", len(params.Messages))
	}
	m := params.Messages
	if m[0].OfSystem == nil || m[1].OfUser == nil || m[2].OfAssistant == nil || m[3].OfSystem == nil {
		t.Errorf("message roles not mapped in order: %+v", m)
	}
	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("model = %q", params.Model)
	}
	if params.Temperature.Value != 0.2 || params.MaxCompletionTokens.Value != 300 {
		t.Errorf("temperature=%v max=%v", params.Temperature.Value, params.MaxCompletionTokens.Value)
	}
}

func TestParams_Rejects(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "m"}
	for name, req := range map[string]llm.CompletionRequest{
		"no messages":  {},
		"unknown role": {Messages: []llm.Message{{Role: "tool", Content: "x"}}},
	} {
		if _, err := p.params(req); err == nil {
			t.Errorf("%s: want error", name)
		}
	}
}

func TestNew_RequiresKeyAndModel(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("empty api key accepted")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("empty model accepted")
	}
}

// chatServer answers every chat completion with message and finish.
func chatServer(t *testing.T, message map[string]any, finish string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		message["role"] = "assistant"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{"index": 0, "message": message, "finish_reason": finish}},
			"usage":   map[string]any{"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, map[string]any{"content": "Stable patient."}, "length")
	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Stable patient." || !resp.Truncated {
		t.Errorf("resp = %+v", resp)
	}
	if resp.PromptTokens != 12 || resp.CompletionTokens != 5 {
		t.Errorf("usage = %d/%d", resp.PromptTokens, resp.CompletionTokens)
	}
}

func TestComplete_Refusal(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, map[string]any{"content": "", "refusal": "cannot help"}, "stop")
	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, llm.ErrRefused) {
		t.Errorf("err = %v, want ErrRefused", err)
	}
}
