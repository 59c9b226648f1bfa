// Package llm is the narrow chat-completion contract DocAssist needs to draft
// narrative summaries. Implementations must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
)

// ErrRefused is returned when the model declines to answer.
var ErrRefused = errors.New("llm: model refused the request")

// Role identifies the author of a [Message].
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is a single non-streaming request. Messages must not be
// empty; zero Temperature and MaxTokens leave the backend defaults.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Temperature  float64
	MaxTokens    int
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content string

	// Truncated reports that the reply hit the token limit.
	Truncated bool

	PromptTokens     int
	CompletionTokens int
}

// Provider sends one completion request and waits for the whole reply.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
