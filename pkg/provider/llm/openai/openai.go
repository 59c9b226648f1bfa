// Package openai implements [llm.Provider] over the OpenAI chat completions
// API. Any endpoint speaking the same protocol works through [WithBaseURL].
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/docassist/docassist/pkg/provider/llm"
)

// Provider talks to one chat model.
type Provider struct {
	client oai.Client
	model  string
}

var _ llm.Provider = (*Provider)(nil)

// Option adds a client request option.
type Option func(*[]option.RequestOption)

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithBaseURL(url)) }
}

// WithOrganization sends the organization header on every request.
func WithOrganization(org string) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithOrganization(org)) }
}

// WithTimeout bounds each attempt, retries included separately.
func WithTimeout(d time.Duration) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithRequestTimeout(d)) }
}

// WithMaxRetries overrides the client's retry count.
func WithMaxRetries(n int) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithMaxRetries(n)) }
}

// New returns a provider for model authenticated with apiKey.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: api key required")
	case model == "":
		return nil, errors.New("openai: model required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Complete implements [llm.Provider]. A refusal is reported as
// [llm.ErrRefused].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, err
	}
	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: complete with %s: %w", p.model, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai: %s returned no choices", p.model)
	}

	choice := completion.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("%w: %s", llm.ErrRefused, choice.Message.Refusal)
	}
	return &llm.CompletionResponse{
		Content:          choice.Message.Content,
		Truncated:        choice.FinishReason == "length",
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
	}, nil
}

func (p *Provider) params(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return oai.ChatCompletionNewParams{}, errors.New("openai: request has no messages")
	}

	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for i, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			msgs = append(msgs, oai.SystemMessage(m.Content))
		case llm.RoleUser:
			msgs = append(msgs, oai.UserMessage(m.Content))
		case llm.RoleAssistant:
			msgs = append(msgs, oai.AssistantMessage(m.Content))
		default:
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: message %d: unsupported role %q", i, m.Role)
		}
	}

	params := oai.ChatCompletionNewParams{Model: shared.ChatModel(p.model), Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}
