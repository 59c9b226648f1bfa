// Package mock provides a scripted [llm.Provider] for tests.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/docassist/docassist/pkg/provider/llm"
)

// Provider replies with Reply, or Err when set. Fn, when set, replaces both.
// Every request is recorded.
type Provider struct {
	Reply string
	Err   error
	Fn    func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	mu   sync.Mutex
	reqs []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()

	if p.Fn != nil {
		return p.Fn(ctx, req)
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return &llm.CompletionResponse{Content: p.Reply}, nil
}

// Requests returns the requests seen so far.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.reqs)
}
