package note

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docassist/docassist/pkg/provider/llm"
)

const narrativePrompt = `You are drafting a short clinical narrative from a doctor-patient conversation transcript.
Write one paragraph in the third person. Mention presenting symptoms, medications discussed,
tests ordered, and the agreed plan. Do not invent findings that are not in the transcript.
Do not give medical advice.`

// Narrator drafts a free-text narrative for a finished session.
type Narrator interface {
	Narrate(ctx context.Context, n *SessionNote) (string, error)
}

// LLMNarrator drafts narratives with a language model.
type LLMNarrator struct {
	llm llm.Provider
}

var _ Narrator = (*LLMNarrator)(nil)

// NewLLMNarrator returns a narrator backed by provider.
func NewLLMNarrator(provider llm.Provider) *LLMNarrator {
	return &LLMNarrator{llm: provider}
}

// Narrate sends the transcript and detected entities to the model. An empty
// transcript yields an empty narrative without a model call.
func (l *LLMNarrator) Narrate(ctx context.Context, n *SessionNote) (string, error) {
	if len(n.Segments) == 0 {
		return "", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Detected medications: %s\n", listOrNone(n.Medications))
	fmt.Fprintf(&sb, "Detected symptoms: %s\n\n", listOrNone(n.Symptoms))
	sb.WriteString(Conversation(n.Segments))

	resp, err := l.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: narrativePrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: sb.String()}},
		Temperature:  0.2,
	})
	if err != nil {
		return "", fmt.Errorf("narrate: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	if resp.Truncated {
		slog.Warn("narrative truncated at the model token limit", "session_id", n.SessionID)
	}
	return strings.TrimSpace(resp.Content), nil
}
