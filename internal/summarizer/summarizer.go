package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

const systemPrompt = `You summarize an AI agent's working session from the memories it touched.
Write a compact summary (3-5 sentences) of what the session was about, what was
learned, and what was decided. Plain prose, no headings.`

// Summarizer generates session summaries from accessed memories.
type Summarizer struct {
	client anthropic.Client
	model  anthropic.Model
}

// New creates a summarizer. The API key must be set.
func New(apiKey, model string) (*Summarizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("summarizer requires an API key")
	}
	if model == "" {
		model = DefaultModel
	}
	return &Summarizer{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}, nil
}

// SessionMemory is the slice of a memory the summarizer sees.
type SessionMemory struct {
	Type    string
	Title   string
	Content string
}

// Summarize produces a short prose summary of a session from the memories
// accessed under it.
func (s *Summarizer) Summarize(ctx context.Context, sessionTitle string, memories []SessionMemory) (string, error) {
	if len(memories) == 0 {
		return "", fmt.Errorf("nothing to summarize: no memories were accessed in this session")
	}

	var b strings.Builder
	if sessionTitle != "" {
		fmt.Fprintf(&b, "Session: %s\n\n", sessionTitle)
	}
	b.WriteString("Memories accessed during the session:\n\n")
	for _, m := range memories {
		fmt.Fprintf(&b, "[%s] %s\n%s\n\n", m.Type, m.Title, m.Content)
	}

	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(b.String())),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize session: %w", err)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	summary := strings.TrimSpace(out.String())
	if summary == "" {
		return "", fmt.Errorf("summarizer returned no text")
	}
	return summary, nil
}
