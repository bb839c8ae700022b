package compact

import (
	"context"
	"fmt"
	"strings"

	"github.com/threadkeep-ai/threadkeep/internal/provider"
)

// Summarizer generates a conversation summary from a single text prompt.
// The prompt already contains the formatted transcript and instructions.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// LLMSummarizer calls an LLM provider to generate summaries.
type LLMSummarizer struct {
	Provider provider.Provider
	Model    string // optional: use a cheaper model. Empty = provider default.
}

func (s *LLMSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	model := s.Model
	if model == "" {
		model = s.Provider.DefaultModel()
	}

	req := &provider.ChatRequest{
		Model: model,
		Messages: []provider.Message{{
			Role: provider.RoleUser,
			Text: prompt,
		}},
		SystemPrompt: "You are a conversation summarizer. Produce a concise, structured summary of the conversation.",
		MaxTokens:    2048,
	}

	events, err := s.Provider.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("summarize LLM call failed: %w", err)
	}

	text, _, err := provider.Collect(events)
	if err != nil {
		return "", fmt.Errorf("summarize stream error: %w", err)
	}

	summary := strings.TrimSpace(text)
	if summary == "" {
		return "", fmt.Errorf("summarizer returned empty response")
	}
	return summary, nil
}
