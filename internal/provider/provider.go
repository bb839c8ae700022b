// Package provider defines the unified interface and shared types for all LLM
// providers. Each adapter (openai.go, anthropic.go) normalizes vendor-specific
// streaming responses into a unified Event sequence.
package provider

import (
	"context"
)

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single message sent to a provider. The conversation-state core
// only drives text generation (summarization), so content is plain text.
type Message struct {
	Role Role
	Text string
}

// ── Request types ────────────────────────────────────────────────────────────

// ChatRequest is the unified request format sent to a provider.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	MaxTokens    int
}

// ── Event types (streaming output) ───────────────────────────────────────────

type EventType int

const (
	// EventTextDelta: incremental text output from the LLM.
	EventTextDelta EventType = iota

	// EventDone: end of this message turn, includes token usage.
	EventDone

	// EventError: an error occurred.
	EventError
)

// Event is the unified streaming event emitted by a provider. Exactly one of
// the payload fields is set, selected by Type; consumers switch exhaustively
// on Type rather than probing payload shapes.
type Event struct {
	Type EventType

	// EventTextDelta
	TextDelta string

	// EventDone
	Usage *Usage

	// EventError
	Error error
}

// Usage records token consumption for an API call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ── Provider interface ───────────────────────────────────────────────────────

// Provider is the unified interface for all LLM providers.
// Implementors are responsible for:
// 1. Converting the unified ChatRequest into the provider's API request format
// 2. Converting the provider's streaming response into a unified Event sequence
// 3. Handling provider-specific error codes
type Provider interface {
	// Chat initiates a streaming completion.
	// The returned channel emits Events until EventDone or EventError, then closes.
	// The caller must fully consume the channel to avoid goroutine leaks.
	Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error)

	// Name returns the provider identifier, e.g. "anthropic", "openai", "deepseek".
	Name() string

	// DefaultModel returns the default model.
	DefaultModel() string

	// ContextWindow returns the default context window size for the current model.
	ContextWindow() int
}

// Collect drains an event stream into the full response text, returning the
// first stream error encountered.
func Collect(events <-chan Event) (string, *Usage, error) {
	var text []byte
	var usage *Usage
	var firstErr error
	for ev := range events {
		switch ev.Type {
		case EventTextDelta:
			text = append(text, ev.TextDelta...)
		case EventDone:
			usage = ev.Usage
		case EventError:
			if firstErr == nil {
				firstErr = ev.Error
			}
		}
	}
	if firstErr != nil {
		return "", nil, firstErr
	}
	return string(text), usage, nil
}
