// Package chat defines the core conversation types shared by every store in
// threadkeep. It has zero dependencies on other threadkeep packages.
package chat

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ToolCall is one entry in a message's tool-call log: the tool that ran on
// behalf of the assistant, its input, and what came back.
type ToolCall struct {
	Tool   string `json:"tool"`
	Input  string `json:"input,omitempty"`
	Result string `json:"result,omitempty"`
}

// Message is a single message in a conversation log. Messages are immutable
// once appended; stores only ever add new ones.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// EstimateTokens returns a rough token estimate for one message (chars / 4).
// This is a deliberate heuristic, not a tokenizer; callers must treat it as
// approximate.
func (m Message) EstimateTokens() int {
	total := len(m.Content)
	for _, tc := range m.ToolCalls {
		total += len(tc.Tool) + len(tc.Input) + len(tc.Result)
	}
	return total / 4
}

// EstimateTokens returns the summed token estimate for a message list.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += m.EstimateTokens()
	}
	return total
}

// CloneMessages deep-copies a message slice so mutation of one copy can never
// leak into the other. Go struct copy is shallow: the ToolCalls backing arrays
// would otherwise stay shared.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	result := make([]Message, len(msgs))
	copy(result, msgs)
	for i, m := range msgs {
		if len(m.ToolCalls) > 0 {
			result[i].ToolCalls = make([]ToolCall, len(m.ToolCalls))
			copy(result[i].ToolCalls, m.ToolCalls)
		}
	}
	return result
}
