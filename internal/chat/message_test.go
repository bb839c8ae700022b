package chat

import (
	"strings"
	"testing"
	"time"
)

func TestEstimateTokens(t *testing.T) {
	msg := Message{Role: RoleUser, Content: strings.Repeat("a", 400)}
	if got := msg.EstimateTokens(); got != 100 {
		t.Fatalf("expected 100 tokens for 400 chars, got %d", got)
	}

	withTool := Message{
		Role:    RoleAssistant,
		Content: strings.Repeat("b", 40),
		ToolCalls: []ToolCall{
			{Tool: strings.Repeat("t", 10), Input: strings.Repeat("i", 10), Result: strings.Repeat("r", 40)},
		},
	}
	// 40 + 10 + 10 + 40 = 100 chars → 25 tokens
	if got := withTool.EstimateTokens(); got != 25 {
		t.Fatalf("expected 25 tokens, got %d", got)
	}

	total := EstimateTokens([]Message{msg, withTool})
	if total != 125 {
		t.Fatalf("expected 125 total tokens, got %d", total)
	}
}

func TestEstimateTokensEmpty(t *testing.T) {
	if got := EstimateTokens(nil); got != 0 {
		t.Fatalf("expected 0 for empty list, got %d", got)
	}
}

func TestCloneMessagesIndependence(t *testing.T) {
	src := []Message{
		{Role: RoleUser, Content: "hi", Timestamp: time.Now()},
		{Role: RoleAssistant, Content: "ok", ToolCalls: []ToolCall{{Tool: "bash", Result: "done"}}},
	}
	dup := CloneMessages(src)

	dup[0].Content = "changed"
	dup[1].ToolCalls[0].Result = "changed"

	if src[0].Content != "hi" {
		t.Fatal("clone mutation leaked into source content")
	}
	if src[1].ToolCalls[0].Result != "done" {
		t.Fatal("clone mutation leaked into source tool calls")
	}
}

func TestCloneMessagesNil(t *testing.T) {
	if got := CloneMessages(nil); got != nil {
		t.Fatal("expected nil clone of nil slice")
	}
}

func TestNewIDFormat(t *testing.T) {
	id := NewID("sess")
	parts := strings.SplitN(id, "-", 3)
	if len(parts) != 3 {
		t.Fatalf("expected prefix-timestamp-random, got %q", id)
	}
	if parts[0] != "sess" {
		t.Fatalf("expected sess prefix, got %q", parts[0])
	}
	if len(parts[2]) != 6 {
		t.Fatalf("expected 6-char random suffix, got %q", parts[2])
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		v := NewID("op")
		if seen[v] {
			t.Fatalf("duplicate id generated: %s", v)
		}
		seen[v] = true
	}
}
