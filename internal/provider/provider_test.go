package provider

import (
	"errors"
	"testing"
)

func streamOf(events ...Event) <-chan Event {
	ch := make(chan Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestCollectAssemblesText(t *testing.T) {
	text, usage, err := Collect(streamOf(
		Event{Type: EventTextDelta, TextDelta: "Hello"},
		Event{Type: EventTextDelta, TextDelta: ", "},
		Event{Type: EventTextDelta, TextDelta: "world"},
		Event{Type: EventDone, Usage: &Usage{InputTokens: 12, OutputTokens: 3}},
	))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Hello, world" {
		t.Fatalf("text = %q", text)
	}
	if usage == nil || usage.InputTokens != 12 || usage.OutputTokens != 3 {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestCollectSurfacesFirstError(t *testing.T) {
	wantErr := errors.New("rate limited")
	text, _, err := Collect(streamOf(
		Event{Type: EventTextDelta, TextDelta: "partial"},
		Event{Type: EventError, Error: wantErr},
		Event{Type: EventError, Error: errors.New("second error masked")},
	))
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected first stream error, got %v", err)
	}
	if text != "" {
		t.Fatalf("partial text must be discarded on error, got %q", text)
	}
}

func TestCollectEmptyStream(t *testing.T) {
	text, usage, err := Collect(streamOf())
	if err != nil || text != "" || usage != nil {
		t.Fatalf("empty stream should yield zero values, got %q %+v %v", text, usage, err)
	}
}

func TestOpenAIProviderNameDetection(t *testing.T) {
	cases := []struct {
		baseURL string
		want    string
	}{
		{"", "openai"},
		{"https://api.deepseek.com/v1", "deepseek"},
		{"https://api.moonshot.cn/v1", "kimi"},
		{"https://dashscope.aliyuncs.com/compatible-mode/v1", "qwen"},
		{"https://api.groq.com/openai/v1", "groq"},
		{"https://example.com/v1", "openai"},
	}
	for _, c := range cases {
		p := NewOpenAIProvider("test-key", c.baseURL, "")
		if p.Name() != c.want {
			t.Errorf("baseURL %q: name = %q, want %q", c.baseURL, p.Name(), c.want)
		}
	}
}

func TestOpenAIProviderDefaults(t *testing.T) {
	p := NewOpenAIProvider("test-key", "", "")
	if p.DefaultModel() != "gpt-4o-mini" {
		t.Fatalf("default model = %q", p.DefaultModel())
	}
	if p.ContextWindow() != 128000 {
		t.Fatalf("context window = %d", p.ContextWindow())
	}

	o1 := NewOpenAIProvider("test-key", "", "o1-preview")
	if o1.ContextWindow() != 200000 {
		t.Fatalf("o1 context window = %d", o1.ContextWindow())
	}
}

func TestAnthropicProviderDefaults(t *testing.T) {
	p := NewAnthropicProvider("test-key", "", "")
	if p.Name() != "anthropic" {
		t.Fatalf("name = %q", p.Name())
	}
	if p.DefaultModel() == "" {
		t.Fatal("default model must be set")
	}
	if p.ContextWindow() != 200000 {
		t.Fatalf("context window = %d", p.ContextWindow())
	}
}
