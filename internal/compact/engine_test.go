package compact

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/threadkeep-ai/threadkeep/internal/chat"
	"github.com/threadkeep-ai/threadkeep/internal/session"
)

// stubSummarizer records its invocations and returns a canned response.
type stubSummarizer struct {
	response string
	err      error
	calls    int
	prompt   string
}

func (s *stubSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	s.calls++
	s.prompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

type recordingArchiver struct {
	sessionID string
	summary   string
}

func (a *recordingArchiver) ArchiveSummary(sessionID, summary string) {
	a.sessionID = sessionID
	a.summary = summary
}

func newTestEngine(t *testing.T, stub *stubSummarizer, opts Options, archive Archiver) (*Engine, *session.Store) {
	t.Helper()
	sessions, err := session.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return NewEngine(sessions, stub, opts, archive, nil), sessions
}

func textMsg(role chat.Role, content string) chat.Message {
	return chat.Message{Role: role, Content: content, Timestamp: time.Now()}
}

func TestShouldCompactBoundary(t *testing.T) {
	e, _ := newTestEngine(t, nil, Options{Threshold: 10}, nil)

	under := []chat.Message{textMsg(chat.RoleUser, strings.Repeat("x", 36))} // 9 tokens
	if e.ShouldCompact(under) {
		t.Fatal("below threshold should not compact")
	}
	at := []chat.Message{textMsg(chat.RoleUser, strings.Repeat("x", 40))} // 10 tokens
	if !e.ShouldCompact(at) {
		t.Fatal("threshold is inclusive")
	}
}

func TestShouldAutoCompact(t *testing.T) {
	e, _ := newTestEngine(t, nil, Options{}, nil)

	// 95% of the default 200000 window.
	if e.ShouldAutoCompact(189_999) {
		t.Fatal("one token under the limit must not auto-compact")
	}
	if !e.ShouldAutoCompact(190_000) {
		t.Fatal("the 95% mark itself must auto-compact")
	}
}

func TestCompactMissingSessionShortCircuits(t *testing.T) {
	stub := &stubSummarizer{response: "<summary>never used</summary>"}
	e, _ := newTestEngine(t, stub, Options{}, nil)

	res := e.Compact(context.Background(), "sess-missing", TriggerManual, "")
	if !res.Success {
		t.Fatal("missing session compacts to a trivial success")
	}
	if res.Summary != "No messages to compact." {
		t.Fatalf("unexpected summary %q", res.Summary)
	}
	if res.PreviousTokens != 0 || res.NewTokens != 0 {
		t.Fatalf("token counts should be zero, got %d/%d", res.PreviousTokens, res.NewTokens)
	}
	if stub.calls != 0 {
		t.Fatal("summarizer must not be invoked for an empty session")
	}
}

func TestCompactEmptySessionShortCircuits(t *testing.T) {
	stub := &stubSummarizer{response: "<summary>never used</summary>"}
	e, sessions := newTestEngine(t, stub, Options{}, nil)
	meta, _ := sessions.Create(session.CreateOptions{UserID: "alice"})

	res := e.Compact(context.Background(), meta.SessionID, TriggerManual, "")
	if !res.Success || res.Summary != "No messages to compact." {
		t.Fatalf("unexpected result %+v", res)
	}
	if stub.calls != 0 {
		t.Fatal("summarizer must not be invoked for an empty session")
	}
}

func TestCompactPersistsSummary(t *testing.T) {
	stub := &stubSummarizer{response: "preamble <summary>the gist</summary> postamble"}
	arch := &recordingArchiver{}
	e, sessions := newTestEngine(t, stub, Options{}, arch)

	meta, _ := sessions.Create(session.CreateOptions{UserID: "alice"})
	id := meta.SessionID
	_ = sessions.AppendMessage(id, textMsg(chat.RoleUser, "tell me about compaction"))
	_ = sessions.AppendMessage(id, textMsg(chat.RoleAssistant, "it shrinks history"))

	res := e.Compact(context.Background(), id, TriggerThreshold, "")
	if !res.Success {
		t.Fatalf("compaction failed: %+v", res)
	}
	if res.Summary != "the gist" {
		t.Fatalf("summary not extracted from tags: %q", res.Summary)
	}
	if res.Trigger != TriggerThreshold {
		t.Fatalf("trigger not echoed: %q", res.Trigger)
	}
	if res.PreviousTokens == 0 {
		t.Fatal("previous token count should reflect the transcript")
	}

	got := sessions.Get(id)
	if got.Summary != "the gist" {
		t.Fatalf("summary not persisted on session, got %q", got.Summary)
	}
	if arch.sessionID != id || arch.summary != "the gist" {
		t.Fatalf("archiver not notified: %+v", arch)
	}
	if !strings.Contains(stub.prompt, "User: tell me about compaction") {
		t.Fatalf("prompt missing transcript:\n%s", stub.prompt)
	}
}

func TestCompactSummarizerFailure(t *testing.T) {
	stub := &stubSummarizer{err: errors.New("model unavailable")}
	e, sessions := newTestEngine(t, stub, Options{}, nil)

	meta, _ := sessions.Create(session.CreateOptions{UserID: "alice"})
	id := meta.SessionID
	_ = sessions.AppendMessage(id, textMsg(chat.RoleUser, "hello"))

	res := e.Compact(context.Background(), id, TriggerAuto, "")
	if res.Success {
		t.Fatal("summarizer failure must surface as a failed result")
	}
	if !strings.Contains(res.Summary, "model unavailable") {
		t.Fatalf("failure reason lost: %q", res.Summary)
	}
	if res.PreviousTokens == 0 {
		t.Fatal("failed result still carries the previous token count")
	}
	if got := sessions.Get(id); got.Summary != "" {
		t.Fatalf("failed compaction must not persist a summary, got %q", got.Summary)
	}
}

func TestCompactCustomInstructions(t *testing.T) {
	stub := &stubSummarizer{response: "<summary>ok</summary>"}
	e, sessions := newTestEngine(t, stub, Options{}, nil)

	meta, _ := sessions.Create(session.CreateOptions{UserID: "alice"})
	_ = sessions.AppendMessage(meta.SessionID, textMsg(chat.RoleUser, "hi"))

	e.Compact(context.Background(), meta.SessionID, TriggerManual, "Focus on file paths.")
	if !strings.Contains(stub.prompt, "Focus on file paths.") {
		t.Fatalf("custom instructions not forwarded:\n%s", stub.prompt)
	}
	if strings.Contains(stub.prompt, "Summarize the conversation above") {
		t.Fatal("default instructions should be replaced, not appended")
	}
}

func TestCompactMessagesWithoutStore(t *testing.T) {
	stub := &stubSummarizer{response: "<summary>in-memory</summary>"}
	e, _ := newTestEngine(t, stub, Options{}, nil)

	res := e.CompactMessages(context.Background(), []chat.Message{
		textMsg(chat.RoleUser, "a"), textMsg(chat.RoleAssistant, "b"),
	}, TriggerManual, "")
	if !res.Success || res.Summary != "in-memory" {
		t.Fatalf("unexpected result %+v", res)
	}

	empty := e.CompactMessages(context.Background(), nil, TriggerManual, "")
	if !empty.Success || empty.Summary != "No messages to compact." {
		t.Fatalf("empty transcript should short-circuit, got %+v", empty)
	}
}

func TestExtractSummary(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"<summary>core</summary>", "core"},
		{"lead-in\n<summary>\n  padded \n</summary>\ntrailer", "padded"},
		{"no tags at all", "no tags at all"},
		{"<summary>unterminated", "<summary>unterminated"},
		{"  whitespace fallback  ", "whitespace fallback"},
	}
	for _, c := range cases {
		if got := ExtractSummary(c.in); got != c.want {
			t.Errorf("ExtractSummary(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatTranscriptToolCalls(t *testing.T) {
	long := strings.Repeat("r", maxToolResultChars+50)
	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "run it"},
		{Role: chat.RoleAssistant, Content: "running", ToolCalls: []chat.ToolCall{
			{Tool: "shell", Input: "ls", Result: "ok"},
			{Tool: "shell", Input: "cat big", Result: long},
		}},
	}

	got := FormatTranscript(msgs)
	if !strings.Contains(got, "User: run it") {
		t.Fatalf("missing user line:\n%s", got)
	}
	if !strings.Contains(got, "[tool shell ls] ok") {
		t.Fatalf("missing tool rendering:\n%s", got)
	}
	if !strings.Contains(got, "… (truncated)") {
		t.Fatalf("long tool result not truncated:\n%s", got)
	}
	if strings.Contains(got, long) {
		t.Fatal("full tool result leaked into the prompt")
	}
}
