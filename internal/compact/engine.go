// Package compact decides when conversation history has outgrown its budget
// and drives LLM summarization to replace it with a short synopsis.
//
// Compaction is not idempotent: repeated invocation re-summarizes whatever
// state currently exists. The engine provides no locking against concurrent
// compaction of the same session; callers serialize per session id.
package compact

import (
	"context"
	"strings"

	"github.com/threadkeep-ai/threadkeep/internal/chat"
	"github.com/threadkeep-ai/threadkeep/internal/eventlog"
	"github.com/threadkeep-ai/threadkeep/internal/session"
)

// Trigger identifies what initiated a compaction.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerThreshold Trigger = "threshold"
	TriggerAuto      Trigger = "auto"
)

// Result is the structured outcome of a compaction. The engine never
// propagates exceptions: failures land here with Success=false.
type Result struct {
	Success        bool
	PreviousTokens int
	NewTokens      int
	Summary        string
	Trigger        Trigger
}

// Archiver receives successful compaction summaries for long-term keeping.
// Implemented by the memory archive; a nil Archiver disables archiving.
type Archiver interface {
	ArchiveSummary(sessionID, summary string)
}

// Options configures an Engine. Zero thresholds take the documented defaults.
type Options struct {
	Threshold     int // soft compaction threshold (default 100000)
	ContextWindow int // model window for the auto-compact trigger (default 200000)
}

// Engine drives compaction against the session store.
type Engine struct {
	sessions      *session.Store
	summarizer    Summarizer
	threshold     int
	contextWindow int
	archive       Archiver
	events        *eventlog.Logger
}

// NewEngine creates a compaction engine. archive and events may be nil.
func NewEngine(sessions *session.Store, summarizer Summarizer, opts Options, archive Archiver, events *eventlog.Logger) *Engine {
	if opts.Threshold <= 0 {
		opts.Threshold = 100_000
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = 200_000
	}
	return &Engine{
		sessions:      sessions,
		summarizer:    summarizer,
		threshold:     opts.Threshold,
		contextWindow: opts.ContextWindow,
		archive:       archive,
		events:        events,
	}
}

// ShouldCompact reports whether the estimated token sum of the given messages
// has reached the soft compaction threshold (boundary inclusive).
func (e *Engine) ShouldCompact(messages []chat.Message) bool {
	return chat.EstimateTokens(messages) >= e.threshold
}

// ShouldAutoCompact is the hard near-limit safety trigger: true once
// currentTokens reaches 95% of the context window.
func (e *Engine) ShouldAutoCompact(currentTokens int) bool {
	return currentTokens >= e.contextWindow*95/100
}

// Compact loads the session, summarizes its full message log, persists the
// summary onto the session, and returns the structured result. instructions
// may be empty to use the fixed default. A missing or empty session
// short-circuits to a zero-token success without invoking the summarizer.
func (e *Engine) Compact(ctx context.Context, sessionID string, trigger Trigger, instructions string) Result {
	rec := e.sessions.Get(sessionID)
	if rec == nil || len(rec.Messages) == 0 {
		return Result{
			Success: true,
			Summary: "No messages to compact.",
			Trigger: trigger,
		}
	}

	res := e.summarize(ctx, rec.Messages, trigger, instructions)
	if !res.Success {
		return res
	}

	if err := e.sessions.SetSummary(sessionID, res.Summary); err != nil {
		return Result{
			Success:        false,
			PreviousTokens: res.PreviousTokens,
			Summary:        "Failed to persist summary: " + err.Error(),
			Trigger:        trigger,
		}
	}

	if e.archive != nil {
		e.archive.ArchiveSummary(sessionID, res.Summary)
	}
	e.events.Log(eventlog.EventCompaction, map[string]any{
		"sessionId":      sessionID,
		"trigger":        string(trigger),
		"previousTokens": res.PreviousTokens,
		"newTokens":      res.NewTokens,
	})
	return res
}

// CompactMessages summarizes a raw in-memory transcript without touching the
// session store.
func (e *Engine) CompactMessages(ctx context.Context, messages []chat.Message, trigger Trigger, instructions string) Result {
	if len(messages) == 0 {
		return Result{
			Success: true,
			Summary: "No messages to compact.",
			Trigger: trigger,
		}
	}
	return e.summarize(ctx, messages, trigger, instructions)
}

func (e *Engine) summarize(ctx context.Context, messages []chat.Message, trigger Trigger, instructions string) Result {
	prevTokens := chat.EstimateTokens(messages)
	if instructions == "" {
		instructions = defaultInstructions
	}
	prompt := FormatTranscript(messages) + "\n\n" + instructions

	text, err := e.summarizer.Summarize(ctx, prompt)
	if err != nil {
		return Result{
			Success:        false,
			PreviousTokens: prevTokens,
			Summary:        "Compaction failed: " + err.Error(),
			Trigger:        trigger,
		}
	}

	summary := ExtractSummary(text)
	return Result{
		Success:        true,
		PreviousTokens: prevTokens,
		NewTokens:      len(summary) / 4,
		Summary:        summary,
		Trigger:        trigger,
	}
}

const defaultInstructions = `Summarize the conversation above for continuity. Include:
- The user's original task and intent
- Key decisions made and rationale
- Current progress and important details (names, paths, identifiers)
- Remaining steps or unresolved issues
Be concise but thorough. Wrap the summary in <summary></summary> tags.`

// maxToolResultChars bounds the tool-result rendering in the summarization
// prompt; the raw result stays intact in the session log.
const maxToolResultChars = 400

// FormatTranscript renders a message log as a role-labelled transcript with a
// compact rendering of tool-call entries.
func FormatTranscript(messages []chat.Message) string {
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch m.Role {
		case chat.RoleUser:
			sb.WriteString("User: ")
		case chat.RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("System: ")
		}
		sb.WriteString(m.Content)
		for _, tc := range m.ToolCalls {
			sb.WriteString("\n  [tool ")
			sb.WriteString(tc.Tool)
			if tc.Input != "" {
				sb.WriteString(" ")
				sb.WriteString(tc.Input)
			}
			sb.WriteString("] ")
			result := tc.Result
			if len(result) > maxToolResultChars {
				sb.WriteString(result[:maxToolResultChars])
				sb.WriteString("… (truncated)")
			} else {
				sb.WriteString(result)
			}
		}
	}
	return sb.String()
}

// ExtractSummary pulls the <summary>…</summary> block out of a model
// response. If the delimiters are absent the whole response is the summary.
func ExtractSummary(response string) string {
	const openTag, closeTag = "<summary>", "</summary>"
	start := strings.Index(response, openTag)
	if start >= 0 {
		rest := response[start+len(openTag):]
		if end := strings.Index(rest, closeTag); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	return strings.TrimSpace(response)
}
