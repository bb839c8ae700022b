package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/threadkeep-ai/threadkeep/internal/chat"
	"github.com/threadkeep-ai/threadkeep/internal/compact"
	"github.com/threadkeep-ai/threadkeep/internal/confirm"
	"github.com/threadkeep-ai/threadkeep/internal/ops"
	"github.com/threadkeep-ai/threadkeep/internal/provider"
	"github.com/threadkeep-ai/threadkeep/internal/session"
)

// stdinNotifier delivers confirmation prompts and expiry notices to the
// terminal. In the messaging deployment this role belongs to the platform
// adapter.
type stdinNotifier struct{}

func (stdinNotifier) ConfirmationRequested(p *confirm.Pending) {
	fmt.Printf("This looks like a %s operation. Approve? [y/N] (expires %s): ",
		p.Operation, p.ExpiresAt.Format("15:04:05"))
}

func (stdinNotifier) ConfirmationExpired(p *confirm.Pending) {
	fmt.Printf("\nConfirmation for %s expired.\n", p.Operation)
}

// newTurnCmd processes one inbound user turn end to end: risk gating,
// operation tracking, context-enriched model call, and history append.
func newTurnCmd() *cobra.Command {
	var (
		userID    string
		sessionID string
	)

	turnCmd := &cobra.Command{
		Use:   "turn <text>...",
		Short: "Process one user turn through the full pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			// Risky intents block on explicit approval before anything runs.
			if op, risky := confirm.RequiresConfirmation(text); risky {
				approved, err := awaitApproval(a, userID, op, text)
				if err != nil {
					return err
				}
				if !approved {
					fmt.Println("Not running it.")
					return nil
				}
				fmt.Printf("Approved %s.\n", op)
			}

			return runTurn(a, userID, sessionID, text)
		},
	}
	turnCmd.Flags().StringVar(&userID, "user", "local", "user identity for context and session continuity")
	turnCmd.Flags().StringVar(&sessionID, "session", "", "session id (default: user's last active session, or a new one)")
	return turnCmd
}

// awaitApproval registers a pending confirmation and blocks on a terminal
// answer until the gate's timeout settles it.
func awaitApproval(a *app, userID string, op confirm.Operation, text string) (bool, error) {
	gate := confirm.NewGate(a.cfg.ConfirmTimeout(), stdinNotifier{}, a.events)
	id := gate.Create(userID, op, text, nil)

	answers := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		answers <- strings.ToLower(strings.TrimSpace(line))
	}()

	select {
	case ans := <-answers:
		out := gate.Resolve(id, userID, ans == "y" || ans == "yes")
		if out.Reason != "" {
			return false, fmt.Errorf("confirmation not resolved: %s", out.Reason)
		}
		return out.Confirmed, nil
	case <-time.After(a.cfg.ConfirmTimeout() + 100*time.Millisecond):
		// The gate's own timer has already expired and notified.
		return false, nil
	}
}

// runTurn executes the non-gated path: track, enrich, call the model, append.
func runTurn(a *app, userID, sessionID, text string) error {
	p, err := a.buildProvider()
	if err != nil {
		return err
	}

	tracker := ops.NewTracker(a.events)
	op, opCtx := tracker.Begin(context.Background(), userID, text)
	success := false
	defer func() { tracker.Complete(op.ID, success) }()

	sessionID, err = resolveSession(a, userID, sessionID)
	if err != nil {
		return err
	}

	req := &provider.ChatRequest{
		Messages:  []provider.Message{{Role: provider.RoleUser, Text: text}},
		MaxTokens: 4096,
	}
	if recent := a.contexts.RecentContext(userID, 50); recent != "" {
		req.SystemPrompt = "Prior conversation:\n" + recent
	}

	events, err := p.Chat(opCtx, req)
	if err != nil {
		return err
	}
	var reply strings.Builder
	for ev := range events {
		switch ev.Type {
		case provider.EventTextDelta:
			fmt.Print(ev.TextDelta)
			reply.WriteString(ev.TextDelta)
		case provider.EventError:
			fmt.Println()
			return ev.Error
		}
	}
	fmt.Println()

	now := time.Now()
	userMsg := chat.Message{Role: chat.RoleUser, Content: text, Timestamp: now}
	assistantMsg := chat.Message{Role: chat.RoleAssistant, Content: reply.String(), Timestamp: time.Now()}
	for _, msg := range []chat.Message{userMsg, assistantMsg} {
		if err := a.contexts.Append(userID, msg); err != nil {
			return err
		}
		if err := a.sessions.AppendMessage(sessionID, msg); err != nil {
			return err
		}
	}

	maybeAutoCompact(a, sessionID)
	success = true
	return nil
}

// resolveSession picks the explicit session, the user's last active one, or a
// fresh session, and records it as the user's current session.
func resolveSession(a *app, userID, sessionID string) (string, error) {
	if sessionID == "" {
		sessionID = a.contexts.UserLastSessionID(userID)
	}
	if sessionID == "" || a.sessions.Get(sessionID) == nil {
		meta, err := a.sessions.Create(session.CreateOptions{UserID: userID, Model: a.cfg.Model})
		if err != nil {
			return "", err
		}
		sessionID = meta.SessionID
	}
	if err := a.contexts.SaveUserSession(userID, sessionID); err != nil {
		return "", err
	}
	return sessionID, nil
}

// maybeAutoCompact fires the near-limit safety compaction when the session has
// grown to 95% of the context window. Failures are already structured results;
// a failed auto-compact never fails the turn.
func maybeAutoCompact(a *app, sessionID string) {
	rec := a.sessions.Get(sessionID)
	if rec == nil {
		return
	}

	engine, archive, err := a.buildEngine()
	if err != nil {
		return
	}
	defer archive.Close()

	if !engine.ShouldAutoCompact(rec.EstimateTokens()) {
		return
	}
	res := engine.Compact(context.Background(), sessionID, compact.TriggerAuto, "")
	if res.Success {
		fmt.Printf("(history compacted: ~%d tokens summarized)\n", res.PreviousTokens)
	}
}
