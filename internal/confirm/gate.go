// Package confirm gates risky agent-initiated actions behind a timed user
// approval. A pending confirmation lives only in memory: it is created when
// risky intent is detected in free text and destroyed by whichever of
// explicit approve, explicit cancel, or timeout happens first.
package confirm

import (
	"regexp"
	"sync"
	"time"

	"github.com/threadkeep-ai/threadkeep/internal/chat"
	"github.com/threadkeep-ai/threadkeep/internal/eventlog"
)

// Operation is the closed set of gated operation kinds.
type Operation string

const (
	OpCreateBot  Operation = "create_bot"
	OpCreateRepo Operation = "create_repo"
	OpDeploy     Operation = "deploy"
	OpCommitPush Operation = "commit_push"
	OpDeleteBot  Operation = "delete_bot"
)

// riskPatterns is the fixed classification table. Ordered: the first matching
// pattern wins.
var riskPatterns = []struct {
	re *regexp.Regexp
	op Operation
}{
	{regexp.MustCompile(`(?i)create\s+(a\s+|new\s+)?bot`), OpCreateBot},
	{regexp.MustCompile(`(?i)create\s+(a\s+|new\s+)?repo(sitory)?`), OpCreateRepo},
	{regexp.MustCompile(`(?i)\bdeploy\b`), OpDeploy},
	{regexp.MustCompile(`(?i)\b(push|commit)\b`), OpCommitPush},
	{regexp.MustCompile(`(?i)delete\s+(a\s+|the\s+)?bot`), OpDeleteBot},
}

// RequiresConfirmation matches free text against the risk table and returns
// the first matching operation kind.
func RequiresConfirmation(text string) (Operation, bool) {
	for _, p := range riskPatterns {
		if p.re.MatchString(text) {
			return p.op, true
		}
	}
	return "", false
}

// Pending is one outstanding confirmation. The entry owns its expiry timer:
// resolving cancels the timer, and the timer firing removes the entry, so
// exactly one of the two outcomes ever happens.
type Pending struct {
	ID        string
	Owner     string // requesting chat/user identity; only it may resolve
	Operation Operation
	Prompt    string // free-form originating prompt
	Payload   any
	CreatedAt time.Time
	ExpiresAt time.Time

	timer *time.Timer
}

// Outcome is the result of a resolution attempt.
type Outcome struct {
	Confirmed bool
	Reason    string // set when Confirmed is false for a reason other than denial
	Operation Operation
	Prompt    string
	Payload   any
}

// Notifier delivers interactive prompts and expiry notices to the messaging
// front end (an external collaborator of this core).
type Notifier interface {
	ConfirmationRequested(p *Pending)
	ConfirmationExpired(p *Pending)
}

// Gate holds all pending confirmations for the process.
type Gate struct {
	mu       sync.Mutex
	pending  map[string]*Pending
	timeout  time.Duration
	notifier Notifier
	events   *eventlog.Logger
}

// NewGate creates a confirmation gate. timeout <= 0 takes the 60s default;
// notifier and events may be nil.
func NewGate(timeout time.Duration, notifier Notifier, events *eventlog.Logger) *Gate {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gate{
		pending:  make(map[string]*Pending),
		timeout:  timeout,
		notifier: notifier,
		events:   events,
	}
}

// Create registers a pending confirmation, starts its expiry timer, and emits
// the approval prompt to the owner. Returns the new confirmation id.
func (g *Gate) Create(owner string, op Operation, prompt string, payload any) string {
	now := time.Now()
	p := &Pending{
		ID:        chat.NewID("confirm"),
		Owner:     owner,
		Operation: op,
		Prompt:    prompt,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(g.timeout),
	}

	g.mu.Lock()
	g.pending[p.ID] = p
	p.timer = time.AfterFunc(g.timeout, func() { g.expire(p.ID) })
	g.mu.Unlock()

	g.events.Log(eventlog.EventConfirmCreated, map[string]string{
		"id": p.ID, "owner": owner, "operation": string(op),
	})
	if g.notifier != nil {
		g.notifier.ConfirmationRequested(p)
	}
	return p.ID
}

// expire is the timer callback. If the entry is still present it is removed
// and an expiry notice emitted; if it was resolved first, the timer was
// already stopped and this never observes it.
func (g *Gate) expire(id string) {
	g.mu.Lock()
	p, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	g.mu.Unlock()
	if !ok {
		return
	}

	g.events.Log(eventlog.EventConfirmExpired, map[string]string{
		"id": p.ID, "owner": p.Owner, "operation": string(p.Operation),
	})
	if g.notifier != nil {
		g.notifier.ConfirmationExpired(p)
	}
}

// Resolve settles a pending confirmation. An unknown id reports "expired or
// not found" with no state change. A resolver other than the owner reports
// "unauthorized" and leaves the entry pending. Otherwise the timer is
// cancelled, the entry removed, and the caller gets back the operation and
// originating prompt with Confirmed set to approve.
func (g *Gate) Resolve(id, resolver string, approve bool) Outcome {
	g.mu.Lock()
	p, ok := g.pending[id]
	if !ok {
		g.mu.Unlock()
		return Outcome{Confirmed: false, Reason: "expired or not found"}
	}
	if p.Owner != resolver {
		g.mu.Unlock()
		return Outcome{Confirmed: false, Reason: "unauthorized"}
	}
	p.timer.Stop()
	delete(g.pending, id)
	g.mu.Unlock()

	g.events.Log(eventlog.EventConfirmResolved, map[string]any{
		"id": p.ID, "owner": p.Owner, "operation": string(p.Operation), "approved": approve,
	})
	return Outcome{
		Confirmed: approve,
		Operation: p.Operation,
		Prompt:    p.Prompt,
		Payload:   p.Payload,
	}
}

// ClearUser removes and cancels all pending confirmations owned by one
// identity, returning how many were dropped. Used on explicit session reset.
func (g *Gate) ClearUser(owner string) int {
	g.mu.Lock()
	var dropped []*Pending
	for id, p := range g.pending {
		if p.Owner == owner {
			p.timer.Stop()
			delete(g.pending, id)
			dropped = append(dropped, p)
		}
	}
	g.mu.Unlock()

	for _, p := range dropped {
		g.events.Log(eventlog.EventConfirmResolved, map[string]any{
			"id": p.ID, "owner": p.Owner, "operation": string(p.Operation), "approved": false,
		})
	}
	return len(dropped)
}

// PendingCount returns the number of outstanding confirmations.
func (g *Gate) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
