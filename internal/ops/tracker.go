// Package ops tracks in-flight agent invocations and exposes cooperative
// cancellation. The agent-execution loop itself is an external collaborator:
// it polls the cancellation flag between discrete steps, so an operation
// mid-step only observes cancellation at its next checkpoint.
package ops

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/threadkeep-ai/threadkeep/internal/chat"
	"github.com/threadkeep-ai/threadkeep/internal/eventlog"
)

// Status is the lifecycle state of a tracked operation.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Operation is one tracked agent invocation.
type Operation struct {
	ID        string
	Owner     string // owning chat/user identity
	Prompt    string // originating prompt
	Status    Status
	StartedAt time.Time

	cancelled atomic.Bool
	cancel    context.CancelFunc
}

// Cancelled reports whether cancellation was requested. Safe to poll from the
// executing goroutine between steps.
func (o *Operation) Cancelled() bool {
	return o.cancelled.Load()
}

// Tracker holds all running operations for the process. Callers must pair
// every Begin with exactly one Complete on every exit path, including error
// paths; an operation never completed is a leak.
type Tracker struct {
	mu     sync.Mutex
	ops    map[string]*Operation
	events *eventlog.Logger
}

// NewTracker creates an operation tracker. events may be nil.
func NewTracker(events *eventlog.Logger) *Tracker {
	return &Tracker{
		ops:    make(map[string]*Operation),
		events: events,
	}
}

// Begin registers a new operation for owner and returns it together with a
// context that is cancelled when the operation is.
func (t *Tracker) Begin(ctx context.Context, owner, prompt string) (*Operation, context.Context) {
	opCtx, cancel := context.WithCancel(ctx)
	op := &Operation{
		ID:        chat.NewID("op"),
		Owner:     owner,
		Prompt:    prompt,
		Status:    StatusRunning,
		StartedAt: time.Now(),
		cancel:    cancel,
	}

	t.mu.Lock()
	t.ops[op.ID] = op
	t.mu.Unlock()

	t.events.Log(eventlog.EventOpStarted, map[string]string{
		"id": op.ID, "owner": owner,
	})
	return op, opCtx
}

// Cancel requests cooperative cancellation of one operation. The entry stays
// tracked until the executing loop observes the flag and calls Complete.
// Returns false for an unknown id.
func (t *Tracker) Cancel(id string) bool {
	t.mu.Lock()
	op, ok := t.ops[id]
	if ok && op.Status == StatusRunning {
		op.Status = StatusCancelled
		op.cancelled.Store(true)
		op.cancel()
	}
	t.mu.Unlock()
	if !ok {
		return false
	}

	t.events.Log(eventlog.EventOpCancelled, map[string]string{
		"id": id, "owner": op.Owner,
	})
	return true
}

// Complete removes the tracked entry. success selects the terminal status
// recorded in the event log; a previously cancelled operation stays
// cancelled.
func (t *Tracker) Complete(id string, success bool) {
	t.mu.Lock()
	op, ok := t.ops[id]
	if ok {
		delete(t.ops, id)
		if op.Status == StatusRunning {
			if success {
				op.Status = StatusCompleted
			} else {
				op.Status = StatusFailed
			}
		}
		op.cancel()
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	t.events.Log(eventlog.EventOpCompleted, map[string]string{
		"id": id, "owner": op.Owner, "status": string(op.Status),
	})
}

// CancelAllForUser cancels every running operation owned by one identity,
// returning how many were cancelled. Used for explicit /cancel-style resets.
func (t *Tracker) CancelAllForUser(owner string) int {
	t.mu.Lock()
	var ids []string
	for id, op := range t.ops {
		if op.Owner == owner && op.Status == StatusRunning {
			op.Status = StatusCancelled
			op.cancelled.Store(true)
			op.cancel()
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.events.Log(eventlog.EventOpCancelled, map[string]string{
			"id": id, "owner": owner,
		})
	}
	return len(ids)
}

// Get returns one tracked operation, or nil.
func (t *Tracker) Get(id string) *Operation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ops[id]
}

// ListForUser returns the operations owned by one identity, in no particular
// order.
func (t *Tracker) ListForUser(owner string) []*Operation {
	t.mu.Lock()
	defer t.mu.Unlock()
	var result []*Operation
	for _, op := range t.ops {
		if op.Owner == owner {
			result = append(result, op)
		}
	}
	return result
}
