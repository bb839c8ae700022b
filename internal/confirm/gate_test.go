package confirm

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingNotifier tallies per-method deliveries for expiry exactly-once checks.
type countingNotifier struct {
	mu        sync.Mutex
	requested []*Pending
	expired   []*Pending
}

func (n *countingNotifier) ConfirmationRequested(p *Pending) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requested = append(n.requested, p)
}

func (n *countingNotifier) ConfirmationExpired(p *Pending) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, p)
}

func (n *countingNotifier) expiredCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.expired)
}

func TestRequiresConfirmation(t *testing.T) {
	cases := []struct {
		text  string
		op    Operation
		match bool
	}{
		{"please create a bot for my team", OpCreateBot, true},
		{"Create new bot named helper", OpCreateBot, true},
		{"create a repo called infra", OpCreateRepo, true},
		{"CREATE REPOSITORY now", OpCreateRepo, true},
		{"can you deploy this to staging", OpDeploy, true},
		{"commit and push the changes", OpCommitPush, true},
		{"just push it", OpCommitPush, true},
		{"delete the bot please", OpDeleteBot, true},
		{"hello there", "", false},
		{"what does deployment mean", "", false}, // \bdeploy\b does not match "deployment"
		{"the repushing case", "", false},
	}
	for _, c := range cases {
		op, ok := RequiresConfirmation(c.text)
		assert.Equal(t, c.match, ok, "text %q", c.text)
		assert.Equal(t, c.op, op, "text %q", c.text)
	}
}

func TestRequiresConfirmationFirstMatchWins(t *testing.T) {
	// Matches both the bot and the deploy patterns; the table order decides.
	op, ok := RequiresConfirmation("create a bot and deploy it")
	require.True(t, ok)
	assert.Equal(t, OpCreateBot, op)
}

func TestResolveApprove(t *testing.T) {
	n := &countingNotifier{}
	g := NewGate(time.Minute, n, nil)

	id := g.Create("alice", OpDeploy, "deploy to staging", map[string]string{"env": "staging"})
	require.NotEmpty(t, id)
	require.Len(t, n.requested, 1)
	assert.Equal(t, 1, g.PendingCount())

	out := g.Resolve(id, "alice", true)
	assert.True(t, out.Confirmed)
	assert.Empty(t, out.Reason)
	assert.Equal(t, OpDeploy, out.Operation)
	assert.Equal(t, "deploy to staging", out.Prompt)
	assert.Equal(t, map[string]string{"env": "staging"}, out.Payload)
	assert.Equal(t, 0, g.PendingCount())
}

func TestResolveDeny(t *testing.T) {
	g := NewGate(time.Minute, nil, nil)
	id := g.Create("alice", OpCreateRepo, "create a repo", nil)

	out := g.Resolve(id, "alice", false)
	assert.False(t, out.Confirmed)
	assert.Empty(t, out.Reason, "an explicit denial carries no error reason")
	assert.Equal(t, OpCreateRepo, out.Operation)
	assert.Equal(t, 0, g.PendingCount())
}

func TestResolveUnknownID(t *testing.T) {
	g := NewGate(time.Minute, nil, nil)
	out := g.Resolve("confirm-nope", "alice", true)
	assert.False(t, out.Confirmed)
	assert.Equal(t, "expired or not found", out.Reason)
}

func TestResolveUnauthorizedLeavesPending(t *testing.T) {
	g := NewGate(time.Minute, nil, nil)
	id := g.Create("alice", OpDeploy, "deploy", nil)

	out := g.Resolve(id, "mallory", true)
	assert.False(t, out.Confirmed)
	assert.Equal(t, "unauthorized", out.Reason)
	require.Equal(t, 1, g.PendingCount(), "a foreign resolution attempt must not consume the entry")

	// The rightful owner can still settle it.
	out = g.Resolve(id, "alice", true)
	assert.True(t, out.Confirmed)
}

func TestExpiryFiresOnce(t *testing.T) {
	n := &countingNotifier{}
	g := NewGate(30*time.Millisecond, n, nil)

	id := g.Create("alice", OpCommitPush, "push it", nil)
	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, 0, g.PendingCount())
	assert.Equal(t, 1, n.expiredCount())

	out := g.Resolve(id, "alice", true)
	assert.False(t, out.Confirmed)
	assert.Equal(t, "expired or not found", out.Reason)
}

func TestResolveBeatsExpiry(t *testing.T) {
	n := &countingNotifier{}
	g := NewGate(40*time.Millisecond, n, nil)

	id := g.Create("alice", OpDeleteBot, "delete the bot", nil)
	out := g.Resolve(id, "alice", true)
	require.True(t, out.Confirmed)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, n.expiredCount(), "a resolved entry must never also expire")
}

func TestClearUser(t *testing.T) {
	g := NewGate(time.Minute, nil, nil)
	g.Create("alice", OpDeploy, "one", nil)
	g.Create("alice", OpCreateBot, "two", nil)
	g.Create("bob", OpCreateRepo, "three", nil)

	assert.Equal(t, 2, g.ClearUser("alice"))
	assert.Equal(t, 1, g.PendingCount())
	assert.Equal(t, 0, g.ClearUser("alice"))
}

func TestDefaultTimeout(t *testing.T) {
	g := NewGate(0, nil, nil)
	id := g.Create("alice", OpDeploy, "deploy", nil)

	g.mu.Lock()
	p := g.pending[id]
	g.mu.Unlock()
	require.NotNil(t, p)
	assert.WithinDuration(t, p.CreatedAt.Add(60*time.Second), p.ExpiresAt, time.Second)
}
