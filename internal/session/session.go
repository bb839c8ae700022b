// Package session persists durable conversation sessions: one pretty-printed
// JSON file per session plus a derived index file for listing without loading
// full message logs.
//
// The store serializes its own read-modify-write sequences with an internal
// mutex, so concurrent in-process callers are safe. It provides no
// cross-process locking: at most one process should write a given data
// directory at a time.
package session

import (
	"time"

	"github.com/threadkeep-ai/threadkeep/internal/chat"
)

// Metadata is the denormalized session header, duplicated into the index.
type Metadata struct {
	SessionID       string    `json:"sessionId"`
	CreatedAt       time.Time `json:"createdAt"`
	LastMessageAt   time.Time `json:"lastMessageAt"`
	MessageCount    int       `json:"messageCount"`
	UserID          string    `json:"userId,omitempty"`
	Model           string    `json:"model,omitempty"`
	GitBranch       string    `json:"gitBranch,omitempty"`
	ProjectPath     string    `json:"projectPath,omitempty"`
	CostUSD         float64   `json:"costUsd"`
	InputTokens     int       `json:"inputTokens"`
	OutputTokens    int       `json:"outputTokens"`
	IsForked        bool      `json:"isForked"`
	ParentSessionID string    `json:"parentSessionId,omitempty"`
}

// Record is the full on-disk shape of one session file.
// metadata.messageCount always equals len(messages) after every mutation.
type Record struct {
	Metadata Metadata       `json:"metadata"`
	Messages []chat.Message `json:"messages"`
	Summary  string         `json:"summary,omitempty"`
}

// CreateOptions seeds a new session's metadata.
type CreateOptions struct {
	UserID      string
	Model       string
	GitBranch   string
	ProjectPath string
}

// UpdateOptions holds a partial metadata merge. Nil fields are left untouched.
// LastMessageAt is re-stamped to now unless explicitly set here.
type UpdateOptions struct {
	UserID        *string
	Model         *string
	GitBranch     *string
	ProjectPath   *string
	CostUSD       *float64
	InputTokens   *int
	OutputTokens  *int
	LastMessageAt *time.Time
}

// SortField selects the ordering for List.
type SortField string

const (
	SortByLastMessage  SortField = "lastMessageAt"
	SortByCreated      SortField = "createdAt"
	SortByMessageCount SortField = "messageCount"
)

// ListFilter narrows and pages a session listing.
type ListFilter struct {
	UserID    string
	SortBy    SortField // default SortByLastMessage
	Ascending bool      // default descending
	Offset    int
	Limit     int // 0 = no limit
}

// EstimateTokens returns a rough token estimate for the session history
// (chars / 4).
func (r *Record) EstimateTokens() int {
	return chat.EstimateTokens(r.Messages)
}
