// Package history keeps the per-user rolling conversation buffer used to
// enrich prompts between turns. It is working memory, distinct from durable
// session history: capped, deduplicated, and served through a short-lived
// read cache.
//
// Like the session store, it serializes its own read-modify-write sequences
// in-process and assumes a single writing process per data directory.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/threadkeep-ai/threadkeep/internal/chat"
	"github.com/threadkeep-ai/threadkeep/internal/eventlog"
)

// Options configures a Store. Zero fields take the documented defaults.
type Options struct {
	Cap           int           // max messages per user (default 200)
	ContextBudget int           // token budget for RecentContext (default 50000)
	CacheTTL      time.Duration // read-cache lifetime (default 5m)
	DedupWindow   time.Duration // identical-message suppression span (default 2s)
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.Cap <= 0 {
		opts.Cap = 200
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 50_000
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = 2 * time.Second
	}
	return opts
}

type cacheEntry struct {
	messages []chat.Message
	loadedAt time.Time
}

// Store is the per-user rolling context store.
type Store struct {
	mu     sync.Mutex
	dir    string
	opts   Options
	cache  map[string]cacheEntry
	events *eventlog.Logger
}

// NewStore opens the context store rooted at dataDir.
func NewStore(dataDir string, opts Options, events *eventlog.Logger) (*Store, error) {
	dir := filepath.Join(dataDir, "context")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create context directory: %w", err)
	}
	return &Store{
		dir:    dir,
		opts:   opts.withDefaults(),
		cache:  make(map[string]cacheEntry),
		events: events,
	}, nil
}

// Load returns the user's rolling history, serving from the cache if the
// entry is younger than the TTL. A missing file yields an empty history.
func (s *Store) Load(userID string) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return chat.CloneMessages(s.loadLocked(userID))
}

func (s *Store) loadLocked(userID string) []chat.Message {
	if entry, ok := s.cache[userID]; ok && time.Since(entry.loadedAt) < s.opts.CacheTTL {
		return entry.messages
	}

	var msgs []chat.Message
	data, err := os.ReadFile(s.contextPath(userID))
	if err == nil {
		if jsonErr := json.Unmarshal(data, &msgs); jsonErr != nil {
			s.events.Log(eventlog.EventStorageError, map[string]string{
				"path": s.contextPath(userID), "error": "parse: " + jsonErr.Error(),
			})
			msgs = nil
		}
	} else if !os.IsNotExist(err) {
		s.events.Log(eventlog.EventStorageError, map[string]string{
			"path": s.contextPath(userID), "error": err.Error(),
		})
	}

	s.cache[userID] = cacheEntry{messages: msgs, loadedAt: time.Now()}
	return msgs
}

// Append adds a message to the user's history, suppressing an exact duplicate
// of the immediately preceding entry when the two timestamps fall within the
// dedup window. The history is trimmed to the cap, oldest first.
func (s *Store) Append(userID string, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.loadLocked(userID)

	if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		if last.Role == msg.Role && last.Content == msg.Content {
			gap := msg.Timestamp.Sub(last.Timestamp)
			if gap < 0 {
				gap = -gap
			}
			if gap <= s.opts.DedupWindow {
				return nil // duplicate: dropped silently
			}
		}
	}

	msgs = append(chat.CloneMessages(msgs), msg)
	if len(msgs) > s.opts.Cap {
		msgs = msgs[len(msgs)-s.opts.Cap:]
	}

	if err := s.persistLocked(userID, msgs); err != nil {
		return err
	}
	s.cache[userID] = cacheEntry{messages: msgs, loadedAt: time.Now()}
	return nil
}

// RecentContext walks the history backward collecting up to maxCount messages
// whose summed token estimate stays within the context budget, and returns
// them oldest-first as a role-labelled transcript. The returned transcript's
// estimate never exceeds the budget, even if that means fewer than maxCount
// messages.
func (s *Store) RecentContext(userID string, maxCount int) string {
	s.mu.Lock()
	msgs := s.loadLocked(userID)
	s.mu.Unlock()

	if len(msgs) == 0 || maxCount <= 0 {
		return ""
	}

	var collected []chat.Message
	tokens := 0
	for i := len(msgs) - 1; i >= 0 && len(collected) < maxCount; i-- {
		cost := msgs[i].EstimateTokens()
		if tokens+cost > s.opts.ContextBudget {
			break
		}
		tokens += cost
		collected = append(collected, msgs[i])
	}

	var sb strings.Builder
	for i := len(collected) - 1; i >= 0; i-- {
		m := collected[i]
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(roleLabel(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// InvalidateCache drops the cached copy of one user's history. Any code path
// that mutates the underlying files outside this store's API must call it.
func (s *Store) InvalidateCache(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, userID)
}

// ClearAll removes the user's context log and session pointer and invalidates
// the cache entry.
func (s *Store) ClearAll(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, userID)
	if err := os.Remove(s.contextPath(userID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear context for %s: %w", userID, err)
	}
	if err := os.Remove(s.pointerPath(userID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session pointer for %s: %w", userID, err)
	}
	return nil
}

// ── last-active-session pointer ──────────────────────────────────────────────

type sessionPointer struct {
	SessionID string    `json:"sessionId"`
	SavedAt   time.Time `json:"savedAt"`
}

// SaveUserSession records the user's most recently active session id, used to
// resume continuity across independent turns.
func (s *Store) SaveUserSession(userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(sessionPointer{SessionID: sessionID, SavedAt: time.Now()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session pointer: %w", err)
	}
	if err := os.WriteFile(s.pointerPath(userID), data, 0644); err != nil {
		return fmt.Errorf("write session pointer for %s: %w", userID, err)
	}
	return nil
}

// UserLastSessionID returns the saved session pointer, or "" when absent or
// unreadable.
func (s *Store) UserLastSessionID(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.pointerPath(userID))
	if err != nil {
		return ""
	}
	var ptr sessionPointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		s.events.Log(eventlog.EventStorageError, map[string]string{
			"path": s.pointerPath(userID), "error": "parse: " + err.Error(),
		})
		return ""
	}
	return ptr.SessionID
}

// ClearUserSession removes the saved session pointer. A missing file is
// tolerated.
func (s *Store) ClearUserSession(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.pointerPath(userID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session pointer for %s: %w", userID, err)
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (s *Store) contextPath(userID string) string {
	return filepath.Join(s.dir, userID+".json")
}

func (s *Store) pointerPath(userID string) string {
	return filepath.Join(s.dir, userID+".session.json")
}

func (s *Store) persistLocked(userID string, msgs []chat.Message) error {
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal context for %s: %w", userID, err)
	}
	if err := os.WriteFile(s.contextPath(userID), data, 0644); err != nil {
		return fmt.Errorf("write context for %s: %w", userID, err)
	}
	return nil
}

func roleLabel(r chat.Role) string {
	switch r {
	case chat.RoleUser:
		return "User"
	case chat.RoleAssistant:
		return "Assistant"
	case chat.RoleSystem:
		return "System"
	default:
		return string(r)
	}
}
