package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/threadkeep-ai/threadkeep/internal/chat"
	"github.com/threadkeep-ai/threadkeep/internal/eventlog"
)

// Store owns every SessionRecord under one data directory. Session files are
// the source of truth; the index is a derived cache rebuilt by a full
// directory scan whenever it is missing or judged stale.
type Store struct {
	mu        sync.Mutex
	dir       string // sessions directory
	indexPath string
	idx       *indexData
	events    *eventlog.Logger
}

// NewStore opens (or creates) the session store rooted at dataDir.
// A missing index triggers a rebuild from the session files; a corrupt index
// degrades to empty rather than failing.
func NewStore(dataDir string, events *eventlog.Logger) (*Store, error) {
	dir := filepath.Join(dataDir, "sessions")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sessions directory: %w", err)
	}
	s := &Store{
		dir:       dir,
		indexPath: filepath.Join(dataDir, "index.json"),
		events:    events,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadIndexLocked()
	return s, nil
}

// Create allocates a new session and persists an empty message log.
func (s *Store) Create(opts CreateOptions) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	meta := Metadata{
		SessionID:     chat.NewID("sess"),
		CreatedAt:     now,
		LastMessageAt: now,
		UserID:        opts.UserID,
		Model:         opts.Model,
		GitBranch:     opts.GitBranch,
		ProjectPath:   opts.ProjectPath,
	}
	rec := &Record{Metadata: meta, Messages: []chat.Message{}}

	if err := s.writeRecordLocked(rec); err != nil {
		return Metadata{}, err
	}
	s.syncIndexLocked(meta)
	s.events.Log(eventlog.EventSessionCreated, map[string]string{
		"sessionId": meta.SessionID, "userId": meta.UserID,
	})
	return meta, nil
}

// Get reads and parses one session file. Returns nil on any read or parse
// failure: a corrupt session is treated as absent, not fatal.
func (s *Store) Get(id string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRecordLocked(id)
}

// GetMetadata serves metadata from the index only, without touching the
// session file. The second return reports whether the id is indexed.
func (s *Store) GetMetadata(id string) (Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.idx.Sessions[id]
	return meta, ok
}

// List filters, sorts, and pages session metadata from the index.
func (s *Store) List(filter ListFilter) []Metadata {
	s.mu.Lock()
	var all []Metadata
	for _, meta := range s.idx.Sessions {
		if filter.UserID != "" && meta.UserID != filter.UserID {
			continue
		}
		all = append(all, meta)
	}
	s.mu.Unlock()

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = SortByLastMessage
	}
	sort.Slice(all, func(i, j int) bool {
		var less bool
		switch sortBy {
		case SortByCreated:
			less = all[i].CreatedAt.Before(all[j].CreatedAt)
		case SortByMessageCount:
			less = all[i].MessageCount < all[j].MessageCount
		default:
			less = all[i].LastMessageAt.Before(all[j].LastMessageAt)
		}
		if filter.Ascending {
			return less
		}
		return !less
	})

	if filter.Offset >= len(all) {
		return nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all
}

// Update merges the given fields into the session's metadata. LastMessageAt is
// re-stamped to now unless the caller sets it explicitly.
func (s *Store) Update(id string, opts UpdateOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.readRecordLocked(id)
	if rec == nil {
		return fmt.Errorf("session %s not found", id)
	}

	m := &rec.Metadata
	if opts.UserID != nil {
		m.UserID = *opts.UserID
	}
	if opts.Model != nil {
		m.Model = *opts.Model
	}
	if opts.GitBranch != nil {
		m.GitBranch = *opts.GitBranch
	}
	if opts.ProjectPath != nil {
		m.ProjectPath = *opts.ProjectPath
	}
	if opts.CostUSD != nil {
		m.CostUSD = *opts.CostUSD
	}
	if opts.InputTokens != nil {
		m.InputTokens = *opts.InputTokens
	}
	if opts.OutputTokens != nil {
		m.OutputTokens = *opts.OutputTokens
	}
	if opts.LastMessageAt != nil {
		m.LastMessageAt = *opts.LastMessageAt
	} else {
		m.LastMessageAt = time.Now()
	}

	if err := s.writeRecordLocked(rec); err != nil {
		return err
	}
	s.syncIndexLocked(rec.Metadata)
	return nil
}

// AppendMessage appends one message to a session's log, recomputing
// messageCount and last-activity. Appending to a session that does not exist
// is a silent no-op.
func (s *Store) AppendMessage(id string, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.readRecordLocked(id)
	if rec == nil {
		return nil
	}

	rec.Messages = append(rec.Messages, msg)
	rec.Metadata.MessageCount = len(rec.Messages)
	rec.Metadata.LastMessageAt = time.Now()

	if err := s.writeRecordLocked(rec); err != nil {
		return err
	}
	s.syncIndexLocked(rec.Metadata)
	s.events.Log(eventlog.EventMessageAppended, map[string]any{
		"sessionId": id, "messageCount": rec.Metadata.MessageCount,
	})
	return nil
}

// SetSummary replaces the session's compaction summary.
func (s *Store) SetSummary(id, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.readRecordLocked(id)
	if rec == nil {
		return fmt.Errorf("session %s not found", id)
	}
	rec.Summary = summary
	rec.Metadata.LastMessageAt = time.Now()

	if err := s.writeRecordLocked(rec); err != nil {
		return err
	}
	s.syncIndexLocked(rec.Metadata)
	return nil
}

// Fork creates a new session that is a value-copy of the source's messages and
// summary at the time of the call. Later mutation of either copy never affects
// the other.
func (s *Store) Fork(id string, opts CreateOptions) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.readRecordLocked(id)
	if src == nil {
		return Metadata{}, fmt.Errorf("session %s not found", id)
	}

	now := time.Now()
	meta := Metadata{
		SessionID:       chat.NewID("sess"),
		CreatedAt:       now,
		LastMessageAt:   now,
		MessageCount:    len(src.Messages),
		UserID:          src.Metadata.UserID,
		Model:           src.Metadata.Model,
		GitBranch:       src.Metadata.GitBranch,
		ProjectPath:     src.Metadata.ProjectPath,
		IsForked:        true,
		ParentSessionID: id,
	}
	if opts.UserID != "" {
		meta.UserID = opts.UserID
	}
	if opts.Model != "" {
		meta.Model = opts.Model
	}

	rec := &Record{
		Metadata: meta,
		Messages: chat.CloneMessages(src.Messages),
		Summary:  src.Summary,
	}
	if rec.Messages == nil {
		rec.Messages = []chat.Message{}
	}

	if err := s.writeRecordLocked(rec); err != nil {
		return Metadata{}, err
	}
	s.syncIndexLocked(meta)
	s.events.Log(eventlog.EventSessionForked, map[string]string{
		"sessionId": meta.SessionID, "parentSessionId": id,
	})
	return meta, nil
}

// Clear empties a session's message log and summary, keeping the id and
// metadata shell.
func (s *Store) Clear(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.readRecordLocked(id)
	if rec == nil {
		return fmt.Errorf("session %s not found", id)
	}
	rec.Messages = []chat.Message{}
	rec.Summary = ""
	rec.Metadata.MessageCount = 0
	rec.Metadata.LastMessageAt = time.Now()

	if err := s.writeRecordLocked(rec); err != nil {
		return err
	}
	s.syncIndexLocked(rec.Metadata)
	s.events.Log(eventlog.EventSessionCleared, map[string]string{"sessionId": id})
	return nil
}

// Delete removes the session file and its index entries. A missing file is
// tolerated.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.recordPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	s.removeIndexLocked(id)
	s.events.Log(eventlog.EventSessionDeleted, map[string]string{"sessionId": id})
	return nil
}

// RebuildIndex reconstructs both index maps from a full directory scan,
// re-parsing every session file. This is the designated recovery path when
// the index is missing or has diverged from the files.
func (s *Store) RebuildIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildIndexLocked()
}

func (s *Store) rebuildIndexLocked() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("scan sessions directory: %w", err)
	}

	idx := newIndexData()
	var metas []Metadata
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		rec := s.parseRecordFile(filepath.Join(s.dir, e.Name()))
		if rec == nil {
			continue // corrupt file: skipped, not fatal
		}
		metas = append(metas, rec.Metadata)
	}

	// Per-user lists stay ordered by creation time.
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.Before(metas[j].CreatedAt)
	})
	for _, meta := range metas {
		idx.Sessions[meta.SessionID] = meta
		if meta.UserID != "" {
			idx.UserSessions[meta.UserID] = append(idx.UserSessions[meta.UserID], meta.SessionID)
		}
	}

	s.idx = idx
	if err := s.persistIndexLocked(); err != nil {
		return err
	}
	s.events.Log(eventlog.EventIndexRebuilt, map[string]int{"sessions": len(idx.Sessions)})
	return nil
}

// ── file I/O ─────────────────────────────────────────────────────────────────

func (s *Store) recordPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) readRecordLocked(id string) *Record {
	return s.parseRecordFile(s.recordPath(id))
}

func (s *Store) parseRecordFile(path string) *Record {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.events.Log(eventlog.EventStorageError, map[string]string{
				"path": path, "error": err.Error(),
			})
		}
		return nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.events.Log(eventlog.EventStorageError, map[string]string{
			"path": path, "error": "parse: " + err.Error(),
		})
		return nil
	}
	if rec.Metadata.SessionID == "" {
		return nil
	}
	return &rec
}

func (s *Store) writeRecordLocked(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", rec.Metadata.SessionID, err)
	}
	if err := os.WriteFile(s.recordPath(rec.Metadata.SessionID), data, 0644); err != nil {
		return fmt.Errorf("write session %s: %w", rec.Metadata.SessionID, err)
	}
	return nil
}
