// Package memory persists cross-session knowledge in SQLite: manual notes and
// archived compaction summaries, searchable by keyword.
package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Note is a single piece of cross-session knowledge.
type Note struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Source    string    `json:"source"` // "manual" | "compaction"
	CreatedAt time.Time `json:"created_at"`
	SessionID string    `json:"session_id,omitempty"`
}

// Store abstracts cross-session memory persistence.
type Store interface {
	Add(content string, tags []string, source, sessionID string) (*Note, error)
	Search(query string, limit int) ([]Note, error)
	List(limit int) ([]Note, error)
	Delete(id string) error
	// ArchiveSummary records a compaction summary; errors are swallowed so a
	// broken archive never fails a compaction.
	ArchiveSummary(sessionID, summary string)
	Close() error
}

// NullStore is a no-op implementation used when the archive is disabled.
type NullStore struct{}

func (NullStore) Add(string, []string, string, string) (*Note, error) { return nil, nil }
func (NullStore) Search(string, int) ([]Note, error)                  { return nil, nil }
func (NullStore) List(int) ([]Note, error)                            { return nil, nil }
func (NullStore) Delete(string) error                                 { return nil }
func (NullStore) ArchiveSummary(string, string)                       {}
func (NullStore) Close() error                                        { return nil }

const createNotesTableSQL = `
CREATE TABLE IF NOT EXISTS notes (
    id         TEXT PRIMARY KEY,
    content    TEXT NOT NULL,
    tags       TEXT DEFAULT '[]',
    source     TEXT DEFAULT 'manual',
    created_at TEXT NOT NULL,
    session_id TEXT DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes(created_at);
`

// SQLiteStore implements Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the archive database at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory archive: %w", err)
	}
	if _, err := db.Exec(createNotesTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create notes table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Add(content string, tags []string, source, sessionID string) (*Note, error) {
	n := &Note{
		ID:        uuid.New().String()[:8],
		Content:   content,
		Tags:      tags,
		Source:    source,
		CreatedAt: time.Now(),
		SessionID: sessionID,
	}

	tagsJSON, _ := json.Marshal(n.Tags)

	_, err := s.db.Exec(`
		INSERT INTO notes (id, content, tags, source, created_at, session_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Content, string(tagsJSON), n.Source,
		n.CreatedAt.Format(time.RFC3339Nano), n.SessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Search(query string, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = 20
	}

	// Keyword search via LIKE; no embeddings needed at this scale.
	pattern := "%" + query + "%"
	rows, err := s.db.Query(`
		SELECT id, content, tags, source, created_at, session_id
		FROM notes
		WHERE content LIKE ? OR tags LIKE ?
		ORDER BY created_at DESC
		LIMIT ?`,
		pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}
	defer rows.Close()

	return scanNotes(rows)
}

func (s *SQLiteStore) List(limit int) ([]Note, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, content, tags, source, created_at, session_id
		FROM notes
		ORDER BY created_at DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	return scanNotes(rows)
}

func (s *SQLiteStore) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM notes WHERE id = ? OR id LIKE ?", id, id+"%")
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("note %s not found", id)
	}
	return nil
}

// ArchiveSummary records a compaction summary tagged for later retrieval.
func (s *SQLiteStore) ArchiveSummary(sessionID, summary string) {
	if strings.TrimSpace(summary) == "" {
		return
	}
	_, _ = s.Add(summary, []string{"summary"}, "compaction", sessionID)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FormatForPrompt renders notes as a bulleted block suitable for prompt
// injection, stopping before maxBytes is exceeded. Returns "" for no notes.
func FormatForPrompt(notes []Note, maxBytes int) string {
	if len(notes) == 0 {
		return ""
	}
	if maxBytes <= 0 {
		maxBytes = 2000
	}

	var sb strings.Builder
	sb.WriteString("Relevant notes from past sessions:\n")
	for _, n := range notes {
		line := "- " + n.Content + "\n"
		if sb.Len()+len(line) > maxBytes {
			break
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// scanNotes reads note rows from a query result.
func scanNotes(rows *sql.Rows) ([]Note, error) {
	var notes []Note
	for rows.Next() {
		var n Note
		var tagsJSON, createdAt string
		if err := rows.Scan(&n.ID, &n.Content, &tagsJSON, &n.Source, &createdAt, &n.SessionID); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		_ = json.Unmarshal([]byte(tagsJSON), &n.Tags)
		if n.Tags == nil {
			n.Tags = []string{}
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
