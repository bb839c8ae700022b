package session

import (
	"encoding/json"
	"os"
	"time"

	"github.com/threadkeep-ai/threadkeep/internal/eventlog"
)

// indexData is the on-disk shape of the global index file. It is strictly a
// derived cache of the session files: on divergence the only reconciliation
// path is a full rebuild.
type indexData struct {
	Sessions     map[string]Metadata `json:"sessions"`
	UserSessions map[string][]string `json:"userSessions"`
	LastUpdated  time.Time           `json:"lastUpdated"`
}

func newIndexData() *indexData {
	return &indexData{
		Sessions:     make(map[string]Metadata),
		UserSessions: make(map[string][]string),
	}
}

// loadIndexLocked reads the index file. A missing index triggers a rebuild
// from the session files; a corrupt one degrades to empty and is logged.
func (s *Store) loadIndexLocked() {
	data, err := os.ReadFile(s.indexPath)
	if err != nil {
		s.idx = newIndexData()
		if os.IsNotExist(err) {
			_ = s.rebuildIndexLocked()
		} else {
			s.events.Log(eventlog.EventStorageError, map[string]string{
				"path": s.indexPath, "error": err.Error(),
			})
		}
		return
	}

	idx := newIndexData()
	if err := json.Unmarshal(data, idx); err != nil {
		s.events.Log(eventlog.EventStorageError, map[string]string{
			"path": s.indexPath, "error": "parse: " + err.Error(),
		})
		s.idx = newIndexData()
		return
	}
	if idx.Sessions == nil {
		idx.Sessions = make(map[string]Metadata)
	}
	if idx.UserSessions == nil {
		idx.UserSessions = make(map[string][]string)
	}
	s.idx = idx
}

// syncIndexLocked mirrors freshly written metadata into both index maps and
// persists the index.
func (s *Store) syncIndexLocked(meta Metadata) {
	old, existed := s.idx.Sessions[meta.SessionID]
	s.idx.Sessions[meta.SessionID] = meta

	if existed && old.UserID != meta.UserID {
		s.removeUserEntryLocked(old.UserID, meta.SessionID)
	}
	if meta.UserID != "" && !containsID(s.idx.UserSessions[meta.UserID], meta.SessionID) {
		s.idx.UserSessions[meta.UserID] = append(s.idx.UserSessions[meta.UserID], meta.SessionID)
	}

	if err := s.persistIndexLocked(); err != nil {
		s.events.Log(eventlog.EventStorageError, map[string]string{
			"path": s.indexPath, "error": err.Error(),
		})
	}
}

func (s *Store) removeIndexLocked(id string) {
	meta, ok := s.idx.Sessions[id]
	if ok {
		delete(s.idx.Sessions, id)
		s.removeUserEntryLocked(meta.UserID, id)
	}
	if err := s.persistIndexLocked(); err != nil {
		s.events.Log(eventlog.EventStorageError, map[string]string{
			"path": s.indexPath, "error": err.Error(),
		})
	}
}

func (s *Store) removeUserEntryLocked(userID, id string) {
	if userID == "" {
		return
	}
	list := s.idx.UserSessions[userID]
	for i, v := range list {
		if v == id {
			s.idx.UserSessions[userID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.idx.UserSessions[userID]) == 0 {
		delete(s.idx.UserSessions, userID)
	}
}

func (s *Store) persistIndexLocked() error {
	s.idx.LastUpdated = time.Now()
	data, err := json.MarshalIndent(s.idx, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.indexPath, data, 0644)
}

func containsID(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
