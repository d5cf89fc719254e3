package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"docqa/internal/model"
)

// MemoryStore keeps sessions in process memory. It is used when MySQL is
// disabled and by tests. Returned values are copies.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	now      func() time.Time
}

type memorySession struct {
	session model.Session
	docs    []model.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		now:      time.Now,
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) CreateSession(_ context.Context, session *model.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now()
	}
	s.mu.Lock()
	s.sessions[session.ID] = &memorySession{session: *session}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	session := entry.session
	return &session, nil
}

func (s *MemoryStore) ListSessionsCreatedBefore(_ context.Context, cutoff time.Time) ([]model.Session, error) {
	s.mu.RLock()
	var out []model.Session
	for _, entry := range s.sessions {
		if entry.session.CreatedAt.Before(cutoff) {
			out = append(out, entry.session)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListSessionIDs(context.Context) ([]string, error) {
	s.mu.RLock()
	sessions := make([]model.Session, 0, len(s.sessions))
	for _, entry := range s.sessions {
		sessions = append(sessions, entry.session)
	}
	s.mu.RUnlock()
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.ID
	}
	return ids, nil
}

func (s *MemoryStore) CountSessions(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sessions)), nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// AddDocument silently drops documents for unknown sessions, matching the
// foreign-key-less MySQL schema where orphans are never listed.
func (s *MemoryStore) AddDocument(_ context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[doc.SessionID]
	if !ok {
		return nil
	}
	doc.Position = len(entry.docs)
	if doc.NERStatus == "" {
		doc.NERStatus = model.NERPending
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	entry.docs = append(entry.docs, *doc)
	return nil
}

func (s *MemoryStore) ListDocuments(_ context.Context, sessionID string) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]model.Document, len(entry.docs))
	copy(out, entry.docs)
	return out, nil
}

func (s *MemoryStore) GetDocument(_ context.Context, sessionID, docID string) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	for _, d := range entry.docs {
		if d.ID == docID {
			doc := d
			return &doc, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) UpdateNERStatus(_ context.Context, docID string, status model.NERStatus) error {
	s.update(docID, func(d *model.Document) { d.NERStatus = status })
	return nil
}

func (s *MemoryStore) SaveEntities(_ context.Context, docID string, entities []model.Entity) error {
	s.update(docID, func(d *model.Document) {
		d.SetEntities(entities)
		d.NERStatus = model.NERCompleted
	})
	return nil
}

func (s *MemoryStore) update(docID string, fn func(*model.Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.sessions {
		for i := range entry.docs {
			if entry.docs[i].ID == docID {
				fn(&entry.docs[i])
				return
			}
		}
	}
}
