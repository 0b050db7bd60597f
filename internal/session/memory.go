package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"calmchat/internal/models"
	"calmchat/internal/util"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session), now: time.Now}
}

func (m *MemoryStore) Create(_ context.Context, studyMode bool) (Session, error) {
	now := m.now().UTC()
	s := &Session{ID: uuid.NewString(), StudyMode: studyMode, CreatedAt: now, UpdatedAt: now, Turns: []models.Turn{}}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return copySession(s), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, notFound(id)
	}
	return copySession(s), nil
}

func (m *MemoryStore) Append(_ context.Context, id string, turns ...models.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return notFound(id)
	}
	s.Turns = append(s.Turns, turns...)
	s.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) SetStudyMode(_ context.Context, id string, studyMode bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return notFound(id)
	}
	s.StudyMode = studyMode
	s.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) End(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return notFound(id)
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) List(context.Context) ([]Info, error) {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Info{ID: s.ID, StudyMode: s.StudyMode, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt, TurnCount: len(s.Turns)})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func copySession(s *Session) Session {
	out := *s
	out.Turns = append([]models.Turn(nil), s.Turns...)
	return out
}

func notFound(id string) error {
	return fmt.Errorf("session %s: %w", id, util.ErrNotFound)
}
