package ingest

import (
	"context"
	"sort"
	"sync"

	"calmchat/internal/models"
)

// StatusStore is implemented by storage.DocumentRepo and MemoryStatusStore.
type StatusStore interface {
	RecordDocument(ctx context.Context, s models.DocumentStatus) error
	ListDocuments(ctx context.Context) ([]models.DocumentStatus, error)
	DeleteDocument(ctx context.Context, filename string) error
	Clear(ctx context.Context) error
}

type MemoryStatusStore struct {
	mu   sync.RWMutex
	docs map[string]models.DocumentStatus
}

func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{docs: make(map[string]models.DocumentStatus)}
}

func (m *MemoryStatusStore) RecordDocument(_ context.Context, s models.DocumentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.PageFailures = append([]int(nil), s.PageFailures...)
	m.docs[s.Filename] = s
	return nil
}

func (m *MemoryStatusStore) ListDocuments(context.Context) ([]models.DocumentStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.DocumentStatus, 0, len(m.docs))
	for _, s := range m.docs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

func (m *MemoryStatusStore) DeleteDocument(_ context.Context, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, filename)
	return nil
}

func (m *MemoryStatusStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string]models.DocumentStatus)
	return nil
}
