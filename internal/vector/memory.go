package vector

import (
	"context"
	"sort"
	"sync"

	"calmchat/internal/models"
)

// MemoryBackend is a brute-force Backend used by tests and the "memory" store setting.
type MemoryBackend struct {
	mu      sync.RWMutex
	meta    *Meta
	rows    []memoryRow
	nextSeq int64
}

type memoryRow struct {
	rec Record
	seq int64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) LoadMeta(context.Context) (Meta, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.meta == nil {
		return Meta{}, false, nil
	}
	return *m.meta, true, nil
}

func (m *MemoryBackend) SaveMeta(_ context.Context, meta Meta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta = &meta
	return nil
}

func (m *MemoryBackend) ReplaceDocument(_ context.Context, filename string, recs []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0:0]
	for _, r := range m.rows {
		if r.rec.Chunk.SourceFilename != filename {
			kept = append(kept, r)
		}
	}
	for _, rec := range recs {
		m.nextSeq++
		vec := append([]float32(nil), rec.Vector...)
		kept = append(kept, memoryRow{rec: Record{Chunk: rec.Chunk, Vector: vec}, seq: m.nextSeq})
	}
	m.rows = kept
	return nil
}

func (m *MemoryBackend) Nearest(_ context.Context, v []float32, k int, metric Metric) ([]Hit, error) {
	m.mu.RLock()
	hits := make([]Hit, 0, len(m.rows))
	for _, r := range m.rows {
		hits = append(hits, Hit{Chunk: r.rec.Chunk, Distance: Distance(metric, v, r.rec.Vector), Seq: r.seq})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Seq < hits[j].Seq
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryBackend) DeleteDocument(_ context.Context, filename string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0:0]
	for _, r := range m.rows {
		if r.rec.Chunk.SourceFilename != filename {
			kept = append(kept, r)
		}
	}
	n := len(m.rows) - len(kept)
	m.rows = kept
	return n, nil
}

func (m *MemoryBackend) Clear(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.rows)
	m.rows = nil
	return n, nil
}

func (m *MemoryBackend) Stats(context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	files := make([]string, 0)
	for _, r := range m.rows {
		name := r.rec.Chunk.SourceFilename
		if !seen[name] {
			seen[name] = true
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return Stats{TotalChunks: len(m.rows), UniqueFiles: len(files), Files: files}, nil
}

func (m *MemoryBackend) DocumentChunks(_ context.Context, filename string) ([]models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Chunk, 0)
	for _, r := range m.rows {
		if r.rec.Chunk.SourceFilename == filename {
			out = append(out, r.rec.Chunk)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out, nil
}
