package vector

import (
	"context"
	"fmt"
	"sort"

	"calmchat/internal/logger"
	"calmchat/internal/models"
	"calmchat/internal/util"
)

const DefaultTopK = 5

type Gateway struct {
	backend Backend
	dim     int
	metric  Metric
	topK    int
	locks   *keyedMutex
}

func NewGateway(backend Backend, dim int, metric Metric, topK int) *Gateway {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if metric == "" {
		metric = MetricCosine
	}
	return &Gateway{backend: backend, dim: dim, metric: metric, topK: topK, locks: newKeyedMutex()}
}

func (g *Gateway) Dimension() int { return g.dim }
func (g *Gateway) Metric() Metric { return g.metric }

// Init records the configured dimension and metric on first use and refuses to run against
// a store created with different ones.
func (g *Gateway) Init(ctx context.Context) error {
	meta, ok, err := g.backend.LoadMeta(ctx)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("initialising vector store: dimension=%d metric=%s", g.dim, g.metric)
		return g.backend.SaveMeta(ctx, Meta{Dimension: g.dim, Metric: g.metric})
	}
	if meta.Dimension != g.dim {
		return &util.DimensionMismatchError{Expected: meta.Dimension, Got: g.dim}
	}
	if meta.Metric != g.metric {
		return fmt.Errorf("vector store uses metric %s, configured %s; the metric cannot change after creation", meta.Metric, g.metric)
	}
	return nil
}

// Upsert replaces every stored chunk of filename with recs. All dimensions are checked before
// anything is written; on mismatch the store is left untouched.
func (g *Gateway) Upsert(ctx context.Context, filename string, recs []Record) (int, error) {
	for i := range recs {
		if got := len(recs[i].Vector); got != g.dim {
			return 0, &util.DimensionMismatchError{Expected: g.dim, Got: got, ChunkID: recs[i].Chunk.ChunkID, Filename: filename}
		}
		recs[i].Chunk.SourceFilename = filename
	}
	unlock := g.locks.Lock(filename)
	defer unlock()
	if err := g.backend.ReplaceDocument(ctx, filename, recs); err != nil {
		return 0, err
	}
	logger.Debug("upserted %s: %d chunks", filename, len(recs))
	return len(recs), nil
}

// Query returns at most k hits, nearest first, ties in insertion order. k <= 0 uses the
// gateway's default.
func (g *Gateway) Query(ctx context.Context, v []float32, k int) ([]Hit, error) {
	if len(v) != g.dim {
		return nil, &util.DimensionMismatchError{Expected: g.dim, Got: len(v)}
	}
	if k <= 0 {
		k = g.topK
	}
	hits, err := g.backend.Nearest(ctx, v, k, g.metric)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(i, j int) bool {
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

func (g *Gateway) DeleteDocument(ctx context.Context, filename string) (int, error) {
	unlock := g.locks.Lock(filename)
	defer unlock()
	n, err := g.backend.DeleteDocument(ctx, filename)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("document %s: %w", filename, util.ErrNotFound)
	}
	return n, nil
}

func (g *Gateway) Clear(ctx context.Context) (int, error) {
	return g.backend.Clear(ctx)
}

func (g *Gateway) Stats(ctx context.Context) (Stats, error) {
	return g.backend.Stats(ctx)
}

func (g *Gateway) DocumentChunks(ctx context.Context, filename string) ([]models.Chunk, error) {
	chunks, err := g.backend.DocumentChunks(ctx, filename)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s: %w", filename, util.ErrNotFound)
	}
	return chunks, nil
}
