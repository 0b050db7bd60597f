package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"calmchat/internal/models"
	"calmchat/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(file string, offset int, vec ...float32) Record {
	return Record{
		Chunk:  models.Chunk{ChunkID: fmt.Sprintf("%s-%d", file, offset), SourceFilename: file, Offset: offset, Text: fmt.Sprintf("chunk %d of %s", offset, file)},
		Vector: vec,
	}
}

func newGateway(t *testing.T, dim int, metric Metric) (*Gateway, *MemoryBackend) {
	t.Helper()
	b := NewMemoryBackend()
	g := NewGateway(b, dim, metric, DefaultTopK)
	require.NoError(t, g.Init(context.Background()))
	return g, b
}

func TestInitRecordsAndChecksMeta(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, NewGateway(b, 3, MetricCosine, 5).Init(ctx))
	meta, ok, err := b.LoadMeta(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Meta{Dimension: 3, Metric: MetricCosine}, meta)

	require.NoError(t, NewGateway(b, 3, MetricCosine, 5).Init(ctx))

	err = NewGateway(b, 4, MetricCosine, 5).Init(ctx)
	var dimErr *util.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 4, dimErr.Got)

	assert.ErrorContains(t, NewGateway(b, 3, MetricL2, 5).Init(ctx), "metric")
}

func TestUpsertReplacesDocument(t *testing.T) {
	ctx := context.Background()
	g, _ := newGateway(t, 2, MetricCosine)

	_, err := g.Upsert(ctx, "a.pdf", []Record{rec("a.pdf", 0, 1, 0), rec("a.pdf", 1, 0, 1), rec("a.pdf", 2, 1, 1)})
	require.NoError(t, err)
	_, err = g.Upsert(ctx, "b.pdf", []Record{rec("b.pdf", 0, 1, 0)})
	require.NoError(t, err)

	n, err := g.Upsert(ctx, "a.pdf", []Record{rec("a.pdf", 0, 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	chunks, err := g.DocumentChunks(ctx, "a.pdf")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a.pdf-0", chunks[0].ChunkID)

	stats, err := g.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalChunks: 2, UniqueFiles: 2, Files: []string{"a.pdf", "b.pdf"}}, stats)
}

func TestUpsertDimensionMismatchWritesNothing(t *testing.T) {
	ctx := context.Background()
	g, _ := newGateway(t, 3, MetricCosine)
	_, err := g.Upsert(ctx, "a.pdf", []Record{rec("a.pdf", 0, 1, 0, 0)})
	require.NoError(t, err)

	_, err = g.Upsert(ctx, "a.pdf", []Record{rec("a.pdf", 0, 1, 0, 0), rec("a.pdf", 1, 1, 0)})
	var dimErr *util.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, "a.pdf-1", dimErr.ChunkID)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)

	chunks, err := g.DocumentChunks(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Len(t, chunks, 1, "previous set is untouched")

	_, err = g.Upsert(ctx, "new.pdf", []Record{rec("new.pdf", 0, 1)})
	require.Error(t, err)
	_, err = g.DocumentChunks(ctx, "new.pdf")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestQueryOrderingAndTies(t *testing.T) {
	ctx := context.Background()
	g, _ := newGateway(t, 2, MetricL2)
	_, err := g.Upsert(ctx, "a.pdf", []Record{
		rec("a.pdf", 0, 3, 0),
		rec("a.pdf", 1, 0, 1),
		rec("a.pdf", 2, 1, 0),
	})
	require.NoError(t, err)
	_, err = g.Upsert(ctx, "b.pdf", []Record{rec("b.pdf", 0, 0, 1), rec("b.pdf", 1, 2, 0)})
	require.NoError(t, err)

	hits, err := g.Query(ctx, []float32{0, 0}, 4)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
	}
	// Three rows sit at distance 1; they come back in insertion order.
	assert.Equal(t, []string{"a.pdf-1", "a.pdf-2", "b.pdf-0", "b.pdf-1"},
		[]string{hits[0].Chunk.ChunkID, hits[1].Chunk.ChunkID, hits[2].Chunk.ChunkID, hits[3].Chunk.ChunkID})
}

func TestQueryReturnsAtMostK(t *testing.T) {
	ctx := context.Background()
	g, _ := newGateway(t, 2, MetricCosine)
	_, err := g.Upsert(ctx, "a.pdf", []Record{rec("a.pdf", 0, 1, 0), rec("a.pdf", 1, 0, 1), rec("a.pdf", 2, 1, 1)})
	require.NoError(t, err)

	hits, err := g.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
	assert.Equal(t, "a.pdf-0", hits[0].Chunk.ChunkID)
	assert.InDelta(t, 1.0, MetricCosine.Similarity(hits[0].Distance), 1e-9)

	hits, err = g.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = g.Query(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestQueryWrongDimension(t *testing.T) {
	g, _ := newGateway(t, 3, MetricCosine)
	_, err := g.Query(context.Background(), []float32{1, 0}, 5)
	assert.Equal(t, util.KindDimensionMismatch, util.ErrorKind(err))
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	g, _ := newGateway(t, 1, MetricCosine)
	_, err := g.Upsert(ctx, "a.pdf", []Record{rec("a.pdf", 0, 1), rec("a.pdf", 1, 1)})
	require.NoError(t, err)
	_, err = g.Upsert(ctx, "b.pdf", []Record{rec("b.pdf", 0, 1)})
	require.NoError(t, err)

	n, err := g.DeleteDocument(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = g.DeleteDocument(ctx, "a.pdf")
	assert.ErrorIs(t, err, util.ErrNotFound)

	n, err = g.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	stats, err := g.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalChunks)
}

func TestConcurrentUpsertsOfSameDocumentLeaveOneSet(t *testing.T) {
	ctx := context.Background()
	g, _ := newGateway(t, 1, MetricCosine)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs := make([]Record, i+1)
			for j := range recs {
				recs[j] = rec("same.pdf", j, float32(i))
			}
			_, err := g.Upsert(ctx, "same.pdf", recs)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	chunks, err := g.DocumentChunks(ctx, "same.pdf")
	require.NoError(t, err)
	for j, c := range chunks {
		assert.Equal(t, j, c.Offset, "chunks come from exactly one upsert")
	}
}

type downBackend struct{ *MemoryBackend }

func (downBackend) Nearest(context.Context, []float32, int, Metric) ([]Hit, error) {
	return nil, &util.StoreUnavailableError{Op: "query", Err: errors.New("connection refused")}
}

func TestQueryStoreUnavailableSurfaces(t *testing.T) {
	g := NewGateway(downBackend{NewMemoryBackend()}, 1, MetricCosine, 5)
	_, err := g.Query(context.Background(), []float32{1}, 5)
	assert.Equal(t, util.KindStoreUnavailable, util.ErrorKind(err))
}

func TestDistances(t *testing.T) {
	assert.InDelta(t, 0.0, CosineDistance([]float32{1, 1}, []float32{2, 2}), 1e-9)
	assert.InDelta(t, 1.0, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 1.0, CosineDistance([]float32{0, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 5.0, L2Distance([]float32{0, 0}, []float32{3, 4}), 1e-9)
	assert.InDelta(t, 0.5, MetricL2.Similarity(1), 1e-9)

	m, err := ParseMetric(" L2 ")
	require.NoError(t, err)
	assert.Equal(t, MetricL2, m)
	_, err = ParseMetric("dot")
	assert.Error(t, err)
}
