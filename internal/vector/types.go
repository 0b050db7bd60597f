// Package vector is the store-facing contract for chunk embeddings: a Gateway that enforces
// dimension and ordering rules over a pluggable Backend.
package vector

import (
	"context"
	"fmt"
	"strings"

	"calmchat/internal/models"
)

type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case MetricCosine:
		return MetricCosine, nil
	case MetricL2:
		return MetricL2, nil
	default:
		return "", fmt.Errorf("unsupported distance metric %q", s)
	}
}

// Similarity maps a distance onto a score where higher is closer.
func (m Metric) Similarity(distance float64) float64 {
	if m == MetricL2 {
		return 1 / (1 + distance)
	}
	return 1 - distance
}

type Record struct {
	Chunk  models.Chunk
	Vector []float32
}

type Hit struct {
	Chunk    models.Chunk
	Distance float64
	// Seq is the insertion sequence; it breaks distance ties.
	Seq int64
}

type Meta struct {
	Dimension int    `json:"dimension"`
	Metric    Metric `json:"metric"`
}

type Stats struct {
	TotalChunks int      `json:"total_chunks"`
	UniqueFiles int      `json:"unique_files"`
	Files       []string `json:"files"`
}

// Backend persists records. ReplaceDocument must be atomic: after it returns, the filename has
// exactly the given records, or nothing changed. Nearest returns hits ordered by distance and
// then Seq.
type Backend interface {
	LoadMeta(ctx context.Context) (Meta, bool, error)
	SaveMeta(ctx context.Context, meta Meta) error
	ReplaceDocument(ctx context.Context, filename string, recs []Record) error
	Nearest(ctx context.Context, v []float32, k int, metric Metric) ([]Hit, error)
	DeleteDocument(ctx context.Context, filename string) (int, error)
	Clear(ctx context.Context) (int, error)
	Stats(ctx context.Context) (Stats, error)
	DocumentChunks(ctx context.Context, filename string) ([]models.Chunk, error)
}
