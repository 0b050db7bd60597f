package storage

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"text/template"

	"calmchat/internal/vector"
)

//go:embed schema.sql.tmpl
var schemaTemplate string

var schemaTmpl = template.Must(template.New("schema").Parse(schemaTemplate))

// pgvector's hnsw index supports at most this many dimensions.
const maxIndexedDimension = 2000

type schemaParams struct {
	Dimension int
	OpClass   string
	Indexed   bool
}

// RenderSchema fills the vector column size and index operator class for the store.
func RenderSchema(dim int, metric vector.Metric) (string, error) {
	if dim <= 0 {
		return "", fmt.Errorf("render schema: dimension must be positive, got %d", dim)
	}
	params := schemaParams{Dimension: dim, OpClass: opClass(metric), Indexed: dim <= maxIndexedDimension}
	var buf bytes.Buffer
	if err := schemaTmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("render schema: %w", err)
	}
	return buf.String(), nil
}

// EnsureSchema creates the extension, tables and indexes if they do not exist yet.
func (d *DB) EnsureSchema(ctx context.Context, dim int, metric vector.Metric) error {
	ddl, err := RenderSchema(dim, metric)
	if err != nil {
		return err
	}
	if _, err := d.Pool.Exec(ctx, ddl); err != nil {
		return storeErr("ensure schema", err)
	}
	return nil
}

func opClass(metric vector.Metric) string {
	if metric == vector.MetricL2 {
		return "vector_l2_ops"
	}
	return "vector_cosine_ops"
}

func distanceOperator(metric vector.Metric) string {
	if metric == vector.MetricL2 {
		return "<->"
	}
	return "<=>"
}
