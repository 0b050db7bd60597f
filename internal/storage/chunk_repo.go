package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"calmchat/internal/models"
	"calmchat/internal/vector"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepo is the Postgres/pgvector vector.Backend.
type ChunkRepo struct {
	db *DB
}

var _ vector.Backend = (*ChunkRepo)(nil)

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) LoadMeta(ctx context.Context) (vector.Meta, bool, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT key, value FROM store_meta WHERE key IN ('dimension', 'metric')`)
	if err != nil {
		return vector.Meta{}, false, storeErr("load store meta", err)
	}
	defer rows.Close()
	var meta vector.Meta
	found := 0
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return vector.Meta{}, false, storeErr("scan store meta", err)
		}
		found++
		switch key {
		case "dimension":
			n, err := strconv.Atoi(value)
			if err != nil {
				return vector.Meta{}, false, fmt.Errorf("store meta dimension %q: %w", value, err)
			}
			meta.Dimension = n
		case "metric":
			meta.Metric = vector.Metric(value)
		}
	}
	if err := rows.Err(); err != nil {
		return vector.Meta{}, false, storeErr("iterate store meta", err)
	}
	return meta, found > 0, nil
}

func (r *ChunkRepo) SaveMeta(ctx context.Context, meta vector.Meta) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO store_meta(key, value) VALUES ('dimension', $1), ('metric', $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		strconv.Itoa(meta.Dimension), string(meta.Metric))
	return storeErr("save store meta", err)
}

// ReplaceDocument deletes and re-inserts a document's chunks in one transaction.
func (r *ChunkRepo) ReplaceDocument(ctx context.Context, filename string, recs []vector.Record) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return storeErr("begin tx replace document", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE source_filename = $1`, filename); err != nil {
		return storeErr("delete chunks of "+filename, err)
	}
	for _, rec := range recs {
		c := rec.Chunk
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (chunk_id, source_filename, page_number, pages, chunk_offset, start_rune, length, text, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::vector)`,
			c.ChunkID, filename, c.PageNumber, toInt32s(c.Pages), c.Offset, c.Start, c.Length, c.Text, pgvector.NewVector(rec.Vector),
		)
		if err != nil {
			return storeErr(fmt.Sprintf("insert chunk %s", c.ChunkID), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit replace document", err)
	}
	return nil
}

func (r *ChunkRepo) Nearest(ctx context.Context, v []float32, k int, metric vector.Metric) ([]vector.Hit, error) {
	query := `
SELECT chunk_id, source_filename, page_number, pages, chunk_offset, start_rune, length, text,
       embedding ` + distanceOperator(metric) + ` $1::vector AS distance,
       seq
FROM chunks
ORDER BY distance ASC, seq ASC
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, query, pgvector.NewVector(v), k)
	if err != nil {
		return nil, storeErr("query nearest chunks", err)
	}
	defer rows.Close()
	out := make([]vector.Hit, 0, k)
	for rows.Next() {
		var (
			h     vector.Hit
			pages []int32
		)
		if err := rows.Scan(&h.Chunk.ChunkID, &h.Chunk.SourceFilename, &h.Chunk.PageNumber, &pages, &h.Chunk.Offset,
			&h.Chunk.Start, &h.Chunk.Length, &h.Chunk.Text, &h.Distance, &h.Seq); err != nil {
			return nil, storeErr("scan nearest chunk", err)
		}
		h.Chunk.Pages = fromInt32s(pages)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate nearest chunks", err)
	}
	return out, nil
}

func (r *ChunkRepo) DeleteDocument(ctx context.Context, filename string) (int, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM chunks WHERE source_filename = $1`, filename)
	if err != nil {
		return 0, storeErr("delete document", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *ChunkRepo) Clear(ctx context.Context) (int, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM chunks`)
	if err != nil {
		return 0, storeErr("clear chunks", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *ChunkRepo) Stats(ctx context.Context) (vector.Stats, error) {
	var stats vector.Stats
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&stats.TotalChunks); err != nil {
		return vector.Stats{}, storeErr("count chunks", err)
	}
	rows, err := r.db.Pool.Query(ctx, `SELECT DISTINCT source_filename FROM chunks ORDER BY source_filename`)
	if err != nil {
		return vector.Stats{}, storeErr("list documents", err)
	}
	files, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return vector.Stats{}, storeErr("scan documents", err)
	}
	stats.Files = files
	stats.UniqueFiles = len(files)
	return stats, nil
}

func (r *ChunkRepo) DocumentChunks(ctx context.Context, filename string) ([]models.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT chunk_id, source_filename, page_number, pages, chunk_offset, start_rune, length, text
FROM chunks
WHERE source_filename = $1
ORDER BY chunk_offset ASC`, filename)
	if err != nil {
		return nil, storeErr("list chunks by document", err)
	}
	defer rows.Close()
	out := make([]models.Chunk, 0, 64)
	for rows.Next() {
		var (
			c     models.Chunk
			pages []int32
		)
		if err := rows.Scan(&c.ChunkID, &c.SourceFilename, &c.PageNumber, &pages, &c.Offset, &c.Start, &c.Length, &c.Text); err != nil {
			return nil, storeErr("scan chunk by document", err)
		}
		c.Pages = fromInt32s(pages)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate chunks by document", err)
	}
	return out, nil
}

// Ping reports whether the database answers.
func (r *ChunkRepo) Ping(ctx context.Context) error {
	if r.db == nil || r.db.Pool == nil {
		return storeErr("ping", errors.New("no connection pool"))
	}
	return storeErr("ping", r.db.Pool.Ping(ctx))
}

func toInt32s(in []int) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func fromInt32s(in []int32) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
