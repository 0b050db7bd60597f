package storage

import (
	"context"
	"fmt"

	"calmchat/internal/models"
)

// DocumentRepo keeps the last ingestion outcome per file.
type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) RecordDocument(ctx context.Context, s models.DocumentStatus) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO documents (filename, file_hash, status, pages, ocr_pages, chunks, page_failures, error, error_kind)
VALUES ($1, NULLIF($2,''), $3, $4, $5, $6, $7, NULLIF($8,''), NULLIF($9,''))
ON CONFLICT (filename)
DO UPDATE SET
  file_hash = COALESCE(EXCLUDED.file_hash, documents.file_hash),
  status = EXCLUDED.status,
  pages = EXCLUDED.pages,
  ocr_pages = EXCLUDED.ocr_pages,
  chunks = EXCLUDED.chunks,
  page_failures = EXCLUDED.page_failures,
  error = EXCLUDED.error,
  error_kind = EXCLUDED.error_kind,
  updated_at = NOW()`,
		s.Filename, s.FileHash, string(s.State), s.Pages, s.OCRPages, s.Chunks, toInt32s(s.PageFailures), s.Error, s.ErrorKind,
	)
	return storeErr("record document status", err)
}

func (r *DocumentRepo) ListDocuments(ctx context.Context) ([]models.DocumentStatus, error) {
	return r.list(ctx, "list documents", `
SELECT filename, COALESCE(file_hash,''), status, pages, ocr_pages, chunks, page_failures,
       COALESCE(error,''), COALESCE(error_kind,''), updated_at
FROM documents
ORDER BY filename ASC`)
}

func (r *DocumentRepo) ListFailedDocuments(ctx context.Context) ([]models.DocumentStatus, error) {
	return r.list(ctx, "list failed documents", `
SELECT filename, COALESCE(file_hash,''), status, pages, ocr_pages, chunks, page_failures,
       COALESCE(error,''), COALESCE(error_kind,''), updated_at
FROM documents
WHERE status = 'failed'
ORDER BY updated_at DESC`)
}

func (r *DocumentRepo) DeleteDocument(ctx context.Context, filename string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM documents WHERE filename = $1`, filename)
	return storeErr("delete document status", err)
}

func (r *DocumentRepo) Clear(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM documents`)
	return storeErr("clear document status", err)
}

func (r *DocumentRepo) list(ctx context.Context, op, query string) ([]models.DocumentStatus, error) {
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()
	out := make([]models.DocumentStatus, 0)
	for rows.Next() {
		var (
			s        models.DocumentStatus
			state    string
			failures []int32
		)
		if err := rows.Scan(&s.Filename, &s.FileHash, &state, &s.Pages, &s.OCRPages, &s.Chunks, &failures, &s.Error, &s.ErrorKind, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document status: %w", err)
		}
		s.State = models.DocumentState(state)
		s.PageFailures = fromInt32s(failures)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return out, nil
}
