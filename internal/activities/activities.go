// Package activities exposes the ingestion pipeline steps as Temporal activities.
package activities

import (
	"context"
	"os"
	"path/filepath"

	"calmchat/internal/app"
	"calmchat/internal/config"
	"calmchat/internal/ingest"
	"calmchat/internal/models"
	"calmchat/internal/util"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

type Activities struct {
	cfg      config.Config
	pipeline *ingest.Pipeline
	status   ingest.StatusStore
}

func New(cfg config.Config, pipeline *ingest.Pipeline, status ingest.StatusStore) *Activities {
	return &Activities{cfg: cfg, pipeline: pipeline, status: status}
}

func NewFromApp(a *app.App) *Activities {
	return New(a.Config, a.Pipeline, a.Status)
}

func (a *Activities) ListPDFsActivity(ctx context.Context, in ListPDFsInput) (ListPDFsOutput, error) {
	_ = ctx
	paths, err := util.ListPDFs(in.InputDir)
	if err != nil {
		return ListPDFsOutput{}, err
	}
	return ListPDFsOutput{Paths: paths}, nil
}

func (a *Activities) PrepareDocumentActivity(ctx context.Context, in PrepareDocumentInput) (PrepareDocumentOutput, error) {
	prep, err := a.pipeline.Prepare(ctx, in.Path)
	if err != nil {
		return PrepareDocumentOutput{Filename: prep.Filename, FileHash: prep.FileHash, Pages: prep.Pages}, toApplicationError(err)
	}
	path := ingest.ChunksPath(a.stagingDir(in.RunID), prep.Filename)
	if err := ingest.WriteChunks(path, prep.Chunks); err != nil {
		return PrepareDocumentOutput{}, err
	}
	activity.GetLogger(ctx).Info("document prepared", "filename", prep.Filename, "pages", prep.Pages, "ocr_pages", prep.OCRPages, "chunks", len(prep.Chunks))
	return PrepareDocumentOutput{
		Filename:     prep.Filename,
		FileHash:     prep.FileHash,
		Pages:        prep.Pages,
		OCRPages:     prep.OCRPages,
		PageFailures: prep.PageFailures,
		ChunkCount:   len(prep.Chunks),
		ChunksPath:   path,
	}, nil
}

func (a *Activities) StoreChunksActivity(ctx context.Context, in StoreChunksInput) (StoreChunksOutput, error) {
	chunks, err := ingest.ReadChunks(in.ChunksPath)
	if err != nil {
		return StoreChunksOutput{}, err
	}
	n, err := a.pipeline.Store(ctx, in.Filename, chunks)
	if err != nil {
		return StoreChunksOutput{}, toApplicationError(err)
	}
	if err := os.Remove(in.ChunksPath); err != nil {
		activity.GetLogger(ctx).Warn("remove staged chunks", "path", in.ChunksPath, "error", err)
	}
	return StoreChunksOutput{Stored: n}, nil
}

func (a *Activities) RecordDocumentStatusActivity(ctx context.Context, in RecordDocumentStatusInput) error {
	return a.status.RecordDocument(ctx, in.Status)
}

func (a *Activities) ListFailedDocumentsActivity(ctx context.Context) (ListFailedDocumentsOutput, error) {
	docs, err := a.status.ListDocuments(ctx)
	if err != nil {
		return ListFailedDocumentsOutput{}, err
	}
	out := ListFailedDocumentsOutput{Filenames: make([]string, 0)}
	for _, d := range docs {
		if d.State == models.StateFailed {
			out.Filenames = append(out.Filenames, d.Filename)
		}
	}
	return out, nil
}

func (a *Activities) WriteIngestReportActivity(ctx context.Context, in WriteIngestReportInput) (WriteIngestReportOutput, error) {
	_ = ctx
	path := filepath.Join(a.cfg.DataOutRoot, "runs", in.RunID, "report.json")
	if err := util.WriteJSONAtomic(path, in.Report); err != nil {
		return WriteIngestReportOutput{}, err
	}
	return WriteIngestReportOutput{Path: path}, nil
}

func (a *Activities) stagingDir(runID string) string {
	return filepath.Join(a.cfg.DataOutRoot, "staging", runID)
}

// toApplicationError tags err with its kind. Classified kinds are non-retryable; unclassified
// errors stay under the activity retry policy.
func toApplicationError(err error) error {
	kind := util.ErrorKind(err)
	if kind == util.KindInternal {
		return temporal.NewApplicationErrorWithCause(err.Error(), kind, err)
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), kind, err)
}
