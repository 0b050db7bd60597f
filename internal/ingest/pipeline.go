// Package ingest runs PDFs through extraction, chunking, embedding and the vector store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"calmchat/internal/chunker"
	"calmchat/internal/logger"
	"calmchat/internal/models"
	"calmchat/internal/util"
	"calmchat/internal/vector"
)

type Extractor interface {
	Extract(ctx context.Context, path string) (models.Document, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Pipeline struct {
	extractor    Extractor
	chunker      *chunker.Chunker
	embedder     Embedder
	gateway      *vector.Gateway
	status       StatusStore
	artifactsDir string
	now          func() time.Time
}

type Option func(*Pipeline)

// WithStatusStore records the outcome of every document ingestion.
func WithStatusStore(s StatusStore) Option {
	return func(p *Pipeline) { p.status = s }
}

// WithArtifacts writes pages.json and chunks.jsonl per document under dir.
func WithArtifacts(dir string) Option {
	return func(p *Pipeline) { p.artifactsDir = dir }
}

func New(extractor Extractor, ch *chunker.Chunker, embedder Embedder, gateway *vector.Gateway, opts ...Option) *Pipeline {
	p := &Pipeline{extractor: extractor, chunker: ch, embedder: embedder, gateway: gateway, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prepared is an extracted and chunked document that has not been embedded yet.
type Prepared struct {
	Filename     string         `json:"filename"`
	FileHash     string         `json:"file_hash"`
	Pages        int            `json:"pages"`
	OCRPages     int            `json:"ocr_pages"`
	PageFailures []int          `json:"page_failures,omitempty"`
	Chunks       []models.Chunk `json:"chunks"`
}

func (p *Pipeline) Prepare(ctx context.Context, path string) (Prepared, error) {
	name := filepath.Base(path)
	logger.Section("ingest " + name)
	doc, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return Prepared{Filename: name, FileHash: doc.FileHash, Pages: doc.PageCount}, err
	}
	chunks := p.chunker.Split(doc.Filename, doc.FileHash, doc.Pages)
	prep := Prepared{
		Filename:     doc.Filename,
		FileHash:     doc.FileHash,
		Pages:        doc.PageCount,
		OCRPages:     doc.OCRPages(),
		PageFailures: doc.FailedPages(),
		Chunks:       chunks,
	}
	if p.artifactsDir != "" {
		if err := WriteArtifacts(p.artifactsDir, doc, chunks); err != nil {
			logger.Warn("write artifacts for %s: %v", name, err)
		}
	}
	logger.Debug("prepared %s: pages=%d ocr_pages=%d chunks=%d", name, prep.Pages, prep.OCRPages, len(chunks))
	return prep, nil
}

// Store embeds chunks and replaces everything stored for filename with them. Nothing is
// written when embedding fails or a vector has the wrong dimension.
func (p *Pipeline) Store(ctx context.Context, filename string, chunks []models.Chunk) (int, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed %s: %w", filename, err)
	}
	recs := make([]vector.Record, len(chunks))
	for i := range chunks {
		recs[i] = vector.Record{Chunk: chunks[i], Vector: vecs[i]}
	}
	return p.gateway.Upsert(ctx, filename, recs)
}

// IngestDocument runs one PDF end to end. The report is filled in on failure too.
func (p *Pipeline) IngestDocument(ctx context.Context, path string) (FileReport, error) {
	prep, err := p.Prepare(ctx, path)
	rep := FileReport{
		Filename:     prep.Filename,
		Pages:        prep.Pages,
		OCRPages:     prep.OCRPages,
		PageFailures: prep.PageFailures,
	}
	if err == nil {
		rep.Chunks, err = p.Store(ctx, prep.Filename, prep.Chunks)
	}
	if err != nil {
		rep.Status = models.StateFailed
		rep.Error = err.Error()
		rep.ErrorKind = util.ErrorKind(err)
	} else {
		rep.Status = models.StateIngested
	}
	p.RecordStatus(ctx, rep.DocumentStatus(prep.FileHash, p.now()))
	return rep, err
}

// RecordStatus is best effort; a failure is logged and ingestion carries on.
func (p *Pipeline) RecordStatus(ctx context.Context, s models.DocumentStatus) {
	if p.status == nil {
		return
	}
	if err := p.status.RecordDocument(ctx, s); err != nil {
		logger.Warn("record status for %s: %v", s.Filename, err)
	}
}

// IngestDirectory ingests every PDF directly under dir in name order. A failed document is
// reported and skipped; an unreachable store aborts the run.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string) (Report, error) {
	paths, err := util.ListPDFs(dir)
	if err != nil {
		return Report{}, err
	}
	var rep Report
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		fr, err := p.IngestDocument(ctx, path)
		rep.Add(fr)
		if err != nil {
			var storeErr *util.StoreUnavailableError
			if errors.As(err, &storeErr) {
				return rep, err
			}
			logger.Warn("ingest %s failed (%s): %v", fr.Filename, fr.ErrorKind, err)
			continue
		}
		logger.Info("ingested %s: %d chunks from %d pages (%d via OCR)", fr.Filename, fr.Chunks, fr.Pages, fr.OCRPages)
	}
	logger.Info("ingestion finished: files=%d succeeded=%d failed=%d chunks=%d", rep.Files, rep.Succeeded, rep.Failed, rep.TotalChunks)
	return rep, nil
}

// Remove deletes a document's chunks and its recorded status.
func (p *Pipeline) Remove(ctx context.Context, filename string) (int, error) {
	n, err := p.gateway.DeleteDocument(ctx, filename)
	if err != nil {
		return 0, err
	}
	if p.status != nil {
		if err := p.status.DeleteDocument(ctx, filename); err != nil {
			logger.Warn("delete status for %s: %v", filename, err)
		}
	}
	return n, nil
}

// Clear empties the collection and returns the number of chunks removed.
func (p *Pipeline) Clear(ctx context.Context) (int, error) {
	n, err := p.gateway.Clear(ctx)
	if err != nil {
		return 0, err
	}
	if p.status != nil {
		if err := p.status.Clear(ctx); err != nil {
			logger.Warn("clear document status: %v", err)
		}
	}
	return n, nil
}
