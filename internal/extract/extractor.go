package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"calmchat/internal/config"
	"calmchat/internal/logger"
	"calmchat/internal/models"
	"calmchat/internal/util"

	"golang.org/x/sync/errgroup"
)

type Options struct {
	// MinPageChars is the visible-character count below which a page is treated as scanned.
	MinPageChars int
	PageWorkers  int
	// OCR is nil when OCR is disabled or unavailable.
	OCR OCREngine
}

type Extractor struct {
	opts Options
	open Opener
}

func New(opts Options) *Extractor {
	return NewWithOpener(opts, openPDF)
}

func NewWithOpener(opts Options, open Opener) *Extractor {
	if opts.MinPageChars <= 0 {
		opts.MinPageChars = 50
	}
	if opts.PageWorkers <= 0 {
		opts.PageWorkers = 4
	}
	return &Extractor{opts: opts, open: open}
}

// NewFromConfig wires tesseract OCR when enabled. A missing OCR toolchain is logged and
// extraction continues direct-only.
func NewFromConfig(cfg config.Config) *Extractor {
	opts := Options{MinPageChars: cfg.OCRMinChars, PageWorkers: cfg.PageWorkers}
	if cfg.OCREnabled {
		ocr := NewTesseractOCR(cfg.OCRLanguages, cfg.OCRDPI)
		if err := ocr.CheckAvailable(); err != nil {
			logger.Warn("%v; continuing with direct text extraction only", err)
		} else {
			opts.OCR = ocr
		}
	}
	return New(opts)
}

func (e *Extractor) OCREnabled() bool {
	return e.opts.OCR != nil
}

// Extract reads every page of the PDF at path. A page whose text layer is too short is
// re-read through OCR. Per-page failures are recorded on the page; only a document that
// cannot be opened, or yields no text at all, is an error.
func (e *Extractor) Extract(ctx context.Context, path string) (models.Document, error) {
	if err := util.ValidatePDF(path); err != nil {
		return models.Document{}, err
	}
	name := filepath.Base(path)
	hash, err := util.FileSHA256(path)
	if err != nil {
		return models.Document{}, &util.ExtractionError{File: name, Err: err}
	}
	src, closer, err := e.open(path)
	if err != nil {
		return models.Document{}, &util.ExtractionError{File: name, Err: err}
	}
	defer closer.Close()

	n := src.NumPages()
	if n <= 0 {
		return models.Document{}, &util.ExtractionError{File: name, Err: errors.New("document has no pages")}
	}

	pages := make([]models.PageText, n)
	var readMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.PageWorkers)
	for page := 1; page <= n; page++ {
		page := page
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pages[page-1] = e.extractPage(gctx, path, name, src, &readMu, page)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.Document{}, fmt.Errorf("extract %s: %w", name, err)
	}

	doc := models.Document{Filename: name, Path: path, FileHash: hash, PageCount: n, Pages: pages}
	empty := true
	for _, p := range pages {
		if p.Text != "" {
			empty = false
			break
		}
	}
	if empty {
		return doc, &util.ExtractionError{File: name, Err: util.ErrNoExtractableText}
	}
	logger.Debug("extracted %s: pages=%d ocr_pages=%d failed_pages=%v", name, n, doc.OCRPages(), doc.FailedPages())
	return doc, nil
}

func (e *Extractor) extractPage(ctx context.Context, path, name string, src PageSource, readMu *sync.Mutex, page int) models.PageText {
	readMu.Lock()
	raw, directErr := src.PageText(page)
	readMu.Unlock()

	out := models.PageText{Page: page, Text: util.CleanPageText(raw), Method: models.MethodDirect}
	if directErr != nil {
		out.Err = "direct: " + directErr.Error()
	}
	if util.CountVisible(out.Text) >= e.opts.MinPageChars {
		out.Err = ""
		return out
	}
	if e.opts.OCR == nil {
		if out.Text == "" && out.Err == "" {
			out.Err = "no text layer and OCR is not available"
		}
		return out
	}

	text, err := e.opts.OCR.RecognizePage(ctx, path, page)
	text = util.CleanPageText(text)
	if err == nil && text == "" {
		err = errors.New("ocr produced no text")
	}
	if err != nil {
		logger.Warn("%v", &util.ExtractionError{File: name, Page: page, Err: err})
		if out.Err != "" {
			out.Err += "; "
		}
		out.Err += "ocr: " + err.Error()
		return out
	}
	return models.PageText{Page: page, Text: text, Method: models.MethodOCR}
}
