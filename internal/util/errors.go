package util

import (
	"errors"
	"fmt"
)

var (
	// ErrOCRUnavailable means the OCR toolchain is missing; extraction degrades to direct-only.
	ErrOCRUnavailable    = errors.New("ocr unavailable")
	ErrNoExtractableText = errors.New("no extractable text found in PDF")
	ErrNotFound          = errors.New("not found")
)

// Error kinds, stable names used in ingest reports, API error codes and Temporal application errors.
const (
	KindExtraction        = "ExtractionError"
	KindOCRUnavailable    = "OCRUnavailable"
	KindEmbeddingService  = "EmbeddingServiceError"
	KindDimensionMismatch = "DimensionMismatchError"
	KindStoreUnavailable  = "StoreUnavailable"
	KindNotFound          = "NotFound"
	KindInternal          = "InternalError"
)

type ExtractionError struct {
	File string
	Page int
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("extract %s page %d: %v", e.File, e.Page, e.Err)
	}
	return fmt.Sprintf("extract %s: %v", e.File, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

type EmbeddingServiceError struct {
	Batch     int
	Attempts  int
	Transient bool
	Err       error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding batch %d failed after %d attempt(s): %v", e.Batch, e.Attempts, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

type DimensionMismatchError struct {
	Expected int
	Got      int
	ChunkID  string
	Filename string
}

func (e *DimensionMismatchError) Error() string {
	switch {
	case e.ChunkID != "":
		return fmt.Sprintf("vector dimension mismatch for %s chunk %s: expected %d, got %d", e.Filename, e.ChunkID, e.Expected, e.Got)
	case e.Filename != "":
		return fmt.Sprintf("vector dimension mismatch for %s: expected %d, got %d", e.Filename, e.Expected, e.Got)
	default:
		return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
	}
}

type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("vector store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// ErrorKind maps err onto one of the Kind* names.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var (
		extractErr *ExtractionError
		embedErr   *EmbeddingServiceError
		dimErr     *DimensionMismatchError
		storeErr   *StoreUnavailableError
	)
	switch {
	case errors.As(err, &dimErr):
		return KindDimensionMismatch
	case errors.As(err, &storeErr):
		return KindStoreUnavailable
	case errors.As(err, &embedErr):
		return KindEmbeddingService
	case errors.As(err, &extractErr), errors.Is(err, ErrNoExtractableText):
		return KindExtraction
	case errors.Is(err, ErrOCRUnavailable):
		return KindOCRUnavailable
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
