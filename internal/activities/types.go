package activities

import (
	"calmchat/internal/ingest"
	"calmchat/internal/models"
)

type ListPDFsInput struct {
	InputDir string `json:"input_dir"`
}

type ListPDFsOutput struct {
	Paths []string `json:"paths"`
}

type PrepareDocumentInput struct {
	RunID string `json:"run_id"`
	Path  string `json:"path"`
}

// PrepareDocumentOutput points at the staged chunks instead of carrying them, to keep
// workflow history small.
type PrepareDocumentOutput struct {
	Filename     string `json:"filename"`
	FileHash     string `json:"file_hash"`
	Pages        int    `json:"pages"`
	OCRPages     int    `json:"ocr_pages"`
	PageFailures []int  `json:"page_failures,omitempty"`
	ChunkCount   int    `json:"chunk_count"`
	ChunksPath   string `json:"chunks_path"`
}

type StoreChunksInput struct {
	Filename   string `json:"filename"`
	ChunksPath string `json:"chunks_path"`
}

type StoreChunksOutput struct {
	Stored int `json:"stored"`
}

type RecordDocumentStatusInput struct {
	Status models.DocumentStatus `json:"status"`
}

type ListFailedDocumentsOutput struct {
	Filenames []string `json:"filenames"`
}

type WriteIngestReportInput struct {
	RunID  string        `json:"run_id"`
	Report ingest.Report `json:"report"`
}

type WriteIngestReportOutput struct {
	Path string `json:"path"`
}
