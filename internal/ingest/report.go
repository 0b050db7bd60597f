package ingest

import (
	"time"

	"calmchat/internal/models"
)

type FileReport struct {
	Filename     string               `json:"filename"`
	Status       models.DocumentState `json:"status"`
	Chunks       int                  `json:"chunks"`
	Pages        int                  `json:"pages"`
	OCRPages     int                  `json:"ocr_pages"`
	PageFailures []int                `json:"page_failures,omitempty"`
	Error        string               `json:"error,omitempty"`
	ErrorKind    string               `json:"error_kind,omitempty"`
}

func (r FileReport) DocumentStatus(fileHash string, at time.Time) models.DocumentStatus {
	return models.DocumentStatus{
		Filename:     r.Filename,
		FileHash:     fileHash,
		State:        r.Status,
		Pages:        r.Pages,
		OCRPages:     r.OCRPages,
		Chunks:       r.Chunks,
		PageFailures: r.PageFailures,
		Error:        r.Error,
		ErrorKind:    r.ErrorKind,
		UpdatedAt:    at.UTC(),
	}
}

type Report struct {
	Files       int          `json:"files"`
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	TotalChunks int          `json:"total_chunks"`
	PerFile     []FileReport `json:"per_file"`
}

func (r *Report) Add(fr FileReport) {
	r.Files++
	if fr.Status == models.StateIngested {
		r.Succeeded++
		r.TotalChunks += fr.Chunks
	} else {
		r.Failed++
	}
	r.PerFile = append(r.PerFile, fr)
}
