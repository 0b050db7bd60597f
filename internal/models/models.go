package models

import "time"

// ExtractionMethod tags how a page's text was obtained.
type ExtractionMethod string

const (
	MethodDirect ExtractionMethod = "direct"
	MethodOCR    ExtractionMethod = "ocr"
)

type PageText struct {
	Page   int              `json:"page"`
	Text   string           `json:"text"`
	Method ExtractionMethod `json:"method"`
	Err    string           `json:"error,omitempty"`
}

// Document lives only for the duration of one ingestion; it is never persisted.
type Document struct {
	Filename  string     `json:"filename"`
	Path      string     `json:"path"`
	FileHash  string     `json:"file_hash"`
	PageCount int        `json:"page_count"`
	Pages     []PageText `json:"pages"`
}

func (d Document) OCRPages() int {
	n := 0
	for _, p := range d.Pages {
		if p.Method == MethodOCR {
			n++
		}
	}
	return n
}

func (d Document) FailedPages() []int {
	out := make([]int, 0)
	for _, p := range d.Pages {
		if p.Err != "" && p.Text == "" {
			out = append(out, p.Page)
		}
	}
	return out
}

type Chunk struct {
	ChunkID        string `json:"chunk_id"`
	SourceFilename string `json:"source_filename"`
	Offset         int    `json:"chunk_offset"`
	Start          int    `json:"start"`
	Length         int    `json:"length"`
	PageNumber     int    `json:"page_number"`
	Pages          []int  `json:"pages"`
	Text           string `json:"text"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Source identifies one retrieved chunk that grounded an answer.
type Source struct {
	Filename    string  `json:"filename"`
	Page        int     `json:"page"`
	ChunkOffset int     `json:"chunk_offset"`
	ChunkID     string  `json:"chunk_id"`
	Distance    float64 `json:"distance"`
	Similarity  float64 `json:"similarity"`
	Snippet     string  `json:"snippet,omitempty"`
}

type DocumentState string

const (
	StateIngested DocumentState = "ingested"
	StateFailed   DocumentState = "failed"
)

// DocumentStatus is the last ingestion outcome recorded for a file.
type DocumentStatus struct {
	Filename     string        `json:"filename"`
	FileHash     string        `json:"file_hash,omitempty"`
	State        DocumentState `json:"status"`
	Pages        int           `json:"pages"`
	OCRPages     int           `json:"ocr_pages"`
	Chunks       int           `json:"chunks"`
	PageFailures []int         `json:"page_failures,omitempty"`
	Error        string        `json:"error,omitempty"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
