package workflows

import "calmchat/internal/ingest"

type IngestDirectoryInput struct {
	InputDir              string `json:"input_dir"`
	MaxConcurrentChildren int    `json:"max_concurrent_children"`
}

type DocumentIngestInput struct {
	RunID string `json:"run_id"`
	Path  string `json:"path"`
}

type RetryFailedInput struct {
	InputDir              string `json:"input_dir"`
	MaxConcurrentChildren int    `json:"max_concurrent_children"`
}

// DocumentProgress is what GetDocumentStatus returns for one child workflow.
type DocumentProgress struct {
	Path        string            `json:"path"`
	Filename    string            `json:"filename"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	Error       string            `json:"error,omitempty"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	Steps       map[string]string `json:"steps"`
}

type IngestProgress struct {
	RunID         string            `json:"run_id"`
	InputDir      string            `json:"input_dir"`
	Status        string            `json:"status"`
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	PerDocument   map[string]string `json:"per_document_status"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
	Report        ingest.Report     `json:"report"`
	ReportPath    string            `json:"report_path,omitempty"`
}
