package workflows

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker) {
	w.RegisterWorkflow(IngestDirectoryWorkflow)
	w.RegisterWorkflow(DocumentIngestWorkflow)
	w.RegisterWorkflow(RetryFailedDocumentsWorkflow)
}
