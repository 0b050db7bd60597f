package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ListPDFsActivity)
	w.RegisterActivity(a.PrepareDocumentActivity)
	w.RegisterActivity(a.StoreChunksActivity)
	w.RegisterActivity(a.RecordDocumentStatusActivity)
	w.RegisterActivity(a.ListFailedDocumentsActivity)
	w.RegisterActivity(a.WriteIngestReportActivity)
}
