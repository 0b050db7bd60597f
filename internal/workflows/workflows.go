// Package workflows orchestrates directory ingestion on Temporal: one child workflow per
// document, a bounded number of them at a time.
package workflows

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"calmchat/internal/activities"
	"calmchat/internal/ingest"
	"calmchat/internal/models"
	"calmchat/internal/util"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetProgress       = "GetProgress"
	QueryGetDocumentStatus = "GetDocumentStatus"
)

const (
	stepPrepare = "prepare"
	stepStore   = "store"
	stepRecord  = "record_status"
)

func IngestDirectoryWorkflow(ctx workflow.Context, input IngestDirectoryInput) (ingest.Report, error) {
	runID := workflow.GetInfo(ctx).WorkflowExecution.ID
	progress := newIngestProgress(runID, input.InputDir)
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (IngestProgress, error) {
		return *progress, nil
	}); err != nil {
		return ingest.Report{}, err
	}
	ctx = workflow.WithActivityOptions(ctx, shortActivityOptions())

	var listOut activities.ListPDFsOutput
	if err := workflow.ExecuteActivity(ctx, "ListPDFsActivity", activities.ListPDFsInput{InputDir: input.InputDir}).Get(ctx, &listOut); err != nil {
		progress.Status = "failed"
		return ingest.Report{}, err
	}
	progress.Total = len(listOut.Paths)

	err := runDocuments(ctx, progress, listOut.Paths, input.MaxConcurrentChildren)
	finishRun(ctx, progress, err)
	return progress.Report, err
}

// RetryFailedDocumentsWorkflow re-ingests every document whose last recorded outcome failed.
func RetryFailedDocumentsWorkflow(ctx workflow.Context, input RetryFailedInput) (ingest.Report, error) {
	runID := workflow.GetInfo(ctx).WorkflowExecution.ID
	progress := newIngestProgress(runID, input.InputDir)
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (IngestProgress, error) {
		return *progress, nil
	}); err != nil {
		return ingest.Report{}, err
	}
	ctx = workflow.WithActivityOptions(ctx, shortActivityOptions())

	var failed activities.ListFailedDocumentsOutput
	if err := workflow.ExecuteActivity(ctx, "ListFailedDocumentsActivity").Get(ctx, &failed); err != nil {
		progress.Status = "failed"
		return ingest.Report{}, err
	}
	paths := make([]string, 0, len(failed.Filenames))
	for _, name := range failed.Filenames {
		paths = append(paths, util.SafeJoin(input.InputDir, name))
	}
	progress.Total = len(paths)

	err := runDocuments(ctx, progress, paths, input.MaxConcurrentChildren)
	finishRun(ctx, progress, err)
	return progress.Report, err
}

// runDocuments starts children in batches of maxChildren. A child that fails with
// StoreUnavailable stops the run after its batch settles.
func runDocuments(ctx workflow.Context, progress *IngestProgress, paths []string, maxChildren int) error {
	if maxChildren <= 0 {
		maxChildren = 3
	}
	for i := 0; i < len(paths); i += maxChildren {
		end := min(i+maxChildren, len(paths))
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		for _, path := range paths[i:end] {
			name := filepath.Base(path)
			progress.PerDocument[name] = "processing"
			workflowID := "doc-" + sanitizeID(progress.RunID) + "-" + sanitizeID(name)
			progress.ChildWorkflow[name] = workflowID
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			futures = append(futures, workflow.ExecuteChildWorkflow(childCtx, DocumentIngestWorkflow, DocumentIngestInput{RunID: progress.RunID, Path: path}))
		}

		var abort error
		for idx, f := range futures {
			path := paths[i+idx]
			var fr ingest.FileReport
			if err := f.Get(ctx, &fr); err != nil {
				fr = ingest.FileReport{
					Filename:  filepath.Base(path),
					Status:    models.StateFailed,
					Error:     err.Error(),
					ErrorKind: errorKind(err),
				}
				if fr.ErrorKind == util.KindStoreUnavailable && abort == nil {
					abort = err
				}
			}
			progress.Report.Add(fr)
			progress.PerDocument[fr.Filename] = string(fr.Status)
			progress.Done++
			if fr.Status == models.StateFailed {
				progress.Failed++
			}
		}
		if abort != nil {
			return abort
		}
	}
	return nil
}

func finishRun(ctx workflow.Context, progress *IngestProgress, runErr error) {
	logger := workflow.GetLogger(ctx)
	var out activities.WriteIngestReportOutput
	if err := workflow.ExecuteActivity(ctx, "WriteIngestReportActivity", activities.WriteIngestReportInput{
		RunID:  progress.RunID,
		Report: progress.Report,
	}).Get(ctx, &out); err != nil {
		logger.Warn("write ingest report failed", "error", err)
	}
	progress.ReportPath = out.Path
	progress.Status = "completed"
	if runErr != nil {
		progress.Status = "aborted"
	}
	logger.Info("ingestion run finished", "status", progress.Status, "files", progress.Report.Files,
		"succeeded", progress.Report.Succeeded, "failed", progress.Report.Failed, "chunks", progress.Report.TotalChunks)
}

// DocumentIngestWorkflow prepares, stores and records one document. Per-document failures
// complete the workflow with a failed report; only StoreUnavailable fails the workflow.
func DocumentIngestWorkflow(ctx workflow.Context, input DocumentIngestInput) (ingest.FileReport, error) {
	status := DocumentProgress{
		Path:        input.Path,
		Filename:    filepath.Base(input.Path),
		CurrentStep: "init",
		Status:      "processing",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetDocumentStatus, func() (DocumentProgress, error) {
		return status, nil
	}); err != nil {
		return ingest.FileReport{}, err
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	})
	report := ingest.FileReport{Filename: status.Filename}
	var fileHash string

	fail := func(err error) (ingest.FileReport, error) {
		status.Steps[status.CurrentStep] = "failed"
		status.Status = string(models.StateFailed)
		status.Error = err.Error()
		status.ErrorKind = errorKind(err)
		report.Status = models.StateFailed
		report.Error = status.Error
		report.ErrorKind = status.ErrorKind
		if status.ErrorKind == util.KindStoreUnavailable {
			return report, err
		}
		recordStatus(ctx, &status, report, fileHash)
		return report, nil
	}

	status.CurrentStep = stepPrepare
	status.Steps[stepPrepare] = "processing"
	var prep activities.PrepareDocumentOutput
	if err := workflow.ExecuteActivity(ctx, "PrepareDocumentActivity", activities.PrepareDocumentInput{RunID: input.RunID, Path: input.Path}).Get(ctx, &prep); err != nil {
		return fail(err)
	}
	status.Steps[stepPrepare] = "done"
	fileHash = prep.FileHash
	report.Pages = prep.Pages
	report.OCRPages = prep.OCRPages
	report.PageFailures = prep.PageFailures

	status.CurrentStep = stepStore
	status.Steps[stepStore] = "processing"
	var stored activities.StoreChunksOutput
	if err := workflow.ExecuteActivity(ctx, "StoreChunksActivity", activities.StoreChunksInput{Filename: prep.Filename, ChunksPath: prep.ChunksPath}).Get(ctx, &stored); err != nil {
		return fail(err)
	}
	status.Steps[stepStore] = "done"
	report.Chunks = stored.Stored
	report.Status = models.StateIngested

	recordStatus(ctx, &status, report, fileHash)
	status.CurrentStep = "done"
	status.Status = string(models.StateIngested)
	return report, nil
}

func recordStatus(ctx workflow.Context, status *DocumentProgress, report ingest.FileReport, fileHash string) {
	status.CurrentStep = stepRecord
	status.Steps[stepRecord] = "processing"
	in := activities.RecordDocumentStatusInput{Status: report.DocumentStatus(fileHash, workflow.Now(ctx))}
	if err := workflow.ExecuteActivity(ctx, "RecordDocumentStatusActivity", in).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("record document status failed", "filename", report.Filename, "error", err)
		status.Steps[stepRecord] = "failed"
		return
	}
	status.Steps[stepRecord] = "done"
}

func newIngestProgress(runID, inputDir string) *IngestProgress {
	return &IngestProgress{
		RunID:         runID,
		InputDir:      inputDir,
		Status:        "running",
		PerDocument:   map[string]string{},
		ChildWorkflow: map[string]string{},
		Report:        ingest.Report{PerFile: []ingest.FileReport{}},
	}
}

func shortActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
}

// errorKind reads the kind tagged on an activity or child workflow failure.
func errorKind(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() != "" {
		return appErr.Type()
	}
	return util.KindInternal
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, " ", "-")
	return s
}
