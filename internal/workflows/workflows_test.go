package workflows

import (
	"context"
	"path/filepath"
	"testing"

	"calmchat/internal/activities"
	"calmchat/internal/ingest"
	"calmchat/internal/models"
	"calmchat/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func newEnv() *testsuite.TestWorkflowEnvironment {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(IngestDirectoryWorkflow)
	env.RegisterWorkflow(DocumentIngestWorkflow)
	env.RegisterWorkflow(RetryFailedDocumentsWorkflow)
	env.RegisterActivity(&activities.Activities{})
	return env
}

func prepareOK(_ context.Context, in activities.PrepareDocumentInput) (activities.PrepareDocumentOutput, error) {
	name := filepath.Base(in.Path)
	return activities.PrepareDocumentOutput{
		Filename:   name,
		FileHash:   "hash-" + name,
		Pages:      3,
		OCRPages:   1,
		ChunkCount: 4,
		ChunksPath: "/staging/" + name + "/chunks.jsonl",
	}, nil
}

func storeOK(_ context.Context, in activities.StoreChunksInput) (activities.StoreChunksOutput, error) {
	return activities.StoreChunksOutput{Stored: 4}, nil
}

func TestIngestDirectoryWorkflowReportsPerFile(t *testing.T) {
	env := newEnv()
	paths := []string{"/in/a.pdf", "/in/b.pdf", "/in/c.pdf"}
	env.OnActivity("ListPDFsActivity", mock.Anything, activities.ListPDFsInput{InputDir: "/in"}).Return(activities.ListPDFsOutput{Paths: paths}, nil)
	env.OnActivity("PrepareDocumentActivity", mock.Anything, mock.Anything).Return(
		func(ctx context.Context, in activities.PrepareDocumentInput) (activities.PrepareDocumentOutput, error) {
			if filepath.Base(in.Path) == "b.pdf" {
				return activities.PrepareDocumentOutput{}, temporal.NewNonRetryableApplicationError("extract b.pdf: malformed", util.KindExtraction, nil)
			}
			return prepareOK(ctx, in)
		})
	env.OnActivity("StoreChunksActivity", mock.Anything, mock.Anything).Return(storeOK)
	env.OnActivity("RecordDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil).Times(3)
	env.OnActivity("WriteIngestReportActivity", mock.Anything, mock.Anything).Return(activities.WriteIngestReportOutput{Path: "/out/runs/r/report.json"}, nil)

	env.ExecuteWorkflow(IngestDirectoryWorkflow, IngestDirectoryInput{InputDir: "/in", MaxConcurrentChildren: 2})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var rep ingest.Report
	require.NoError(t, env.GetWorkflowResult(&rep))
	assert.Equal(t, 3, rep.Files)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 8, rep.TotalChunks)
	require.Len(t, rep.PerFile, 3)
	assert.Equal(t, "a.pdf", rep.PerFile[0].Filename)
	assert.Equal(t, 1, rep.PerFile[0].OCRPages)
	assert.Equal(t, models.StateFailed, rep.PerFile[1].Status)
	assert.Equal(t, util.KindExtraction, rep.PerFile[1].ErrorKind)
	assert.Equal(t, "c.pdf", rep.PerFile[2].Filename)

	val, err := env.QueryWorkflow(QueryGetProgress)
	require.NoError(t, err)
	var progress IngestProgress
	require.NoError(t, val.Get(&progress))
	assert.Equal(t, "completed", progress.Status)
	assert.Equal(t, 3, progress.Done)
	assert.Equal(t, 1, progress.Failed)
	assert.Equal(t, "failed", progress.PerDocument["b.pdf"])
	assert.Equal(t, "/out/runs/r/report.json", progress.ReportPath)
	env.AssertExpectations(t)
}

func TestIngestDirectoryWorkflowAbortsOnStoreUnavailable(t *testing.T) {
	env := newEnv()
	paths := []string{"/in/a.pdf", "/in/b.pdf", "/in/c.pdf"}
	env.OnActivity("ListPDFsActivity", mock.Anything, mock.Anything).Return(activities.ListPDFsOutput{Paths: paths}, nil)
	env.OnActivity("PrepareDocumentActivity", mock.Anything, mock.Anything).Return(prepareOK)
	env.OnActivity("StoreChunksActivity", mock.Anything, mock.Anything).Return(
		activities.StoreChunksOutput{}, temporal.NewNonRetryableApplicationError("vector store unavailable", util.KindStoreUnavailable, nil))
	env.OnActivity("WriteIngestReportActivity", mock.Anything, mock.Anything).Return(activities.WriteIngestReportOutput{}, nil)

	env.ExecuteWorkflow(IngestDirectoryWorkflow, IngestDirectoryInput{InputDir: "/in", MaxConcurrentChildren: 1})
	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, util.KindStoreUnavailable, appErr.Type())

	val, qerr := env.QueryWorkflow(QueryGetProgress)
	require.NoError(t, qerr)
	var progress IngestProgress
	require.NoError(t, val.Get(&progress))
	assert.Equal(t, "aborted", progress.Status)
	assert.Equal(t, 1, progress.Done)
	assert.Equal(t, 3, progress.Total)
}

func TestDocumentIngestWorkflowSuccess(t *testing.T) {
	env := newEnv()
	env.OnActivity("PrepareDocumentActivity", mock.Anything, activities.PrepareDocumentInput{RunID: "r1", Path: "/in/guia.pdf"}).Return(prepareOK)
	env.OnActivity("StoreChunksActivity", mock.Anything, activities.StoreChunksInput{Filename: "guia.pdf", ChunksPath: "/staging/guia.pdf/chunks.jsonl"}).Return(storeOK)
	env.OnActivity("RecordDocumentStatusActivity", mock.Anything, mock.MatchedBy(func(in activities.RecordDocumentStatusInput) bool {
		return in.Status.Filename == "guia.pdf" && in.Status.State == models.StateIngested && in.Status.FileHash == "hash-guia.pdf" && in.Status.Chunks == 4
	})).Return(nil).Once()

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{RunID: "r1", Path: "/in/guia.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var rep ingest.FileReport
	require.NoError(t, env.GetWorkflowResult(&rep))
	assert.Equal(t, models.StateIngested, rep.Status)
	assert.Equal(t, 4, rep.Chunks)
	assert.Equal(t, 3, rep.Pages)

	val, err := env.QueryWorkflow(QueryGetDocumentStatus)
	require.NoError(t, err)
	var status DocumentProgress
	require.NoError(t, val.Get(&status))
	assert.Equal(t, "done", status.CurrentStep)
	assert.Equal(t, map[string]string{stepPrepare: "done", stepStore: "done", stepRecord: "done"}, status.Steps)
	env.AssertExpectations(t)
}

func TestDocumentIngestWorkflowDimensionMismatchFailsGracefully(t *testing.T) {
	env := newEnv()
	env.OnActivity("PrepareDocumentActivity", mock.Anything, mock.Anything).Return(prepareOK)
	env.OnActivity("StoreChunksActivity", mock.Anything, mock.Anything).Return(
		activities.StoreChunksOutput{}, temporal.NewNonRetryableApplicationError("vector dimension mismatch", util.KindDimensionMismatch, nil))
	env.OnActivity("RecordDocumentStatusActivity", mock.Anything, mock.MatchedBy(func(in activities.RecordDocumentStatusInput) bool {
		return in.Status.State == models.StateFailed && in.Status.ErrorKind == util.KindDimensionMismatch
	})).Return(nil).Once()

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{RunID: "r1", Path: "/in/guia.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var rep ingest.FileReport
	require.NoError(t, env.GetWorkflowResult(&rep))
	assert.Equal(t, models.StateFailed, rep.Status)
	assert.Equal(t, util.KindDimensionMismatch, rep.ErrorKind)
	assert.Zero(t, rep.Chunks)
	env.AssertExpectations(t)
}

func TestRetryFailedDocumentsWorkflow(t *testing.T) {
	env := newEnv()
	env.OnActivity("ListFailedDocumentsActivity", mock.Anything).Return(activities.ListFailedDocumentsOutput{Filenames: []string{"x.pdf"}}, nil)
	env.OnActivity("PrepareDocumentActivity", mock.Anything, mock.MatchedBy(func(in activities.PrepareDocumentInput) bool {
		return in.Path == filepath.Join("/in", "x.pdf")
	})).Return(prepareOK).Once()
	env.OnActivity("StoreChunksActivity", mock.Anything, mock.Anything).Return(storeOK)
	env.OnActivity("RecordDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("WriteIngestReportActivity", mock.Anything, mock.Anything).Return(activities.WriteIngestReportOutput{}, nil)

	env.ExecuteWorkflow(RetryFailedDocumentsWorkflow, RetryFailedInput{InputDir: "/in"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var rep ingest.Report
	require.NoError(t, env.GetWorkflowResult(&rep))
	assert.Equal(t, 1, rep.Succeeded)
	env.AssertExpectations(t)
}

func TestSanitizeID(t *testing.T) {
	assert.Equal(t, "guia-de-fobia-social-pdf", sanitizeID("Guia de Fobia_Social.pdf"))
}
