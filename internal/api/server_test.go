package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"calmchat/internal/app"
	"calmchat/internal/chat"
	"calmchat/internal/config"
	"calmchat/internal/extract"
	"calmchat/internal/util"
	"calmchat/internal/workflows"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
)

type staticSource []string

func (s staticSource) NumPages() int { return len(s) }

func (s staticSource) PageText(page int) (string, error) { return s[page-1], nil }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	cfg := config.Default()
	cfg.StoreBackend = "memory"
	cfg.SessionStore = "memory"
	cfg.EmbedDim = 24
	cfg.EmbedRatePerSecond = 0
	cfg.OCREnabled = false
	cfg.DataInRoot = t.TempDir()
	cfg.DataOutRoot = t.TempDir()

	page := strings.Repeat("A exposição gradual ajuda a reduzir a ansiedade em situações sociais. ", 20)
	ext := extract.NewWithOpener(extract.Options{}, func(string) (extract.PageSource, io.Closer, error) {
		return staticSource{page, page}, nopCloser{}, nil
	})
	a, err := app.New(context.Background(), cfg, app.WithExtractor(ext))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func addPDF(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4"), 0o644))
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error.Code
}

type fakeRun struct {
	tclient.WorkflowRun
	id string
}

func (r fakeRun) GetID() string { return r.id }

func (r fakeRun) GetRunID() string { return "run-1" }

type fakeValue struct {
	converter.EncodedValue
	prog workflows.IngestProgress
}

func (v fakeValue) Get(valuePtr interface{}) error {
	*(valuePtr.(*workflows.IngestProgress)) = v.prog
	return nil
}

type fakeTemporal struct {
	started  []tclient.StartWorkflowOptions
	args     []interface{}
	progress map[string]workflows.IngestProgress
}

func (f *fakeTemporal) ExecuteWorkflow(_ context.Context, opts tclient.StartWorkflowOptions, _ interface{}, args ...interface{}) (tclient.WorkflowRun, error) {
	f.started = append(f.started, opts)
	f.args = append(f.args, args...)
	return fakeRun{id: opts.ID}, nil
}

func (f *fakeTemporal) QueryWorkflow(_ context.Context, workflowID, _, queryType string, _ ...interface{}) (converter.EncodedValue, error) {
	prog, ok := f.progress[workflowID]
	if !ok || queryType != workflows.QueryGetProgress {
		return nil, errors.New("workflow not found")
	}
	return fakeValue{prog: prog}, nil
}

func TestHealthz(t *testing.T) {
	h := NewServer(newTestApp(t), nil).Routes()
	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	h := NewServer(newTestApp(t), nil).Routes()
	rec := do(t, h, http.MethodPost, "/ask", map[string]any{"question": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CC-API-4001", errorCode(t, rec))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskUnknownSession(t *testing.T) {
	h := NewServer(newTestApp(t), nil).Routes()
	rec := do(t, h, http.MethodPost, "/ask", map[string]any{"question": "O que é fobia social?", "session_id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "CC-API-4004", errorCode(t, rec))
}

func TestIngestAskAndDocumentsInProcess(t *testing.T) {
	a := newTestApp(t)
	h := NewServer(a, nil).Routes()
	addPDF(t, a.Config.DataInRoot, "guia.pdf")

	rec := do(t, h, http.MethodPost, "/ingest", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var docs struct {
		Collection app.Info `json:"collection"`
		Documents  []struct {
			Filename string `json:"filename"`
			Status   string `json:"status"`
		} `json:"documents"`
	}
	decode(t, rec, &docs)
	assert.Equal(t, []string{"guia.pdf"}, docs.Collection.Files)
	assert.Positive(t, docs.Collection.TotalChunks)
	require.Len(t, docs.Documents, 1)
	assert.Equal(t, "ingested", docs.Documents[0].Status)

	rec = do(t, h, http.MethodPost, "/ask", map[string]any{"question": "Como reduzir a ansiedade?", "study_mode": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ans chat.AskResponse
	decode(t, rec, &ans)
	assert.NotEmpty(t, ans.SessionID)
	assert.True(t, ans.StudyMode)
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, "guia.pdf", ans.Sources[0].Filename)

	rec = do(t, h, http.MethodGet, "/documents/guia.pdf/chunks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var chunks struct {
		Chunks []json.RawMessage `json:"chunks"`
	}
	decode(t, rec, &chunks)
	assert.Len(t, chunks.Chunks, docs.Collection.TotalChunks)

	rec = do(t, h, http.MethodDelete, "/documents/guia.pdf", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodDelete, "/documents/guia.pdf", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, "/documents/guia.pdf/chunks", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/documents", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestMissingDirectory(t *testing.T) {
	h := NewServer(newTestApp(t), nil).Routes()
	rec := do(t, h, http.MethodPost, "/ingest", map[string]any{"input_dir": filepath.Join(t.TempDir(), "nope")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CC-API-4001", errorCode(t, rec))
}

func TestSessionLifecycle(t *testing.T) {
	h := NewServer(newTestApp(t), nil).Routes()

	rec := do(t, h, http.MethodPost, "/sessions", map[string]any{"study_mode": false})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	decode(t, rec, &created)
	require.NotEmpty(t, created.ID)

	rec = do(t, h, http.MethodPost, "/ask", map[string]any{"question": "Quais são os sintomas de ansiedade social?", "session_id": created.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/sessions/"+created.ID+"/study-mode", map[string]any{"study_mode": true})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPut, "/sessions/"+created.ID+"/study-mode", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Session struct {
			StudyMode bool              `json:"study_mode"`
			Turns     []json.RawMessage `json:"turns"`
		} `json:"session"`
		Summary struct {
			TotalMessages int      `json:"total_messages"`
			RecentTopics  []string `json:"recent_topics"`
		} `json:"summary"`
	}
	decode(t, rec, &got)
	assert.True(t, got.Session.StudyMode)
	assert.Len(t, got.Session.Turns, 2)
	assert.Equal(t, 2, got.Summary.TotalMessages)
	assert.Contains(t, got.Summary.RecentTopics, "ansiedade")

	rec = do(t, h, http.MethodGet, "/sessions/"+created.ID+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "conversa_fobia_social_"+created.ID+".json")
	var export struct {
		ConversationID string            `json:"conversation_id"`
		Messages       []json.RawMessage `json:"messages"`
	}
	decode(t, rec, &export)
	assert.Equal(t, created.ID, export.ConversationID)
	assert.Len(t, export.Messages, 2)

	rec = do(t, h, http.MethodGet, "/sessions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestStartsWorkflow(t *testing.T) {
	a := newTestApp(t)
	tc := &fakeTemporal{progress: map[string]workflows.IngestProgress{}}
	h := NewServer(a, tc).Routes()

	rec := do(t, h, http.MethodPost, "/ingest", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var started struct {
		WorkflowID string `json:"workflow_id"`
	}
	decode(t, rec, &started)
	require.Len(t, tc.started, 1)
	assert.Equal(t, started.WorkflowID, tc.started[0].ID)
	assert.True(t, strings.HasPrefix(started.WorkflowID, "ingest-"))
	assert.Equal(t, a.Config.TemporalTaskQueue, tc.started[0].TaskQueue)
	require.Len(t, tc.args, 1)
	assert.Equal(t, workflows.IngestDirectoryInput{InputDir: a.Config.DataInRoot, MaxConcurrentChildren: a.Config.IngestMaxChildren}, tc.args[0])

	rec = do(t, h, http.MethodPost, "/ingest", map[string]any{"retry_failed": true})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, strings.HasPrefix(tc.started[1].ID, "retry-"))

	tc.progress[started.WorkflowID] = workflows.IngestProgress{RunID: started.WorkflowID, Status: "running", Total: 3, Done: 1}
	rec = do(t, h, http.MethodGet, "/ingest/"+started.WorkflowID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var prog workflows.IngestProgress
	decode(t, rec, &prog)
	assert.Equal(t, 3, prog.Total)
	assert.Equal(t, 1, prog.Done)

	rec = do(t, h, http.MethodGet, "/ingest/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestProgressWithoutTemporal(t *testing.T) {
	h := NewServer(newTestApp(t), nil).Routes()
	rec := do(t, h, http.MethodGet, "/ingest/ingest-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowedAndPreflight(t *testing.T) {
	h := NewServer(newTestApp(t), nil).Routes()
	rec := do(t, h, http.MethodGet, "/ask", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "CC-API-4005", errorCode(t, rec))

	rec = do(t, h, http.MethodOptions, "/ask", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestToAPIErrorCodes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"empty question", chat.ErrEmptyQuestion, http.StatusBadRequest, "CC-API-4001"},
		{"not found", util.ErrNotFound, http.StatusNotFound, "CC-API-4004"},
		{"dimension", &util.DimensionMismatchError{Expected: 24, Got: 8}, http.StatusUnprocessableEntity, "CC-DIM-4220"},
		{"embedding", &util.EmbeddingServiceError{Attempts: 3, Err: errors.New("503")}, http.StatusBadGateway, "CC-EMB-5020"},
		{"store", &util.StoreUnavailableError{Op: "query", Err: errors.New("dial tcp")}, http.StatusServiceUnavailable, "CC-DB-5030"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "CC-API-5000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status := statusFor(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, toAPIError(status, tc.err).Code)
		})
	}
}
