package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"calmchat/internal/app"
	"calmchat/internal/chat"
	"calmchat/internal/logger"
	"calmchat/internal/models"
	"calmchat/internal/session"
	"calmchat/internal/util"
	"calmchat/internal/workflows"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
)

// WorkflowClient is the part of the Temporal client the API uses. tclient.Client satisfies it.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options tclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (tclient.WorkflowRun, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

var errBadRequest = errors.New("bad request")

type Server struct {
	app      *app.App
	temporal WorkflowClient
}

// NewServer serves a. When temporal is nil, POST /ingest runs the ingestion in-process and
// GET /ingest/{workflow_id} is unavailable.
func NewServer(a *app.App, temporal WorkflowClient) *Server {
	return &Server{app: a, temporal: temporal}
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware)

	r.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	r.HandleFunc("/ask", s.handleAsk).Methods("POST", "OPTIONS")

	r.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	r.HandleFunc("/sessions", s.handleCreateSession).Methods("POST", "OPTIONS")
	r.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	r.HandleFunc("/sessions/{id}", s.handleEndSession).Methods("DELETE", "OPTIONS")
	r.HandleFunc("/sessions/{id}/study-mode", s.handleStudyMode).Methods("PUT", "OPTIONS")
	r.HandleFunc("/sessions/{id}/export", s.handleExport).Methods("GET")

	r.HandleFunc("/documents", s.handleDocuments).Methods("GET")
	r.HandleFunc("/documents", s.handleClearDocuments).Methods("DELETE", "OPTIONS")
	r.HandleFunc("/documents/{filename}/chunks", s.handleDocumentChunks).Methods("GET")
	r.HandleFunc("/documents/{filename}", s.handleDeleteDocument).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/ingest", s.handleIngest).Methods("POST", "OPTIONS")
	r.HandleFunc("/ingest/{workflow_id}", s.handleIngestProgress).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusNotFound, util.ErrNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req chat.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	resp, err := s.app.Chat.Ask(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.app.Sessions.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudyMode bool `json:"study_mode"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
	}
	sess, err := s.app.Sessions.Create(r.Context(), req.StudyMode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.app.Sessions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess, "summary": session.Summarize(sess)})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.app.Sessions.End(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "ended": true})
}

func (s *Server) handleStudyMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudyMode *bool `json:"study_mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if req.StudyMode == nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("study_mode is required: %w", errBadRequest))
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.app.Sessions.SetStudyMode(r.Context(), id, *req.StudyMode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "study_mode": *req.StudyMode})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.app.Sessions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", session.ExportFilename(sess.ID)))
	writeJSON(w, http.StatusOK, session.Export(sess))
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	info, err := s.app.Info(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	docs, err := s.app.Status.ListDocuments(r.Context())
	if err != nil {
		logger.Warn("list document status: %v", err)
		docs = []models.DocumentStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"collection": info, "documents": docs})
}

func (s *Server) handleDocumentChunks(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	chunks, err := s.app.Gateway.DocumentChunks(r.Context(), filename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filename": filename, "chunks": chunks})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	n, err := s.app.Pipeline.Remove(r.Context(), filename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filename": filename, "deleted_chunks": n})
}

func (s *Server) handleClearDocuments(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.Pipeline.Clear(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_chunks": n})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InputDir    string `json:"input_dir"`
		RetryFailed bool   `json:"retry_failed"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
	}
	dir := strings.TrimSpace(req.InputDir)
	if dir == "" {
		dir = s.app.Config.DataInRoot
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("input directory %s not found: %w", dir, errBadRequest))
		return
	}

	if s.temporal == nil {
		report, err := s.app.Pipeline.IngestDirectory(r.Context(), dir)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"input_dir": dir, "report": report})
		return
	}

	var (
		wfID string
		wf   interface{}
		arg  interface{}
	)
	if req.RetryFailed {
		wfID = "retry-" + uuid.NewString()
		wf = workflows.RetryFailedDocumentsWorkflow
		arg = workflows.RetryFailedInput{InputDir: dir, MaxConcurrentChildren: s.app.Config.IngestMaxChildren}
	} else {
		wfID = "ingest-" + uuid.NewString()
		wf = workflows.IngestDirectoryWorkflow
		arg = workflows.IngestDirectoryInput{InputDir: dir, MaxConcurrentChildren: s.app.Config.IngestMaxChildren}
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       wfID,
		TaskQueue:                                s.app.Config.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, wf, arg)
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID(), "input_dir": dir})
}

func (s *Server) handleIngestProgress(w http.ResponseWriter, r *http.Request) {
	if s.temporal == nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("workflow progress unavailable without temporal: %w", util.ErrNotFound))
		return
	}
	resp, err := s.temporal.QueryWorkflow(r.Context(), mux.Vars(r)["workflow_id"], "", workflows.QueryGetProgress)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	var prog workflows.IngestProgress
	if err := resp.Get(&prog); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError picks the status from err's kind.
func writeError(w http.ResponseWriter, err error) {
	writeErr(w, statusFor(err), err)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	if code >= 500 {
		logger.Error("request failed: %v", err)
	}
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

func statusFor(err error) int {
	if errors.Is(err, chat.ErrEmptyQuestion) || errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	switch util.ErrorKind(err) {
	case util.KindNotFound:
		return http.StatusNotFound
	case util.KindDimensionMismatch, util.KindExtraction:
		return http.StatusUnprocessableEntity
	case util.KindEmbeddingService:
		return http.StatusBadGateway
	case util.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "CC-API-4000"

	switch util.ErrorKind(err) {
	case util.KindDimensionMismatch:
		return apiError{
			Code:    "CC-DIM-4220",
			Message: "Embedding dimension does not match the collection. Check CALMCHAT_EMBED_DIM and the embedding model.",
		}
	case util.KindEmbeddingService:
		return apiError{
			Code:    "CC-EMB-5020",
			Message: "Embedding service unavailable. Retry shortly.",
		}
	case util.KindStoreUnavailable:
		return apiError{
			Code:    "CC-DB-5030",
			Message: "Vector store is unavailable. Check local services and retry.",
		}
	}

	switch {
	case status >= 500:
		return apiError{
			Code:    "CC-API-5000",
			Message: "Internal server error. Please retry or check service logs.",
		}
	case status == http.StatusBadRequest:
		code = "CC-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "CC-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "CC-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "CC-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusUnprocessableEntity:
		code = "CC-API-4220"
		msg = "The document could not be processed."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		low := strings.ToLower(err.Error())
		switch {
		case errors.Is(err, chat.ErrEmptyQuestion):
			msg = "Question is required."
		case strings.Contains(low, "study_mode is required"):
			msg = "study_mode is required."
		case strings.Contains(low, "input directory"):
			msg = "Input directory does not exist."
		case strings.Contains(low, "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}
