package handlers

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-processor/internal/api/middleware"
	"github.com/dvloznov/statement-processor/internal/domain"
	"github.com/dvloznov/statement-processor/internal/jobs"
	"github.com/dvloznov/statement-processor/internal/pipeline"
)

// allowedContentTypes restricts uploads to CSV and XML mime types. An empty
// or generic content type is tolerated when the filename extension is
// supported; the worker re-derives the format from the filename anyway.
var allowedContentTypes = map[string]bool{
	"text/csv":        true,
	"application/csv": true,
	"text/xml":        true,
	"application/xml": true,
}

// StatementsHandler handles the statement upload and listing endpoints.
// Uploads are acknowledged and enqueued; parsing and validation never run in
// the request path.
type StatementsHandler struct {
	repo           pipeline.StatementRepository
	publisher      jobs.Publisher
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewStatementsHandler creates a new statements handler.
func NewStatementsHandler(repo pipeline.StatementRepository, publisher jobs.Publisher, maxUploadBytes int64, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{
		repo:           repo,
		publisher:      publisher,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// UploadStatement handles POST /api/statements/file.
// It accepts a single multipart file, enqueues a processing job and returns
// an acknowledgment. Per-record success or failure is discoverable only via
// the listing endpoints.
func (h *StatementsHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large or malformed form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		middleware.WriteError(w, http.StatusBadRequest, "File name is required")
		return
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if ext != pipeline.FormatCSV && ext != pipeline.FormatXML {
		middleware.WriteError(w, http.StatusUnsupportedMediaType, "Only CSV and XML statements are supported")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType != "" && contentType != "application/octet-stream" && !allowedContentTypes[contentType] {
		middleware.WriteError(w, http.StatusUnsupportedMediaType, "Only CSV and XML statements are supported")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read uploaded file")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read uploaded file")
		return
	}

	job := &jobs.ProcessStatementJob{
		Filename: header.Filename,
		Data:     data,
	}
	if err := h.publisher.PublishProcessStatement(ctx, job); err != nil {
		h.log.Error().Err(err).Str("filename", header.Filename).Msg("Failed to enqueue statement job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue statement for processing")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("filename", header.Filename).
		Int("bytes", len(data)).
		Msg("Statement file enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"message": "File uploaded successfully.",
		"job_id":  job.JobID,
	})
}

// ListStatements handles GET /api/statements with an optional ?id= filter.
func (h *StatementsHandler) ListStatements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := idFilter(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	statements, err := h.repo.ListAccepted(ctx, id)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list statements")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list statements")
		return
	}

	payload := make([]acceptedStatementResponse, 0, len(statements))
	for _, s := range statements {
		payload = append(payload, acceptedResponse(s))
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statements": payload,
		"count":      len(payload),
	})
}

// ListFailedStatements handles GET /api/statements/failed with an optional
// ?id= filter.
func (h *StatementsHandler) ListFailedStatements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := idFilter(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	statements, err := h.repo.ListFailed(ctx, id)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list failed statements")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list failed statements")
		return
	}

	payload := make([]failedStatementResponse, 0, len(statements))
	for _, s := range statements {
		payload = append(payload, failedResponse(s))
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statements": payload,
		"count":      len(payload),
	})
}

// idFilter parses the optional ?id= query parameter.
func idFilter(r *http.Request) (*int64, error) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

type acceptedStatementResponse struct {
	ID            int64           `json:"id"`
	TxnReference  string          `json:"txn_reference"`
	AccountNumber string          `json:"account_number"`
	Mutation      string          `json:"mutation"`
	StartBalance  decimal.Decimal `json:"start_balance"`
	EndBalance    decimal.Decimal `json:"end_balance"`
	Description   *string         `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func acceptedResponse(s domain.AcceptedStatement) acceptedStatementResponse {
	return acceptedStatementResponse{
		ID:            s.ID,
		TxnReference:  s.TxnReference,
		AccountNumber: s.AccountNumber,
		Mutation:      s.Mutation,
		StartBalance:  s.StartBalance,
		EndBalance:    s.EndBalance,
		Description:   s.Description,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

type failedStatementResponse struct {
	ID           int64     `json:"id"`
	TxnReference string    `json:"txn_reference"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func failedResponse(s domain.FailedStatement) failedStatementResponse {
	return failedStatementResponse{
		ID:           s.ID,
		TxnReference: s.TxnReference,
		Description:  s.Description,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// JobsHandler exposes read-only job status endpoints backed by the job
// store.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{store: store, log: log}
}

// ListJobs handles GET /api/jobs with optional ?status= and ?filename=
// filters.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := jobs.JobFilter{
		Filename: r.URL.Query().Get("filename"),
		Status:   jobs.JobStatus(r.URL.Query().Get("status")),
	}

	list, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	payload := make([]jobResponse, 0, len(list))
	for _, j := range list {
		payload = append(payload, jobResponseFrom(j))
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  payload,
		"count": len(payload),
	})
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, jobResponseFrom(job))
}

// jobResponse omits the raw file bytes carried by the job payload.
type jobResponse struct {
	JobID       string         `json:"job_id"`
	Filename    string         `json:"filename"`
	Status      jobs.JobStatus `json:"status"`
	Progress    int            `json:"progress"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	RetryCount  int            `json:"retry_count"`
}

func jobResponseFrom(j *jobs.ProcessStatementJob) jobResponse {
	return jobResponse{
		JobID:       j.JobID,
		Filename:    j.Filename,
		Status:      j.Status,
		Progress:    j.Progress,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Error:       j.Error,
		RetryCount:  j.RetryCount,
	}
}
