package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-processor/internal/domain"
	"github.com/dvloznov/statement-processor/internal/jobs"
	"github.com/dvloznov/statement-processor/internal/logger"
)

// mockPublisher captures published jobs.
type mockPublisher struct {
	jobs       []*jobs.ProcessStatementJob
	publishErr error
}

func (m *mockPublisher) PublishProcessStatement(ctx context.Context, job *jobs.ProcessStatementJob) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	job.JobID = "job-1"
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

// mockRepository returns canned listing results.
type mockRepository struct {
	accepted []domain.AcceptedStatement
	failed   []domain.FailedStatement
	listErr  error
}

func (m *mockRepository) InsertAccepted(ctx context.Context, stmt domain.AcceptedStatement) error {
	return nil
}

func (m *mockRepository) InsertFailedBatch(ctx context.Context, stmts []domain.FailedStatement) error {
	return nil
}

func (m *mockRepository) ListAccepted(ctx context.Context, id *int64) ([]domain.AcceptedStatement, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if id != nil {
		var out []domain.AcceptedStatement
		for _, s := range m.accepted {
			if s.ID == *id {
				out = append(out, s)
			}
		}
		return out, nil
	}
	return m.accepted, nil
}

func (m *mockRepository) ListFailed(ctx context.Context, id *int64) ([]domain.FailedStatement, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.failed, nil
}

func newTestHandler(repo *mockRepository, pub *mockPublisher) *StatementsHandler {
	log := logger.NewWithWriter(bytes.NewBuffer(nil))
	return NewStatementsHandler(repo, pub, 1<<20, log)
}

func multipartBody(t *testing.T, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	if contentType != "" {
		hdr["Content-Type"] = []string{contentType}
	}
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return body, mw.FormDataContentType()
}

func TestUploadStatement_EnqueuesJob(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(&mockRepository{}, pub)

	content := "REF1,NL91ABNA0417164300,desc,100.00,+50.00,150.00\n"
	body, contentType := multipartBody(t, "statement.csv", "text/csv", content)

	req := httptest.NewRequest(http.MethodPost, "/api/statements/file", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadStatement(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, pub.jobs, 1)
	assert.Equal(t, "statement.csv", pub.jobs[0].Filename)
	assert.Equal(t, []byte(content), pub.jobs[0].Data)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "File uploaded successfully.", resp["message"])
	assert.Equal(t, "job-1", resp["job_id"])
}

func TestUploadStatement_XMLAccepted(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(&mockRepository{}, pub)

	body, contentType := multipartBody(t, "statement.xml", "application/xml", "<records/>")

	req := httptest.NewRequest(http.MethodPost, "/api/statements/file", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadStatement(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, pub.jobs, 1)
}

func TestUploadStatement_RejectsUnsupportedExtension(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(&mockRepository{}, pub)

	body, contentType := multipartBody(t, "statement.pdf", "application/pdf", "%PDF")

	req := httptest.NewRequest(http.MethodPost, "/api/statements/file", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadStatement(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Empty(t, pub.jobs)
}

func TestUploadStatement_RejectsMismatchedContentType(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(&mockRepository{}, pub)

	body, contentType := multipartBody(t, "statement.csv", "application/pdf", "data")

	req := httptest.NewRequest(http.MethodPost, "/api/statements/file", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadStatement(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Empty(t, pub.jobs)
}

func TestUploadStatement_MissingFile(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(&mockRepository{}, pub)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/statements/file", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h.UploadStatement(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadStatement_TooLarge(t *testing.T) {
	pub := &mockPublisher{}
	log := logger.NewWithWriter(bytes.NewBuffer(nil))
	h := NewStatementsHandler(&mockRepository{}, pub, 64, log)

	content := bytes.Repeat([]byte("a"), 1024)
	body, contentType := multipartBody(t, "statement.csv", "text/csv", string(content))

	req := httptest.NewRequest(http.MethodPost, "/api/statements/file", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadStatement(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, pub.jobs)
}

func TestUploadStatement_PublishFailure(t *testing.T) {
	pub := &mockPublisher{publishErr: errors.New("queue closed")}
	h := newTestHandler(&mockRepository{}, pub)

	body, contentType := multipartBody(t, "statement.csv", "text/csv", "data")

	req := httptest.NewRequest(http.MethodPost, "/api/statements/file", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadStatement(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListStatements(t *testing.T) {
	desc := "desc"
	repo := &mockRepository{
		accepted: []domain.AcceptedStatement{
			{
				ID:            1,
				TxnReference:  "REF1",
				AccountNumber: "NL91ABNA0417164300",
				Mutation:      "+50.00",
				StartBalance:  decimal.NewFromInt(100),
				EndBalance:    decimal.NewFromInt(150),
				Description:   &desc,
				CreatedAt:     time.Now(),
				UpdatedAt:     time.Now(),
			},
			{ID: 2, TxnReference: "REF2", AccountNumber: "NL91ABNA0417164300"},
		},
	}
	h := newTestHandler(repo, &mockPublisher{})

	req := httptest.NewRequest(http.MethodGet, "/api/statements", nil)
	rec := httptest.NewRecorder()

	h.ListStatements(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Statements []acceptedStatementResponse `json:"statements"`
		Count      int                         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "REF1", resp.Statements[0].TxnReference)
}

func TestListStatements_FilterByID(t *testing.T) {
	repo := &mockRepository{
		accepted: []domain.AcceptedStatement{
			{ID: 1, TxnReference: "REF1"},
			{ID: 2, TxnReference: "REF2"},
		},
	}
	h := newTestHandler(repo, &mockPublisher{})

	req := httptest.NewRequest(http.MethodGet, "/api/statements?id=2", nil)
	rec := httptest.NewRecorder()

	h.ListStatements(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Statements []acceptedStatementResponse `json:"statements"`
		Count      int                         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "REF2", resp.Statements[0].TxnReference)
}

func TestListStatements_BadID(t *testing.T) {
	h := newTestHandler(&mockRepository{}, &mockPublisher{})

	req := httptest.NewRequest(http.MethodGet, "/api/statements?id=abc", nil)
	rec := httptest.NewRecorder()

	h.ListStatements(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListFailedStatements(t *testing.T) {
	repo := &mockRepository{
		failed: []domain.FailedStatement{
			{ID: 1, TxnReference: "REF1", Description: "Duplicate transaction reference."},
		},
	}
	h := newTestHandler(repo, &mockPublisher{})

	req := httptest.NewRequest(http.MethodGet, "/api/statements/failed", nil)
	rec := httptest.NewRecorder()

	h.ListFailedStatements(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Statements []failedStatementResponse `json:"statements"`
		Count      int                       `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "Duplicate transaction reference.", resp.Statements[0].Description)
}

func TestListStatements_RepositoryError(t *testing.T) {
	repo := &mockRepository{listErr: errors.New("db down")}
	h := newTestHandler(repo, &mockPublisher{})

	req := httptest.NewRequest(http.MethodGet, "/api/statements", nil)
	rec := httptest.NewRecorder()

	h.ListStatements(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
