package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/transtore"
	"github.com/papertrans/papertrans/internal/workflow"
)

func newUploadRequest(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/translations", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestStartTranslation(t *testing.T) {
	ts := newTestServer(t)

	pdf := []byte("%PDF-1.4 test document")
	req := newUploadRequest(t, "attention.pdf", pdf, map[string]string{"enable_ocr": "true"})
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusAccepted, resp.Code)

	var body struct {
		TaskID    string `json:"task_id"`
		Filename  string `json:"filename"`
		EnableOCR bool   `json:"enable_ocr"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "task0001", body.TaskID)
	assert.Equal(t, "attention.pdf", body.Filename)
	assert.True(t, body.EnableOCR)

	started := ts.tasks.startedInputs()
	require.Len(t, started, 1)
	assert.Equal(t, "attention.pdf", started[0].Filename)
	assert.Equal(t, pdf, started[0].FileContent)
	assert.True(t, started[0].EnableOCR)
}

func TestStartTranslation_DefaultsOCROff(t *testing.T) {
	ts := newTestServer(t)

	req := newUploadRequest(t, "paper.pdf", []byte("%PDF-1.4"), nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusAccepted, resp.Code)
	started := ts.tasks.startedInputs()
	require.Len(t, started, 1)
	assert.False(t, started[0].EnableOCR)
}

func TestStartTranslation_RequiresFile(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/translations", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, ts.tasks.startedInputs())
}

func TestStartTranslation_RejectsNonPDF(t *testing.T) {
	ts := newTestServer(t)

	req := newUploadRequest(t, "notes.txt", []byte("plain text"), nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "PDF")
}

func TestStartTranslation_RejectsEmptyFile(t *testing.T) {
	ts := newTestServer(t)

	req := newUploadRequest(t, "empty.pdf", nil, nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestStartTranslation_ServiceClosed(t *testing.T) {
	ts := newTestServer(t)
	ts.tasks.startErr = workflow.ErrServiceClosed

	req := newUploadRequest(t, "paper.pdf", []byte("%PDF-1.4"), nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestStartTranslation_StartFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.tasks.startErr = errors.New("registry empty")

	req := newUploadRequest(t, "paper.pdf", []byte("%PDF-1.4"), nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestListTranslations(t *testing.T) {
	ts := newTestServer(t)

	_, err := ts.translations.Save(&transtore.Record{
		ID:           "trans001",
		Filename:     "attention.pdf",
		TranslatedMD: "# 注意力就是一切",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/translations", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Translations []transtore.Meta `json:"translations"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Translations, 1)
	assert.Equal(t, "trans001", body.Translations[0].ID)
	assert.Equal(t, "attention", body.Translations[0].DisplayName)
}

func TestListTranslations_Empty(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/translations", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"translations":[]}`, resp.Body.String())
}

func TestGetTranslation(t *testing.T) {
	ts := newTestServer(t)

	_, err := ts.translations.Save(&transtore.Record{
		ID:           "trans001",
		Filename:     "attention.pdf",
		TranslatedMD: "# 注意力就是一切",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/translations/trans001", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Meta     transtore.Meta `json:"meta"`
		Markdown string         `json:"markdown"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "trans001", body.Meta.ID)
	assert.Equal(t, "# 注意力就是一切", body.Markdown)
}

func TestGetTranslation_NotFound(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/translations/missing1", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetQualityReport(t *testing.T) {
	ts := newTestServer(t)

	report := agent.NewQualityReport(85)
	_, err := ts.translations.Save(&transtore.Record{
		ID:            "trans001",
		Filename:      "attention.pdf",
		TranslatedMD:  "# 注意力就是一切",
		QualityReport: report,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/translations/trans001/quality", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var got agent.QualityReport
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, 85, got.Score)
}

func TestGetQualityReport_NotFound(t *testing.T) {
	ts := newTestServer(t)

	// Saved without a report.
	_, err := ts.translations.Save(&transtore.Record{
		ID:           "trans001",
		Filename:     "attention.pdf",
		TranslatedMD: "# 译文",
	})
	require.NoError(t, err)

	for _, id := range []string{"trans001", "missing1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/translations/"+id+"/quality", nil)
		resp := httptest.NewRecorder()
		ts.router.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	}
}

func TestCancelTask(t *testing.T) {
	ts := newTestServer(t)
	ts.tasks.setRunning("task0001", true)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/task0001/cancel", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"task_id":"task0001","cancelled":true}`, resp.Body.String())
	assert.Equal(t, []string{"task0001"}, ts.tasks.cancelledIDs())
}

func TestCancelTask_NotRunning(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/ghost123/cancel", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}
