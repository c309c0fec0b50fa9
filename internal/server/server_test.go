package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/normalize"
	"github.com/joseph-ayodele/lab-extractor/internal/ocr"
)

type mockProcessor struct{ mock.Mock }

func (m *mockProcessor) Process(ctx context.Context, src ocr.Source) entity.ExtractionOutcome {
	args := m.Called(ctx, src)
	return args.Get(0).(entity.ExtractionOutcome)
}

type mockExport struct{ mock.Mock }

func (m *mockExport) History(ctx context.Context, code string, from, to *time.Time) ([]entity.HistoryPoint, error) {
	args := m.Called(ctx, code, from, to)
	points, _ := args.Get(0).([]entity.HistoryPoint)
	return points, args.Error(1)
}

func (m *mockExport) HistoryXLSX(ctx context.Context, code string, from, to *time.Time) ([]byte, error) {
	args := m.Called(ctx, code, from, to)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockExport) ResultsXLSX(ctx context.Context, testType string, from, to *time.Time) ([]byte, error) {
	args := m.Called(ctx, testType, from, to)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func f64(v float64) *float64 { return &v }

func cbcOutcome() entity.ExtractionOutcome {
	docID := uuid.New()
	performed := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	return entity.ExtractionOutcome{
		TestType:   "CBC",
		DocumentID: &docID,
		Results: []entity.TestResult{{
			ID:           uuid.New(),
			TestTypeCode: "CBC",
			PerformedAt:  performed,
			Source:       entity.SourceMetadata{LabName: "City Diagnostics", DocumentID: &docID},
			Values: []entity.ParameterValue{{
				ParameterCode:  "HGB",
				Name:           "Hemoglobin",
				Unit:           "g/dL",
				RawValue:       "13.5",
				DataType:       entity.DataNumeric,
				Numeric:        f64(13.5),
				ReferenceRange: entity.FlatRange(12, 16),
			}},
		}},
	}
}

func newRouter(t *testing.T, proc DocumentProcessor, exp *mockExport, apiKey string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := common.ServerConfig{MaxUploadBytes: 1 << 10, RequestTimeout: time.Minute}
	h := Handlers{Documents: NewDocumentHandler(proc, cfg, nil)}
	if exp != nil {
		h.Export = NewExportHandler(exp, exp, nil)
	}
	return NewRouter(apiKey, h, nil)
}

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/process-document", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestProcessDocumentUpload(t *testing.T) {
	proc := &mockProcessor{}
	proc.On("Process", mock.Anything, mock.MatchedBy(func(src ocr.Source) bool {
		return src.Filename == "cbc.pdf" && string(src.Data) == "%PDF-1.4" && src.URL == ""
	})).Return(cbcOutcome()).Once()

	r := newRouter(t, proc, nil, "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "file", "cbc.pdf", []byte("%PDF-1.4")))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	var resp normalize.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "2024-03-15", resp.TestDate)
	assert.Equal(t, "City Diagnostics", resp.LabName)
	assert.Equal(t, "CBC", resp.TestType)
	require.Len(t, resp.Tests, 1)
	hgb := resp.Tests[0].Parameters["HGB"]
	assert.EqualValues(t, 13.5, hgb.Value)
	assert.Equal(t, "g/dL", hgb.Unit)
	assert.Equal(t, "12-16", hgb.NormalRange)
	assert.Contains(t, resp.CBC, "HGB")
	assert.NotEmpty(t, resp.DocumentID)
	proc.AssertExpectations(t)
}

func TestProcessDocumentURL(t *testing.T) {
	proc := &mockProcessor{}
	proc.On("Process", mock.Anything, ocr.Source{URL: "https://example.com/report.pdf"}).
		Return(cbcOutcome()).Once()

	r := newRouter(t, proc, nil, "")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/process-document",
		strings.NewReader(`{"document_url":" https://example.com/report.pdf "}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	proc.AssertExpectations(t)
}

func TestProcessDocumentRejectsBadInput(t *testing.T) {
	cases := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		status   int
		code     string
		category string
	}{
		{
			name: "empty upload",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "file", "empty.pdf", nil)
			},
			status:   http.StatusBadRequest,
			code:     "CORRUPT_DOCUMENT",
			category: common.CategoryDocumentUnreadable,
		},
		{
			name: "oversized upload",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "file", "big.pdf", bytes.Repeat([]byte("x"), 2<<10))
			},
			status:   http.StatusRequestEntityTooLarge,
			code:     codeFileTooLarge,
			category: common.CategoryInvalidRequest,
		},
		{
			name: "missing file part",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "attachment", "cbc.pdf", []byte("%PDF"))
			},
			status:   http.StatusBadRequest,
			code:     "INVALID_INPUT",
			category: common.CategoryInvalidRequest,
		},
		{
			name: "non http url",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/process-document",
					strings.NewReader(`{"document_url":"ftp://host/a.pdf"}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			status:   http.StatusBadRequest,
			code:     "VALIDATION_ERROR",
			category: common.CategoryInvalidRequest,
		},
		{
			name: "malformed json",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/process-document", strings.NewReader(`{`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			status:   http.StatusBadRequest,
			code:     "INVALID_INPUT",
			category: common.CategoryInvalidRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proc := &mockProcessor{}
			r := newRouter(t, proc, nil, "")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, tc.req(t))

			assert.Equal(t, tc.status, w.Code)
			e := decodeError(t, w)
			assert.Equal(t, tc.code, e.Code)
			assert.Equal(t, tc.category, e.Category)
			proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
		})
	}
}

func TestProcessDocumentFailureCategories(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		category string
	}{
		{"unreachable", common.NewExtractionError(common.ErrSourceUnavailable, "download failed", nil), http.StatusBadGateway, common.CategoryDocumentUnreadable},
		{"unsupported", common.NewExtractionError(common.ErrUnsupportedFormat, "not a pdf or image", nil), http.StatusUnsupportedMediaType, common.CategoryDocumentUnreadable},
		{"no text", common.NewExtractionError(common.ErrEmptyExtraction, "no text found", nil), http.StatusUnprocessableEntity, common.CategoryNoTestData},
		{"no parameters", common.NewExtractionError(common.ErrNoParametersExtracted, "no valid test results found", nil), http.StatusUnprocessableEntity, common.CategoryNoTestData},
		{"database", common.ErrDatabase, http.StatusInternalServerError, common.CategoryInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proc := &mockProcessor{}
			proc.On("Process", mock.Anything, mock.Anything).Return(entity.Failure(tc.err))

			r := newRouter(t, proc, nil, "")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, multipartRequest(t, "file", "a.png", []byte("png")))

			assert.Equal(t, tc.status, w.Code)
			e := decodeError(t, w)
			assert.Equal(t, tc.category, e.Category)
			assert.NotEmpty(t, e.Message)
		})
	}
}

func TestAPIKeyGuard(t *testing.T) {
	proc := &mockProcessor{}
	proc.On("Process", mock.Anything, mock.Anything).Return(cbcOutcome())
	r := newRouter(t, proc, nil, "secret")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "file", "cbc.pdf", []byte("%PDF")))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, w).Code)

	w = httptest.NewRecorder()
	req := multipartRequest(t, "file", "cbc.pdf", []byte("%PDF"))
	req.Header.Set(headerAPIKey, "secret")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// health stays open
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestRequestIDPropagates(t *testing.T) {
	proc := &mockProcessor{}
	proc.On("Process", mock.MatchedBy(func(ctx context.Context) bool {
		return common.RequestIDFromContext(ctx) == "req-123"
	}), mock.Anything).Return(cbcOutcome()).Once()

	r := newRouter(t, proc, nil, "")
	w := httptest.NewRecorder()
	req := multipartRequest(t, "file", "cbc.pdf", []byte("%PDF"))
	req.Header.Set(headerRequestID, "req-123")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(headerRequestID))
	proc.AssertExpectations(t)
}

func TestParameterHistoryJSON(t *testing.T) {
	exp := &mockExport{}
	points := []entity.HistoryPoint{{
		TestTypeCode:  "CBC",
		ParameterCode: "HGB",
		PerformedAt:   time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		RawValue:      "11.2",
		Numeric:       f64(11.2),
		IsAbnormal:    true,
	}}
	exp.On("History", mock.Anything, "HGB",
		mock.MatchedBy(func(from *time.Time) bool { return from != nil && from.Format(time.DateOnly) == "2024-01-01" }),
		mock.MatchedBy(func(to *time.Time) bool { return to != nil && to.Format(time.DateOnly) == "2024-06-30" }),
	).Return(points, nil).Once()

	r := newRouter(t, &mockProcessor{}, exp, "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/parameters/hgb/history?from=2024-01-01&to=2024-06-30", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp historyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "HGB", resp.Code)
	assert.Equal(t, "2024-01-01", resp.From)
	assert.Equal(t, "2024-06-30", resp.To)
	require.Len(t, resp.Points, 1)
	assert.True(t, resp.Points[0].IsAbnormal)
	exp.AssertExpectations(t)
}

func TestParameterHistoryXLSX(t *testing.T) {
	exp := &mockExport{}
	exp.On("HistoryXLSX", mock.Anything, "GLU", (*time.Time)(nil), (*time.Time)(nil)).
		Return([]byte("PK-xlsx"), nil).Once()

	r := newRouter(t, &mockProcessor{}, exp, "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/parameters/GLU/history?format=xlsx", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "glu-history.xlsx")
	assert.Equal(t, "PK-xlsx", w.Body.String())
	exp.AssertExpectations(t)
}

func TestParameterHistoryBadDates(t *testing.T) {
	exp := &mockExport{}
	r := newRouter(t, &mockProcessor{}, exp, "")

	for _, q := range []string{"from=15-01-2024", "to=tomorrow", "from=2024-02-01&to=2024-01-01"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/parameters/HGB/history?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Equal(t, common.CategoryInvalidRequest, decodeError(t, w).Category)
	}
	exp.AssertNotCalled(t, "History", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResultsExport(t *testing.T) {
	exp := &mockExport{}
	exp.On("ResultsXLSX", mock.Anything, "URE", mock.Anything, (*time.Time)(nil)).
		Return([]byte("PK"), nil).Once()

	r := newRouter(t, &mockProcessor{}, exp, "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/results/export?test_type=ure&from=2024-01-01", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "ure-results.xlsx")
	exp.AssertExpectations(t)
}

func TestHandlerWithTestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	proc := &mockProcessor{}
	proc.On("Process", mock.Anything, mock.Anything).Return(entity.ExtractionOutcome{
		Err: common.NewExtractionError(common.ErrCorruptDocument, "not a valid pdf", nil),
	})
	h := NewDocumentHandler(proc, common.ServerConfig{}, nil)

	w := httptest.NewRecorder()
	c, r := gin.CreateTestContext(w)
	r.POST("/process-document", h.ProcessDocument)

	req := multipartRequest(t, "file", "broken.pdf", []byte("garbage"))
	c.Request = req
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	e := decodeError(t, w)
	assert.Equal(t, "CORRUPT_DOCUMENT", e.Code)
	assert.Equal(t, "not a valid pdf", e.Message)
}
