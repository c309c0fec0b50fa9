package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/lab-extractor/internal/catalog"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/export"
	"github.com/joseph-ayodele/lab-extractor/internal/repository"
)

// sqliteRouter serves the export routes from an in-memory store holding two CBC
// results, one of them with a low hemoglobin.
func sqliteRouter(t *testing.T) *gin.Engine {
	t.Helper()
	ctx := context.Background()
	db, err := repository.OpenSQLite("file::memory:?_pragma=foreign_keys(1)", nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	cat, err := catalog.Default(nil)
	require.NoError(t, err)
	require.NoError(t, db.Seed(ctx, cat))

	results := repository.NewTestResultRepository(db, nil)
	for _, s := range []struct {
		at  time.Time
		hgb float64
	}{
		{time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), 13.1},
		{time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), 11.2},
	} {
		_, err := results.Save(ctx, entity.TestResult{
			TestTypeCode: "CBC",
			PerformedAt:  s.at,
			Values: []entity.ParameterValue{{
				ParameterCode:  "HGB",
				Name:           "Hemoglobin",
				Unit:           "g/dL",
				RawValue:       "x",
				DataType:       entity.DataNumeric,
				Numeric:        f64(s.hgb),
				IsAbnormal:     s.hgb < 12,
				ReferenceRange: entity.FlatRange(12, 16),
			}},
			Source: entity.SourceMetadata{LabName: "City Lab"},
		}, nil)
		require.NoError(t, err)
	}

	gin.SetMode(gin.TestMode)
	h := Handlers{Export: NewExportHandler(results, export.NewService(results, nil), nil)}
	return NewRouter("", h, nil)
}

func TestParameterHistoryFromStore(t *testing.T) {
	r := sqliteRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/parameters/hgb/history", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp historyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Points, 2)
	assert.Equal(t, "2024-01-10", resp.Points[0].PerformedAt.Format(time.DateOnly))
	assert.True(t, resp.Points[0].IsAbnormal)
	assert.False(t, resp.Points[1].IsAbnormal)
	assert.Equal(t, "City Lab", resp.Points[1].LabName)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/parameters/HGB/history?from=2024-03-01&to=2024-12-31", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Points, 1)
}

func TestExportsFromStore(t *testing.T) {
	r := sqliteRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/parameters/HGB/history?format=xlsx", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	history, err := f.GetRows("HGB")
	require.NoError(t, err)
	assert.Len(t, history, 3)
	require.NoError(t, f.Close())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/results/export?test_type=cbc", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f, err = excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	rows, err := f.GetRows("Results")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "HGB", rows[1][2])
	assert.Equal(t, "Hemoglobin", rows[1][3])
	require.NoError(t, f.Close())
}
