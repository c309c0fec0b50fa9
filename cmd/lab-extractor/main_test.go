package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
)

func TestSourceFromArg(t *testing.T) {
	src, err := sourceFromArg("https://res.cloudinary.com/demo/raw/upload/v1/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.com/demo/raw/upload/v1/report.pdf", src.URL)
	assert.Empty(t, src.Path)

	src, err = sourceFromArg("reports/cbc.pdf")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(src.Path))
	assert.Equal(t, "cbc.pdf", filepath.Base(src.Path))

	_, err = sourceFromArg("  ")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	err := printOutcome(&buf, entity.ExtractionOutcome{
		TestType: "URE",
		Results: []entity.TestResult{{
			TestTypeCode: "URE",
			PerformedAt:  time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
			Values: []entity.ParameterValue{{
				ParameterCode: "URINE_COLOUR",
				RawValue:      "Yellow",
				DataType:      entity.DataText,
				Text:          ptr("Yellow"),
			}},
		}},
	})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &body))
	assert.Equal(t, "2024-05-02", body["test_date"])
	assert.Equal(t, "URE", body["test_type"])
	assert.Contains(t, body, "ure")
}

func TestPrintOutcomeFailure(t *testing.T) {
	var buf bytes.Buffer
	failure := common.NewExtractionError(common.ErrNoParametersExtracted, "no valid test results found", nil)
	err := printOutcome(&buf, entity.Failure(failure))
	assert.ErrorIs(t, err, common.ErrNoParametersExtracted)
	assert.Contains(t, buf.String(), common.CategoryNoTestData)
	assert.Contains(t, buf.String(), "NO_PARAMETERS_EXTRACTED")
}

func TestParseWindow(t *testing.T) {
	from, to, err := parseWindow("2024-01-01", "")
	require.NoError(t, err)
	require.NotNil(t, from)
	assert.Nil(t, to)

	_, _, err = parseWindow("01/01/2024", "")
	assert.Error(t, err)
}

func ptr[T any](v T) *T { return &v }
