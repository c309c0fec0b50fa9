package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
)

func codesOf(res entity.TestResult) []string {
	out := make([]string, 0, len(res.Values))
	for _, v := range res.Values {
		out = append(out, v.ParameterCode)
	}
	return out
}

func TestDecodeShapes(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantTypes []string
		wantCodes [][]string
	}{
		{
			name: "nested tests",
			payload: `{"test_date":"05/03/2024","lab_name":"Central","test_type":"Multiple Tests","tests":[
				{"test_type":"CBC","parameters":{"Hemoglobin":{"value":"14.2","unit":"g/dL","normal_range":"12-16"},"WBC":{"value":"7.1"}}},
				{"test_type":"URE","parameters":{"Sodium":{"value":"140","unit":"mmol/L"}}}]}`,
			wantTypes: []string{"CBC", "URE"},
			wantCodes: [][]string{{"HGB", "WBC"}, {"NA"}},
		},
		{
			name:      "nested tests with parameter list",
			payload:   `{"tests":[{"test_type":"LFT","parameters":[{"name":"Albumin","value":40},{"name":"ALT","value":"22"}]}]}`,
			wantTypes: []string{"LFT"},
			wantCodes: [][]string{{"ALB", "ALT"}},
		},
		{
			name:      "legacy keys",
			payload:   `{"cbc":{"hb":"13.1","plt":"250"},"ure":{"potassium":"4.1"}}`,
			wantTypes: []string{"CBC", "URE"},
			wantCodes: [][]string{{"HGB", "PLT"}, {"K"}},
		},
		{
			name:      "values with reference ranges",
			payload:   `{"test_type":"URE","values":{"NA":"150","K":"4.0"},"reference_ranges":{"NA":"135-145"}}`,
			wantTypes: []string{"URE"},
			wantCodes: [][]string{{"NA", "K"}},
		},
		{
			name:      "single panel parameters",
			payload:   `{"test_type":"CBC","parameters":{"Platelets":{"value":310}}}`,
			wantTypes: []string{"CBC"},
			wantCodes: [][]string{{"PLT"}},
		},
		{
			name:      "top-level list",
			payload:   `[{"code":"HGB","value":"12.5","unit":"g/dL"},{"name":"Hematocrit","value":"38"}]`,
			wantTypes: []string{"CBC"},
			wantCodes: [][]string{{"HGB", "HCT"}},
		},
		{
			name:      "flat dict",
			payload:   `{"test_date":"2024-03-05","HGB":14,"WBC":"6.3","RBC":null}`,
			wantTypes: []string{"CBC"},
			wantCodes: [][]string{{"HGB", "WBC"}},
		},
	}

	n := newNormalizer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Decode([]byte(tt.payload), "CBC")
			require.NoError(t, err)

			results, err := n.NormalizePanels(d.Panels, entity.ReportHeader{})
			require.NoError(t, err)
			require.Len(t, results, len(tt.wantTypes))
			for i, res := range results {
				assert.Equal(t, tt.wantTypes[i], res.TestTypeCode)
				assert.Equal(t, tt.wantCodes[i], codesOf(res))
			}
		})
	}
}

func TestDecodeReferenceRangesApply(t *testing.T) {
	n := newNormalizer(t)
	d, err := Decode([]byte(`{"test_type":"URE","values":{"NA":"150"},"reference_ranges":{"NA":"135-145"}}`), "")
	require.NoError(t, err)
	results, err := n.NormalizePanels(d.Panels, entity.ReportHeader{})
	require.NoError(t, err)
	v := results[0].Values[0]
	assert.Equal(t, entity.FlatRange(135, 145), v.ReferenceRange)
	assert.True(t, v.IsAbnormal)
}

func TestDecodeAbnormalFlagString(t *testing.T) {
	d, err := Decode([]byte(`{"parameters":{"HGB":{"value":"14","is_abnormal":"true"}}}`), "CBC")
	require.NoError(t, err)
	c := d.Panels[0].Candidates["HGB"]
	require.NotNil(t, c.IsAbnormal)
	assert.True(t, *c.IsAbnormal)
}

func TestDecodeRejectsInvalidPayloads(t *testing.T) {
	_, err := Decode([]byte(`{not json`), "CBC")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = Decode([]byte(`"just a string"`), "CBC")
	require.Error(t, err)
	assert.Equal(t, "INVALID_SHAPE", common.ErrorCode(err))
}

func TestResponseRoundTrip(t *testing.T) {
	n := newNormalizer(t)
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	header := entity.ReportHeader{TestDate: &date, LabName: "Central"}

	results, err := n.NormalizePanels([]entity.Panel{
		{TestType: "CBC", Candidates: map[string]entity.RawParamCandidate{
			"Hemoglobin": {Name: "Hemoglobin", RawValue: "9.0", Unit: "g/dL", ReferenceRange: entity.FlatRange(12, 16)},
			"hb":         {Name: "hb", RawValue: "should lose to Hemoglobin"},
			"WBC":        {Code: "WBC", RawValue: "7.2"},
		}},
		{TestType: "URE", Candidates: map[string]entity.RawParamCandidate{
			"Urine Colour": {Name: "Urine Colour", RawValue: "Amber"},
			"K":            {Code: "K", RawValue: "4.4"},
		}},
	}, header)
	require.NoError(t, err)

	resp := BuildResponse(results, "")
	assert.Equal(t, constants.MultipleTests, resp.TestType)
	assert.Equal(t, "2024-03-05", resp.TestDate)
	assert.NotNil(t, resp.CBC)
	assert.NotNil(t, resp.URE)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	d, err := Decode(raw, "")
	require.NoError(t, err)
	var back Response
	require.NoError(t, json.Unmarshal(raw, &back))
	again, err := n.NormalizePanels(d.Panels, back.Header())
	require.NoError(t, err)

	require.Len(t, again, len(results))
	for i := range results {
		assert.Equal(t, results[i].TestTypeCode, again[i].TestTypeCode)
		assert.Equal(t, results[i].PerformedAt, again[i].PerformedAt)
		assert.Equal(t, results[i].Source.LabName, again[i].Source.LabName)
		require.Len(t, again[i].Values, len(results[i].Values))
		for j, want := range results[i].Values {
			got := again[i].Values[j]
			assert.Equal(t, want.ParameterCode, got.ParameterCode)
			assert.Equal(t, want.Value(), got.Value())
			assert.Equal(t, want.Unit, got.Unit)
			assert.Equal(t, want.IsAbnormal, got.IsAbnormal)
			assert.Equal(t, want.ReferenceRange.String(), got.ReferenceRange.String())
		}
	}
}

func TestBuildResponseDefaults(t *testing.T) {
	r := BuildResponse(nil, "")
	assert.Equal(t, constants.UnknownTest, r.TestType)
	assert.Equal(t, constants.UnknownLab, r.LabName)
	assert.Empty(t, r.Tests)

	n := newNormalizer(t)
	res, err := n.Normalize(map[string]entity.RawParamCandidate{"HGB": {Code: "HGB", RawValue: "14"}}, "CBC", entity.ReportHeader{})
	require.NoError(t, err)
	r = BuildResponse([]entity.TestResult{res}, "")
	assert.Equal(t, "CBC", r.TestType)
	assert.True(t, r.DateDefaulted)
	assert.Nil(t, r.Header().TestDate)
	assert.Nil(t, r.URE)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-03-05", "05/03/2024", "5/3/2024", "05-03-2024"} {
		got, ok := ParseDate(s)
		assert.True(t, ok, s)
		assert.Equal(t, want, got, s)
	}
	_, ok := ParseDate("March fifth")
	assert.False(t, ok)
}
