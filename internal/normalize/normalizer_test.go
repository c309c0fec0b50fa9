package normalize

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/catalog"
	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
)

var fixedNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func newNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	cat, err := catalog.Default(nil)
	require.NoError(t, err)
	return New(cat, nil, WithClock(func() time.Time { return fixedNow }))
}

func boolPtr(b bool) *bool { return &b }

func TestNormalizeHemoglobinWithinRange(t *testing.T) {
	n := newNormalizer(t)
	res, err := n.Normalize(map[string]entity.RawParamCandidate{
		"HGB": {Code: "HGB", RawValue: "14.2", Unit: "g/dL", ReferenceRange: entity.FlatRange(12, 16)},
	}, "CBC", entity.ReportHeader{})
	require.NoError(t, err)

	require.Len(t, res.Values, 1)
	v := res.Values[0]
	assert.Equal(t, "HGB", v.ParameterCode)
	require.NotNil(t, v.Numeric)
	assert.Equal(t, 14.2, *v.Numeric)
	assert.Equal(t, "g/dL", v.Unit)
	assert.Equal(t, entity.FlatRange(12, 16), v.ReferenceRange)
	assert.False(t, v.IsAbnormal)
	assert.False(t, v.Synthesized)
	assert.Equal(t, "Complete Blood Count", res.TestTypeName)
}

func TestNormalizeLowHemoglobinIsAbnormal(t *testing.T) {
	n := newNormalizer(t)
	res, err := n.Normalize(map[string]entity.RawParamCandidate{
		"HGB": {Code: "HGB", RawValue: "9.0", ReferenceRange: entity.FlatRange(12, 16)},
	}, "CBC", entity.ReportHeader{})
	require.NoError(t, err)
	assert.True(t, res.Values[0].IsAbnormal)
	assert.Equal(t, "g/dL", res.Values[0].Unit)
}

func TestFlatAbnormalityLaw(t *testing.T) {
	n := newNormalizer(t)
	rng := entity.FlatRange(3.5, 5.1)
	for _, v := range []float64{0, 3.4, 3.5, 4.2, 5.1, 5.2, 100} {
		res, err := n.Normalize(map[string]entity.RawParamCandidate{
			"K": {Code: "K", RawValue: strconv.FormatFloat(v, 'f', -1, 64), ReferenceRange: rng},
		}, "URE", entity.ReportHeader{})
		require.NoError(t, err)
		assert.Equal(t, v < 3.5 || v > 5.1, res.Values[0].IsAbnormal, "value %v", v)
	}
}

func TestKeyedRangeAnyViolation(t *testing.T) {
	n := newNormalizer(t)
	// catalog HGB: male 13.5-17.5, female 12-15.5
	res, err := n.Normalize(map[string]entity.RawParamCandidate{
		"hb": {Name: "hb", RawValue: "13.0"},
	}, "CBC", entity.ReportHeader{})
	require.NoError(t, err)
	assert.Equal(t, entity.RangeKeyed, res.Values[0].ReferenceRange.Kind)
	assert.True(t, res.Values[0].IsAbnormal)

	res, err = n.Normalize(map[string]entity.RawParamCandidate{
		"hb": {Name: "hb", RawValue: "14.0"},
	}, "CBC", entity.ReportHeader{})
	require.NoError(t, err)
	assert.False(t, res.Values[0].IsAbnormal)
}

func TestDescriptiveRangeNeverAbnormal(t *testing.T) {
	n := newNormalizer(t)
	res, err := n.Normalize(map[string]entity.RawParamCandidate{
		"X": {Name: "Vitamin Q", RawValue: "9999", ReferenceRange: entity.DescriptiveRange("see comment")},
	}, "CBC", entity.ReportHeader{})
	require.NoError(t, err)
	assert.False(t, res.Values[0].IsAbnormal)
}

func TestExplicitAbnormalFlagWins(t *testing.T) {
	n := newNormalizer(t)
	res, err := n.Normalize(map[string]entity.RawParamCandidate{
		"Hemoglobin": {Name: "Hemoglobin", RawValue: "14", ReferenceRange: entity.FlatRange(12, 16), IsAbnormal: boolPtr(true)},
	}, "CBC", entity.ReportHeader{})
	require.NoError(t, err)
	assert.True(t, res.Values[0].IsAbnormal)
}

func TestNumericCoercionFailureKeepsText(t *testing.T) {
	n := newNormalizer(t)
	res, err := n.Normalize(map[string]entity.RawParamCandidate{
		"WBC": {Code: "WBC", RawValue: "clumped"},
	}, "CBC", entity.ReportHeader{})
	require.NoError(t, err)
	v := res.Values[0]
	assert.Nil(t, v.Numeric)
	require.NotNil(t, v.Text)
	assert.Equal(t, "clumped", *v.Text)
	assert.False(t, v.IsAbnormal)
}

func TestUnknownParameterIsSynthesized(t *testing.T) {
	n := newNormalizer(t)
	res, err := n.Normalize(map[string]entity.RawParamCandidate{
		"Vitamin D 25-OH": {Name: "Vitamin D 25-OH", RawValue: "32 ng/mL", Unit: "ng/mL"},
		"Urine Colour":    {Name: "Urine Colour", RawValue: "Amber"},
	}, "URE", entity.ReportHeader{})
	require.NoError(t, err)
	require.Len(t, res.Values, 2)

	assert.Equal(t, "URINE_COLOUR", res.Values[0].ParameterCode)
	assert.Equal(t, entity.DataText, res.Values[0].DataType)
	assert.Equal(t, "VITAMIN_D_25OH", res.Values[1].ParameterCode)
	assert.Equal(t, entity.DataNumeric, res.Values[1].DataType)
	assert.Equal(t, 32.0, *res.Values[1].Numeric)
	assert.True(t, res.Values[0].Synthesized)
	assert.True(t, res.Values[1].Synthesized)
}

func TestNormalizeOrdersByCatalogAndDedupes(t *testing.T) {
	n := newNormalizer(t)
	res, err := n.Normalize(map[string]entity.RawParamCandidate{
		"PLT":        {Code: "PLT", RawValue: "250"},
		"hemoglobin": {Name: "hemoglobin", RawValue: "15"},
		"HGB":        {Code: "HGB", RawValue: "14"},
		"ZZZ":        {Name: "ZZZ", RawValue: "1"},
	}, "CBC", entity.ReportHeader{})
	require.NoError(t, err)

	var codes []string
	for _, v := range res.Values {
		codes = append(codes, v.ParameterCode)
	}
	assert.Equal(t, []string{"HGB", "PLT", "ZZZ"}, codes)
	assert.Equal(t, "14", res.Values[0].RawValue)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n := newNormalizer(t)
	cands := map[string]entity.RawParamCandidate{
		"Hemoglobin": {Name: "Hemoglobin", RawValue: "11.1", Unit: "g/dL"},
		"WBC":        {Code: "WBC", RawValue: "7.2"},
		"Odd thing":  {Name: "Odd thing", RawValue: "present"},
	}
	a, err := n.Normalize(cands, "CBC", entity.ReportHeader{})
	require.NoError(t, err)
	b, err := n.Normalize(cands, "CBC", entity.ReportHeader{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeEmptyIsNoParameters(t *testing.T) {
	n := newNormalizer(t)
	_, err := n.Normalize(nil, "CBC", entity.ReportHeader{})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNoParametersExtracted)

	_, err = n.Normalize(map[string]entity.RawParamCandidate{"HGB": {Code: "HGB", RawValue: "  "}}, "CBC", entity.ReportHeader{})
	assert.ErrorIs(t, err, common.ErrNoParametersExtracted)

	_, err = n.NormalizePanels([]entity.Panel{{TestType: "CBC"}}, entity.ReportHeader{})
	assert.ErrorIs(t, err, common.ErrNoParametersExtracted)
}

func TestDateDefaulting(t *testing.T) {
	n := newNormalizer(t)
	cands := map[string]entity.RawParamCandidate{"HGB": {Code: "HGB", RawValue: "14"}}

	res, err := n.Normalize(cands, "CBC", entity.ReportHeader{})
	require.NoError(t, err)
	assert.True(t, res.DateDefaulted)
	assert.Equal(t, fixedNow, res.PerformedAt)

	d := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	res, err = n.Normalize(cands, "CBC", entity.ReportHeader{TestDate: &d, LabName: "Central"})
	require.NoError(t, err)
	assert.False(t, res.DateDefaulted)
	assert.Equal(t, d, res.PerformedAt)
	assert.Equal(t, "Central", res.Source.LabName)
}

func TestTestTypeCode(t *testing.T) {
	n := newNormalizer(t)
	assert.Equal(t, "CBC", n.TestTypeCode("cbc"))
	assert.Equal(t, "LFT", n.TestTypeCode("Liver Function Test"))
	assert.Equal(t, constants.UnknownTestTypeCode, n.TestTypeCode(""))
	assert.Equal(t, constants.UnknownTestTypeCode, n.TestTypeCode(constants.MultipleTests))
	assert.Equal(t, "VITAMIN_PANEL", n.TestTypeCode("Vitamin Panel"))
}

func TestNormalizePanelsMergesSameType(t *testing.T) {
	n := newNormalizer(t)
	results, err := n.NormalizePanels([]entity.Panel{
		{TestType: "cbc", Candidates: map[string]entity.RawParamCandidate{"HGB": {Code: "HGB", RawValue: "14"}}},
		{TestType: "URE", Candidates: map[string]entity.RawParamCandidate{}},
		{TestType: "CBC", Candidates: map[string]entity.RawParamCandidate{"PLT": {Code: "PLT", RawValue: "300"}}},
	}, entity.ReportHeader{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "CBC", results[0].TestTypeCode)
	assert.Len(t, results[0].Values, 2)
}
