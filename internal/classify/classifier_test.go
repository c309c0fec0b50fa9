package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/catalog"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
)

type staticTypes []entity.TestType

func (s staticTypes) TestTypes() []entity.TestType { return s }

func defaultClassifier(t *testing.T) *Classifier {
	t.Helper()
	cat, err := catalog.Default(nil)
	require.NoError(t, err)
	return NewClassifier(cat, DefaultThreshold, nil)
}

func TestClassifyPrimary(t *testing.T) {
	c := defaultClassifier(t)
	text := "COMPLETE BLOOD COUNT\nHemoglobin: 14.2 g/dL\nHematocrit 42 %\nSodium 140 mmol/L"

	got := c.Classify(text)
	assert.Equal(t, "CBC", got.Primary)
	require.Len(t, got.Candidates, 1)
	assert.Equal(t, "CBC", got.Candidates[0].Code)
	assert.Equal(t, "Complete Blood Count", got.Candidates[0].DisplayName)
	assert.GreaterOrEqual(t, got.Candidates[0].Score, 3)
}

func TestClassifyMultipleTests(t *testing.T) {
	c := defaultClassifier(t)
	text := "Hemoglobin 14\nHematocrit 40\nPlatelet count 250\nSodium 140\nPotassium 4.1\nCreatinine 80"

	got := c.Classify(text)
	assert.Equal(t, constants.MultipleTests, got.Primary)
	assert.Equal(t, []string{"CBC", "URE"}, got.Codes())
	assert.Equal(t, got.Candidates[0].Score, got.Candidates[1].Score)
}

func TestClassifyBelowThresholdIsUnknown(t *testing.T) {
	c := defaultClassifier(t)

	got := c.Classify("Hemoglobin 14.1, sodium 139")
	assert.Equal(t, constants.UnknownTest, got.Primary)
	assert.ElementsMatch(t, []string{"CBC", "URE"}, got.Codes())

	got = c.Classify("")
	assert.Equal(t, constants.UnknownTest, got.Primary)
	assert.Empty(t, got.Candidates)
}

func TestClassifyCountsDistinctKeywords(t *testing.T) {
	c := NewClassifier(staticTypes{
		{Code: "A", Name: "Panel A", Keywords: []string{"alpha", "beta", "gamma"}},
	}, 3, nil)

	got := c.Classify("alpha alpha alpha beta")
	assert.Equal(t, constants.UnknownTest, got.Primary)
	require.Len(t, got.Candidates, 1)
	assert.Equal(t, 2, got.Candidates[0].Score)

	assert.Equal(t, "A", c.Classify("ALPHA Beta gamma").Primary)
}

func TestShortKeywordsNeedWordBoundaries(t *testing.T) {
	c := NewClassifier(staticTypes{
		{Code: "T", Keywords: []string{"tsh", "ft4", "u&e"}},
	}, 1, nil)

	scores := c.Scores("TSH 2.1, FT4: 14 and U&E")
	require.Len(t, scores, 1)
	assert.Equal(t, 3, scores[0].Score)

	assert.Empty(t, c.Scores("outshine bft45 menu&entry"))
}

func TestStrictMaximumWins(t *testing.T) {
	c := NewClassifier(staticTypes{
		{Code: "A", Keywords: []string{"alpha", "beta", "gamma", "delta"}},
		{Code: "B", Keywords: []string{"alpha", "beta", "gamma"}},
	}, 3, nil)

	got := c.Classify("alpha beta gamma delta")
	assert.Equal(t, "A", got.Primary)
	assert.Equal(t, []string{"A"}, got.Codes())
}
