package triage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/triage-scheduling/internal/apperr"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	return NewClassifier(DefaultKnowledgeBase())
}

func specializations(r Result) []string {
	out := make([]string, 0, len(r.Recommendations))
	for _, rec := range r.Recommendations {
		out = append(out, rec.Specialization)
	}
	return out
}

func TestAnalyze_ChestPainRoutesToCardiology(t *testing.T) {
	c := newTestClassifier(t)

	result, err := c.Analyze([]string{"chest pain", "shortness of breath"})
	require.NoError(t, err)

	assert.Equal(t, "cardiology", result.Top())
	assert.Contains(t, []Urgency{UrgencyHigh, UrgencyUrgent}, result.Urgency)
	assert.Equal(t, UrgencyUrgent, result.Urgency)

	// cardiology 2, general_medicine 1 ("pain")
	assert.Equal(t, 2.0, result.Recommendations[0].Score)
	assert.Equal(t, 67, result.Recommendations[0].Confidence)
	assert.Equal(t, 67, result.Confidence)
	// each entry reports its own share
	assert.Equal(t, 33, result.Recommendations[1].Confidence)
	assert.False(t, result.Fallback)
	assert.Len(t, result.UrgencyHits, 2)
}

func TestAnalyze_NoSymptoms(t *testing.T) {
	c := newTestClassifier(t)

	for name, input := range map[string][]string{
		"nil":       nil,
		"empty":     {},
		"all blank": {"", "   ", "\t"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Analyze(input)
			assert.True(t, errors.Is(err, apperr.ErrNoSymptoms))
		})
	}
}

func TestAnalyze_FallbackToDefault(t *testing.T) {
	c := newTestClassifier(t)

	result, err := c.Analyze([]string{"xyzzy"})
	require.NoError(t, err)

	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, "general_medicine", result.Recommendations[0].Specialization)
	assert.Equal(t, 50, result.Recommendations[0].Confidence)
	assert.Equal(t, 50, result.Confidence)
	assert.Equal(t, UrgencyLow, result.Urgency)
	assert.True(t, result.Fallback)
	assert.Empty(t, result.UrgencyHits)
}

func TestAnalyze_TiesFollowDeclarationOrder(t *testing.T) {
	c := newTestClassifier(t)

	result, err := c.Analyze([]string{"Dizziness"})
	require.NoError(t, err)

	assert.Equal(t, []string{"cardiology", "neurology"}, specializations(result))
	assert.Equal(t, 50, result.Recommendations[0].Confidence)
	assert.Equal(t, 50, result.Recommendations[1].Confidence)
}

func TestAnalyze_KeepsTopThree(t *testing.T) {
	c := newTestClassifier(t)

	// cardiology 2, neurology 2, general_medicine 2, pediatrics 1
	result, err := c.Analyze([]string{"weakness and fever", "dizziness"})
	require.NoError(t, err)

	assert.Equal(t, []string{"cardiology", "neurology", "general_medicine"}, specializations(result))
	for _, rec := range result.Recommendations {
		assert.Equal(t, 29, rec.Confidence)
	}
	assert.Equal(t, 3, result.Analysis.MatchedCategories)
	assert.Equal(t, 2, result.Analysis.TotalSymptoms)
	assert.Equal(t, "cardiology", result.Analysis.TopRecommendation)
}

func TestAnalyze_UrgencyTiers(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		symptoms []string
		want     Urgency
	}{
		{[]string{"heart attack"}, UrgencyEmergency},
		{[]string{"high blood pressure"}, UrgencyMedium},
		{[]string{"memory loss", "stroke"}, UrgencyEmergency},
		{[]string{"acne"}, UrgencyLow},
		{[]string{"BROKEN BONE"}, UrgencyUrgent},
	}

	for _, tt := range tests {
		result, err := c.Analyze(tt.symptoms)
		require.NoError(t, err)
		assert.Equal(t, tt.want, result.Urgency, "symptoms %v", tt.symptoms)
	}
}

func TestAnalyze_SeverityPhraseCountsAsKeyword(t *testing.T) {
	c := newTestClassifier(t)

	result, err := c.Analyze([]string{"severe rash"})
	require.NoError(t, err)

	assert.Equal(t, "dermatology", result.Top())
	assert.Equal(t, 2.0, result.Recommendations[0].Score)
	assert.Equal(t, UrgencyHigh, result.Urgency)

	result, err = c.Analyze([]string{"skin infection"})
	require.NoError(t, err)
	assert.Equal(t, "dermatology", result.Top())
	assert.Equal(t, UrgencyHigh, result.Urgency)
}

func TestAnalyze_SynonymsWeighHalf(t *testing.T) {
	c := newTestClassifier(t)

	result, err := c.Analyze([]string{"my skin"})
	require.NoError(t, err)

	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, "dermatology", result.Top())
	assert.Equal(t, 0.5, result.Recommendations[0].Score)
	assert.Equal(t, 100, result.Confidence)
}

func TestAnalyze_EveryKeywordRecommendsItsSpecialization(t *testing.T) {
	kb := DefaultKnowledgeBase()
	c := NewClassifier(kb)

	for _, spec := range kb.Specializations() {
		for _, kw := range spec.Keywords() {
			result, err := c.Analyze([]string{kw})
			require.NoError(t, err)

			var found bool
			for _, rec := range result.Recommendations {
				if rec.Specialization == spec.Name() {
					found = true
					assert.GreaterOrEqual(t, rec.Score, 1.0, "%s/%s", spec.Name(), kw)
				}
			}
			assert.True(t, found, "keyword %q should recommend %s, got %v", kw, spec.Name(), specializations(result))
		}
	}
}

func TestAnalyze_DoesNotShareInput(t *testing.T) {
	c := newTestClassifier(t)
	input := []string{"rash"}

	result, err := c.Analyze(input)
	require.NoError(t, err)

	input[0] = "changed"
	assert.Equal(t, []string{"rash"}, result.Symptoms)
}
