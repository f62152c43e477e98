package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAnalyzer struct {
	inner Analyzer
	calls int
}

func (c *countingAnalyzer) Analyze(symptoms []string) (Result, error) {
	c.calls++
	return c.inner.Analyze(symptoms)
}

func TestCachedClassifier(t *testing.T) {
	counting := &countingAnalyzer{inner: NewClassifier(DefaultKnowledgeBase())}
	cached, err := NewCachedClassifier(counting, 8)
	require.NoError(t, err)

	first, err := cached.Analyze([]string{"Chest Pain"})
	require.NoError(t, err)
	second, err := cached.Analyze([]string{"  chest pain "})
	require.NoError(t, err)

	assert.Equal(t, 1, counting.calls)
	assert.Equal(t, 1, cached.Len())
	assert.Equal(t, first.Recommendations, second.Recommendations)
	assert.Equal(t, []string{"  chest pain "}, second.Symptoms)

	second.Recommendations[0].Specialization = "tampered"
	third, err := cached.Analyze([]string{"chest pain"})
	require.NoError(t, err)
	assert.Equal(t, "cardiology", third.Top())
}

func TestCachedClassifier_NoSymptomsNotCached(t *testing.T) {
	counting := &countingAnalyzer{inner: NewClassifier(DefaultKnowledgeBase())}
	cached, err := NewCachedClassifier(counting, 8)
	require.NoError(t, err)

	_, err = cached.Analyze([]string{" "})
	assert.ErrorIs(t, err, ErrNoSymptoms)
	assert.Equal(t, 0, counting.calls)
	assert.Equal(t, 0, cached.Len())
}

func TestNewCachedClassifier_RejectsZeroSize(t *testing.T) {
	_, err := NewCachedClassifier(NewClassifier(DefaultKnowledgeBase()), 0)
	assert.Error(t, err)
}
