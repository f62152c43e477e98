package triage

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/triage-scheduling/internal/apperr"
)

func TestDefaultKnowledgeBase(t *testing.T) {
	kb := DefaultKnowledgeBase()

	assert.Equal(t, "general_medicine", kb.DefaultSpecialization())
	specs := kb.Specializations()
	require.Len(t, specs, 10)
	assert.Equal(t, "cardiology", specs[0].Name())
	assert.Equal(t, "ent", specs[9].Name())

	cardiology, ok := kb.Lookup("Cardiology")
	require.True(t, ok)
	tier, ok := cardiology.Severity("heart attack")
	assert.True(t, ok)
	assert.Equal(t, UrgencyEmergency, tier)
}

func TestKnowledgeBase_IsImmutable(t *testing.T) {
	kb := DefaultKnowledgeBase()
	spec, _ := kb.Lookup("dermatology")

	kws := spec.Keywords()
	kws[0] = "tampered"
	assert.NotEqual(t, "tampered", spec.Keywords()[0])

	specs := kb.Specializations()
	specs[0] = nil
	assert.NotNil(t, kb.Specializations()[0])
}

func TestParseKnowledgeBase_Validation(t *testing.T) {
	tests := map[string]string{
		"severity phrase not a keyword": `
default: general
specializations:
  - name: general
    keywords: [cough]
    severity:
      high fever: high
`,
		"unknown tier": `
default: general
specializations:
  - name: general
    keywords: [cough]
    severity:
      cough: apocalyptic
`,
		"duplicate specialization": `
default: general
specializations:
  - name: general
    keywords: [cough]
  - name: General
    keywords: [fever]
`,
		"default not declared": `
default: triage
specializations:
  - name: general
    keywords: [cough]
`,
		"no keywords": `
default: general
specializations:
  - name: general
`,
		"no specializations": `default: general`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseKnowledgeBase([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
		})
	}
}

func TestLoadKnowledgeBase_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	doc := `
default: general
specializations:
  - name: respiratory
    keywords: [Wheezing, cough]
    severity:
      wheezing: urgent
    synonyms: [lungs]
  - name: general
    keywords: [tired]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	kb, err := LoadKnowledgeBase(path)
	require.NoError(t, err)

	result, err := NewClassifier(kb).Analyze([]string{"wheezing from my lungs"})
	require.NoError(t, err)
	assert.Equal(t, "respiratory", result.Top())
	assert.Equal(t, 1.5, result.Recommendations[0].Score)
	assert.Equal(t, UrgencyUrgent, result.Urgency)
}

func TestLoadKnowledgeBase_MissingFile(t *testing.T) {
	_, err := LoadKnowledgeBase(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestAllSymptoms(t *testing.T) {
	all := DefaultKnowledgeBase().AllSymptoms()

	assert.True(t, sort.StringsAreSorted(all))
	seen := map[string]bool{}
	for _, s := range all {
		assert.False(t, seen[s], "duplicate %q", s)
		seen[s] = true
	}
	assert.True(t, seen["chest pain"])
	assert.True(t, seen["fever"])
}

func TestSuggestions(t *testing.T) {
	kb := DefaultKnowledgeBase()

	got := kb.Suggestions("PAIN", 0)
	require.Len(t, got, 10)
	for _, s := range got {
		assert.True(t, strings.Contains(s, "pain"))
	}

	assert.Equal(t, []string{"migraine"}, kb.Suggestions("migr", 5))
	assert.Empty(t, kb.Suggestions("zzz", 5))
}

func TestSymptomsFor(t *testing.T) {
	kb := DefaultKnowledgeBase()

	assert.Contains(t, kb.SymptomsFor("ENT"), "tinnitus")
	assert.Empty(t, kb.SymptomsFor("astrology"))
}
