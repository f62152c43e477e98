package triage

import (
	"math"
	"sort"
	"strings"

	"github.com/hackgods/triage-scheduling/internal/apperr"
)

const maxRecommendations = 3

// fallbackConfidence is reported for the default category when no rule fires.
const fallbackConfidence = 50

// ErrNoSymptoms is returned for an empty or all-blank symptom list.
var ErrNoSymptoms = apperr.New(apperr.ErrNoSymptoms, "no symptoms provided")

// Analyzer ranks specializations for a symptom report.
type Analyzer interface {
	Analyze(symptoms []string) (Result, error)
}

type Recommendation struct {
	Specialization string  `json:"specialization"`
	Score          float64 `json:"score"`
	// Confidence is this entry's own share of the total matched score, in
	// percent. It is not the top entry's share repeated.
	Confidence     int     `json:"confidence"`
}

type UrgencyHit struct {
	Phrase         string  `json:"keyword"`
	Urgency        Urgency `json:"urgency"`
	Specialization string  `json:"specialization"`
}

type Analysis struct {
	TotalSymptoms     int    `json:"total_symptoms"`
	MatchedCategories int    `json:"matched_categories"`
	TopRecommendation string `json:"top_recommendation,omitempty"`
}

// Result is the outcome of one triage request.
type Result struct {
	Symptoms        []string         `json:"symptoms"`
	Recommendations []Recommendation `json:"recommended_specializations"`
	Urgency         Urgency          `json:"urgency_level"`
	Confidence      int              `json:"confidence"`
	UrgencyHits     []UrgencyHit     `json:"urgency_details"`
	Analysis        Analysis         `json:"analysis"`
	Fallback        bool             `json:"fallback"`
}

// Top returns the highest ranked specialization.
func (r Result) Top() string {
	if len(r.Recommendations) == 0 {
		return ""
	}
	return r.Recommendations[0].Specialization
}

// Classifier scores symptom text against a KnowledgeBase.
type Classifier struct {
	kb *KnowledgeBase
}

func NewClassifier(kb *KnowledgeBase) *Classifier {
	return &Classifier{kb: kb}
}

func (c *Classifier) KnowledgeBase() *KnowledgeBase {
	return c.kb
}

type scored struct {
	name  string
	score float64
	order int
}

// Analyze implements Analyzer.
func (c *Classifier) Analyze(symptoms []string) (Result, error) {
	phrases := normalizeAll(symptoms)
	if len(phrases) == 0 {
		return Result{}, ErrNoSymptoms
	}
	text := strings.Join(phrases, " ")

	var (
		matched []scored
		hits    []UrgencyHit
		total   float64
	)

	for i, spec := range c.kb.specializations {
		var score float64
		for _, kw := range spec.keywords {
			if !strings.Contains(text, kw) {
				continue
			}
			score++
			if tier, ok := spec.severity[kw]; ok {
				hits = append(hits, UrgencyHit{Phrase: kw, Urgency: tier, Specialization: spec.name})
			}
		}
		for _, syn := range spec.synonyms {
			if strings.Contains(text, syn) {
				score += 0.5
			}
		}
		if score > 0 {
			matched = append(matched, scored{name: spec.name, score: score, order: i})
			total += score
		}
	}

	result := Result{
		Symptoms:    append([]string(nil), symptoms...),
		Urgency:     UrgencyLow,
		UrgencyHits: hits,
		Analysis:    Analysis{TotalSymptoms: len(phrases)},
	}
	if result.UrgencyHits == nil {
		result.UrgencyHits = []UrgencyHit{}
	}

	if len(matched) == 0 {
		result.Fallback = true
		result.Confidence = fallbackConfidence
		result.Recommendations = []Recommendation{{
			Specialization: c.kb.defaultName,
			Confidence:     fallbackConfidence,
		}}
		result.Analysis.TopRecommendation = c.kb.defaultName
		return result, nil
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			return matched[i].score > matched[j].score
		}
		return matched[i].order < matched[j].order
	})

	top := matched
	if len(top) > maxRecommendations {
		top = top[:maxRecommendations]
	}

	for _, m := range top {
		result.Recommendations = append(result.Recommendations, Recommendation{
			Specialization: m.name,
			Score:          m.score,
			Confidence:     percent(m.score, total),
		})
	}

	for _, h := range hits {
		if h.Urgency.Rank() > result.Urgency.Rank() {
			result.Urgency = h.Urgency
		}
	}

	result.Confidence = percent(top[0].score, total)
	result.Analysis.MatchedCategories = len(top)
	result.Analysis.TopRecommendation = top[0].name

	return result, nil
}

func percent(part, total float64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(part / total * 100))
}
