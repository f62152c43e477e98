package triage

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedClassifier memoizes analyses keyed by the normalized symptom list.
type CachedClassifier struct {
	inner Analyzer
	cache *lru.Cache[string, Result]
}

func NewCachedClassifier(inner Analyzer, size int) (*CachedClassifier, error) {
	cache, err := lru.New[string, Result](size)
	if err != nil {
		return nil, fmt.Errorf("create triage cache: %w", err)
	}
	return &CachedClassifier{inner: inner, cache: cache}, nil
}

func (c *CachedClassifier) Analyze(symptoms []string) (Result, error) {
	key := strings.Join(normalizeAll(symptoms), "\x00")
	if key == "" {
		return Result{}, ErrNoSymptoms
	}

	if cached, ok := c.cache.Get(key); ok {
		out := cached.clone()
		out.Symptoms = append([]string(nil), symptoms...)
		return out, nil
	}

	result, err := c.inner.Analyze(symptoms)
	if err != nil {
		return Result{}, err
	}
	c.cache.Add(key, result.clone())
	return result, nil
}

func (r Result) clone() Result {
	r.Symptoms = append([]string(nil), r.Symptoms...)
	r.Recommendations = append([]Recommendation(nil), r.Recommendations...)
	r.UrgencyHits = append([]UrgencyHit{}, r.UrgencyHits...)
	return r
}

// Len reports the number of cached analyses.
func (c *CachedClassifier) Len() int {
	return c.cache.Len()
}
