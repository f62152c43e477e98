package triage

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hackgods/triage-scheduling/internal/apperr"
)

//go:embed rules.yaml
var defaultRules []byte

// Urgency is an ordered severity tier.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

// Rank orders tiers; unknown values rank below low.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyLow:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyHigh:
		return 3
	case UrgencyUrgent:
		return 4
	case UrgencyEmergency:
		return 5
	}
	return 0
}

// ParseUrgency accepts the tiers a knowledge base may assign to a keyword.
func ParseUrgency(raw string) (Urgency, error) {
	u := Urgency(strings.ToLower(strings.TrimSpace(raw)))
	switch u {
	case UrgencyMedium, UrgencyHigh, UrgencyUrgent, UrgencyEmergency:
		return u, nil
	}
	return "", fmt.Errorf("unknown severity tier %q", raw)
}

// Specialization is one read-only entry of the knowledge base.
type Specialization struct {
	name     string
	keywords []string
	severity map[string]Urgency
	synonyms []string
}

func (s *Specialization) Name() string { return s.name }

// Keywords returns a copy of the keyword phrases in declaration order.
func (s *Specialization) Keywords() []string {
	return append([]string(nil), s.keywords...)
}

// Synonyms returns a copy of the synonym phrases.
func (s *Specialization) Synonyms() []string {
	return append([]string(nil), s.synonyms...)
}

// Severity returns the tier bound to a keyword, if any.
func (s *Specialization) Severity(keyword string) (Urgency, bool) {
	u, ok := s.severity[keyword]
	return u, ok
}

// KnowledgeBase is the immutable rule table used by the classifier.
type KnowledgeBase struct {
	defaultName     string
	specializations []*Specialization
	byName          map[string]*Specialization
}

type rawKnowledgeBase struct {
	Default         string              `yaml:"default"`
	Specializations []rawSpecialization `yaml:"specializations"`
}

type rawSpecialization struct {
	Name     string            `yaml:"name"`
	Keywords []string          `yaml:"keywords"`
	Severity map[string]string `yaml:"severity"`
	Synonyms []string          `yaml:"synonyms"`
}

// ParseKnowledgeBase decodes and validates a YAML rule table.
func ParseKnowledgeBase(data []byte) (*KnowledgeBase, error) {
	var raw rawKnowledgeBase
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode knowledge base: %w", err)
	}

	if len(raw.Specializations) == 0 {
		return nil, apperr.Validation("specializations", "at least one specialization is required", nil)
	}

	kb := &KnowledgeBase{
		defaultName: normalizePhrase(raw.Default),
		byName:      make(map[string]*Specialization, len(raw.Specializations)),
	}
	if kb.defaultName == "" {
		return nil, apperr.Validation("default", "default specialization is required", nil)
	}

	for i, rs := range raw.Specializations {
		name := normalizePhrase(rs.Name)
		if name == "" {
			return nil, apperr.Validation(fmt.Sprintf("specializations[%d].name", i), "name is required", nil)
		}
		if _, dup := kb.byName[name]; dup {
			return nil, apperr.Validation(fmt.Sprintf("specializations[%d].name", i), "duplicate specialization", name)
		}

		spec := &Specialization{
			name:     name,
			keywords: normalizeAll(rs.Keywords),
			synonyms: normalizeAll(rs.Synonyms),
			severity: make(map[string]Urgency, len(rs.Severity)),
		}
		if len(spec.keywords) == 0 {
			return nil, apperr.Validation(name+".keywords", "at least one keyword is required", nil)
		}

		for phrase, tier := range rs.Severity {
			key := normalizePhrase(phrase)
			if !contains(spec.keywords, key) {
				return nil, apperr.Validation(name+".severity", "severity phrase is not a keyword", phrase)
			}
			u, err := ParseUrgency(tier)
			if err != nil {
				return nil, apperr.Validation(name+".severity", err.Error(), tier)
			}
			spec.severity[key] = u
		}

		kb.specializations = append(kb.specializations, spec)
		kb.byName[name] = spec
	}

	if _, ok := kb.byName[kb.defaultName]; !ok {
		return nil, apperr.Validation("default", "default specialization is not declared", kb.defaultName)
	}

	return kb, nil
}

// LoadKnowledgeBase reads a rule table from disk.
func LoadKnowledgeBase(path string) (*KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base %s: %w", path, err)
	}
	return ParseKnowledgeBase(data)
}

// DefaultKnowledgeBase returns the rule table compiled into the binary.
func DefaultKnowledgeBase() *KnowledgeBase {
	kb, err := ParseKnowledgeBase(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded triage rules are invalid: %v", err))
	}
	return kb
}

// DefaultSpecialization is the general category used when nothing matches.
func (kb *KnowledgeBase) DefaultSpecialization() string {
	return kb.defaultName
}

// Specializations returns the entries in declaration order.
func (kb *KnowledgeBase) Specializations() []*Specialization {
	return append([]*Specialization(nil), kb.specializations...)
}

// Lookup finds a specialization by name, case-insensitively.
func (kb *KnowledgeBase) Lookup(name string) (*Specialization, bool) {
	s, ok := kb.byName[normalizePhrase(name)]
	return s, ok
}

// SymptomsFor lists the keyword phrases of a specialization.
func (kb *KnowledgeBase) SymptomsFor(name string) []string {
	s, ok := kb.Lookup(name)
	if !ok {
		return []string{}
	}
	return s.Keywords()
}

// AllSymptoms returns every keyword phrase once, sorted.
func (kb *KnowledgeBase) AllSymptoms() []string {
	seen := make(map[string]struct{})
	var all []string
	for _, s := range kb.specializations {
		for _, k := range s.keywords {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			all = append(all, k)
		}
	}
	sort.Strings(all)
	return all
}

// Suggestions returns up to limit keyword phrases containing query.
func (kb *KnowledgeBase) Suggestions(query string, limit int) []string {
	q := normalizePhrase(query)
	if limit <= 0 {
		limit = 10
	}

	out := []string{}
	for _, symptom := range kb.AllSymptoms() {
		if strings.Contains(symptom, q) {
			out = append(out, symptom)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

func normalizePhrase(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := normalizePhrase(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
