package triage

import "fmt"

// geriatricAge is the age above which advice mentions a geriatric review.
const geriatricAge = 65

// Advice is a patient-facing summary of a triage result.
type Advice struct {
	Recommendation  string          `json:"recommendation"`
	ActionPlan      []string        `json:"action_plan"`
	Urgency         Urgency         `json:"urgency_level"`
	BestMatch       *Recommendation `json:"best_match,omitempty"`
	AdditionalNotes string          `json:"additional_notes,omitempty"`
}

// IsEmergency reports whether the result needs immediate attention.
func IsEmergency(r Result) bool {
	return r.Urgency == UrgencyEmergency || r.Urgency == UrgencyUrgent
}

// Advise builds the recommendation text for a result. age <= 0 means unknown.
func Advise(r Result, age int) Advice {
	a := Advice{Urgency: r.Urgency}
	if len(r.Recommendations) > 0 && !r.Fallback {
		best := r.Recommendations[0]
		a.BestMatch = &best
	}

	switch {
	case r.Urgency == UrgencyEmergency:
		a.Recommendation = "URGENT: Seek immediate medical attention at the nearest emergency room or call emergency services."
		a.ActionPlan = []string{
			"Call emergency services immediately",
			"Do not delay seeking medical care",
			"If possible, have someone accompany you",
			"Bring insurance card and identification",
		}
	case r.Urgency == UrgencyUrgent:
		a.Recommendation = "Urgent care recommended. Please seek medical attention within 24 hours."
		a.ActionPlan = []string{
			"Contact a healthcare provider today",
			"Consider visiting urgent care if your primary care provider is unavailable",
			"Monitor symptoms closely",
			"Rest and stay hydrated",
		}
	case r.Urgency == UrgencyHigh:
		a.Recommendation = "Schedule an appointment with a healthcare provider as soon as possible (within 48 hours)."
		a.ActionPlan = []string{
			"Contact your healthcare provider within 48 hours",
			"Monitor symptoms for any worsening",
			"Keep track of your symptoms",
			"Get adequate rest",
		}
	case a.BestMatch != nil:
		a.Recommendation = fmt.Sprintf("Based on your symptoms, we recommend consulting a %s specialist.", a.BestMatch.Specialization)
		a.ActionPlan = []string{
			"Schedule an appointment with recommended specialist",
			"Prepare a list of your symptoms and duration",
			"Note down any medications you are currently taking",
			"Keep a symptom diary",
		}
	default:
		a.Recommendation = "Based on your symptoms, we recommend consulting a general medicine practitioner."
		a.ActionPlan = []string{
			"Schedule a general consultation",
			"Maintain a healthy lifestyle",
			"Monitor your symptoms",
			"Follow up if symptoms persist",
		}
	}

	if age > geriatricAge {
		a.AdditionalNotes = "Consider discussing with a geriatric specialist due to age factor."
	}
	return a
}
