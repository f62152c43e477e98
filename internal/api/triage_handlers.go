package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/triage-scheduling/internal/triage"
)

func analyzeSymptomsHandler(analyzer triage.Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TriageRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		result, err := analyzer.Analyze(req.Symptoms)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, TriageResponse{
			Result:    result,
			Emergency: triage.IsEmergency(result),
			Advice:    triage.Advise(result, req.Age),
		})
	}
}

func symptomSuggestionsHandler(kb *triage.KnowledgeBase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		var symptoms []string
		if q == "" {
			symptoms = kb.AllSymptoms()
		} else {
			symptoms = kb.Suggestions(q, 10)
		}
		if symptoms == nil {
			symptoms = []string{}
		}
		writeJSON(w, http.StatusOK, SymptomsResponse{Symptoms: symptoms})
	}
}

func specializationSymptomsHandler(kb *triage.KnowledgeBase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if _, ok := kb.Lookup(name); !ok {
			writeError(w, http.StatusNotFound, "specialization_not_found", "unknown specialization")
			return
		}
		writeJSON(w, http.StatusOK, SymptomsResponse{
			Specialization: name,
			Symptoms:       kb.SymptomsFor(name),
		})
	}
}
