package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/triage-scheduling/internal/apperr"
	"github.com/hackgods/triage-scheduling/internal/appointment"
)

// writeDomainError maps an error kind to its HTTP status. Unclassified errors
// are logged and reported as 500 without details.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Details: verr.Message,
			Field:   verr.Field,
		})
		return
	}

	switch {
	case errors.Is(err, apperr.ErrNoSymptoms):
		writeError(w, http.StatusBadRequest, "no_symptoms", err.Error())
	case errors.Is(err, apperr.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, apperr.ErrAuthorization):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, apperr.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, apperr.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, apperr.ErrState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, apperr.ErrNoAvailableDoctor):
		writeError(w, http.StatusNotFound, "no_available_doctor", err.Error())
	case apperr.IsTimeout(err):
		writeError(w, http.StatusGatewayTimeout, "timeout", "upstream did not answer in time")
	case errors.Is(err, apperr.ErrUpstreamUnavailable):
		log.Warn().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("upstream unavailable")
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable", "a dependency is unavailable, please retry")
	default:
		log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
