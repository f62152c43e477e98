package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/triage-scheduling/internal/apperr"
	"github.com/hackgods/triage-scheduling/internal/appointment"
	"github.com/hackgods/triage-scheduling/internal/identity"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

// bookingPatient resolves whose appointment is being booked. Patients book
// for themselves; admins name the patient.
func bookingPatient(p identity.Principal, raw string) (uuid.UUID, error) {
	switch p.Kind {
	case identity.KindPatient:
		return p.ID, nil
	case identity.KindAdmin:
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, apperr.Validation("patient_id", "patient_id must be a valid UUID", raw)
		}
		return id, nil
	default:
		return uuid.Nil, apperr.New(apperr.ErrAuthorization, "only patients and administrators may book appointments")
	}
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		patientID, err := bookingPatient(principal(r), req.PatientID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		appt, err := svc.ProposeBooking(r.Context(), appointment.BookingRequest{
			PatientID:      patientID,
			DoctorID:       doctorID,
			Date:           req.Date,
			TimeSlot:       req.TimeSlot,
			Type:           appointment.AppointmentType(req.Type),
			Priority:       appointment.Priority(req.Priority),
			Specialization: req.Specialization,
			Symptoms:       req.Symptoms,
			Notes:          req.Notes,
			Duration:       time.Duration(req.DurationMinutes) * time.Minute,
		})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func autoBookHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AutoBookRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		patientID, err := bookingPatient(principal(r), req.PatientID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		booked, err := svc.BookFromSymptoms(r.Context(), appointment.AutoBookingRequest{
			PatientID: patientID,
			Symptoms:  req.Symptoms,
			Date:      req.Date,
			TimeSlot:  req.TimeSlot,
			Type:      appointment.AppointmentType(req.Type),
			Notes:     req.Notes,
		})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, AutoBookResponse{
			Appointment:    toAppointmentResponse(booked.Appointment),
			Triage:         booked.Triage,
			Specialization: booked.Selection.Specialization,
			DoctorOnline:   booked.Selection.Online,
			Fallback:       booked.Selection.Fallback,
		})
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := appointment.ListFilter{
			Status: appointment.AppointmentStatus(r.URL.Query().Get("status")),
			Limit:  queryInt(r, "limit"),
			Offset: queryInt(r, "offset"),
		}
		f.Normalize()
		p := principal(r)
		if p.IsAdmin() {
			if raw := r.URL.Query().Get("patient_id"); raw != "" {
				if id, err := uuid.Parse(raw); err == nil {
					f.PatientID = &id
				}
			}
			if raw := r.URL.Query().Get("doctor_id"); raw != "" {
				if id, err := uuid.Parse(raw); err == nil {
					f.DoctorID = &id
				}
			}
		}

		appts, err := svc.ListAppointments(r.Context(), p, f)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		items := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			items = append(items, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, AppointmentListResponse{Items: items, Limit: f.Limit, Offset: f.Offset})
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), principal(r), id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req UpdateStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		status := appointment.AppointmentStatus(req.Status)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_status", "unknown appointment status")
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), principal(r), id, status, req.Notes)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req CancelRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Cancel(r.Context(), principal(r), id, req.Reason)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rateAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req RateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Rate(r.Context(), principal(r), id, req.Rating, req.Review)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}
