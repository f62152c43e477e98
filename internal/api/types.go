package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/triage-scheduling/internal/appointment"
	"github.com/hackgods/triage-scheduling/internal/triage"
)

type TriageRequest struct {
	Symptoms []string `json:"symptoms"`
	Age      int      `json:"age,omitempty"`
}

type TriageResponse struct {
	triage.Result
	Emergency bool          `json:"is_emergency"`
	Advice    triage.Advice `json:"advice"`
}

type SymptomsResponse struct {
	Specialization string   `json:"specialization,omitempty"`
	Symptoms       []string `json:"symptoms"`
}

type CreateAppointmentRequest struct {
	PatientID       string   `json:"patient_id,omitempty"`
	DoctorID        string   `json:"doctor_id"`
	Date            string   `json:"appointment_date"`
	TimeSlot        string   `json:"time_slot"`
	Type            string   `json:"type,omitempty"`
	Priority        string   `json:"priority,omitempty"`
	Specialization  string   `json:"specialization,omitempty"`
	Symptoms        []string `json:"symptoms,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
}

type AutoBookRequest struct {
	PatientID string   `json:"patient_id,omitempty"`
	Symptoms  []string `json:"symptoms"`
	Date      string   `json:"appointment_date"`
	TimeSlot  string   `json:"time_slot"`
	Type      string   `json:"type,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type RateRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	Date            string     `json:"appointment_date"`
	TimeSlot        string     `json:"time_slot"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	Type            string     `json:"type"`
	Priority        string     `json:"priority"`
	Specialization  string     `json:"specialization,omitempty"`
	Symptoms        []string   `json:"symptoms"`
	Notes           string     `json:"notes,omitempty"`
	Rating          *int       `json:"rating,omitempty"`
	Review          string     `json:"review,omitempty"`
	RatedAt         *time.Time `json:"rated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	symptoms := a.Symptoms
	if symptoms == nil {
		symptoms = []string{}
	}
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		Date:            a.Date,
		TimeSlot:        a.TimeSlot,
		DurationMinutes: int(a.Duration / time.Minute),
		Status:          string(a.Status),
		Type:            string(a.Type),
		Priority:        string(a.Priority),
		Specialization:  a.Specialization,
		Symptoms:        symptoms,
		Notes:           a.Notes,
		Rating:          a.Rating,
		Review:          a.Review,
		RatedAt:         a.RatedAt,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type AppointmentListResponse struct {
	Items  []AppointmentResponse `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type AutoBookResponse struct {
	Appointment    AppointmentResponse `json:"appointment"`
	Triage         triage.Result       `json:"triage"`
	Specialization string              `json:"matched_specialization"`
	DoctorOnline   bool                `json:"doctor_online"`
	Fallback       bool                `json:"fallback"`
}

type CreateNotificationRequest struct {
	RecipientID   string         `json:"recipient_id"`
	RecipientKind string         `json:"recipient_kind"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Category      string         `json:"category,omitempty"`
	Priority      string         `json:"priority,omitempty"`
	ActionURL     string         `json:"action_url,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
