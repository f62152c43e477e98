package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in-progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no-show"
)

// Active statuses hold their slot.
func (s AppointmentStatus) Active() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s AppointmentStatus) Valid() bool {
	return s.Active() || s.Terminal()
}

var activeStatuses = []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusInProgress}

type AppointmentType string

const (
	TypeConsultation   AppointmentType = "consultation"
	TypeFollowUp       AppointmentType = "follow-up"
	TypeEmergency      AppointmentType = "emergency"
	TypeRoutineCheckup AppointmentType = "routine-checkup"
)

func (t AppointmentType) Valid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeEmergency, TypeRoutineCheckup:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type Appointment struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	DoctorID       uuid.UUID
	Date           string // YYYY-MM-DD
	TimeSlot       string // HH:MM
	Duration       time.Duration
	Status         AppointmentStatus
	Type           AppointmentType
	Priority       Priority
	Specialization string
	Symptoms       []string
	Notes          string
	PrescriptionID *uuid.UUID
	Rating         *int
	Review         string
	RatedAt        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StartsAt is the scheduled start in UTC.
func (a Appointment) StartsAt() (time.Time, error) {
	return ParseSlotTime(a.Date, a.TimeSlot)
}

func (a Appointment) Slot() Slot {
	return Slot{DoctorID: a.DoctorID, Date: a.Date, TimeSlot: a.TimeSlot}
}

// Slot is the (doctor, date, time) tuple that at most one active appointment may hold.
type Slot struct {
	DoctorID uuid.UUID
	Date     string
	TimeSlot string
}

func (s Slot) Key() string {
	return fmt.Sprintf("%s|%s|%s", s.DoctorID, s.Date, s.TimeSlot)
}

// ParseSlotTime combines a calendar date and a time of day into a UTC instant.
func ParseSlotTime(date, slot string) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, strings.TrimSpace(date)+" "+strings.TrimSpace(slot), time.UTC)
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ListFilter selects appointments for one party.
type ListFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    AppointmentStatus
	Limit     int
	Offset    int
}

// Normalize applies the default page size and clamps limit and offset.
func (f *ListFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 20 // default
	}
	if f.Limit > 100 {
		f.Limit = 100 // max
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

func cloneAppointment(a *Appointment) *Appointment {
	if a == nil {
		return nil
	}
	out := *a
	out.Symptoms = append([]string(nil), a.Symptoms...)
	if a.Rating != nil {
		r := *a.Rating
		out.Rating = &r
	}
	if a.RatedAt != nil {
		t := *a.RatedAt
		out.RatedAt = &t
	}
	if a.PrescriptionID != nil {
		p := *a.PrescriptionID
		out.PrescriptionID = &p
	}
	return &out
}
