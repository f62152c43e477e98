package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/triage-scheduling/internal/apperr"
)

var (
	ErrAppointmentNotFound = apperr.New(apperr.ErrNotFound, "appointment not found")
	ErrSlotAlreadyBooked   = apperr.New(apperr.ErrConflict, "slot already has an active appointment")

	// ErrStaleStatus is returned by conditional updates when the stored status
	// no longer matches the expected one.
	ErrStaleStatus = errors.New("appointment status changed concurrently")

	// ErrTransientConflict marks a store conflict unrelated to the slot key,
	// such as a serialization failure. The operation may be retried.
	ErrTransientConflict = errors.New("transient store conflict")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// InsertIfSlotFree stores a as scheduled unless another active appointment
	// holds its slot, in which case it returns ErrSlotAlreadyBooked. The check
	// and the insert are one atomic unit.
	InsertIfSlotFree(ctx context.Context, a *Appointment) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)

	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, notes string) (*Appointment, error)

	// Rating
	SetRating(ctx context.Context, id uuid.UUID, rating int, review string, at time.Time) (*Appointment, error)
	DoctorRatingStats(ctx context.Context, doctorID uuid.UUID) (avg float64, count int, err error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
