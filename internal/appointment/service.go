package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/triage-scheduling/internal/apperr"
	"github.com/hackgods/triage-scheduling/internal/config"
	"github.com/hackgods/triage-scheduling/internal/doctor"
	"github.com/hackgods/triage-scheduling/internal/identity"
	"github.com/hackgods/triage-scheduling/internal/matching"
	redisclient "github.com/hackgods/triage-scheduling/internal/redis"
	"github.com/hackgods/triage-scheduling/internal/triage"
)

const (
	EventAppointmentBooked        = "APPOINTMENT_BOOKED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentRated         = "APPOINTMENT_RATED"
)

var (
	ErrSlotBeingBooked     = apperr.New(apperr.ErrConflict, "slot is currently being booked, please retry")
	ErrConcurrentUpdate    = apperr.New(apperr.ErrConflict, "appointment was modified concurrently, please retry")
	ErrNotCompleted        = apperr.New(apperr.ErrState, "only completed appointments can be rated")
	ErrNoShowBeforeStart   = apperr.New(apperr.ErrInvalidTransition, "appointment time has not passed yet")
	ErrDoctorNotAccepting  = apperr.New(apperr.ErrValidation, "doctor is not accepting appointments")
	ErrAutoBookingDisabled = errors.New("symptom based booking is not configured")
)

// Event describes a lifecycle change for the counterpart party.
type Event struct {
	Type           string
	Appointment    Appointment
	PreviousStatus AppointmentStatus
	Actor          identity.Principal
	Recipients     []identity.Principal
	Urgent         bool
	Reason         string
}

// Notifier receives lifecycle events. Implementations must not block for long
// and must not fail the caller.
type Notifier interface {
	AppointmentChanged(ctx context.Context, ev Event)
}

type DoctorMatcher interface {
	Match(ctx context.Context, r triage.Result) (*matching.Selection, error)
}

type Service struct {
	repo      Repository
	locker    redisclient.Locker
	directory doctor.Directory
	notifier  Notifier
	analyzer  triage.Analyzer
	matcher   DoctorMatcher
	cfg       config.Config
	logger    zerolog.Logger

	now          func() time.Time
	retryBackoff time.Duration
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithTriage enables BookFromSymptoms.
func WithTriage(a triage.Analyzer, m DoctorMatcher) Option {
	return func(s *Service) {
		s.analyzer = a
		s.matcher = m
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, locker redisclient.Locker, directory doctor.Directory, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		locker:       locker,
		directory:    directory,
		cfg:          cfg,
		logger:       zerolog.Nop(),
		now:          time.Now,
		retryBackoff: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.StoreTimeout <= 0 {
		s.cfg.StoreTimeout = 5 * time.Second
	}
	if s.cfg.DefaultAppointmentDuration <= 0 {
		s.cfg.DefaultAppointmentDuration = 30 * time.Minute
	}
	return s
}

type BookingRequest struct {
	PatientID      uuid.UUID
	DoctorID       uuid.UUID
	Date           string
	TimeSlot       string
	Type           AppointmentType
	Symptoms       []string
	Notes          string
	Duration       time.Duration
	Priority       Priority
	Specialization string
}

func (s *Service) validateBooking(req *BookingRequest) error {
	if req.PatientID == uuid.Nil {
		return apperr.Validation("patientId", "patient is required", nil)
	}
	if req.DoctorID == uuid.Nil {
		return apperr.Validation("doctorId", "doctor is required", nil)
	}
	if req.Type == "" {
		req.Type = TypeConsultation
	}
	if !req.Type.Valid() {
		return apperr.Validation("type", "valid appointment type required", req.Type)
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if !req.Priority.Valid() {
		return apperr.Validation("priority", "priority must be low, medium, high or urgent", req.Priority)
	}
	if req.Duration <= 0 {
		req.Duration = s.cfg.DefaultAppointmentDuration
	}

	day, err := time.Parse(DateLayout, strings.TrimSpace(req.Date))
	if err != nil {
		return apperr.Validation("appointmentDate", "date must be YYYY-MM-DD", req.Date)
	}
	clock, err := time.Parse(TimeLayout, strings.TrimSpace(req.TimeSlot))
	if err != nil {
		return apperr.Validation("timeSlot", "time must be HH:MM", req.TimeSlot)
	}
	// "9:00" and "09:00" name the same slot and must share its key.
	req.Date = day.Format(DateLayout)
	req.TimeSlot = clock.Format(TimeLayout)

	startsAt, err := ParseSlotTime(req.Date, req.TimeSlot)
	if err != nil {
		return apperr.Validation("appointmentDate", "invalid date or time", req.Date)
	}
	if !startsAt.After(s.now()) {
		return apperr.Validation("appointmentDate", "appointment must be in the future", startsAt)
	}
	return nil
}

// ProposeBooking reserves the doctor's slot for the patient.
// The existence check and the insert run as one unit under a per slot lock,
// so two concurrent proposals for the same slot give one appointment and one
// conflict.
func (s *Service) ProposeBooking(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := s.validateBooking(&req); err != nil {
		return nil, err
	}

	doc, err := s.getDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doc.Approved() {
		return nil, ErrDoctorNotAccepting
	}
	if req.Specialization == "" {
		req.Specialization = doc.Specialization
	}

	appt := &Appointment{
		ID:             uuid.New(),
		PatientID:      req.PatientID,
		DoctorID:       req.DoctorID,
		Date:           req.Date,
		TimeSlot:       req.TimeSlot,
		Duration:       req.Duration,
		Status:         StatusScheduled,
		Type:           req.Type,
		Priority:       req.Priority,
		Specialization: req.Specialization,
		Symptoms:       append([]string(nil), req.Symptoms...),
		Notes:          strings.TrimSpace(req.Notes),
	}

	created, err := s.insertWithRetry(ctx, appt)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"patient_id": created.PatientID.String(),
		"date":       created.Date,
		"time_slot":  created.TimeSlot,
		"priority":   created.Priority,
	})

	actor := identity.Principal{ID: created.PatientID, Kind: identity.KindPatient}
	s.notify(ctx, Event{
		Type:        EventAppointmentBooked,
		Appointment: *created,
		Actor:       actor,
		Recipients:  counterparts(actor, created),
		Urgent:      created.Priority == PriorityUrgent,
	})

	return created, nil
}

func (s *Service) insertWithRetry(ctx context.Context, appt *Appointment) (*Appointment, error) {
	for attempt := 0; ; attempt++ {
		created, err := s.tryInsert(ctx, appt)
		if err == nil {
			return created, nil
		}

		retryable := errors.Is(err, redisclient.ErrLockNotAcquired) || errors.Is(err, ErrTransientConflict)
		if !retryable || attempt >= 1 {
			return nil, bookingError(err)
		}

		s.logger.Debug().
			Err(err).
			Str("slot", appt.Slot().Key()).
			Msg("retrying booking after transient conflict")

		select {
		case <-time.After(s.retryBackoff):
		case <-ctx.Done():
			return nil, apperr.Unavailable("book appointment", ctx.Err())
		}
	}
}

func (s *Service) tryInsert(ctx context.Context, appt *Appointment) (*Appointment, error) {
	var created *Appointment

	err := s.locker.WithSlotLock(ctx, appt.Slot().Key(), func(lockCtx context.Context) error {
		storeCtx, cancel := context.WithTimeout(lockCtx, s.cfg.StoreTimeout)
		defer cancel()

		a, err := s.repo.InsertIfSlotFree(storeCtx, appt)
		if err != nil {
			return err
		}
		created = a
		return nil
	})

	return created, err
}

func bookingError(err error) error {
	switch {
	case errors.Is(err, ErrSlotAlreadyBooked):
		return ErrSlotAlreadyBooked
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return ErrSlotBeingBooked
	default:
		return apperr.Unavailable("book appointment", err)
	}
}

func PriorityFromUrgency(u triage.Urgency) Priority {
	switch u {
	case triage.UrgencyEmergency, triage.UrgencyUrgent:
		return PriorityUrgent
	case triage.UrgencyHigh:
		return PriorityHigh
	case triage.UrgencyMedium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

type AutoBookingRequest struct {
	PatientID uuid.UUID
	Symptoms  []string
	Date      string
	TimeSlot  string
	Type      AppointmentType
	Notes     string
}

type AutoBooking struct {
	Appointment *Appointment
	Triage      triage.Result
	Selection   *matching.Selection
}

// BookFromSymptoms classifies the symptoms, picks a doctor and books the slot.
func (s *Service) BookFromSymptoms(ctx context.Context, req AutoBookingRequest) (*AutoBooking, error) {
	if s.analyzer == nil || s.matcher == nil {
		return nil, ErrAutoBookingDisabled
	}

	result, err := s.analyzer.Analyze(req.Symptoms)
	if err != nil {
		return nil, err
	}

	sel, err := s.matcher.Match(ctx, result)
	if err != nil {
		return nil, err
	}

	notes := strings.TrimSpace(req.Notes)
	if notes == "" {
		notes = fmt.Sprintf("Triage: %s (confidence %d%%, urgency %s)", result.Top(), result.Confidence, result.Urgency)
	}

	appt, err := s.ProposeBooking(ctx, BookingRequest{
		PatientID:      req.PatientID,
		DoctorID:       sel.Doctor.ID,
		Date:           req.Date,
		TimeSlot:       req.TimeSlot,
		Type:           req.Type,
		Symptoms:       req.Symptoms,
		Notes:          notes,
		Priority:       PriorityFromUrgency(result.Urgency),
		Specialization: sel.Specialization,
	})
	if err != nil {
		return nil, err
	}

	return &AutoBooking{Appointment: appt, Triage: result, Selection: sel}, nil
}

// GetAppointment returns an appointment visible to p.
func (s *Service) GetAppointment(ctx context.Context, p identity.Principal, id uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParty(p, appt) {
		return nil, ErrNotParty
	}
	return appt, nil
}

// ListAppointments lists the appointments of p. Admins may filter freely.
func (s *Service) ListAppointments(ctx context.Context, p identity.Principal, f ListFilter) ([]Appointment, error) {
	f.Normalize()
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("status", "unknown appointment status", f.Status)
	}

	switch p.Kind {
	case identity.KindPatient:
		f.PatientID = &p.ID
		f.DoctorID = nil
	case identity.KindDoctor:
		f.DoctorID = &p.ID
		f.PatientID = nil
	case identity.KindAdmin:
	default:
		return nil, ErrNotParty
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	appts, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, apperr.Unavailable("list appointments", err)
	}
	return appts, nil
}

// UpdateStatus moves an appointment along its lifecycle on behalf of p.
func (s *Service) UpdateStatus(ctx context.Context, p identity.Principal, id uuid.UUID, to AppointmentStatus, notes string) (*Appointment, error) {
	return s.transition(ctx, p, id, to, strings.TrimSpace(notes), "")
}

// Cancel is UpdateStatus to cancelled with the reason appended to the notes.
func (s *Service) Cancel(ctx context.Context, p identity.Principal, id uuid.UUID, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	var notes string
	if reason != "" {
		notes = "Cancellation reason: " + reason
	}
	return s.transition(ctx, p, id, StatusCancelled, notes, reason)
}

func (s *Service) transition(ctx context.Context, p identity.Principal, id uuid.UUID, to AppointmentStatus, notes, reason string) (*Appointment, error) {
	if !to.Valid() {
		return nil, apperr.Validation("status", "unknown appointment status", to)
	}

	// one retry when another writer changes the status between load and update
	for attempt := 0; attempt < 2; attempt++ {
		appt, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := authorizeTransition(p, appt, to); err != nil {
			return nil, err
		}
		if err := checkTransition(appt.Status, to); err != nil {
			return nil, err
		}
		if to == StatusNoShow {
			startsAt, err := appt.StartsAt()
			if err != nil || startsAt.After(s.now()) {
				return nil, ErrNoShowBeforeStart
			}
		}

		updated, err := s.updateStatus(ctx, appt.ID, appt.Status, to, mergeNotes(appt.Notes, notes))
		if errors.Is(err, ErrStaleStatus) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logEvent(ctx, updated.ID, EventAppointmentStatusChanged, map[string]any{
			"from":   appt.Status,
			"to":     to,
			"actor":  p.String(),
			"reason": reason,
		})

		s.notify(ctx, Event{
			Type:           EventAppointmentStatusChanged,
			Appointment:    *updated,
			PreviousStatus: appt.Status,
			Actor:          p,
			Recipients:     counterparts(p, updated),
			Urgent:         updated.Priority == PriorityUrgent,
			Reason:         reason,
		})

		return updated, nil
	}

	return nil, ErrConcurrentUpdate
}

func (s *Service) updateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, notes string) (*Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, from, to, notes)
	if err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return nil, err
		}
		if errors.Is(err, ErrTransientConflict) {
			return nil, ErrStaleStatus
		}
		return nil, apperr.Unavailable("update appointment status", err)
	}
	return updated, nil
}

// Rate records the patient's rating of a completed appointment and
// recomputes the doctor's aggregate as the mean of all rated appointments.
// Rating again overwrites the previous rating.
func (s *Service) Rate(ctx context.Context, p identity.Principal, id uuid.UUID, rating int, review string) (*Appointment, error) {
	if rating < 1 || rating > 5 {
		return nil, apperr.Validation("rating", "rating must be between 1 and 5", rating)
	}

	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParty(p, appt) {
		return nil, ErrNotParty
	}
	if p.Kind != identity.KindPatient || p.ID != appt.PatientID {
		return nil, ErrNotRatingPatient
	}
	if appt.Status != StatusCompleted {
		return nil, ErrNotCompleted
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	rated, err := s.repo.SetRating(storeCtx, id, rating, strings.TrimSpace(review), s.now())
	if err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return nil, ErrNotCompleted
		}
		return nil, apperr.Unavailable("rate appointment", err)
	}

	avg, count, err := s.repo.DoctorRatingStats(storeCtx, rated.DoctorID)
	if err != nil {
		return nil, apperr.Unavailable("doctor rating stats", err)
	}

	dirCtx, dirCancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer dirCancel()

	if err := s.directory.UpdateRating(dirCtx, rated.DoctorID, avg, count); err != nil {
		return nil, apperr.Unavailable("update doctor rating", err)
	}

	s.logEvent(ctx, rated.ID, EventAppointmentRated, map[string]any{
		"rating":        rating,
		"doctor_rating": avg,
		"rating_count":  count,
	})

	s.notify(ctx, Event{
		Type:        EventAppointmentRated,
		Appointment: *rated,
		Actor:       p,
		Recipients:  counterparts(p, rated),
	})

	return rated, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable("load appointment", err)
	}
	return appt, nil
}

func (s *Service) getDoctor(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	doc, err := s.directory.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable("load doctor", err)
	}
	return doc, nil
}

func (s *Service) notify(ctx context.Context, ev Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.AppointmentChanged(ctx, ev)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().
			Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

func mergeNotes(existing, addition string) string {
	switch {
	case addition == "":
		return ""
	case existing == "":
		return addition
	default:
		return existing + "\n" + addition
	}
}
