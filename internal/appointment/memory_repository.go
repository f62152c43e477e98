package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps appointments in process. One mutex covers the
// active-slot index and the records, so check and insert cannot interleave.
type MemoryRepository struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*Appointment
	activeSlots  map[string]uuid.UUID
	events       []EventLog
	nextEventID  int64
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[uuid.UUID]*Appointment),
		activeSlots:  make(map[string]uuid.UUID),
		now:          time.Now,
	}
}

func (r *MemoryRepository) InsertIfSlotFree(ctx context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := a.Slot().Key()
	if _, taken := r.activeSlots[key]; taken {
		return nil, ErrSlotAlreadyBooked
	}

	// nothing is visible until this point
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored := cloneAppointment(a)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := r.now()
	stored.Status = StatusScheduled
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.appointments[stored.ID] = stored
	r.activeSlots[key] = stored.ID
	return cloneAppointment(stored), nil
}

func (r *MemoryRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Appointment
	for _, a := range r.appointments {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		matched = append(matched, *cloneAppointment(a))
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Date != matched[j].Date {
			return matched[i].Date > matched[j].Date
		}
		if matched[i].TimeSlot != matched[j].TimeSlot {
			return matched[i].TimeSlot > matched[j].TimeSlot
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	if f.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, notes string) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrStaleStatus
	}

	a.Status = to
	if notes != "" {
		a.Notes = notes
	}
	a.UpdatedAt = r.now()

	if !to.Active() {
		key := a.Slot().Key()
		if r.activeSlots[key] == a.ID {
			delete(r.activeSlots, key)
		}
	}
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) SetRating(ctx context.Context, id uuid.UUID, rating int, review string, at time.Time) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != StatusCompleted {
		return nil, ErrStaleStatus
	}

	a.Rating = &rating
	a.Review = review
	a.RatedAt = &at
	a.UpdatedAt = r.now()
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) DoctorRatingStats(ctx context.Context, doctorID uuid.UUID) (float64, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var sum, count int
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && a.Rating != nil {
			sum += *a.Rating
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(count), count, nil
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEventID++
	ev.ID = r.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns the recorded audit trail.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]EventLog(nil), r.events...)
}
