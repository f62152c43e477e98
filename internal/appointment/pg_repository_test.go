package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/triage-scheduling/internal/apperr"
	"github.com/hackgods/triage-scheduling/internal/db/dbtest"
)

func TestPgRepository(t *testing.T) {
	pool := dbtest.Postgres(t)
	repo := NewPgRepository(pool)
	ctx := context.Background()

	doctorID := uuid.New()
	newAppt := func() *Appointment {
		return &Appointment{
			ID:             uuid.New(),
			PatientID:      uuid.New(),
			DoctorID:       doctorID,
			Date:           "2030-06-01",
			TimeSlot:       "10:00",
			Duration:       30 * time.Minute,
			Type:           TypeConsultation,
			Priority:       PriorityHigh,
			Specialization: "cardiology",
			Symptoms:       []string{"chest pain"},
		}
	}

	t.Run("single active appointment per slot under concurrency", func(t *testing.T) {
		const workers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created []*Appointment
			booked  int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a, err := repo.InsertIfSlotFree(ctx, newAppt())
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					created = append(created, a)
					return
				}
				if assert.ErrorIs(t, err, ErrSlotAlreadyBooked) {
					booked++
				}
			}()
		}
		wg.Wait()

		require.Len(t, created, 1)
		assert.Equal(t, workers-1, booked)

		got, err := repo.GetAppointmentByID(ctx, created[0].ID)
		require.NoError(t, err)
		assert.Equal(t, StatusScheduled, got.Status)
		assert.Equal(t, "2030-06-01", got.Date)
		assert.Equal(t, 30*time.Minute, got.Duration)
		assert.Equal(t, []string{"chest pain"}, got.Symptoms)

		// cancelling frees the slot
		_, err = repo.UpdateAppointmentStatus(ctx, got.ID, StatusScheduled, StatusCancelled, "reason")
		require.NoError(t, err)
		_, err = repo.InsertIfSlotFree(ctx, newAppt())
		require.NoError(t, err)
	})

	t.Run("conditional status update", func(t *testing.T) {
		a := newAppt()
		a.Date = "2030-06-02"
		created, err := repo.InsertIfSlotFree(ctx, a)
		require.NoError(t, err)

		_, err = repo.UpdateAppointmentStatus(ctx, created.ID, StatusConfirmed, StatusInProgress, "")
		assert.ErrorIs(t, err, ErrStaleStatus)

		updated, err := repo.UpdateAppointmentStatus(ctx, created.ID, StatusScheduled, StatusConfirmed, "")
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, updated.Status)

		_, err = repo.GetAppointmentByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	})

	t.Run("rating stats", func(t *testing.T) {
		for i, rating := range []int{5, 2} {
			a := newAppt()
			a.Date = "2030-07-01"
			a.TimeSlot = []string{"09:00", "09:30"}[i]
			created, err := repo.InsertIfSlotFree(ctx, a)
			require.NoError(t, err)

			_, err = repo.SetRating(ctx, created.ID, rating, "", time.Now())
			assert.ErrorIs(t, err, ErrStaleStatus)

			for _, step := range [][2]AppointmentStatus{
				{StatusScheduled, StatusConfirmed},
				{StatusConfirmed, StatusInProgress},
				{StatusInProgress, StatusCompleted},
			} {
				_, err = repo.UpdateAppointmentStatus(ctx, created.ID, step[0], step[1], "")
				require.NoError(t, err)
			}

			_, err = repo.SetRating(ctx, created.ID, rating, "ok", time.Now())
			require.NoError(t, err)
		}

		avg, count, err := repo.DoctorRatingStats(ctx, doctorID)
		require.NoError(t, err)
		assert.Equal(t, 3.5, avg)
		assert.Equal(t, 2, count)

		list, err := repo.ListAppointments(ctx, ListFilter{DoctorID: &doctorID, Status: StatusCompleted, Limit: 10})
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("check violation is a validation error", func(t *testing.T) {
		a := newAppt()
		a.Date = "2030-08-01"
		a.Priority = "bogus"
		_, err := repo.InsertIfSlotFree(ctx, a)
		assert.ErrorIs(t, err, apperr.ErrValidation)

		a = newAppt()
		a.Date = "2030-08-01"
		a.TimeSlot = "9:00"
		_, err = repo.InsertIfSlotFree(ctx, a)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("event log", func(t *testing.T) {
		id := uuid.New()
		err := repo.InsertEvent(ctx, EventLog{EventType: EventAppointmentBooked, AppointmentID: &id, Payload: []byte(`{"k":1}`)})
		assert.NoError(t, err)
	})
}
