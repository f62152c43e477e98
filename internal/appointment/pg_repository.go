package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/triage-scheduling/internal/apperr"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, doctor_id, appointment_date, time_slot, duration_minutes,
	status, type, priority, specialization, symptoms, notes, prescription_id,
	rating, review, rated_at, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a        Appointment
		date     time.Time
		minutes  int
		rating   *int
		review   *string
		notes    *string
		symptoms []string
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&date,
		&a.TimeSlot,
		&minutes,
		&a.Status,
		&a.Type,
		&a.Priority,
		&a.Specialization,
		&symptoms,
		&notes,
		&a.PrescriptionID,
		&rating,
		&review,
		&a.RatedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = date.Format(DateLayout)
	a.Duration = time.Duration(minutes) * time.Minute
	a.Symptoms = symptoms
	a.Rating = rating
	if notes != nil {
		a.Notes = *notes
	}
	if review != nil {
		a.Review = *review
	}
	return &a, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrSlotAlreadyBooked
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrTransientConflict, pgErr.Message)
		case "23514":
			return apperr.Validation(pgErr.ConstraintName, "value violates a check constraint", nil)
		}
	}
	return err
}

// Interface methods

// InsertIfSlotFree relies on the partial unique index over active slots;
// the NOT EXISTS guard only avoids burning a sequence of failed inserts.
func (r *PgRepository) InsertIfSlotFree(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, time_slot, duration_minutes,
			status, type, priority, specialization, symptoms, notes, prescription_id, created_at, updated_at)
		SELECT $1, $2, $3, $4::date, $5, $6, 'scheduled', $7, $8, $9, $10, $11, $12, now(), now()
		WHERE NOT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $3
			  AND appointment_date = $4::date
			  AND time_slot = $5
			  AND status = ANY($13)
		)
		RETURNING `+appointmentColumns,
		id, a.PatientID, a.DoctorID, a.Date, a.TimeSlot, int(a.Duration/time.Minute),
		a.Type, a.Priority, a.Specialization, nonNilStrings(a.Symptoms), a.Notes, a.PrescriptionID,
		statusStrings(activeStatuses),
	)

	created, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY appointment_date DESC, time_slot DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, notes string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes = CASE WHEN $4 = '' THEN notes ELSE $4 END,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from, notes)

	updated, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrStaleStatus
	}
	if err != nil {
		return nil, mapWriteError(err)
	}
	return updated, nil
}

func (r *PgRepository) SetRating(ctx context.Context, id uuid.UUID, rating int, review string, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET rating = $2,
		    review = $3,
		    rated_at = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'completed'
		RETURNING `+appointmentColumns,
		id, rating, review, at)

	updated, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrStaleStatus
	}
	if err != nil {
		return nil, mapWriteError(err)
	}
	return updated, nil
}

func (r *PgRepository) DoctorRatingStats(ctx context.Context, doctorID uuid.UUID) (float64, int, error) {
	var (
		avg   *float64
		count int
	)
	err := r.pool.QueryRow(ctx, `
		SELECT AVG(rating)::float8, COUNT(rating)
		FROM appointments
		WHERE doctor_id = $1
		  AND rating IS NOT NULL
	`, doctorID).Scan(&avg, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("doctor rating stats: %w", err)
	}
	if avg == nil {
		return 0, 0, nil
	}
	return *avg, count, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func statusStrings(in []AppointmentStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
