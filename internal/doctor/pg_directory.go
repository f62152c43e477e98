package doctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

const doctorColumns = `id, name, email, specialization, status, is_online, last_active,
	rating, rating_count, consultation_fee, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Email,
		&d.Specialization,
		&d.Status,
		&d.IsOnline,
		&d.LastActive,
		&d.Rating,
		&d.RatingCount,
		&d.ConsultationFee,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func (r *PgDirectory) FindBySpecialization(ctx context.Context, q Query) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE lower(specialization) = lower($1)
		  AND ($2 = false OR status = 'approved')
		  AND ($3 = false OR is_online)
		ORDER BY rating DESC, id::text ASC
	`, q.Specialization, q.ApprovedOnly, q.OnlineOnly)
	if err != nil {
		return nil, fmt.Errorf("query doctors: %w", err)
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgDirectory) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgDirectory) UpdateRating(ctx context.Context, id uuid.UUID, rating float64, count int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET rating = $2,
		    rating_count = $3,
		    updated_at = now()
		WHERE id = $1
	`, id, rating, count)
	if err != nil {
		return fmt.Errorf("update doctor rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *PgDirectory) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET is_online = $2,
		    last_active = now(),
		    updated_at = now()
		WHERE id = $1
	`, id, online)
	if err != nil {
		return fmt.Errorf("update doctor presence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

// Insert adds a doctor to the directory. Used by the seed command.
func (r *PgDirectory) Insert(ctx context.Context, d Doctor) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctors (id, name, email, specialization, status, is_online, last_active,
			rating, rating_count, consultation_fee, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
	`, d.ID, d.Name, d.Email, d.Specialization, d.Status, d.IsOnline, d.LastActive,
		d.Rating, d.RatingCount, d.ConsultationFee)
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}
