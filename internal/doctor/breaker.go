package doctor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/hackgods/triage-scheduling/internal/apperr"
)

// BreakerDirectory guards a Directory with a circuit breaker. Domain errors
// such as ErrDoctorNotFound do not count as failures.
type BreakerDirectory struct {
	inner Directory
	cb    *gobreaker.CircuitBreaker
}

type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

func NewBreakerDirectory(inner Directory, s BreakerSettings, logger zerolog.Logger) *BreakerDirectory {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "doctor-directory",
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || apperr.IsDomain(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return &BreakerDirectory{inner: inner, cb: cb}
}

func (b *BreakerDirectory) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerDirectory) FindBySpecialization(ctx context.Context, q Query) ([]Doctor, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.FindBySpecialization(ctx, q)
	})
	if err != nil {
		return nil, breakerError("find doctors", err)
	}
	doctors, _ := res.([]Doctor)
	return doctors, nil
}

func (b *BreakerDirectory) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetByID(ctx, id)
	})
	if err != nil {
		return nil, breakerError("get doctor", err)
	}
	return res.(*Doctor), nil
}

func (b *BreakerDirectory) UpdateRating(ctx context.Context, id uuid.UUID, rating float64, count int) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.UpdateRating(ctx, id, rating, count)
	})
	return breakerError("update doctor rating", err)
}

func (b *BreakerDirectory) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.SetOnline(ctx, id, online)
	})
	return breakerError("set doctor presence", err)
}

func breakerError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &apperr.UnavailableError{Op: op, Err: err}
	}
	return apperr.Unavailable(op, err)
}
