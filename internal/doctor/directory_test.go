package doctor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/triage-scheduling/internal/apperr"
)

func mustUUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}

func TestMemoryDirectory_FindBySpecialization(t *testing.T) {
	a := Doctor{ID: mustUUID("00000000-0000-0000-0000-00000000000a"), Specialization: "cardiology", Status: StatusApproved, Rating: 4.5}
	b := Doctor{ID: mustUUID("00000000-0000-0000-0000-00000000000b"), Specialization: "Cardiology", Status: StatusApproved, Rating: 4.5, IsOnline: true}
	c := Doctor{ID: mustUUID("00000000-0000-0000-0000-00000000000c"), Specialization: "cardiology", Status: StatusPending, Rating: 5}
	d := Doctor{ID: mustUUID("00000000-0000-0000-0000-00000000000d"), Specialization: "neurology", Status: StatusApproved, Rating: 5}

	dir := NewMemoryDirectory(a, b, c, d)
	ctx := context.Background()

	all, err := dir.FindBySpecialization(ctx, Query{Specialization: "cardiology"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, c.ID, all[0].ID)
	assert.Equal(t, a.ID, all[1].ID)
	assert.Equal(t, b.ID, all[2].ID)

	approved, err := dir.FindBySpecialization(ctx, Query{Specialization: "cardiology", ApprovedOnly: true})
	require.NoError(t, err)
	assert.Len(t, approved, 2)

	online, err := dir.FindBySpecialization(ctx, Query{Specialization: "cardiology", ApprovedOnly: true, OnlineOnly: true})
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, b.ID, online[0].ID)
}

func TestMemoryDirectory_Updates(t *testing.T) {
	id := uuid.New()
	dir := NewMemoryDirectory(Doctor{ID: id, Specialization: "ent", Status: StatusApproved})
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	dir.now = func() time.Time { return fixed }
	ctx := context.Background()

	require.NoError(t, dir.UpdateRating(ctx, id, 4.25, 4))
	require.NoError(t, dir.SetOnline(ctx, id, true))

	got, err := dir.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4.25, got.Rating)
	assert.Equal(t, 4, got.RatingCount)
	assert.True(t, got.IsOnline)
	require.NotNil(t, got.LastActive)
	assert.Equal(t, fixed, *got.LastActive)

	_, err = dir.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, dir.SetOnline(ctx, uuid.New(), false), ErrDoctorNotFound)
}

func TestMemoryDirectory_CancelledContext(t *testing.T) {
	dir := NewMemoryDirectory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dir.FindBySpecialization(ctx, Query{Specialization: "ent"})
	assert.ErrorIs(t, err, context.Canceled)
}

type failingDirectory struct {
	MemoryDirectory
	err   error
	calls int
}

func (f *failingDirectory) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	f.calls++
	return nil, f.err
}

func TestBreakerDirectory_OpensOnUpstreamFailures(t *testing.T) {
	inner := &failingDirectory{err: errors.New("connection refused")}
	b := NewBreakerDirectory(inner, BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute}, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls)
}

func TestBreakerDirectory_DomainErrorsDoNotTrip(t *testing.T) {
	inner := &failingDirectory{err: ErrDoctorNotFound}
	b := NewBreakerDirectory(inner, BreakerSettings{MaxFailures: 1}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := b.GetByID(context.Background(), uuid.New())
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.NotErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerDirectory_PassThrough(t *testing.T) {
	id := uuid.New()
	inner := NewMemoryDirectory(Doctor{ID: id, Specialization: "ent", Status: StatusApproved})
	b := NewBreakerDirectory(inner, BreakerSettings{}, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, b.SetOnline(ctx, id, true))
	docs, err := b.FindBySpecialization(ctx, Query{Specialization: "ent", OnlineOnly: true})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)
}
