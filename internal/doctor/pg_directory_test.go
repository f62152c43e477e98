package doctor

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/triage-scheduling/internal/db/dbtest"
)

func TestPgDirectory(t *testing.T) {
	pool := dbtest.Postgres(t)
	dir := NewPgDirectory(pool)
	ctx := context.Background()

	mk := func(id, spec string, status ApprovalStatus, rating float64, online bool) Doctor {
		return Doctor{
			ID:             mustUUID(id),
			Name:           "Dr. " + id[len(id)-1:],
			Email:          id + "@clinic.test",
			Specialization: spec,
			Status:         status,
			IsOnline:       online,
			Rating:         rating,
		}
	}
	a := mk("00000000-0000-0000-0000-00000000000a", "cardiology", StatusApproved, 4.5, false)
	b := mk("00000000-0000-0000-0000-00000000000b", "Cardiology", StatusApproved, 4.5, true)
	c := mk("00000000-0000-0000-0000-00000000000c", "cardiology", StatusPending, 5, false)
	for _, d := range []Doctor{a, b, c} {
		require.NoError(t, dir.Insert(ctx, d))
	}

	approved, err := dir.FindBySpecialization(ctx, Query{Specialization: "CARDIOLOGY", ApprovedOnly: true})
	require.NoError(t, err)
	require.Len(t, approved, 2)
	assert.Equal(t, a.ID, approved[0].ID)
	assert.Equal(t, b.ID, approved[1].ID)

	online, err := dir.FindBySpecialization(ctx, Query{Specialization: "cardiology", ApprovedOnly: true, OnlineOnly: true})
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, b.ID, online[0].ID)

	require.NoError(t, dir.UpdateRating(ctx, a.ID, 3.75, 4))
	require.NoError(t, dir.SetOnline(ctx, a.ID, true))

	got, err := dir.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.75, got.Rating)
	assert.Equal(t, 4, got.RatingCount)
	assert.True(t, got.IsOnline)
	assert.NotNil(t, got.LastActive)

	_, err = dir.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	assert.ErrorIs(t, dir.SetOnline(ctx, uuid.New(), true), ErrDoctorNotFound)
}
