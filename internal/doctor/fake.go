package doctor

import (
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// Fake generates approved doctors spread round-robin over specializations.
// It backs the seed command and the demo roster of the memory store driver.
func Fake(f *gofakeit.Faker, specializations []string, count int) []Doctor {
	if len(specializations) == 0 {
		return nil
	}

	now := time.Now().UTC()
	out := make([]Doctor, 0, count)
	for i := 0; i < count; i++ {
		status := StatusApproved
		// a few pending applications keep the approval filter honest
		if f.Number(1, 10) == 1 {
			status = StatusPending
		}
		out = append(out, Doctor{
			ID:              uuid.New(),
			Name:            "Dr. " + f.Name(),
			Email:           f.Email(),
			Specialization:  specializations[i%len(specializations)],
			Status:          status,
			IsOnline:        false,
			Rating:          math.Round(f.Float64Range(3, 5)*10) / 10,
			RatingCount:     f.Number(0, 200),
			ConsultationFee: float64(f.Number(40, 250)),
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return out
}
