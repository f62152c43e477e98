package doctor

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/triage-scheduling/internal/apperr"
)

type ApprovalStatus string

const (
	StatusPending   ApprovalStatus = "pending"
	StatusApproved  ApprovalStatus = "approved"
	StatusRejected  ApprovalStatus = "rejected"
	StatusSuspended ApprovalStatus = "suspended"
)

var ErrDoctorNotFound = apperr.New(apperr.ErrNotFound, "doctor not found")

// Doctor is owned by the directory; the scheduling core only reads it,
// apart from the rating aggregate and the online flag.
type Doctor struct {
	ID              uuid.UUID
	Name            string
	Email           string
	Specialization  string
	Status          ApprovalStatus
	IsOnline        bool
	LastActive      *time.Time
	Rating          float64
	RatingCount     int
	ConsultationFee float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (d Doctor) Approved() bool {
	return d.Status == StatusApproved
}

// Query filters FindBySpecialization.
type Query struct {
	Specialization string
	ApprovedOnly   bool
	OnlineOnly     bool
}

func (q Query) matches(d Doctor) bool {
	if !strings.EqualFold(d.Specialization, q.Specialization) {
		return false
	}
	if q.ApprovedOnly && !d.Approved() {
		return false
	}
	if q.OnlineOnly && !d.IsOnline {
		return false
	}
	return true
}

// Directory is the doctor directory collaborator.
// FindBySpecialization returns doctors ordered by rating descending, then id ascending.
type Directory interface {
	FindBySpecialization(ctx context.Context, q Query) ([]Doctor, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	UpdateRating(ctx context.Context, id uuid.UUID, rating float64, count int) error
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
}

// Less orders doctors by rating descending, breaking ties by id ascending.
func Less(a, b Doctor) bool {
	if a.Rating != b.Rating {
		return a.Rating > b.Rating
	}
	return a.ID.String() < b.ID.String()
}
