package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/triage-scheduling/internal/apperr"
	"github.com/hackgods/triage-scheduling/internal/identity"
)

var ErrNotificationNotFound = apperr.New(apperr.ErrNotFound, "notification not found")

// Store persists notifications. Queries taking now ignore expired records.
type Store interface {
	Insert(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id uuid.UUID) (*Notification, error)

	// MarkRead sets the read flag once; later calls keep the first timestamp.
	MarkRead(ctx context.Context, id uuid.UUID, at time.Time) (*Notification, error)
	MarkAllRead(ctx context.Context, recipient identity.Principal, at time.Time) (int, error)

	List(ctx context.Context, recipient identity.Principal, q ListQuery, now time.Time) ([]Notification, int, error)
	CountUnread(ctx context.Context, recipient identity.Principal, now time.Time) (int, error)

	Delete(ctx context.Context, id uuid.UUID) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
