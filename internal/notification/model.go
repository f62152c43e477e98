package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/triage-scheduling/internal/identity"
)

type Category string

const (
	CategoryAppointment  Category = "appointment"
	CategoryPrescription Category = "prescription"
	CategoryPayment      Category = "payment"
	CategorySystem       Category = "system"
	CategoryReminder     Category = "reminder"
	CategoryEmergency    Category = "emergency"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryAppointment, CategoryPrescription, CategoryPayment,
		CategorySystem, CategoryReminder, CategoryEmergency:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Notification struct {
	ID            uuid.UUID      `json:"id"`
	RecipientID   uuid.UUID      `json:"recipient_id"`
	RecipientKind identity.Kind  `json:"recipient_kind"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Category      Category       `json:"category"`
	Priority      Priority       `json:"priority"`
	IsRead        bool           `json:"is_read"`
	ReadAt        *time.Time     `json:"read_at,omitempty"`
	ActionURL     string         `json:"action_url,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
}

func (n *Notification) Recipient() identity.Principal {
	return identity.Principal{ID: n.RecipientID, Kind: n.RecipientKind}
}

func (n *Notification) Expired(now time.Time) bool {
	return !n.ExpiresAt.After(now)
}

// ListQuery pages through a recipient's notifications, newest first.
type ListQuery struct {
	Page       int
	Limit      int
	UnreadOnly bool
}

func (q *ListQuery) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
}

func (q ListQuery) offset() int {
	return (q.Page - 1) * q.Limit
}

type Page struct {
	Items       []Notification `json:"notifications"`
	Total       int            `json:"total"`
	UnreadCount int            `json:"unread_count"`
	Page        int            `json:"page"`
	Pages       int            `json:"pages"`
}

func cloneNotification(n *Notification) *Notification {
	out := *n
	if n.ReadAt != nil {
		t := *n.ReadAt
		out.ReadAt = &t
	}
	if n.Metadata != nil {
		out.Metadata = make(map[string]any, len(n.Metadata))
		for k, v := range n.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
