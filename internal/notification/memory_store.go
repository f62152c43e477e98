package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/triage-scheduling/internal/identity"
)

type MemoryStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[uuid.UUID]*Notification)}
}

func (s *MemoryStore) Insert(ctx context.Context, n *Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[n.ID] = cloneNotification(n)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.items[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	return cloneNotification(n), nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) (*Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = &at
	}
	return cloneNotification(n), nil
}

func (s *MemoryStore) MarkAllRead(ctx context.Context, recipient identity.Principal, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.items {
		if n.Recipient() != recipient || n.IsRead || n.Expired(at) {
			continue
		}
		t := at
		n.IsRead = true
		n.ReadAt = &t
		count++
	}
	return count, nil
}

func (s *MemoryStore) List(ctx context.Context, recipient identity.Principal, q ListQuery, now time.Time) ([]Notification, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	q.normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Notification
	for _, n := range s.items {
		if n.Recipient() != recipient || n.Expired(now) {
			continue
		}
		if q.UnreadOnly && n.IsRead {
			continue
		}
		matched = append(matched, *cloneNotification(n))
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := len(matched)
	off := q.offset()
	if off >= total {
		return nil, total, nil
	}
	end := off + q.Limit
	if end > total {
		end = total
	}
	return matched[off:end], total, nil
}

func (s *MemoryStore) CountUnread(ctx context.Context, recipient identity.Principal, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.items {
		if n.Recipient() == recipient && !n.IsRead && !n.Expired(now) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return ErrNotificationNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, n := range s.items {
		if n.Expired(now) {
			delete(s.items, id)
			purged++
		}
	}
	return purged, nil
}
