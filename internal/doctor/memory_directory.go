package doctor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-process Directory used by tests and the memory store driver.
type MemoryDirectory struct {
	mu      sync.RWMutex
	doctors map[uuid.UUID]Doctor
	now     func() time.Time
}

func NewMemoryDirectory(doctors ...Doctor) *MemoryDirectory {
	d := &MemoryDirectory{
		doctors: make(map[uuid.UUID]Doctor, len(doctors)),
		now:     time.Now,
	}
	for _, doc := range doctors {
		d.Put(doc)
	}
	return d
}

// Put inserts or replaces a doctor.
func (d *MemoryDirectory) Put(doc Doctor) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	d.mu.Lock()
	d.doctors[doc.ID] = doc
	d.mu.Unlock()
}

func (d *MemoryDirectory) FindBySpecialization(ctx context.Context, q Query) ([]Doctor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Doctor
	for _, doc := range d.doctors {
		if q.matches(doc) {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out, nil
}

func (d *MemoryDirectory) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	doc, ok := d.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &doc, nil
}

func (d *MemoryDirectory) UpdateRating(ctx context.Context, id uuid.UUID, rating float64, count int) error {
	return d.update(ctx, id, func(doc *Doctor) {
		doc.Rating = rating
		doc.RatingCount = count
	})
}

func (d *MemoryDirectory) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	return d.update(ctx, id, func(doc *Doctor) {
		now := d.now()
		doc.IsOnline = online
		doc.LastActive = &now
	})
}

func (d *MemoryDirectory) update(ctx context.Context, id uuid.UUID, fn func(*Doctor)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	doc, ok := d.doctors[id]
	if !ok {
		return ErrDoctorNotFound
	}
	fn(&doc)
	doc.UpdatedAt = d.now()
	d.doctors[id] = doc
	return nil
}
