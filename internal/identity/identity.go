// Package identity carries the authenticated principal supplied by the
// surrounding application. Authentication itself happens upstream.
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Kind string

const (
	KindPatient Kind = "patient"
	KindDoctor  Kind = "doctor"
	KindAdmin   Kind = "admin"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPatient, KindDoctor, KindAdmin:
		return true
	}
	return false
}

// Principal is the actor performing an operation.
type Principal struct {
	ID   uuid.UUID
	Kind Kind
}

func (p Principal) IsAdmin() bool {
	return p.Kind == KindAdmin
}

func (p Principal) String() string {
	return fmt.Sprintf("%s:%s", p.Kind, p.ID)
}

// ParseKind validates a raw kind string.
func ParseKind(raw string) (Kind, error) {
	k := Kind(raw)
	if !k.Valid() {
		return "", fmt.Errorf("unknown principal kind %q", raw)
	}
	return k, nil
}

type contextKey struct{}

// WithPrincipal stores the principal in the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal previously stored with WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}
