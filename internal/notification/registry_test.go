package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/triage-scheduling/internal/identity"
)

func TestRegistry_SessionsAndRooms(t *testing.T) {
	r := NewRegistry(4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	p := patient()
	a := r.Register(ctx, p)
	b := r.Register(context.Background(), p)
	defer b.Close()

	assert.True(t, r.Online(p.ID))
	assert.Equal(t, 2, r.SessionCount())
	assert.Equal(t, 2, r.PushUser(p.ID, Envelope{Type: "ping"}))

	r.Join(a, "appointment:1")
	assert.Equal(t, 1, r.PushRoom("appointment:1", Envelope{Type: "room"}))
	assert.Equal(t, []string{"appointment:1"}, a.Rooms())

	// cancelling the registering context ends the session
	cancel()
	assert.Eventually(t, func() bool { return r.SessionCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, r.PushRoom("appointment:1", Envelope{Type: "room"}))
	assert.True(t, r.Online(p.ID))

	// closed sessions cannot rejoin
	r.Join(a, "appointment:1")
	assert.Empty(t, a.Rooms())
}

func TestRegistry_PresenceFiresOnFirstAndLast(t *testing.T) {
	r := NewRegistry(4, zerolog.Nop())

	var (
		mu     sync.Mutex
		events []bool
	)
	r.OnPresence(func(_ identity.Principal, online bool) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, online)
	})

	doc := identity.Principal{ID: uuid.New(), Kind: identity.KindDoctor}
	s1 := r.Register(context.Background(), doc)
	s2 := r.Register(context.Background(), doc)
	s1.Close()
	s2.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, events)
	assert.False(t, r.Online(doc.ID))
}

func TestRegistry_LatePresenceReportIsIgnored(t *testing.T) {
	r := NewRegistry(4, zerolog.Nop())

	var (
		mu     sync.Mutex
		events []bool
	)
	r.OnPresence(func(_ identity.Principal, online bool) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, online)
	})

	doc := identity.Principal{ID: uuid.New(), Kind: identity.KindDoctor}
	s1 := r.Register(context.Background(), doc)
	s1.Close()
	require.Eventually(t, func() bool { return !r.Online(doc.ID) }, time.Second, 5*time.Millisecond)

	s2 := r.Register(context.Background(), doc)
	defer s2.Close()

	// an offline report arriving after the reconnect sees the user online
	r.syncPresence(doc)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false, true}, events)
	assert.True(t, r.Online(doc.ID))
}

func TestRegistry_PresenceSettlesUnderReconnectRace(t *testing.T) {
	r := NewRegistry(4, zerolog.Nop())

	var (
		mu     sync.Mutex
		events []bool
	)
	r.OnPresence(func(_ identity.Principal, online bool) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, online)
	})

	doc := identity.Principal{ID: uuid.New(), Kind: identity.KindDoctor}
	current := r.Register(context.Background(), doc)
	for i := 0; i < 100; i++ {
		prev := current
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			prev.Close()
		}()
		go func() {
			defer wg.Done()
			current = r.Register(context.Background(), doc)
		}()
		wg.Wait()
	}
	defer current.Close()

	require.Eventually(t, func() bool { return r.SessionCount() == 1 }, time.Second, 5*time.Millisecond)
	r.syncPresence(doc)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.NotEqual(t, events[i-1], events[i], "presence reports must alternate")
	}
	assert.True(t, events[len(events)-1])
}

func TestRegistry_BroadcastSkipsClosedSessions(t *testing.T) {
	r := NewRegistry(4, zerolog.Nop())

	live := r.Register(context.Background(), patient())
	defer live.Close()
	closed := r.Register(context.Background(), patient())
	closed.Close()

	assert.Equal(t, 1, r.Broadcast(Envelope{Type: EnvelopeDoctorOnline}))
	env := <-live.Send()
	assert.Equal(t, EnvelopeDoctorOnline, env.Type)
}
