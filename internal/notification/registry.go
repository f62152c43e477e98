package notification

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/triage-scheduling/internal/identity"
)

// Envelope is one message pushed to a live session.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	EnvelopeNotification             = "notification"
	EnvelopeDoctorOnline             = "doctor_online"
	EnvelopeDoctorOffline            = "doctor_offline"
	EnvelopeAppointmentStatusChanged = "appointment_status_changed"
	EnvelopeJoinedRoom               = "joined_room"
	EnvelopeLeftRoom                 = "left_room"
	EnvelopeError                    = "error"
)

// Session is one live connection of a user. The transport drains Send and
// calls Close when the connection ends.
type Session struct {
	ID        uuid.UUID
	Principal identity.Principal

	send   chan Envelope
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[string]struct{}
}

func (s *Session) Send() <-chan Envelope {
	return s.send
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) Close() {
	s.cancel()
}

func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	return out
}

type userEntry struct {
	principal identity.Principal
	sessions  map[*Session]struct{}
}

// PresenceFunc is called when a user's first session opens (online=true) or
// last session closes (online=false).
type PresenceFunc func(p identity.Principal, online bool)

// Registry maps users to their live sessions and rooms to their members.
type Registry struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]*userEntry
	rooms  map[string]map[*Session]struct{}
	buffer int

	onPresence PresenceFunc
	presenceMu sync.Mutex
	reported   map[uuid.UUID]bool
	logger     zerolog.Logger
}

func NewRegistry(buffer int, logger zerolog.Logger) *Registry {
	if buffer <= 0 {
		buffer = 64
	}
	return &Registry{
		users:    make(map[uuid.UUID]*userEntry),
		rooms:    make(map[string]map[*Session]struct{}),
		reported: make(map[uuid.UUID]bool),
		buffer:   buffer,
		logger:   logger,
	}
}

// OnPresence installs the presence hook. Call before the first Register.
func (r *Registry) OnPresence(fn PresenceFunc) {
	r.onPresence = fn
}

// Register opens a session for p. The session is unregistered when ctx is
// cancelled or Close is called.
func (r *Registry) Register(ctx context.Context, p identity.Principal) *Session {
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:        uuid.New(),
		Principal: p,
		send:      make(chan Envelope, r.buffer),
		ctx:       sctx,
		cancel:    cancel,
		rooms:     make(map[string]struct{}),
	}

	r.mu.Lock()
	entry, ok := r.users[p.ID]
	if !ok {
		entry = &userEntry{principal: p, sessions: make(map[*Session]struct{})}
		r.users[p.ID] = entry
	}
	entry.sessions[s] = struct{}{}
	first := len(entry.sessions) == 1
	r.mu.Unlock()

	r.logger.Debug().
		Str("session_id", s.ID.String()).
		Str("user", p.String()).
		Msg("session registered")

	if first {
		r.syncPresence(p)
	}

	go func() {
		<-sctx.Done()
		r.unregister(s)
	}()

	return s
}

func (r *Registry) unregister(s *Session) {
	r.mu.Lock()
	last := false
	if entry, ok := r.users[s.Principal.ID]; ok {
		if _, member := entry.sessions[s]; member {
			delete(entry.sessions, s)
			if len(entry.sessions) == 0 {
				delete(r.users, s.Principal.ID)
				last = true
			}
		}
	}
	for _, room := range s.Rooms() {
		r.leaveLocked(s, room)
	}
	r.mu.Unlock()

	r.logger.Debug().
		Str("session_id", s.ID.String()).
		Str("user", s.Principal.String()).
		Msg("session unregistered")

	if last {
		r.syncPresence(s.Principal)
	}
}

// syncPresence reports the user's current online state when it differs from
// the last state reported for them.
func (r *Registry) syncPresence(p identity.Principal) {
	if r.onPresence == nil {
		return
	}
	r.presenceMu.Lock()
	defer r.presenceMu.Unlock()

	online := r.Online(p.ID)
	if r.reported[p.ID] == online {
		return
	}
	if online {
		r.reported[p.ID] = true
	} else {
		delete(r.reported, p.ID)
	}
	r.onPresence(p, online)
}

func (r *Registry) Join(s *Session, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-s.Done():
		return
	default:
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		r.rooms[room] = members
	}
	members[s] = struct{}{}

	s.mu.Lock()
	s.rooms[room] = struct{}{}
	s.mu.Unlock()
}

func (r *Registry) Leave(s *Session, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(s, room)
}

func (r *Registry) leaveLocked(s *Session, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	s.mu.Lock()
	delete(s.rooms, room)
	s.mu.Unlock()
}

// Online reports whether the user has at least one live session.
func (r *Registry) Online(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// SessionCount is the number of live sessions across all users.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.users {
		n += len(e.sessions)
	}
	return n
}

// PushUser delivers env to every session of the user and returns how many
// sessions accepted it.
func (r *Registry) PushUser(userID uuid.UUID, env Envelope) int {
	r.mu.RLock()
	var targets []*Session
	if entry, ok := r.users[userID]; ok {
		targets = make([]*Session, 0, len(entry.sessions))
		for s := range entry.sessions {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	return r.deliver(targets, env)
}

func (r *Registry) PushRoom(room string, env Envelope) int {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.rooms[room]))
	for s := range r.rooms[room] {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	return r.deliver(targets, env)
}

func (r *Registry) Broadcast(env Envelope) int {
	r.mu.RLock()
	var targets []*Session
	for _, e := range r.users {
		for s := range e.sessions {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	return r.deliver(targets, env)
}

// deliver never blocks. A session whose buffer is full is closed and the
// message is not retried on it; durable storage covers the gap.
func (r *Registry) deliver(targets []*Session, env Envelope) int {
	delivered := 0
	for _, s := range targets {
		select {
		case <-s.Done():
			continue
		default:
		}

		select {
		case s.send <- env:
			delivered++
		default:
			r.logger.Warn().
				Str("session_id", s.ID.String()).
				Str("user", s.Principal.String()).
				Str("type", env.Type).
				Msg("session buffer full, dropping session")
			s.Close()
		}
	}
	return delivered
}
