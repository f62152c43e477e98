package notification

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/triage-scheduling/internal/apperr"
	"github.com/hackgods/triage-scheduling/internal/appointment"
	"github.com/hackgods/triage-scheduling/internal/doctor"
	"github.com/hackgods/triage-scheduling/internal/identity"
)

var (
	ErrNotRecipient = apperr.New(apperr.ErrAuthorization, "notification belongs to another user")
	ErrAdminOnly    = apperr.New(apperr.ErrAuthorization, "only administrators may create notifications")
)

// AppointmentReader authorizes room membership.
type AppointmentReader interface {
	GetAppointment(ctx context.Context, p identity.Principal, id uuid.UUID) (*appointment.Appointment, error)
}

// AppointmentReaderFunc adapts a function to AppointmentReader.
type AppointmentReaderFunc func(ctx context.Context, p identity.Principal, id uuid.UUID) (*appointment.Appointment, error)

func (f AppointmentReaderFunc) GetAppointment(ctx context.Context, p identity.Principal, id uuid.UUID) (*appointment.Appointment, error) {
	return f(ctx, p, id)
}

// Relay carries pushes to the other nodes of the deployment.
type Relay interface {
	Publish(ctx context.Context, payload []byte) error
}

type relayMessage struct {
	Origin string          `json:"origin"`
	UserID *uuid.UUID      `json:"user_id,omitempty"`
	Room   string          `json:"room,omitempty"`
	All    bool            `json:"all,omitempty"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
}

const recipientPartitions = 64

type Dispatcher struct {
	store        Store
	registry     *Registry
	directory    doctor.Directory
	appointments AppointmentReader
	relay        Relay
	nodeID       string

	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	// publish order per recipient
	recipientLocks [recipientPartitions]sync.Mutex
}

type Option func(*Dispatcher)

func WithTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) { d.ttl = ttl }
}

func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithPresence flips the doctor's online flag on first connect and last
// disconnect.
func WithPresence(dir doctor.Directory) Option {
	return func(d *Dispatcher) { d.directory = dir }
}

func WithAppointments(r AppointmentReader) Option {
	return func(d *Dispatcher) { d.appointments = r }
}

func WithRelay(r Relay, nodeID string) Option {
	return func(d *Dispatcher) {
		d.relay = r
		d.nodeID = nodeID
	}
}

func NewDispatcher(store Store, registry *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		registry: registry,
		nodeID:   uuid.NewString(),
		ttl:      30 * 24 * time.Hour,
		timeout:  5 * time.Second,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	registry.OnPresence(d.presenceChanged)
	return d
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

func (d *Dispatcher) recipientLock(id uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return &d.recipientLocks[h.Sum32()%recipientPartitions]
}

// Publish records n durably and then pushes it to the recipient's live
// sessions. A failed push is logged only; the stored record is delivered
// on the next poll.
func (d *Dispatcher) Publish(ctx context.Context, n Notification) (*Notification, error) {
	if n.RecipientID == uuid.Nil {
		return nil, apperr.Validation("recipientId", "recipient is required", nil)
	}
	if !n.RecipientKind.Valid() {
		return nil, apperr.Validation("recipientKind", "unknown recipient kind", n.RecipientKind)
	}
	if strings.TrimSpace(n.Title) == "" {
		return nil, apperr.Validation("title", "title is required", nil)
	}
	if strings.TrimSpace(n.Message) == "" {
		return nil, apperr.Validation("message", "message is required", nil)
	}
	if n.Category == "" {
		n.Category = CategorySystem
	}
	if !n.Category.Valid() {
		return nil, apperr.Validation("category", "unknown category", n.Category)
	}
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	if !n.Priority.Valid() {
		return nil, apperr.Validation("priority", "unknown priority", n.Priority)
	}

	now := d.now()
	n.ID = uuid.New()
	n.IsRead = false
	n.ReadAt = nil
	n.CreatedAt = now
	if n.ExpiresAt.IsZero() {
		n.ExpiresAt = now.Add(d.ttl)
	}

	lock := d.recipientLock(n.RecipientID)
	lock.Lock()
	defer lock.Unlock()

	storeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.store.Insert(storeCtx, &n); err != nil {
		return nil, apperr.Unavailable("store notification", err)
	}

	env := Envelope{Type: EnvelopeNotification, Data: n}
	delivered := d.registry.PushUser(n.RecipientID, env)
	d.relayUser(ctx, n.RecipientID, env)

	d.logger.Debug().
		Str("notification_id", n.ID.String()).
		Str("recipient", n.Recipient().String()).
		Int("sessions", delivered).
		Msg("notification published")

	return &n, nil
}

type CreateRequest struct {
	RecipientID   uuid.UUID
	RecipientKind identity.Kind
	Title         string
	Message       string
	Category      Category
	Priority      Priority
	ActionURL     string
	Metadata      map[string]any
	ExpiresAt     *time.Time
}

// Create lets an administrator publish an arbitrary notification.
func (d *Dispatcher) Create(ctx context.Context, p identity.Principal, req CreateRequest) (*Notification, error) {
	if !p.IsAdmin() {
		return nil, ErrAdminOnly
	}
	n := Notification{
		RecipientID:   req.RecipientID,
		RecipientKind: req.RecipientKind,
		Title:         req.Title,
		Message:       req.Message,
		Category:      req.Category,
		Priority:      req.Priority,
		ActionURL:     req.ActionURL,
		Metadata:      req.Metadata,
	}
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(d.now()) {
			return nil, apperr.Validation("expiresAt", "expiry must be in the future", req.ExpiresAt)
		}
		n.ExpiresAt = *req.ExpiresAt
	}
	return d.Publish(ctx, n)
}

// Subscribe opens a live session for p.
func (d *Dispatcher) Subscribe(ctx context.Context, p identity.Principal) (*Session, error) {
	if p.ID == uuid.Nil || !p.Kind.Valid() {
		return nil, apperr.Validation("principal", "unknown principal", p.String())
	}
	return d.registry.Register(ctx, p), nil
}

// owned loads a live notification that belongs to p.
func (d *Dispatcher) owned(ctx context.Context, p identity.Principal, id uuid.UUID) (*Notification, error) {
	n, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable("load notification", err)
	}
	if n.Expired(d.now()) {
		return nil, ErrNotificationNotFound
	}
	if n.Recipient() != p {
		return nil, ErrNotRecipient
	}
	return n, nil
}

// MarkRead is idempotent; repeated calls return the first read timestamp.
func (d *Dispatcher) MarkRead(ctx context.Context, p identity.Principal, id uuid.UUID) (*Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	n, err := d.owned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if n.IsRead {
		return n, nil
	}

	updated, err := d.store.MarkRead(ctx, id, d.now())
	if err != nil {
		return nil, apperr.Unavailable("mark notification read", err)
	}
	return updated, nil
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, p identity.Principal) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	count, err := d.store.MarkAllRead(ctx, p, d.now())
	if err != nil {
		return 0, apperr.Unavailable("mark all notifications read", err)
	}
	return count, nil
}

func (d *Dispatcher) List(ctx context.Context, p identity.Principal, q ListQuery) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	q.normalize()
	now := d.now()

	items, total, err := d.store.List(ctx, p, q, now)
	if err != nil {
		return nil, apperr.Unavailable("list notifications", err)
	}
	unread, err := d.store.CountUnread(ctx, p, now)
	if err != nil {
		return nil, apperr.Unavailable("count unread notifications", err)
	}

	pages := (total + q.Limit - 1) / q.Limit
	if items == nil {
		items = []Notification{}
	}
	return &Page{
		Items:       items,
		Total:       total,
		UnreadCount: unread,
		Page:        q.Page,
		Pages:       pages,
	}, nil
}

func (d *Dispatcher) UnreadCount(ctx context.Context, p identity.Principal) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	count, err := d.store.CountUnread(ctx, p, d.now())
	if err != nil {
		return 0, apperr.Unavailable("count unread notifications", err)
	}
	return count, nil
}

func (d *Dispatcher) Delete(ctx context.Context, p identity.Principal, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if _, err := d.owned(ctx, p, id); err != nil {
		return err
	}
	if err := d.store.Delete(ctx, id); err != nil {
		return apperr.Unavailable("delete notification", err)
	}
	return nil
}

// PurgeExpired removes expired notifications and returns how many were removed.
func (d *Dispatcher) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := d.store.PurgeExpired(ctx, d.now())
	if err != nil {
		return 0, apperr.Unavailable("purge expired notifications", err)
	}
	return n, nil
}

func AppointmentRoom(id uuid.UUID) string {
	return "appointment:" + id.String()
}

// JoinAppointment adds s to the appointment's room. Only parties to the
// appointment and administrators may join.
func (d *Dispatcher) JoinAppointment(ctx context.Context, s *Session, id uuid.UUID) error {
	if d.appointments == nil {
		return apperr.New(apperr.ErrNotFound, "appointment rooms are not available")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if _, err := d.appointments.GetAppointment(ctx, s.Principal, id); err != nil {
		return err
	}
	d.registry.Join(s, AppointmentRoom(id))
	return nil
}

func (d *Dispatcher) LeaveAppointment(s *Session, id uuid.UUID) {
	d.registry.Leave(s, AppointmentRoom(id))
}

func (d *Dispatcher) presenceChanged(p identity.Principal, online bool) {
	if p.Kind != identity.KindDoctor {
		return
	}

	if d.directory != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.directory.SetOnline(ctx, p.ID, online)
		cancel()
		if err != nil {
			d.logger.Warn().
				Err(err).
				Str("doctor_id", p.ID.String()).
				Bool("online", online).
				Msg("failed to update doctor presence")
		}
	}

	typ := EnvelopeDoctorOffline
	if online {
		typ = EnvelopeDoctorOnline
	}
	env := Envelope{Type: typ, Data: map[string]any{
		"doctor_id": p.ID,
		"at":        d.now(),
	}}
	d.registry.Broadcast(env)
	d.relayAll(context.Background(), env)
}

func (d *Dispatcher) pushRoom(ctx context.Context, room string, env Envelope) {
	d.registry.PushRoom(room, env)
	if d.relay != nil {
		d.relayPublish(ctx, relayMessage{Room: room}, env)
	}
}

func (d *Dispatcher) relayUser(ctx context.Context, userID uuid.UUID, env Envelope) {
	if d.relay != nil {
		d.relayPublish(ctx, relayMessage{UserID: &userID}, env)
	}
}

func (d *Dispatcher) relayAll(ctx context.Context, env Envelope) {
	if d.relay != nil {
		d.relayPublish(ctx, relayMessage{All: true}, env)
	}
}

func (d *Dispatcher) relayPublish(ctx context.Context, msg relayMessage, env Envelope) {
	data, err := json.Marshal(env.Data)
	if err != nil {
		d.logger.Warn().Err(err).Str("type", env.Type).Msg("encode relay payload")
		return
	}
	msg.Origin = d.nodeID
	msg.Type = env.Type
	msg.Data = data

	payload, err := json.Marshal(msg)
	if err != nil {
		d.logger.Warn().Err(err).Str("type", env.Type).Msg("encode relay message")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := d.relay.Publish(ctx, payload); err != nil {
		d.logger.Warn().Err(err).Str("type", env.Type).Msg("relay publish failed")
	}
}

// HandleRelay delivers a push published by another node to local sessions.
func (d *Dispatcher) HandleRelay(payload []byte) {
	var msg relayMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		d.logger.Warn().Err(err).Msg("decode relay message")
		return
	}
	if msg.Origin == d.nodeID {
		return
	}

	env := Envelope{Type: msg.Type, Data: msg.Data}
	switch {
	case msg.UserID != nil:
		d.registry.PushUser(*msg.UserID, env)
	case msg.Room != "":
		d.registry.PushRoom(msg.Room, env)
	case msg.All:
		d.registry.Broadcast(env)
	}
}
