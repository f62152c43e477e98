package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/triage-scheduling/internal/appointment"
	"github.com/hackgods/triage-scheduling/internal/config"
	"github.com/hackgods/triage-scheduling/internal/doctor"
	"github.com/hackgods/triage-scheduling/internal/identity"
	"github.com/hackgods/triage-scheduling/internal/matching"
	"github.com/hackgods/triage-scheduling/internal/notification"
	redisclient "github.com/hackgods/triage-scheduling/internal/redis"
	"github.com/hackgods/triage-scheduling/internal/triage"
)

const bookingDate = "2099-06-01"

type testServer struct {
	handler    http.Handler
	dispatcher *notification.Dispatcher
	doctor     identity.Principal
	patient    identity.Principal
	admin      identity.Principal
}

func newTestServer(t *testing.T, limiter *RateLimiter) *testServer {
	t.Helper()

	docID := uuid.New()
	dir := doctor.NewMemoryDirectory(doctor.Doctor{
		ID:             docID,
		Name:           "Dr. Heart",
		Specialization: "cardiology",
		Status:         doctor.StatusApproved,
		Rating:         4.8,
	})

	kb := triage.DefaultKnowledgeBase()
	classifier := triage.NewClassifier(kb)
	matcher := matching.NewMatcher(dir, kb.DefaultSpecialization())

	var svc *appointment.Service
	dispatcher := notification.NewDispatcher(
		notification.NewMemoryStore(),
		notification.NewRegistry(16, zerolog.Nop()),
		notification.WithPresence(dir),
		notification.WithAppointments(notification.AppointmentReaderFunc(
			func(ctx context.Context, p identity.Principal, id uuid.UUID) (*appointment.Appointment, error) {
				return svc.GetAppointment(ctx, p, id)
			})),
	)

	cfg := config.Config{
		StoreTimeout:               time.Second,
		DefaultAppointmentDuration: 30 * time.Minute,
	}
	svc = appointment.NewService(
		appointment.NewMemoryRepository(),
		redisclient.NewLocalSlotLocker(time.Second),
		dir,
		cfg,
		appointment.WithNotifier(dispatcher),
		appointment.WithTriage(classifier, matcher),
	)

	return &testServer{
		handler: NewRouter(RouterConfig{
			Service:       svc,
			Notifications: dispatcher,
			Analyzer:      classifier,
			Knowledge:     kb,
			RateLimiter:   limiter,
			Logger:        zerolog.Nop(),
			Env:           "test",
			Version:       "test",
		}),
		dispatcher: dispatcher,
		doctor:     identity.Principal{ID: docID, Kind: identity.KindDoctor},
		patient:    identity.Principal{ID: uuid.New(), Kind: identity.KindPatient},
		admin:      identity.Principal{ID: uuid.New(), Kind: identity.KindAdmin},
	}
}

func (s *testServer) do(t *testing.T, method, path string, as *identity.Principal, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if as != nil {
		req.Header.Set(HeaderUserID, as.ID.String())
		req.Header.Set(HeaderUserKind, string(as.Kind))
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) book(t *testing.T, slot string) AppointmentResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/appointments", &s.patient, CreateAppointmentRequest{
		DoctorID: s.doctor.ID.String(),
		Date:     bookingDate,
		TimeSlot: slot,
		Symptoms: []string{"chest pain"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[AppointmentResponse](t, rec)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(t, http.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[ReadinessResponse](t, rec)
	assert.Equal(t, "ok", ready.Status)
	assert.Equal(t, "disabled", ready.Dependencies["postgres"])
	assert.Equal(t, "disabled", ready.Dependencies["redis"])
}

func TestPrincipalRequired(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/appointments", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set(HeaderUserID, uuid.NewString())
	req.Header.Set(HeaderUserKind, "nurse")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTriageEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/triage/analyze", &s.patient, TriageRequest{Symptoms: []string{"chest pain", "shortness of breath"}, Age: 70})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[TriageResponse](t, rec)
	assert.Equal(t, "cardiology", resp.Top())
	assert.True(t, resp.Emergency)
	assert.NotEmpty(t, resp.Advice.ActionPlan)

	rec = s.do(t, http.MethodPost, "/triage/analyze", &s.patient, TriageRequest{Symptoms: []string{" "}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no_symptoms", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodGet, "/triage/symptoms?q=chest", &s.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[SymptomsResponse](t, rec).Symptoms, "chest pain")

	rec = s.do(t, http.MethodGet, "/triage/specializations/cardiology/symptoms", &s.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[SymptomsResponse](t, rec).Symptoms, "chest pain")

	rec = s.do(t, http.MethodGet, "/triage/specializations/astrology/symptoms", &s.patient, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookingFlow(t *testing.T) {
	s := newTestServer(t, nil)

	appt := s.book(t, "10:00")
	assert.Equal(t, "scheduled", appt.Status)
	assert.Equal(t, s.patient.ID, appt.PatientID)
	assert.Equal(t, 30, appt.DurationMinutes)

	// same slot again
	rec := s.do(t, http.MethodPost, "/appointments", &s.patient, CreateAppointmentRequest{
		DoctorID: s.doctor.ID.String(),
		Date:     bookingDate,
		TimeSlot: "10:00",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_already_booked", decode[ErrorResponse](t, rec).Error)

	// doctors cannot book
	rec = s.do(t, http.MethodPost, "/appointments", &s.doctor, CreateAppointmentRequest{
		DoctorID: s.doctor.ID.String(),
		Date:     bookingDate,
		TimeSlot: "11:00",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// bad date
	rec = s.do(t, http.MethodPost, "/appointments", &s.patient, CreateAppointmentRequest{
		DoctorID: s.doctor.ID.String(),
		Date:     "01/06/2099",
		TimeSlot: "11:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "appointmentDate", decode[ErrorResponse](t, rec).Field)

	path := "/appointments/" + appt.ID.String()

	rec = s.do(t, http.MethodGet, path, &s.doctor, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	stranger := identity.Principal{ID: uuid.New(), Kind: identity.KindPatient}
	rec = s.do(t, http.MethodGet, path, &stranger, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), &s.patient, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// patients may only cancel
	rec = s.do(t, http.MethodPatch, path+"/status", &s.patient, UpdateStatusRequest{Status: "confirmed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPatch, path+"/status", &s.doctor, UpdateStatusRequest{Status: "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "confirmed", decode[AppointmentResponse](t, rec).Status)

	rec = s.do(t, http.MethodPatch, path+"/status", &s.doctor, UpdateStatusRequest{Status: "completed"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, path+"/cancel", &s.patient, CancelRequest{Reason: "feeling better"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Contains(t, cancelled.Notes, "feeling better")

	// the slot is free again
	s.book(t, "10:00")

	rec = s.do(t, http.MethodGet, "/appointments?status=cancelled", &s.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[AppointmentListResponse](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, appt.ID, list.Items[0].ID)
	assert.Equal(t, 20, list.Limit)
}

func TestRatingFlow(t *testing.T) {
	s := newTestServer(t, nil)
	appt := s.book(t, "09:00")
	path := "/appointments/" + appt.ID.String()

	rec := s.do(t, http.MethodPost, path+"/rating", &s.patient, RateRequest{Rating: 5})
	assert.Equal(t, http.StatusConflict, rec.Code)

	for _, status := range []string{"confirmed", "in-progress", "completed"} {
		rec = s.do(t, http.MethodPatch, path+"/status", &s.doctor, UpdateStatusRequest{Status: status})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, path+"/rating", &s.patient, RateRequest{Rating: 6})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, path+"/rating", &s.doctor, RateRequest{Rating: 5})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, path+"/rating", &s.patient, RateRequest{Rating: 4, Review: "kind"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rated := decode[AppointmentResponse](t, rec)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 4, *rated.Rating)
}

func TestAutoBooking(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/appointments/auto", &s.patient, AutoBookRequest{
		Symptoms: []string{"chest pain"},
		Date:     bookingDate,
		TimeSlot: "14:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[AutoBookResponse](t, rec)
	assert.Equal(t, s.doctor.ID, resp.Appointment.DoctorID)
	assert.Equal(t, "cardiology", resp.Specialization)
	assert.False(t, resp.Fallback)
	assert.Equal(t, "urgent", resp.Appointment.Priority)

	rec = s.do(t, http.MethodPost, "/appointments/auto", &s.patient, AutoBookRequest{
		Symptoms: []string{"itchy rash"},
		Date:     bookingDate,
		TimeSlot: "15:00",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_available_doctor", decode[ErrorResponse](t, rec).Error)
}

func TestNotificationEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	s.book(t, "10:00")

	rec := s.do(t, http.MethodGet, "/notifications", &s.doctor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[notification.Page](t, rec)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.UnreadCount)
	id := page.Items[0].ID

	rec = s.do(t, http.MethodPatch, "/notifications/"+id.String()+"/read", &s.patient, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPatch, "/notifications/"+id.String()+"/read", &s.doctor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[notification.Notification](t, rec).IsRead)

	rec = s.do(t, http.MethodGet, "/notifications/unread-count", &s.doctor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[CountResponse](t, rec).Count)

	create := CreateNotificationRequest{
		RecipientID:   s.patient.ID.String(),
		RecipientKind: "patient",
		Title:         "Clinic closed",
		Message:       "Closed on Friday",
		Category:      "system",
	}
	rec = s.do(t, http.MethodPost, "/notifications", &s.patient, create)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/notifications", &s.admin, create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	create.Category = "gossip"
	rec = s.do(t, http.MethodPost, "/notifications", &s.admin, create)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPatch, "/notifications/read-all", &s.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[CountResponse](t, rec).Count)

	rec = s.do(t, http.MethodDelete, "/notifications/"+id.String(), &s.doctor, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/notifications/"+id.String(), &s.doctor, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	limiter, err := NewRateLimiter(0.001, 2, 16)
	require.NoError(t, err)
	s := newTestServer(t, limiter)

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodGet, "/appointments", &s.patient, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := s.do(t, http.MethodGet, "/appointments", &s.patient, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// other callers have their own budget
	rec = s.do(t, http.MethodGet, "/appointments", &s.doctor, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// health is never limited
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/live", nil, nil).Code)
	}
}

func dialWS(t *testing.T, srv *httptest.Server, p identity.Principal) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{}
	header.Set(HeaderUserID, p.ID.String())
	header.Set(HeaderUserKind, string(p.Kind))

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wireEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) wireEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var env wireEnvelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Type == typ {
			return env
		}
	}
}

func TestWebsocketSession(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	docConn := dialWS(t, srv, s.doctor)
	require.Eventually(t, func() bool {
		return s.dispatcher.Registry().Online(s.doctor.ID)
	}, 2*time.Second, 10*time.Millisecond)

	patConn := dialWS(t, srv, s.patient)
	require.Eventually(t, func() bool {
		return s.dispatcher.Registry().Online(s.patient.ID)
	}, 2*time.Second, 10*time.Millisecond)

	// booking pushes to the doctor
	appt := s.book(t, "10:00")
	env := readUntil(t, docConn, notification.EnvelopeNotification)
	var n notification.Notification
	require.NoError(t, json.Unmarshal(env.Data, &n))
	assert.Equal(t, "/appointments/"+appt.ID.String(), n.ActionURL)

	// join the appointment room, then a status change is broadcast to it
	require.NoError(t, patConn.WriteJSON(clientMessage{Type: wsJoinAppointment, AppointmentID: appt.ID.String()}))
	readUntil(t, patConn, notification.EnvelopeJoinedRoom)

	rec := s.do(t, http.MethodPatch, "/appointments/"+appt.ID.String()+"/status", &s.doctor, UpdateStatusRequest{Status: "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code)
	readUntil(t, patConn, notification.EnvelopeAppointmentStatusChanged)

	// strangers cannot join
	strangerConn := dialWS(t, srv, identity.Principal{ID: uuid.New(), Kind: identity.KindPatient})
	require.NoError(t, strangerConn.WriteJSON(clientMessage{Type: wsJoinAppointment, AppointmentID: appt.ID.String()}))
	readUntil(t, strangerConn, notification.EnvelopeError)

	// doctor going offline is observed by others
	require.NoError(t, docConn.Close())
	readUntil(t, patConn, notification.EnvelopeDoctorOffline)
	assert.Eventually(t, func() bool {
		return !s.dispatcher.Registry().Online(s.doctor.ID)
	}, 2*time.Second, 10*time.Millisecond)
}
