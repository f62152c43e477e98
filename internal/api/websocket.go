package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hackgods/triage-scheduling/internal/apperr"
	"github.com/hackgods/triage-scheduling/internal/notification"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 4096
)

// Client to server messages.
const (
	wsJoinAppointment  = "join_appointment"
	wsLeaveAppointment = "leave_appointment"
)

type clientMessage struct {
	Type          string `json:"type"`
	AppointmentID string `json:"appointment_id"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin is enforced by the gateway in front of the service
	CheckOrigin: func(r *http.Request) bool { return true },
}

// websocketHandler upgrades the request into a live notification session.
// The writer goroutine owns all writes to the connection.
func websocketHandler(d *notification.Dispatcher, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := principal(r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Str("user", p.String()).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		session, err := d.Subscribe(context.WithoutCancel(r.Context()), p)
		if err != nil {
			_ = conn.WriteJSON(notification.Envelope{Type: notification.EnvelopeError, Data: err.Error()})
			return
		}
		defer session.Close()

		log := logger.With().
			Str("session_id", session.ID.String()).
			Str("user", p.String()).
			Logger()
		log.Info().Msg("websocket connected")

		replies := make(chan notification.Envelope, 8)
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			writeLoop(conn, session, replies, log)
		}()

		readLoop(r.Context(), conn, d, session, replies, log)

		session.Close()
		<-writerDone
		log.Info().Msg("websocket disconnected")
	}
}

func writeLoop(conn *websocket.Conn, s *notification.Session, replies <-chan notification.Envelope, log zerolog.Logger) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	write := func(env notification.Envelope) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(env); err != nil {
			log.Debug().Err(err).Msg("websocket write failed")
			return false
		}
		return true
	}

	for {
		select {
		case env := <-s.Send():
			if !write(env) {
				s.Close()
				return
			}
		case env := <-replies:
			if !write(env) {
				s.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait),
			)
			// unblock the reader
			_ = conn.SetReadDeadline(time.Now())
			return
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, d *notification.Dispatcher, s *notification.Session, replies chan<- notification.Envelope, log zerolog.Logger) {
	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	reply := func(env notification.Envelope) {
		select {
		case replies <- env:
		case <-s.Done():
		}
	}

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}

		switch msg.Type {
		case wsJoinAppointment, wsLeaveAppointment:
			id, err := uuid.Parse(msg.AppointmentID)
			if err != nil {
				reply(notification.Envelope{Type: notification.EnvelopeError, Data: "appointment_id must be a valid UUID"})
				continue
			}
			if msg.Type == wsLeaveAppointment {
				d.LeaveAppointment(s, id)
				reply(notification.Envelope{Type: notification.EnvelopeLeftRoom, Data: map[string]any{"appointment_id": id}})
				continue
			}
			if err := d.JoinAppointment(ctx, s, id); err != nil {
				reply(notification.Envelope{Type: notification.EnvelopeError, Data: joinError(err)})
				continue
			}
			reply(notification.Envelope{Type: notification.EnvelopeJoinedRoom, Data: map[string]any{"appointment_id": id}})
		default:
			reply(notification.Envelope{Type: notification.EnvelopeError, Data: "unknown message type"})
		}
	}
}

func joinError(err error) string {
	if apperr.IsDomain(err) {
		return err.Error()
	}
	return "could not join appointment"
}
