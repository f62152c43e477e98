package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/triage-scheduling/internal/identity"
	"github.com/hackgods/triage-scheduling/internal/notification"
)

func listNotificationsHandler(d *notification.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := notification.ListQuery{
			Page:       queryInt(r, "page"),
			Limit:      queryInt(r, "limit"),
			UnreadOnly: r.URL.Query().Get("unread_only") == "true",
		}

		page, err := d.List(r.Context(), principal(r), q)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func unreadCountHandler(d *notification.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := d.UnreadCount(r.Context(), principal(r))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: n})
	}
}

func markReadHandler(d *notification.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		n, err := d.MarkRead(r.Context(), principal(r), id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func markAllReadHandler(d *notification.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := d.MarkAllRead(r.Context(), principal(r))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: n})
	}
}

func deleteNotificationHandler(d *notification.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		if err := d.Delete(r.Context(), principal(r), id); err != nil {
			writeDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func createNotificationHandler(d *notification.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateNotificationRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		recipientID, err := uuid.Parse(req.RecipientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_recipient_id", "recipient_id must be a valid UUID")
			return
		}

		n, err := d.Create(r.Context(), principal(r), notification.CreateRequest{
			RecipientID:   recipientID,
			RecipientKind: identity.Kind(req.RecipientKind),
			Title:         req.Title,
			Message:       req.Message,
			Category:      notification.Category(req.Category),
			Priority:      notification.Priority(req.Priority),
			ActionURL:     req.ActionURL,
			Metadata:      req.Metadata,
			ExpiresAt:     req.ExpiresAt,
		})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, n)
	}
}
