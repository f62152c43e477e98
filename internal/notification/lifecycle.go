package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/hackgods/triage-scheduling/internal/appointment"
)

var statusTitles = map[appointment.AppointmentStatus]string{
	appointment.StatusConfirmed:  "Appointment Confirmed",
	appointment.StatusInProgress: "Appointment Started",
	appointment.StatusCompleted:  "Appointment Completed",
	appointment.StatusCancelled:  "Appointment Cancelled",
	appointment.StatusNoShow:     "Appointment Marked as No-Show",
}

// AppointmentChanged turns a scheduler lifecycle event into one stored
// notification per recipient plus a room broadcast. Failures are logged and
// never reach the scheduler.
func (d *Dispatcher) AppointmentChanged(ctx context.Context, ev appointment.Event) {
	a := ev.Appointment
	title, message := describe(ev)

	priority := PriorityMedium
	category := CategoryAppointment
	if ev.Urgent {
		priority = PriorityHigh
	}
	if ev.Type == appointment.EventAppointmentBooked && a.Type == appointment.TypeEmergency {
		category = CategoryEmergency
		priority = PriorityUrgent
	}

	metadata := map[string]any{
		"appointment_id": a.ID.String(),
		"status":         string(a.Status),
		"date":           a.Date,
		"time_slot":      a.TimeSlot,
	}
	if ev.PreviousStatus != "" {
		metadata["previous_status"] = string(ev.PreviousStatus)
	}

	for _, recipient := range ev.Recipients {
		_, err := d.Publish(ctx, Notification{
			RecipientID:   recipient.ID,
			RecipientKind: recipient.Kind,
			Title:         title,
			Message:       message,
			Category:      category,
			Priority:      priority,
			ActionURL:     "/appointments/" + a.ID.String(),
			Metadata:      metadata,
		})
		if err != nil {
			d.logger.Error().
				Err(err).
				Str("appointment_id", a.ID.String()).
				Str("recipient", recipient.String()).
				Msg("failed to publish appointment notification")
		}
	}

	if ev.Type == appointment.EventAppointmentStatusChanged {
		d.pushRoom(ctx, AppointmentRoom(a.ID), Envelope{
			Type: EnvelopeAppointmentStatusChanged,
			Data: map[string]any{
				"appointment_id":  a.ID,
				"status":          a.Status,
				"previous_status": ev.PreviousStatus,
				"updated_by":      ev.Actor.String(),
				"at":              d.now(),
			},
		})
	}
}

func describe(ev appointment.Event) (string, string) {
	a := ev.Appointment
	when := fmt.Sprintf("%s at %s", a.Date, a.TimeSlot)

	switch ev.Type {
	case appointment.EventAppointmentBooked:
		title := "New Appointment Request"
		if ev.Urgent {
			title = "URGENT: New Appointment Request"
		}
		msg := fmt.Sprintf("A %s has been booked for %s.", a.Type, when)
		if len(a.Symptoms) > 0 {
			msg += " Symptoms: " + strings.Join(a.Symptoms, ", ") + "."
		}
		return title, msg

	case appointment.EventAppointmentRated:
		rating := 0
		if a.Rating != nil {
			rating = *a.Rating
		}
		return "New Rating Received", fmt.Sprintf("Your appointment on %s was rated %d/5.", when, rating)

	default:
		title, ok := statusTitles[a.Status]
		if !ok {
			title = "Appointment Updated"
		}
		msg := fmt.Sprintf("The appointment on %s is now %s.", when, a.Status)
		if ev.Reason != "" {
			msg += " Reason: " + ev.Reason
		}
		return title, msg
	}
}
