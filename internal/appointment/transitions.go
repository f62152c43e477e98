package appointment

import (
	"github.com/hackgods/triage-scheduling/internal/apperr"
	"github.com/hackgods/triage-scheduling/internal/identity"
)

var (
	ErrNotParty          = apperr.New(apperr.ErrAuthorization, "not a party to this appointment")
	ErrPatientOnlyCancel = apperr.New(apperr.ErrAuthorization, "patients may only cancel their appointments")
	ErrNotRatingPatient  = apperr.New(apperr.ErrAuthorization, "only the appointment's patient may rate it")
)

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled:  {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to AppointmentStatus) error {
	if from.Terminal() {
		return apperr.Newf(apperr.ErrInvalidTransition, "appointment is already %s", from)
	}
	if !CanTransition(from, to) {
		return apperr.Newf(apperr.ErrInvalidTransition, "cannot move appointment from %s to %s", from, to)
	}
	return nil
}

// isParty reports whether p may read a.
func isParty(p identity.Principal, a *Appointment) bool {
	switch p.Kind {
	case identity.KindAdmin:
		return true
	case identity.KindDoctor:
		return p.ID == a.DoctorID
	case identity.KindPatient:
		return p.ID == a.PatientID
	}
	return false
}

func authorizeTransition(p identity.Principal, a *Appointment, to AppointmentStatus) error {
	if !isParty(p, a) {
		return ErrNotParty
	}
	if p.Kind == identity.KindPatient && to != StatusCancelled {
		return ErrPatientOnlyCancel
	}
	return nil
}

// counterparts lists who should hear about an action taken by actor.
func counterparts(actor identity.Principal, a *Appointment) []identity.Principal {
	patient := identity.Principal{ID: a.PatientID, Kind: identity.KindPatient}
	doc := identity.Principal{ID: a.DoctorID, Kind: identity.KindDoctor}

	switch {
	case actor.Kind == identity.KindPatient && actor.ID == a.PatientID:
		return []identity.Principal{doc}
	case actor.Kind == identity.KindDoctor && actor.ID == a.DoctorID:
		return []identity.Principal{patient}
	default:
		return []identity.Principal{patient, doc}
	}
}
