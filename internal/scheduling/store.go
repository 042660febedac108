package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrAlreadyCancelled    = errors.New("appointment is already cancelled")
	ErrConflict            = errors.New("interval conflicts with a confirmed appointment")
)

// ConflictPredicate decides whether a candidate appointment collides with an
// existing confirmed one. The ledger re-evaluates it inside the same unit of
// work that performs the insert.
type ConflictPredicate func(existing Appointment) bool

// AvailabilityStore holds the windows a practitioner accepts bookings in.
// Windows are only ever appended; the engine never mutates or removes them.
type AvailabilityStore interface {
	AddWindow(ctx context.Context, w AvailabilityWindow) error
	WindowsFor(ctx context.Context, practitionerID uuid.UUID, from *time.Time) ([]AvailabilityWindow, error)
}

// AppointmentLedger holds booking records and their lifecycle status.
//
// InsertIfNoConflict is the primitive the whole design leans on: the conflict
// re-check and the insert happen in one atomic unit with respect to other
// concurrent bookings for the same practitioner. A plain read-check-write
// sequence is not an acceptable implementation.
type AppointmentLedger interface {
	ConfirmedFor(ctx context.Context, practitionerID uuid.UUID, from *time.Time) ([]Appointment, error)
	ConfirmedForRequester(ctx context.Context, requesterID uuid.UUID, from *time.Time) ([]Appointment, error)
	Find(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// InsertIfNoConflict atomically re-runs conflicts against the current
	// confirmed set of appt.PractitionerID and inserts appt as confirmed if
	// nothing matched. Returns ErrConflict and leaves no trace otherwise.
	InsertIfNoConflict(ctx context.Context, appt Appointment, conflicts ConflictPredicate) (*Appointment, error)

	// Cancel transitions a confirmed appointment to cancelled. Returns
	// ErrAppointmentNotFound for unknown ids and ErrAlreadyCancelled if the
	// transition already happened.
	Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error)
}
