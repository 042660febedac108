package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidInterval     = errors.New("interval end must be after start")
	ErrIntervalInPast      = errors.New("interval starts in the past")
	ErrUnknownPractitioner = errors.New("practitioner has no registered availability")
	ErrOutsideAvailability = errors.New("interval is not inside any availability window")
	ErrBookingConflict     = errors.New("interval is already booked")
	ErrForbidden           = errors.New("actor is not allowed to perform this operation")
)

// Locker serializes booking attempts per practitioner. It is an optimization
// to shed contention before opening a ledger unit of work; the ledger's
// InsertIfNoConflict remains the correctness guarantee either way.
type Locker interface {
	WithPractitionerLock(ctx context.Context, practitionerID uuid.UUID, fn func(ctx context.Context) error) error
}

// NoopLocker runs the critical section without any external lock. Used in
// tests and single-process deployments where the ledger alone is enough.
type NoopLocker struct{}

func (NoopLocker) WithPractitionerLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Engine validates booking requests and commits or rejects them atomically.
// It holds no connection state of its own; all persistence goes through the
// injected store and ledger.
type Engine struct {
	windows AvailabilityStore
	ledger  AppointmentLedger
	locker  Locker
	clock   Clock
	log     *zap.Logger
}

func NewEngine(windows AvailabilityStore, ledger AppointmentLedger, locker Locker, clock Clock, log *zap.Logger) *Engine {
	if locker == nil {
		locker = NoopLocker{}
	}
	if clock == nil {
		clock = SystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		windows: windows,
		ledger:  ledger,
		locker:  locker,
		clock:   clock,
		log:     log,
	}
}

// AddWindow registers a new availability window for a practitioner. Windows
// may overlap existing ones; they are evaluated independently at booking time.
func (e *Engine) AddWindow(ctx context.Context, actor Actor, practitionerID uuid.UUID, start, end time.Time) (*AvailabilityWindow, error) {
	if !actor.Role.CanPublishAvailability() || actor.ID != practitionerID {
		return nil, ErrForbidden
	}
	if !end.After(start) {
		return nil, ErrInvalidInterval
	}

	w := AvailabilityWindow{
		ID:             uuid.New(),
		PractitionerID: practitionerID,
		Start:          start,
		End:            end,
		CreatedAt:      e.clock.Now(),
	}
	if err := e.windows.AddWindow(ctx, w); err != nil {
		return nil, fmt.Errorf("add window: %w", err)
	}

	e.log.Info("availability window added",
		zap.String("practitioner_id", practitionerID.String()),
		zap.Time("start", start),
		zap.Time("end", end),
	)
	return &w, nil
}

// Book validates the requested interval and commits it as a confirmed
// appointment, or reports the first failed check. The final conflict check
// and the insert run in one atomic unit against the ledger so that two
// concurrent calls for overlapping intervals can never both succeed.
func (e *Engine) Book(ctx context.Context, actor Actor, practitionerID, requesterID uuid.UUID, start, end time.Time) (*Appointment, error) {
	if !actor.Role.CanBook() || actor.ID != requesterID {
		return nil, ErrForbidden
	}

	// Local precondition checks happen before any store or ledger access.
	if !end.After(start) {
		return nil, ErrInvalidInterval
	}
	now := e.clock.Now()
	if start.Before(now) {
		return nil, ErrIntervalInPast
	}

	windows, err := e.windows.WindowsFor(ctx, practitionerID, nil)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	if len(windows) == 0 {
		return nil, ErrUnknownPractitioner
	}

	// The interval must fit inside a single window. Partial coverage by
	// several adjacent windows does not count.
	covered := false
	for _, w := range windows {
		if w.covers(start, end) {
			covered = true
			break
		}
	}
	if !covered {
		return nil, ErrOutsideAvailability
	}

	candidate := Appointment{
		ID:             uuid.New(),
		PractitionerID: practitionerID,
		RequesterID:    requesterID,
		Start:          start,
		End:            end,
		Status:         StatusConfirmed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var created *Appointment
	err = e.locker.WithPractitionerLock(ctx, practitionerID, func(lockCtx context.Context) error {
		appt, err := e.ledger.InsertIfNoConflict(lockCtx, candidate, candidate.conflictsWith)
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			e.log.Debug("booking conflict",
				zap.String("practitioner_id", practitionerID.String()),
				zap.Time("start", start),
				zap.Time("end", end),
			)
			return nil, ErrBookingConflict
		}
		return nil, fmt.Errorf("commit booking: %w", err)
	}

	e.log.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("practitioner_id", practitionerID.String()),
	)
	return created, nil
}

// Cancel transitions the caller's own confirmed appointment to cancelled.
// The interval it covered becomes bookable again immediately.
func (e *Engine) Cancel(ctx context.Context, actor Actor, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := e.ledger.Find(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if appt.RequesterID != actor.ID {
		return nil, ErrForbidden
	}
	if appt.Status != StatusConfirmed {
		return nil, ErrAlreadyCancelled
	}

	cancelled, err := e.ledger.Cancel(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) || errors.Is(err, ErrAlreadyCancelled) {
			return nil, err
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	e.log.Info("appointment cancelled",
		zap.String("appointment_id", appointmentID.String()),
	)
	return cancelled, nil
}

// Windows lists a practitioner's availability, optionally from a point in time.
func (e *Engine) Windows(ctx context.Context, practitionerID uuid.UUID, from *time.Time) ([]AvailabilityWindow, error) {
	windows, err := e.windows.WindowsFor(ctx, practitionerID, from)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	return windows, nil
}

// ConfirmedAppointments lists a practitioner's confirmed bookings.
func (e *Engine) ConfirmedAppointments(ctx context.Context, practitionerID uuid.UUID, from *time.Time) ([]Appointment, error) {
	appts, err := e.ledger.ConfirmedFor(ctx, practitionerID, from)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// RequesterAppointments lists the confirmed bookings held by a requester.
// Only the requester themselves may list them.
func (e *Engine) RequesterAppointments(ctx context.Context, actor Actor, requesterID uuid.UUID, from *time.Time) ([]Appointment, error) {
	if actor.ID != requesterID {
		return nil, ErrForbidden
	}
	appts, err := e.ledger.ConfirmedForRequester(ctx, requesterID, from)
	if err != nil {
		return nil, fmt.Errorf("list requester appointments: %w", err)
	}
	return appts, nil
}
