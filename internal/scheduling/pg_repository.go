package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository implements AvailabilityStore and AppointmentLedger on Postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var w AvailabilityWindow

	err := row.Scan(
		&w.ID,
		&w.PractitionerID,
		&w.Start,
		&w.End,
		&w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &w, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PractitionerID,
		&a.RequesterID,
		&a.Start,
		&a.End,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

const appointmentColumns = `id, practitioner_id, requester_id, start_time, end_time, status, created_at, updated_at`

// AvailabilityStore

func (r *PgRepository) AddWindow(ctx context.Context, w AvailabilityWindow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_windows (id, practitioner_id, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, w.ID, w.PractitionerID, w.Start, w.End, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert availability window: %w", err)
	}
	return nil
}

func (r *PgRepository) WindowsFor(ctx context.Context, practitionerID uuid.UUID, from *time.Time) ([]AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, practitioner_id, start_time, end_time, created_at
		FROM availability_windows
		WHERE practitioner_id = $1
		  AND ($2::timestamptz IS NULL OR start_time >= $2)
		ORDER BY start_time
	`, practitionerID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// AppointmentLedger

func (r *PgRepository) ConfirmedFor(ctx context.Context, practitionerID uuid.UUID, from *time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
		  AND status = 'confirmed'
		  AND ($2::timestamptz IS NULL OR start_time >= $2)
		ORDER BY start_time
	`, practitionerID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ConfirmedForRequester(ctx context.Context, requesterID uuid.UUID, from *time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE requester_id = $1
		  AND status = 'confirmed'
		  AND ($2::timestamptz IS NULL OR start_time >= $2)
		ORDER BY start_time
	`, requesterID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) Find(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// InsertIfNoConflict re-checks the conflict predicate and inserts inside one
// transaction. A per-practitioner advisory lock serializes committers for the
// same practitioner, which closes the read-check-write race that row locks
// alone cannot (the conflicting row does not exist yet).
func (r *PgRepository) InsertIfNoConflict(ctx context.Context, appt Appointment, conflicts ConflictPredicate) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))
	`, appt.PractitionerID)
	if err != nil {
		return nil, fmt.Errorf("acquire practitioner lock: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
		  AND status = 'confirmed'
		  AND start_time < $3
		  AND end_time > $2
	`, appt.PractitionerID, appt.Start, appt.End)
	if err != nil {
		return nil, fmt.Errorf("check conflicts: %w", err)
	}
	overlapping, err := collectAppointments(rows)
	if err != nil {
		return nil, fmt.Errorf("check conflicts: %w", err)
	}

	for _, existing := range overlapping {
		if conflicts(existing) {
			return nil, ErrConflict
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, practitioner_id, requester_id, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'confirmed', $6, $6)
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.PractitionerID, appt.RequesterID, appt.Start, appt.End, appt.CreatedAt)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return created, nil
}

func (r *PgRepository) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'confirmed'
		RETURNING `+appointmentColumns+`
	`, id)

	cancelled, err := scanAppointment(row)
	if err != nil {
		if !errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		// Distinguish an unknown id from a lost compare-and-set.
		if _, findErr := r.Find(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, ErrAlreadyCancelled
	}

	return cancelled, nil
}
