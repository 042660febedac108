package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory AvailabilityStore. It backs unit tests and
// single-process deployments; the mutex gives it the same write consistency
// the pg store gets from the database.
type MemoryStore struct {
	mu      sync.RWMutex
	windows map[uuid.UUID][]AvailabilityWindow
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[uuid.UUID][]AvailabilityWindow)}
}

func (s *MemoryStore) AddWindow(_ context.Context, w AvailabilityWindow) error {
	if !w.End.After(w.Start) {
		return ErrInvalidInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[w.PractitionerID] = append(s.windows[w.PractitionerID], w)
	return nil
}

func (s *MemoryStore) WindowsFor(_ context.Context, practitionerID uuid.UUID, from *time.Time) ([]AvailabilityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []AvailabilityWindow
	for _, w := range s.windows[practitionerID] {
		if from != nil && w.Start.Before(*from) {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

// MemoryLedger is an in-memory AppointmentLedger. InsertIfNoConflict holds
// the write lock across the conflict re-check and the insert, which is the
// atomicity InsertIfNoConflict demands.
type MemoryLedger struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*Appointment
	byDoc map[uuid.UUID][]uuid.UUID
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		byID:  make(map[uuid.UUID]*Appointment),
		byDoc: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (l *MemoryLedger) ConfirmedFor(_ context.Context, practitionerID uuid.UUID, from *time.Time) ([]Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.confirmedForLocked(practitionerID, from), nil
}

func (l *MemoryLedger) confirmedForLocked(practitionerID uuid.UUID, from *time.Time) []Appointment {
	var out []Appointment
	for _, id := range l.byDoc[practitionerID] {
		a := l.byID[id]
		if a.Status != StatusConfirmed {
			continue
		}
		if from != nil && a.Start.Before(*from) {
			continue
		}
		out = append(out, *a)
	}
	return out
}

func (l *MemoryLedger) ConfirmedForRequester(_ context.Context, requesterID uuid.UUID, from *time.Time) ([]Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Appointment
	for _, a := range l.byID {
		if a.RequesterID != requesterID || a.Status != StatusConfirmed {
			continue
		}
		if from != nil && a.Start.Before(*from) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (l *MemoryLedger) Find(_ context.Context, id uuid.UUID) (*Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (l *MemoryLedger) InsertIfNoConflict(_ context.Context, appt Appointment, conflicts ConflictPredicate) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.confirmedForLocked(appt.PractitionerID, nil) {
		if conflicts(existing) {
			return nil, ErrConflict
		}
	}

	cp := appt
	l.byID[cp.ID] = &cp
	l.byDoc[cp.PractitionerID] = append(l.byDoc[cp.PractitionerID], cp.ID)

	out := cp
	return &out, nil
}

func (l *MemoryLedger) Cancel(_ context.Context, id uuid.UUID) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != StatusConfirmed {
		return nil, ErrAlreadyCancelled
	}
	a.Status = StatusCancelled
	a.UpdatedAt = time.Now()

	cp := *a
	return &cp, nil
}
