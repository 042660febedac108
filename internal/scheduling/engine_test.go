package scheduling

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	engine       *Engine
	ledger       *countingLedger
	practitioner Actor
	requester    Actor
}

// countingLedger wraps the memory ledger to observe whether the engine
// touched it at all for a given call.
type countingLedger struct {
	*MemoryLedger
	mu      sync.Mutex
	touched int
}

func (l *countingLedger) bump() {
	l.mu.Lock()
	l.touched++
	l.mu.Unlock()
}

func (l *countingLedger) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.touched
}

func (l *countingLedger) ConfirmedFor(ctx context.Context, id uuid.UUID, from *time.Time) ([]Appointment, error) {
	l.bump()
	return l.MemoryLedger.ConfirmedFor(ctx, id, from)
}

func (l *countingLedger) InsertIfNoConflict(ctx context.Context, appt Appointment, conflicts ConflictPredicate) (*Appointment, error) {
	l.bump()
	return l.MemoryLedger.InsertIfNoConflict(ctx, appt, conflicts)
}

func (l *countingLedger) Find(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	l.bump()
	return l.MemoryLedger.Find(ctx, id)
}

func (l *countingLedger) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	l.bump()
	return l.MemoryLedger.Cancel(ctx, id)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ledger := &countingLedger{MemoryLedger: NewMemoryLedger()}
	engine := NewEngine(NewMemoryStore(), ledger, NoopLocker{}, FixedClock{Instant: testNow}, nil)

	return &fixture{
		engine:       engine,
		ledger:       ledger,
		practitioner: Actor{ID: uuid.New(), Role: RolePractitioner},
		requester:    Actor{ID: uuid.New(), Role: RoleRequester},
	}
}

// addWindow registers the standard 09:00-17:00 window for the fixture's
// practitioner on the day after testNow.
func (f *fixture) addWindow(t *testing.T, startHour, endHour int) {
	t.Helper()
	_, err := f.engine.AddWindow(context.Background(), f.practitioner, f.practitioner.ID,
		dayAt(startHour, 0), dayAt(endHour, 0))
	require.NoError(t, err)
}

func (f *fixture) book(start, end time.Time) (*Appointment, error) {
	return f.engine.Book(context.Background(), f.requester, f.practitioner.ID, f.requester.ID, start, end)
}

func dayAt(hour, min int) time.Time {
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func TestAddWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("requester role cannot publish", func(t *testing.T) {
		_, err := f.engine.AddWindow(ctx, f.requester, f.requester.ID, dayAt(9, 0), dayAt(17, 0))
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("practitioner cannot publish for someone else", func(t *testing.T) {
		_, err := f.engine.AddWindow(ctx, f.practitioner, uuid.New(), dayAt(9, 0), dayAt(17, 0))
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("rejects inverted interval", func(t *testing.T) {
		_, err := f.engine.AddWindow(ctx, f.practitioner, f.practitioner.ID, dayAt(17, 0), dayAt(9, 0))
		assert.ErrorIs(t, err, ErrInvalidInterval)

		_, err = f.engine.AddWindow(ctx, f.practitioner, f.practitioner.ID, dayAt(9, 0), dayAt(9, 0))
		assert.ErrorIs(t, err, ErrInvalidInterval)
	})

	t.Run("accepts overlapping windows", func(t *testing.T) {
		_, err := f.engine.AddWindow(ctx, f.practitioner, f.practitioner.ID, dayAt(9, 0), dayAt(17, 0))
		require.NoError(t, err)
		_, err = f.engine.AddWindow(ctx, f.practitioner, f.practitioner.ID, dayAt(10, 0), dayAt(12, 0))
		require.NoError(t, err)

		windows, err := f.engine.Windows(ctx, f.practitioner.ID, nil)
		require.NoError(t, err)
		assert.Len(t, windows, 2)
	})
}

func TestBookValidation(t *testing.T) {
	t.Run("invalid interval fails before any ledger access", func(t *testing.T) {
		f := newFixture(t)
		f.addWindow(t, 9, 17)
		before := f.ledger.calls()

		_, err := f.book(dayAt(11, 0), dayAt(10, 0))
		assert.ErrorIs(t, err, ErrInvalidInterval)

		_, err = f.book(dayAt(10, 0), dayAt(10, 0))
		assert.ErrorIs(t, err, ErrInvalidInterval)

		assert.Equal(t, before, f.ledger.calls())
	})

	t.Run("past start is rejected", func(t *testing.T) {
		f := newFixture(t)
		f.addWindow(t, 9, 17)

		_, err := f.book(testNow.Add(-time.Hour), testNow.Add(time.Hour))
		assert.ErrorIs(t, err, ErrIntervalInPast)
	})

	t.Run("practitioner role cannot book", func(t *testing.T) {
		f := newFixture(t)
		f.addWindow(t, 9, 17)

		_, err := f.engine.Book(context.Background(), f.practitioner, f.practitioner.ID, f.practitioner.ID,
			dayAt(10, 0), dayAt(11, 0))
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("requester cannot book on behalf of another", func(t *testing.T) {
		f := newFixture(t)
		f.addWindow(t, 9, 17)

		_, err := f.engine.Book(context.Background(), f.requester, f.practitioner.ID, uuid.New(),
			dayAt(10, 0), dayAt(11, 0))
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown practitioner", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.book(dayAt(10, 0), dayAt(11, 0))
		assert.ErrorIs(t, err, ErrUnknownPractitioner)
	})
}

func TestBookOutsideAvailability(t *testing.T) {
	t.Run("adjacent to window edge", func(t *testing.T) {
		f := newFixture(t)
		f.addWindow(t, 9, 17)

		_, err := f.book(dayAt(8, 0), dayAt(9, 0))
		assert.ErrorIs(t, err, ErrOutsideAvailability)
	})

	t.Run("partially covered", func(t *testing.T) {
		f := newFixture(t)
		f.addWindow(t, 9, 17)

		_, err := f.book(dayAt(16, 30), dayAt(17, 30))
		assert.ErrorIs(t, err, ErrOutsideAvailability)
	})

	t.Run("two adjacent windows do not combine", func(t *testing.T) {
		f := newFixture(t)
		f.addWindow(t, 9, 12)
		f.addWindow(t, 12, 17)

		// Covered only by the union, not by any single window.
		_, err := f.book(dayAt(11, 0), dayAt(13, 0))
		assert.ErrorIs(t, err, ErrOutsideAvailability)

		// Inside a single window is fine.
		_, err = f.book(dayAt(11, 0), dayAt(12, 0))
		assert.NoError(t, err)
	})

	t.Run("fails regardless of ledger state", func(t *testing.T) {
		f := newFixture(t)
		f.addWindow(t, 9, 17)

		_, err := f.book(dayAt(10, 0), dayAt(11, 0))
		require.NoError(t, err)

		_, err = f.book(dayAt(7, 0), dayAt(8, 0))
		assert.ErrorIs(t, err, ErrOutsideAvailability)
	})
}

func TestBookCancelRebookScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addWindow(t, 9, 17)

	first, err := f.book(dayAt(10, 0), dayAt(11, 0))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, first.Status)

	_, err = f.book(dayAt(10, 30), dayAt(11, 30))
	assert.ErrorIs(t, err, ErrBookingConflict)

	// Shares only the boundary instant with the first booking.
	_, err = f.book(dayAt(11, 0), dayAt(12, 0))
	require.NoError(t, err)

	cancelled, err := f.engine.Cancel(ctx, f.requester, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// The freed interval is immediately bookable again.
	rebooked, err := f.book(dayAt(10, 0), dayAt(11, 0))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, rebooked.ID)
}

func TestCancel(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Cancel(context.Background(), f.requester, uuid.New())
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	})

	t.Run("only the owning requester may cancel", func(t *testing.T) {
		f := newFixture(t)
		f.addWindow(t, 9, 17)
		appt, err := f.book(dayAt(10, 0), dayAt(11, 0))
		require.NoError(t, err)

		stranger := Actor{ID: uuid.New(), Role: RoleRequester}
		_, err = f.engine.Cancel(context.Background(), stranger, appt.ID)
		assert.ErrorIs(t, err, ErrForbidden)

		// The practitioner does not own it either.
		_, err = f.engine.Cancel(context.Background(), f.practitioner, appt.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("double cancel", func(t *testing.T) {
		f := newFixture(t)
		f.addWindow(t, 9, 17)
		appt, err := f.book(dayAt(10, 0), dayAt(11, 0))
		require.NoError(t, err)

		_, err = f.engine.Cancel(context.Background(), f.requester, appt.ID)
		require.NoError(t, err)

		_, err = f.engine.Cancel(context.Background(), f.requester, appt.ID)
		assert.ErrorIs(t, err, ErrAlreadyCancelled)
	})
}

func TestReadsAreIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addWindow(t, 9, 12)
	f.addWindow(t, 13, 17)

	_, err := f.book(dayAt(10, 0), dayAt(11, 0))
	require.NoError(t, err)

	w1, err := f.engine.Windows(ctx, f.practitioner.ID, nil)
	require.NoError(t, err)
	w2, err := f.engine.Windows(ctx, f.practitioner.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, w1, w2)

	a1, err := f.engine.ConfirmedAppointments(ctx, f.practitioner.ID, nil)
	require.NoError(t, err)
	a2, err := f.engine.ConfirmedAppointments(ctx, f.practitioner.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
}

func TestRequesterAppointments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addWindow(t, 9, 17)

	_, err := f.book(dayAt(10, 0), dayAt(11, 0))
	require.NoError(t, err)

	appts, err := f.engine.RequesterAppointments(ctx, f.requester, f.requester.ID, nil)
	require.NoError(t, err)
	assert.Len(t, appts, 1)

	// Another requester cannot list them.
	stranger := Actor{ID: uuid.New(), Role: RoleRequester}
	_, err = f.engine.RequesterAppointments(ctx, stranger, f.requester.ID, nil)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestConcurrentIdenticalBookings(t *testing.T) {
	f := newFixture(t)
	f.addWindow(t, 9, 17)

	const attempts = 50
	start, end := dayAt(14, 0), dayAt(15, 0)

	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		requester := Actor{ID: uuid.New(), Role: RoleRequester}
		go func() {
			defer wg.Done()
			_, err := f.engine.Book(context.Background(), requester, f.practitioner.ID, requester.ID, start, end)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ErrBookingConflict):
			conflicts++
		}
	}

	assert.Equal(t, 1, successes, "exactly one concurrent booking must win")
	assert.Equal(t, attempts-1, conflicts)
}

func TestConcurrentOverlappingBookingsNeverOverlap(t *testing.T) {
	f := newFixture(t)
	f.addWindow(t, 9, 17)

	const attempts = 200
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		requester := Actor{ID: uuid.New(), Role: RoleRequester}
		go func() {
			defer wg.Done()
			// Random 15-minute-grid intervals inside the window, heavily
			// overlapping by construction.
			startMin := rand.Intn(28) * 15
			length := (1 + rand.Intn(6)) * 15
			start := dayAt(9, 0).Add(time.Duration(startMin) * time.Minute)
			end := start.Add(time.Duration(length) * time.Minute)
			if end.After(dayAt(17, 0)) {
				end = dayAt(17, 0)
			}
			_, _ = f.engine.Book(context.Background(), requester, f.practitioner.ID, requester.ID, start, end)
		}()
	}
	wg.Wait()

	confirmed, err := f.engine.ConfirmedAppointments(context.Background(), f.practitioner.ID, nil)
	require.NoError(t, err)
	require.NotEmpty(t, confirmed)

	for i := range confirmed {
		for j := i + 1; j < len(confirmed); j++ {
			a, b := confirmed[i], confirmed[j]
			assert.False(t, Overlaps(a.Start, a.End, b.Start, b.End),
				"confirmed appointments %s and %s overlap", a.ID, b.ID)
		}
	}
}
