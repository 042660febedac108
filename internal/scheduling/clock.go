package scheduling

import "time"

// Clock supplies the current time so validation stays testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock used outside of tests.
func SystemClock() Clock { return systemClock{} }

// FixedClock always reports the same instant. Tests use it to pin "now".
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now() time.Time { return c.Instant }
