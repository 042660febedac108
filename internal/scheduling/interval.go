package scheduling

import "time"

// Overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// intersect. Touching endpoints do not overlap; identical intervals do.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// covers reports whether the window wholly contains [start, end).
func (w AvailabilityWindow) covers(start, end time.Time) bool {
	return !w.Start.After(start) && !w.End.Before(end)
}

// conflictsWith is the overlap predicate applied against a practitioner's
// confirmed appointments during the commit unit of work.
func (a Appointment) conflictsWith(other Appointment) bool {
	return Overlaps(a.Start, a.End, other.Start, other.End)
}
