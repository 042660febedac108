package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Role is the closed set of actor roles the engine knows about. It arrives
// already verified by the identity layer; the engine only checks capabilities.
type Role string

const (
	RolePractitioner Role = "practitioner"
	RoleRequester    Role = "requester"
)

// ParseRole maps a wire value onto the closed role set.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RolePractitioner, RoleRequester:
		return Role(s), true
	}
	return "", false
}

func (r Role) CanPublishAvailability() bool { return r == RolePractitioner }

func (r Role) CanBook() bool { return r == RoleRequester }

// Actor is the verified identity attached to every engine call.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// AvailabilityWindow is a half-open interval [Start, End) during which a
// practitioner accepts bookings. Windows are append-only and may overlap.
type AvailabilityWindow struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	Start          time.Time
	End            time.Time
	CreatedAt      time.Time
}

// Appointment is a reservation of [Start, End) against one practitioner.
// It is created confirmed and transitions at most once, to cancelled.
type Appointment struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	RequesterID    uuid.UUID
	Start          time.Time
	End            time.Time
	Status         AppointmentStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
