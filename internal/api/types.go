package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careslot/booking/internal/scheduling"
)

type CreateWindowRequest struct {
	PractitionerID string    `json:"practitioner_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
}

type CreateAppointmentRequest struct {
	PractitionerID string    `json:"practitioner_id"`
	RequesterID    string    `json:"requester_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
}

type WindowResponse struct {
	ID             uuid.UUID `json:"id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
}

type AppointmentResponse struct {
	ID             uuid.UUID `json:"id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	RequesterID    uuid.UUID `json:"requester_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Status         string    `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toWindowResponse(w scheduling.AvailabilityWindow) WindowResponse {
	return WindowResponse{
		ID:             w.ID,
		PractitionerID: w.PractitionerID,
		Start:          w.Start,
		End:            w.End,
	}
}

func toAppointmentResponse(a scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		PractitionerID: a.PractitionerID,
		RequesterID:    a.RequesterID,
		Start:          a.Start,
		End:            a.End,
		Status:         string(a.Status),
	}
}

func toWindowResponses(windows []scheduling.AvailabilityWindow) []WindowResponse {
	out := make([]WindowResponse, 0, len(windows))
	for _, w := range windows {
		out = append(out, toWindowResponse(w))
	}
	return out
}

func toAppointmentResponses(appts []scheduling.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}
