package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medoffice/office-scheduling/internal/appointment"
)

type BookAppointmentRequest struct {
	PatientID string `json:"patient_id"`
	Date      string `json:"date"` // YYYY-MM-DD
	Time      string `json:"time"` // HH:MM
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Status    string    `json:"status"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		Date:      a.Date.Format("2006-01-02"),
		Time:      a.Time.String(),
		Status:    string(a.Status),
	}
}

type CompleteVisitRequest struct {
	AppointmentID string `json:"appointment_id"`
	Notes         string `json:"notes"`
}

type UpdateVisitRequest struct {
	Notes string `json:"notes"`
}

type VisitResponse struct {
	ID                  uuid.UUID `json:"id"`
	AppointmentID       uuid.UUID `json:"appointment_id"`
	CompletedByDoctorID uuid.UUID `json:"completed_by_doctor_id"`
	Notes               string    `json:"notes"`
	CompletedAt         time.Time `json:"completed_at"`
}

func toVisitResponse(v *appointment.Visit) VisitResponse {
	return VisitResponse{
		ID:                  v.ID,
		AppointmentID:       v.AppointmentID,
		CompletedByDoctorID: v.CompletedByDoctorID,
		Notes:               v.Notes,
		CompletedAt:         v.CompletedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
