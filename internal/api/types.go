package api

import (
	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

type ReserveRequest struct {
	PatientNIF string `json:"patient_nif"`
	DoctorNIF  string `json:"doctor_nif"`
	Date       string `json:"date"`
}

type CancelRequest struct {
	PatientNIF       string `json:"patient_nif"`
	DoctorNIF        string `json:"doctor_nif"`
	AppointmentDate  string `json:"appointment_date"`
	CancellationDate string `json:"cancellation_date"`
	Reason           string `json:"reason"`
}

type AppointmentResponse struct {
	ID         int64  `json:"id"`
	Date       string `json:"date"`
	DoctorID   int64  `json:"doctor_id"`
	PatientNIF string `json:"patient_nif"`
}

type CancellationResponse struct {
	ID            int64  `json:"id"`
	AppointmentID int64  `json:"appointment_id"`
	Date          string `json:"date"`
	Reason        string `json:"reason"`
}

type HistoryEntryResponse struct {
	AppointmentID int64  `json:"appointment_id"`
	Date          string `json:"date"`
	DoctorID      int64  `json:"doctor_id"`
	PatientNIF    string `json:"patient_nif"`
	Cancelled     bool   `json:"cancelled"`
}

type HistoryResponse struct {
	DoctorNIF    string                 `json:"doctor_nif"`
	Appointments []HistoryEntryResponse `json:"appointments"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:         a.ID,
		Date:       appointment.FormatDate(a.Date),
		DoctorID:   a.DoctorID,
		PatientNIF: a.PatientNIF,
	}
}

func toCancellationResponse(c *appointment.Cancellation) CancellationResponse {
	return CancellationResponse{
		ID:            c.ID,
		AppointmentID: c.AppointmentID,
		Date:          appointment.FormatDate(c.Date),
		Reason:        c.Reason,
	}
}

func toHistoryResponse(doctorNIF string, entries []appointment.HistoryEntry) HistoryResponse {
	resp := HistoryResponse{
		DoctorNIF:    doctorNIF,
		Appointments: make([]HistoryEntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Appointments = append(resp.Appointments, HistoryEntryResponse{
			AppointmentID: e.AppointmentID,
			Date:          appointment.FormatDate(e.Date),
			DoctorID:      e.DoctorID,
			PatientNIF:    e.PatientNIF,
			Cancelled:     e.Cancelled,
		})
	}
	return resp
}
