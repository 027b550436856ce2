package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

func reserveHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if req.PatientNIF == "" || req.DoctorNIF == "" {
			writeError(w, http.StatusBadRequest, "missing_nif", "patient_nif and doctor_nif are required")
			return
		}

		date, err := appointment.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		appt, err := svc.Reserve(r.Context(), req.PatientNIF, req.DoctorNIF, date)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if req.PatientNIF == "" || req.DoctorNIF == "" {
			writeError(w, http.StatusBadRequest, "missing_nif", "patient_nif and doctor_nif are required")
			return
		}

		apptDate, err := appointment.ParseDate(req.AppointmentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_date", err.Error())
			return
		}

		cancelDate, err := appointment.ParseDate(req.CancellationDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_cancellation_date", err.Error())
			return
		}

		// An empty reason is left to the service so it rolls back like any
		// other rejected cancellation.
		c, err := svc.Cancel(r.Context(), req.PatientNIF, req.DoctorNIF, apptDate, cancelDate, req.Reason)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toCancellationResponse(c))
	}
}

func listHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nif := chi.URLParam(r, "nif")

		entries, err := svc.List(r.Context(), nif)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		if strings.EqualFold(r.URL.Query().Get("format"), "text") {
			var buf bytes.Buffer
			if err := appointment.RenderHistory(&buf, entries); err != nil {
				handleServiceError(w, r, err)
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(buf.Bytes())
			return
		}

		writeJSON(w, http.StatusOK, toHistoryResponse(nif, entries))
	}
}

// statusFor maps an error kind onto the HTTP status returned to clients.
func statusFor(kind appointment.Kind) int {
	switch kind {
	case appointment.KindDoctorNotFound,
		appointment.KindPatientNotFound,
		appointment.KindAppointmentNotFound:
		return http.StatusNotFound
	case appointment.KindDoctorUnavailable,
		appointment.KindCancellationTooLate:
		return http.StatusConflict
	case appointment.KindEmptyReason:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := appointment.KindOf(err)
	status := statusFor(kind)

	if status == http.StatusInternalServerError {
		// Details stay in the log.
		LoggerFrom(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, status, kind.String(), "internal error")
		return
	}

	writeError(w, status, kind.String(), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
