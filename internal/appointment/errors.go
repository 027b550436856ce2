package appointment

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorUnavailable   = errors.New("doctor already has an active appointment on that date")
	ErrAppointmentNotFound = errors.New("no active appointment matches doctor, patient and date")
	ErrCancellationTooLate = errors.New("cancellation notice period not met")
	ErrEmptyReason         = errors.New("cancellation reason is empty")
)

// Store constraints the classifier recognises. They are declared in
// internal/db/schema.sql.
const (
	ConstraintAppointmentPatient      = "appointments_patient_nif_fkey"
	ConstraintCancellationReason      = "cancellations_reason_not_empty"
	ConstraintCancellationAppointment = "cancellations_appointment_id_key"
)

// Kind identifies a class of failure so callers can switch on it.
type Kind int

const (
	KindNone Kind = iota
	KindDoctorNotFound
	KindPatientNotFound
	KindDoctorUnavailable
	KindAppointmentNotFound
	KindCancellationTooLate
	KindEmptyReason
	KindInfrastructure
)

var kindNames = map[Kind]string{
	KindNone:                "none",
	KindDoctorNotFound:      "doctor_not_found",
	KindPatientNotFound:     "patient_not_found",
	KindDoctorUnavailable:   "doctor_unavailable",
	KindAppointmentNotFound: "appointment_not_found",
	KindCancellationTooLate: "cancellation_too_late",
	KindEmptyReason:         "empty_reason",
	KindInfrastructure:      "infrastructure_error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

var domainErrors = []struct {
	err  error
	kind Kind
}{
	{ErrDoctorNotFound, KindDoctorNotFound},
	{ErrPatientNotFound, KindPatientNotFound},
	{ErrDoctorUnavailable, KindDoctorUnavailable},
	{ErrAppointmentNotFound, KindAppointmentNotFound},
	{ErrCancellationTooLate, KindCancellationTooLate},
	{ErrEmptyReason, KindEmptyReason},
}

// KindOf reports the kind of err. Any non-nil error that is not one of the
// domain errors is an infrastructure error.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, d := range domainErrors {
		if errors.Is(err, d.err) {
			return d.kind
		}
	}
	return KindInfrastructure
}

// IsDomain reports whether err is an expected business outcome rather than an
// infrastructure failure.
func IsDomain(err error) bool {
	k := KindOf(err)
	return k != KindNone && k != KindInfrastructure
}

// Classify translates constraint violations raised by the store into domain
// errors. Domain errors pass through as they are, and anything unrecognised is
// returned unchanged.
func Classify(err error) error {
	if err == nil || IsDomain(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.ForeignKeyViolation:
		if pgErr.ConstraintName == ConstraintAppointmentPatient {
			return ErrPatientNotFound
		}
	case pgerrcode.NotNullViolation:
		if pgErr.TableName == "cancellations" && pgErr.ColumnName == "reason" {
			return ErrEmptyReason
		}
	case pgerrcode.CheckViolation:
		if pgErr.ConstraintName == ConstraintCancellationReason {
			return ErrEmptyReason
		}
	case pgerrcode.UniqueViolation:
		// A concurrent cancel of the same appointment won the race.
		if pgErr.ConstraintName == ConstraintCancellationAppointment {
			return ErrAppointmentNotFound
		}
	}

	return err
}
