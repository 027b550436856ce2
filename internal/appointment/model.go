package appointment

import (
	"time"
)

type Doctor struct {
	ID               int64
	NIF              string
	FirstName        string
	LastName1        string
	LastName2        *string
	Specialty        string
	AppointmentCount int
}

type Patient struct {
	NIF       string
	FirstName string
	LastName1 string
	LastName2 *string
}

// Appointment is never deleted. It is active while no Cancellation points at it.
type Appointment struct {
	ID         int64
	Date       time.Time
	DoctorID   int64
	PatientNIF string
}

type Cancellation struct {
	ID            int64
	AppointmentID int64
	Date          time.Time
	Reason        string
}

// HistoryEntry is one row of a doctor's appointment history.
type HistoryEntry struct {
	AppointmentID int64
	Date          time.Time
	DoctorID      int64
	PatientNIF    string
	Cancelled     bool
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *int64
	Payload       []byte
	CreatedAt     time.Time
}

// CounterDrift reports a doctor whose stored appointment counter differs from
// the number of active appointments.
type CounterDrift struct {
	DoctorID    int64
	DoctorNIF   string
	StoredCount int
	ActiveCount int
}
