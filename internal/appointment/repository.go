package appointment

import (
	"context"
	"time"
)

// TxMode selects how WithinTx opens its transaction.
type TxMode int

const (
	// ReadWrite is a read committed transaction for the write operations.
	ReadWrite TxMode = iota
	// ReadSnapshot is a read only transaction where every statement sees the
	// same snapshot.
	ReadSnapshot
)

// Repository runs units of work against the store. fn runs inside one
// transaction which is committed when fn returns nil and rolled back
// otherwise, before WithinTx returns.
type Repository interface {
	WithinTx(ctx context.Context, mode TxMode, fn func(ctx context.Context, q Queries) error) error
}

// Queries contains all DB interactions needed by the service. Store failures
// are returned as they are; classifying them is the service's job.
type Queries interface {
	// Lookups
	GetDoctorByNIF(ctx context.Context, nif string) (*Doctor, error)
	// LockDoctorByNIF is GetDoctorByNIF holding the doctor row lock until the
	// transaction ends.
	LockDoctorByNIF(ctx context.Context, nif string) (*Doctor, error)
	GetPatientByNIF(ctx context.Context, nif string) (*Patient, error)
	FindActiveAppointment(ctx context.Context, doctorID int64, patientNIF string, date time.Time) (*Appointment, error)

	// Writes
	InsertAppointment(ctx context.Context, doctorID int64, patientNIF string, date time.Time) (*Appointment, error)
	InsertCancellation(ctx context.Context, appointmentID int64, date time.Time, reason string) (*Cancellation, error)

	// Conditional counter updates. They report whether the row was updated.
	IncrementCounterIfSlotFree(ctx context.Context, doctorID int64, date time.Time) (bool, error)
	DecrementCounterIfNoticeMet(ctx context.Context, doctorID int64, noticeDays, minNoticeDays int) (bool, error)

	// History
	ListDoctorHistory(ctx context.Context, doctorID int64) ([]HistoryEntry, error)

	// Counter audit
	// LockAllDoctors takes every doctor row lock, in id order, until the
	// transaction ends.
	LockAllDoctors(ctx context.Context) error
	FindCounterDrift(ctx context.Context) ([]CounterDrift, error)
	SetDoctorCounter(ctx context.Context, doctorID int64, count int) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
