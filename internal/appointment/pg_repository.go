package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) WithinTx(ctx context.Context, mode TxMode, fn func(ctx context.Context, q Queries) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}
	if mode == ReadSnapshot {
		opts = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	}

	tx, err := r.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgQueries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// dbtx is the subset of pgx.Tx the queries use.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgQueries struct {
	db dbtx
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.NIF,
		&d.FirstName,
		&d.LastName1,
		&d.LastName2,
		&d.Specialty,
		&d.AppointmentCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.NIF,
		&p.FirstName,
		&p.LastName1,
		&p.LastName2,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.Date,
		&a.DoctorID,
		&a.PatientNIF,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// Interface methods

const doctorColumns = `id, nif, first_name, last_name1, last_name2, specialty, appointment_count`

func (q *pgQueries) GetDoctorByNIF(ctx context.Context, nif string) (*Doctor, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE nif = $1
	`, nif)
	return scanDoctor(row)
}

func (q *pgQueries) LockDoctorByNIF(ctx context.Context, nif string) (*Doctor, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE nif = $1
		FOR UPDATE
	`, nif)
	return scanDoctor(row)
}

func (q *pgQueries) GetPatientByNIF(ctx context.Context, nif string) (*Patient, error) {
	row := q.db.QueryRow(ctx, `
		SELECT nif, first_name, last_name1, last_name2
		FROM patients
		WHERE nif = $1
	`, nif)
	return scanPatient(row)
}

func (q *pgQueries) FindActiveAppointment(ctx context.Context, doctorID int64, patientNIF string, date time.Time) (*Appointment, error) {
	row := q.db.QueryRow(ctx, `
		SELECT a.id, a.appointment_date, a.doctor_id, a.patient_nif
		FROM appointments a
		WHERE a.appointment_date = $1
		  AND a.patient_nif = $2
		  AND a.doctor_id = $3
		  AND NOT EXISTS (SELECT 1 FROM cancellations c WHERE c.appointment_id = a.id)
		ORDER BY a.id
		LIMIT 1
	`, DateOnly(date), patientNIF, doctorID)
	return scanAppointment(row)
}

func (q *pgQueries) InsertAppointment(ctx context.Context, doctorID int64, patientNIF string, date time.Time) (*Appointment, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO appointments (id, appointment_date, doctor_id, patient_nif)
		VALUES (nextval('appointments_id_seq'), $1, $2, $3)
		RETURNING id, appointment_date, doctor_id, patient_nif
	`, DateOnly(date), doctorID, patientNIF)
	return scanAppointment(row)
}

func (q *pgQueries) InsertCancellation(ctx context.Context, appointmentID int64, date time.Time, reason string) (*Cancellation, error) {
	var c Cancellation

	err := q.db.QueryRow(ctx, `
		INSERT INTO cancellations (id, appointment_id, cancellation_date, reason)
		VALUES (nextval('cancellations_id_seq'), $1, $2, $3)
		RETURNING id, appointment_id, cancellation_date, reason
	`, appointmentID, DateOnly(date), reason).Scan(&c.ID, &c.AppointmentID, &c.Date, &c.Reason)
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// IncrementCounterIfSlotFree bumps the counter only when the appointment just
// inserted is the single active one for the doctor on that date. Predicate and
// write are one statement.
func (q *pgQueries) IncrementCounterIfSlotFree(ctx context.Context, doctorID int64, date time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE doctors
		SET appointment_count = appointment_count + 1
		WHERE id = $1
		  AND (
			SELECT count(*)
			FROM appointments a
			WHERE a.doctor_id = $1
			  AND a.appointment_date = $2
			  AND NOT EXISTS (SELECT 1 FROM cancellations c WHERE c.appointment_id = a.id)
		  ) = 1
	`, doctorID, DateOnly(date))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q *pgQueries) DecrementCounterIfNoticeMet(ctx context.Context, doctorID int64, noticeDays, minNoticeDays int) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE doctors
		SET appointment_count = appointment_count - 1
		WHERE id = $1
		  AND $2::int >= $3::int
	`, doctorID, noticeDays, minNoticeDays)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q *pgQueries) ListDoctorHistory(ctx context.Context, doctorID int64) ([]HistoryEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT a.id,
		       a.appointment_date,
		       a.doctor_id,
		       a.patient_nif,
		       EXISTS (SELECT 1 FROM cancellations c WHERE c.appointment_id = a.id) AS cancelled
		FROM appointments a
		WHERE a.doctor_id = $1
		ORDER BY a.id
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.AppointmentID, &h.Date, &h.DoctorID, &h.PatientNIF, &h.Cancelled); err != nil {
			return nil, err
		}
		result = append(result, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (q *pgQueries) LockAllDoctors(ctx context.Context) error {
	_, err := q.db.Exec(ctx, `
		SELECT id
		FROM doctors
		ORDER BY id
		FOR UPDATE
	`)
	return err
}

func (q *pgQueries) FindCounterDrift(ctx context.Context) ([]CounterDrift, error) {
	rows, err := q.db.Query(ctx, `
		SELECT d.id, d.nif, d.appointment_count, count(a.id) AS active
		FROM doctors d
		LEFT JOIN appointments a
		       ON a.doctor_id = d.id
		      AND NOT EXISTS (SELECT 1 FROM cancellations c WHERE c.appointment_id = a.id)
		GROUP BY d.id, d.nif, d.appointment_count
		HAVING d.appointment_count <> count(a.id)
		ORDER BY d.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CounterDrift
	for rows.Next() {
		var c CounterDrift
		if err := rows.Scan(&c.DoctorID, &c.DoctorNIF, &c.StoredCount, &c.ActiveCount); err != nil {
			return nil, err
		}
		result = append(result, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (q *pgQueries) SetDoctorCounter(ctx context.Context, doctorID int64, count int) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE doctors
		SET appointment_count = $2
		WHERE id = $1
	`, doctorID, count)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (q *pgQueries) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
