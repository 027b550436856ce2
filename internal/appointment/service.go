package appointment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

const (
	EventAppointmentReserved  = "APPOINTMENT_RESERVED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventCounterRepaired      = "DOCTOR_COUNTER_REPAIRED"
)

// EventPublisher forwards committed events outside the database.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte) error
}

type Service struct {
	repo      Repository
	locker    redisclient.Locker
	publisher EventPublisher
	cfg       config.Config
	log       *zap.Logger
}

// NewService wires the service. locker and publisher may be nil: the counter
// audit then runs unguarded and events stay in event_logs only.
func NewService(repo Repository, locker redisclient.Locker, publisher EventPublisher, cfg config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		locker:    locker,
		publisher: publisher,
		cfg:       cfg,
		log:       logger.Named("appointment"),
	}
}

// Reserve books patientNIF with doctorNIF on date. The patient is not looked
// up first: a missing patient surfaces as a foreign key violation on insert.
func (s *Service) Reserve(ctx context.Context, patientNIF, doctorNIF string, date time.Time) (*Appointment, error) {
	date = DateOnly(date)

	var (
		created *Appointment
		event   EventLog
	)

	err := s.repo.WithinTx(ctx, ReadWrite, func(ctx context.Context, q Queries) error {
		doctor, err := q.LockDoctorByNIF(ctx, doctorNIF)
		if err != nil {
			return err
		}

		appt, err := q.InsertAppointment(ctx, doctor.ID, patientNIF, date)
		if err != nil {
			return err
		}

		ok, err := q.IncrementCounterIfSlotFree(ctx, doctor.ID, date)
		if err != nil {
			return err
		}
		if !ok {
			return ErrDoctorUnavailable
		}

		event, err = newEvent(EventAppointmentReserved, appt.ID, map[string]any{
			"patient_nif": patientNIF,
			"doctor_nif":  doctorNIF,
			"date":        FormatDate(date),
		})
		if err != nil {
			return err
		}
		if err := q.InsertEvent(ctx, event); err != nil {
			return err
		}

		created = appt
		return nil
	})
	if err != nil {
		return nil, s.fail("reserve appointment", err,
			zap.String("patient_nif", patientNIF),
			zap.String("doctor_nif", doctorNIF),
			zap.String("date", FormatDate(date)),
		)
	}

	s.log.Debug("appointment reserved",
		zap.Int64("appointment_id", created.ID),
		zap.String("doctor_nif", doctorNIF),
		zap.String("date", FormatDate(date)),
	)
	s.publish(ctx, event)

	return created, nil
}

// Cancel records a cancellation for the active appointment of the patient with
// the doctor on appointmentDate. The doctor's counter is only decremented when
// the notice period is met; otherwise nothing is written.
func (s *Service) Cancel(ctx context.Context, patientNIF, doctorNIF string, appointmentDate, cancellationDate time.Time, reason string) (*Cancellation, error) {
	appointmentDate = DateOnly(appointmentDate)
	cancellationDate = DateOnly(cancellationDate)
	noticeDays := DaysBetween(cancellationDate, appointmentDate)

	var (
		cancelled *Cancellation
		event     EventLog
	)

	err := s.repo.WithinTx(ctx, ReadWrite, func(ctx context.Context, q Queries) error {
		doctor, err := q.LockDoctorByNIF(ctx, doctorNIF)
		if err != nil {
			return err
		}

		if _, err := q.GetPatientByNIF(ctx, patientNIF); err != nil {
			return err
		}

		appt, err := q.FindActiveAppointment(ctx, doctor.ID, patientNIF, appointmentDate)
		if err != nil {
			return err
		}

		c, err := q.InsertCancellation(ctx, appt.ID, cancellationDate, reason)
		if err != nil {
			return err
		}

		ok, err := q.DecrementCounterIfNoticeMet(ctx, doctor.ID, noticeDays, s.cfg.MinNoticeDays)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCancellationTooLate
		}

		event, err = newEvent(EventAppointmentCancelled, appt.ID, map[string]any{
			"patient_nif":       patientNIF,
			"doctor_nif":        doctorNIF,
			"appointment_date":  FormatDate(appointmentDate),
			"cancellation_date": FormatDate(cancellationDate),
			"notice_days":       noticeDays,
		})
		if err != nil {
			return err
		}
		if err := q.InsertEvent(ctx, event); err != nil {
			return err
		}

		cancelled = c
		return nil
	})
	if err != nil {
		return nil, s.fail("cancel appointment", err,
			zap.String("patient_nif", patientNIF),
			zap.String("doctor_nif", doctorNIF),
			zap.String("appointment_date", FormatDate(appointmentDate)),
			zap.String("cancellation_date", FormatDate(cancellationDate)),
		)
	}

	s.log.Debug("appointment cancelled",
		zap.Int64("appointment_id", cancelled.AppointmentID),
		zap.Int64("cancellation_id", cancelled.ID),
		zap.Int("notice_days", noticeDays),
	)
	s.publish(ctx, event)

	return cancelled, nil
}

// List returns every appointment of the doctor ordered by id, cancelled ones
// included, read from a single snapshot.
func (s *Service) List(ctx context.Context, doctorNIF string) ([]HistoryEntry, error) {
	var history []HistoryEntry

	err := s.repo.WithinTx(ctx, ReadSnapshot, func(ctx context.Context, q Queries) error {
		doctor, err := q.GetDoctorByNIF(ctx, doctorNIF)
		if err != nil {
			return err
		}

		history, err = q.ListDoctorHistory(ctx, doctor.ID)
		return err
	})
	if err != nil {
		return nil, s.fail("list appointments", err, zap.String("doctor_nif", doctorNIF))
	}

	return history, nil
}

// fail classifies err after the transaction has been rolled back. Domain
// errors are returned bare; anything else is logged under op and returned
// unchanged.
func (s *Service) fail(op string, err error, fields ...zap.Field) error {
	classified := Classify(err)
	if IsDomain(classified) {
		return classified
	}

	s.log.Error(op+" failed", append(fields, zap.Error(err))...)
	return err
}

func newEvent(eventType string, appointmentID int64, payload map[string]any) (EventLog, error) {
	payload["appointment_id"] = appointmentID
	data, err := json.Marshal(payload)
	if err != nil {
		return EventLog{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	id := appointmentID
	return EventLog{
		EventType:     eventType,
		AppointmentID: &id,
		Payload:       data,
		CreatedAt:     time.Now(),
	}, nil
}

// publish is best effort: the event is already committed in event_logs.
func (s *Service) publish(ctx context.Context, ev EventLog) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev.EventType, ev.Payload); err != nil {
		s.log.Warn("failed to publish event",
			zap.String("event_type", ev.EventType),
			zap.Error(err),
		)
	}
}
