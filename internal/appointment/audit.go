package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

const auditLockName = "doctor-counter-audit"

// AuditReport summarises one counter audit pass.
type AuditReport struct {
	Drifts   []CounterDrift
	Repaired int
	Skipped  bool // another instance held the audit lock
}

// AuditCounters compares every doctor's appointment counter with the number of
// active appointments. Drift is logged, and rewritten when the service is
// configured to repair. Only one instance audits at a time when a locker is
// configured.
func (s *Service) AuditCounters(ctx context.Context) (AuditReport, error) {
	if s.locker == nil {
		return s.auditCounters(ctx)
	}

	var report AuditReport
	err := s.locker.WithLock(ctx, auditLockName, func(lockCtx context.Context) error {
		var err error
		report, err = s.auditCounters(lockCtx)
		return err
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		s.log.Info("counter audit already running elsewhere, skipping")
		return AuditReport{Skipped: true}, nil
	}
	return report, err
}

func (s *Service) auditCounters(ctx context.Context) (AuditReport, error) {
	var report AuditReport

	mode := ReadSnapshot
	if s.cfg.AuditRepair {
		mode = ReadWrite
	}

	err := s.repo.WithinTx(ctx, mode, func(ctx context.Context, q Queries) error {
		// Reserve and Cancel lock their doctor before touching the counter, so
		// holding every doctor row keeps the drift read and the repair in step.
		if s.cfg.AuditRepair {
			if err := q.LockAllDoctors(ctx); err != nil {
				return fmt.Errorf("lock doctors: %w", err)
			}
		}

		drifts, err := q.FindCounterDrift(ctx)
		if err != nil {
			return fmt.Errorf("find counter drift: %w", err)
		}
		report.Drifts = drifts

		for _, d := range drifts {
			s.log.Warn("doctor counter drift",
				zap.Int64("doctor_id", d.DoctorID),
				zap.String("doctor_nif", d.DoctorNIF),
				zap.Int("stored", d.StoredCount),
				zap.Int("active", d.ActiveCount),
			)
			if !s.cfg.AuditRepair {
				continue
			}

			if err := q.SetDoctorCounter(ctx, d.DoctorID, d.ActiveCount); err != nil {
				return fmt.Errorf("repair counter of doctor %s: %w", d.DoctorNIF, err)
			}
			payload, err := counterRepairPayload(d)
			if err != nil {
				return err
			}
			if err := q.InsertEvent(ctx, EventLog{
				EventType: EventCounterRepaired,
				Payload:   payload,
			}); err != nil {
				return err
			}
			report.Repaired++
		}
		return nil
	})
	if err != nil {
		s.log.Error("counter audit failed", zap.Error(err))
		return AuditReport{}, err
	}

	return report, nil
}

func counterRepairPayload(d CounterDrift) ([]byte, error) {
	data, err := json.Marshal(map[string]any{
		"doctor_id":  d.DoctorID,
		"doctor_nif": d.DoctorNIF,
		"stored":     d.StoredCount,
		"active":     d.ActiveCount,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", EventCounterRepaired, err)
	}
	return data, nil
}
