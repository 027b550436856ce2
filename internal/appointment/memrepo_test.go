package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// memState mirrors the tables of schema.sql.
type memState struct {
	doctors       map[int64]Doctor
	patients      map[string]Patient
	appointments  []Appointment
	cancellations []Cancellation
	events        []EventLog
	nextAppt      int64
	nextCancel    int64
}

func (s memState) clone() memState {
	c := s
	c.doctors = make(map[int64]Doctor, len(s.doctors))
	for k, v := range s.doctors {
		c.doctors[k] = v
	}
	c.patients = make(map[string]Patient, len(s.patients))
	for k, v := range s.patients {
		c.patients[k] = v
	}
	c.appointments = append([]Appointment(nil), s.appointments...)
	c.cancellations = append([]Cancellation(nil), s.cancellations...)
	c.events = append([]EventLog(nil), s.events...)
	return c
}

// memRepo is a Repository double. Transactions are serialized and a failed
// unit of work restores the state it started from.
type memRepo struct {
	mu    sync.Mutex
	state memState

	// failOn makes the named query return errInfra.
	failOn string
}

var errInfra = errors.New("connection reset by peer")

func newMemRepo() *memRepo {
	return &memRepo{state: memState{
		doctors:    map[int64]Doctor{},
		patients:   map[string]Patient{},
		nextAppt:   1,
		nextCancel: 1,
	}}
}

// newFixtureRepo loads the same data as reset_fixtures().
func newFixtureRepo() *memRepo {
	r := newMemRepo()
	for _, p := range []Patient{
		{NIF: "12345678A", FirstName: "Ana", LastName1: "Garcia"},
		{NIF: "87654321B", FirstName: "Luis", LastName1: "Martinez"},
		{NIF: "78677433R", FirstName: "Marta", LastName1: "Perez"},
	} {
		r.state.patients[p.NIF] = p
	}
	r.state.doctors[1] = Doctor{ID: 1, NIF: "222222B", FirstName: "Jose", LastName1: "Sanchez", Specialty: "Medicina General", AppointmentCount: 0}
	r.state.doctors[2] = Doctor{ID: 2, NIF: "8766788Y", FirstName: "Alejandra", LastName1: "Amos", Specialty: "Oncologia", AppointmentCount: 1}
	r.state.appointments = []Appointment{
		{ID: 1, Date: mustDate("2023-03-24"), DoctorID: 1, PatientNIF: "12345678A"},
		{ID: 2, Date: mustDate("2022-03-25"), DoctorID: 2, PatientNIF: "87654321B"},
	}
	r.state.cancellations = []Cancellation{
		{ID: 1, AppointmentID: 1, Date: mustDate("2023-02-24"), Reason: "Enfermedad infecciosa"},
	}
	r.state.nextAppt = 3
	r.state.nextCancel = 2
	return r
}

func mustDate(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (r *memRepo) snapshot() memState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

func (r *memRepo) doctorCount(nif string) int {
	for _, d := range r.snapshot().doctors {
		if d.NIF == nif {
			return d.AppointmentCount
		}
	}
	return -1
}

func (r *memRepo) WithinTx(ctx context.Context, _ TxMode, fn func(ctx context.Context, q Queries) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	saved := r.state.clone()
	if err := fn(ctx, &memQueries{repo: r}); err != nil {
		r.state = saved
		return err
	}
	return nil
}

type memQueries struct {
	repo *memRepo
}

func (q *memQueries) st() *memState { return &q.repo.state }

func (q *memQueries) fail(name string) error {
	if q.repo.failOn == name {
		return errInfra
	}
	return nil
}

func (q *memQueries) isCancelled(appointmentID int64) bool {
	for _, c := range q.st().cancellations {
		if c.AppointmentID == appointmentID {
			return true
		}
	}
	return false
}

func (q *memQueries) GetDoctorByNIF(_ context.Context, nif string) (*Doctor, error) {
	if err := q.fail("GetDoctorByNIF"); err != nil {
		return nil, err
	}
	for _, d := range q.st().doctors {
		if d.NIF == nif {
			d := d
			return &d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (q *memQueries) LockDoctorByNIF(ctx context.Context, nif string) (*Doctor, error) {
	if err := q.fail("LockDoctorByNIF"); err != nil {
		return nil, err
	}
	return q.GetDoctorByNIF(ctx, nif)
}

func (q *memQueries) GetPatientByNIF(_ context.Context, nif string) (*Patient, error) {
	if err := q.fail("GetPatientByNIF"); err != nil {
		return nil, err
	}
	p, ok := q.st().patients[nif]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (q *memQueries) FindActiveAppointment(_ context.Context, doctorID int64, patientNIF string, date time.Time) (*Appointment, error) {
	if err := q.fail("FindActiveAppointment"); err != nil {
		return nil, err
	}
	for _, a := range q.st().appointments {
		if a.DoctorID == doctorID && a.PatientNIF == patientNIF && a.Date.Equal(DateOnly(date)) && !q.isCancelled(a.ID) {
			a := a
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (q *memQueries) InsertAppointment(_ context.Context, doctorID int64, patientNIF string, date time.Time) (*Appointment, error) {
	if err := q.fail("InsertAppointment"); err != nil {
		return nil, err
	}
	if _, ok := q.st().patients[patientNIF]; !ok {
		return nil, &pgconn.PgError{
			Code:           pgerrcode.ForeignKeyViolation,
			TableName:      "appointments",
			ConstraintName: ConstraintAppointmentPatient,
		}
	}
	a := Appointment{ID: q.st().nextAppt, Date: DateOnly(date), DoctorID: doctorID, PatientNIF: patientNIF}
	q.st().nextAppt++
	q.st().appointments = append(q.st().appointments, a)
	return &a, nil
}

func (q *memQueries) InsertCancellation(_ context.Context, appointmentID int64, date time.Time, reason string) (*Cancellation, error) {
	if err := q.fail("InsertCancellation"); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, &pgconn.PgError{
			Code:           pgerrcode.CheckViolation,
			TableName:      "cancellations",
			ConstraintName: ConstraintCancellationReason,
		}
	}
	if q.isCancelled(appointmentID) {
		return nil, &pgconn.PgError{
			Code:           pgerrcode.UniqueViolation,
			TableName:      "cancellations",
			ConstraintName: ConstraintCancellationAppointment,
		}
	}
	c := Cancellation{ID: q.st().nextCancel, AppointmentID: appointmentID, Date: DateOnly(date), Reason: reason}
	q.st().nextCancel++
	q.st().cancellations = append(q.st().cancellations, c)
	return &c, nil
}

func (q *memQueries) IncrementCounterIfSlotFree(_ context.Context, doctorID int64, date time.Time) (bool, error) {
	if err := q.fail("IncrementCounterIfSlotFree"); err != nil {
		return false, err
	}
	active := 0
	for _, a := range q.st().appointments {
		if a.DoctorID == doctorID && a.Date.Equal(DateOnly(date)) && !q.isCancelled(a.ID) {
			active++
		}
	}
	d, ok := q.st().doctors[doctorID]
	if !ok || active != 1 {
		return false, nil
	}
	d.AppointmentCount++
	q.st().doctors[doctorID] = d
	return true, nil
}

func (q *memQueries) DecrementCounterIfNoticeMet(_ context.Context, doctorID int64, noticeDays, minNoticeDays int) (bool, error) {
	if err := q.fail("DecrementCounterIfNoticeMet"); err != nil {
		return false, err
	}
	d, ok := q.st().doctors[doctorID]
	if !ok || noticeDays < minNoticeDays {
		return false, nil
	}
	if d.AppointmentCount == 0 {
		// doctors_appointment_count_check
		return false, &pgconn.PgError{Code: pgerrcode.CheckViolation, TableName: "doctors", ConstraintName: "doctors_appointment_count_check"}
	}
	d.AppointmentCount--
	q.st().doctors[doctorID] = d
	return true, nil
}

func (q *memQueries) ListDoctorHistory(_ context.Context, doctorID int64) ([]HistoryEntry, error) {
	if err := q.fail("ListDoctorHistory"); err != nil {
		return nil, err
	}
	var out []HistoryEntry
	for _, a := range q.st().appointments {
		if a.DoctorID != doctorID {
			continue
		}
		out = append(out, HistoryEntry{
			AppointmentID: a.ID,
			Date:          a.Date,
			DoctorID:      a.DoctorID,
			PatientNIF:    a.PatientNIF,
			Cancelled:     q.isCancelled(a.ID),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentID < out[j].AppointmentID })
	return out, nil
}

func (q *memQueries) LockAllDoctors(context.Context) error {
	return q.fail("LockAllDoctors")
}

func (q *memQueries) FindCounterDrift(_ context.Context) ([]CounterDrift, error) {
	if err := q.fail("FindCounterDrift"); err != nil {
		return nil, err
	}
	var out []CounterDrift
	for _, d := range q.st().doctors {
		active := 0
		for _, a := range q.st().appointments {
			if a.DoctorID == d.ID && !q.isCancelled(a.ID) {
				active++
			}
		}
		if active != d.AppointmentCount {
			out = append(out, CounterDrift{DoctorID: d.ID, DoctorNIF: d.NIF, StoredCount: d.AppointmentCount, ActiveCount: active})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DoctorID < out[j].DoctorID })
	return out, nil
}

func (q *memQueries) SetDoctorCounter(_ context.Context, doctorID int64, count int) error {
	if err := q.fail("SetDoctorCounter"); err != nil {
		return err
	}
	d, ok := q.st().doctors[doctorID]
	if !ok {
		return ErrDoctorNotFound
	}
	d.AppointmentCount = count
	q.st().doctors[doctorID] = d
	return nil
}

func (q *memQueries) InsertEvent(_ context.Context, ev EventLog) error {
	if err := q.fail("InsertEvent"); err != nil {
		return err
	}
	ev.ID = int64(len(q.st().events) + 1)
	q.st().events = append(q.st().events, ev)
	return nil
}
