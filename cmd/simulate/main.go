package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	ReserveRatio float64
	CancelRatio  float64
	ListRatio    float64
	PatientLimit int
	DoctorLimit  int
	DateSpread   int // reservations fall within this many days from StartDate
	StartDate    time.Time
}

// reservation is a booking the simulator made and may later cancel.
type reservation struct {
	PatientNIF string
	DoctorNIF  string
	Date       time.Time
}

type DataPool struct {
	Patients []string
	Doctors  []string

	mu           sync.Mutex
	reservations []reservation
}

func (dp *DataPool) AddReservation(r reservation) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.reservations = append(dp.reservations, r)
}

// TakeReservation removes and returns a random reservation.
func (dp *DataPool) TakeReservation(rng *rand.Rand) (reservation, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.reservations) == 0 {
		return reservation{}, false
	}
	idx := rng.Intn(len(dp.reservations))
	r := dp.reservations[idx]
	last := len(dp.reservations) - 1
	dp.reservations[idx] = dp.reservations[last]
	dp.reservations = dp.reservations[:last]
	return r, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64 // 4xx answers: expected business outcomes
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		atomic.AddInt64(&om.Error, 1)
	case status >= http.StatusBadRequest:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Success, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Reserve OperationMetrics
	Cancel  OperationMetrics
	List    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     *zap.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	logger, err := logging.New(baseCfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logging.Sync(logger)

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("reserve", cfg.ReserveRatio),
		zap.Float64("cancel", cfg.CancelRatio),
		zap.Float64("list", cfg.ListRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}

	logger.Info("data pool loaded",
		zap.Int("patients", len(dataPool.Patients)),
		zap.Int("doctors", len(dataPool.Doctors)),
	)

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: logger,
	}

	sim.Run()
	sim.PrintReport()

	checkCtx, cancelCheck := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelCheck()
	if err := checkInvariants(checkCtx, pgPool, baseCfg, logger); err != nil {
		logger.Error("invariant check failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("invariants hold")
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		ReserveRatio: getFloat("SIM_RESERVE_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.2),
		ListRatio:    getFloat("SIM_LIST_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 100),
		DateSpread:   getInt("SIM_DATE_SPREAD_DAYS", 30),
		StartDate:    appointment.DateOnly(time.Now()).AddDate(0, 0, 1),
	}

	total := cfg.ReserveRatio + cfg.CancelRatio + cfg.ListRatio
	if total > 0 {
		cfg.ReserveRatio /= total
		cfg.CancelRatio /= total
		cfg.ListRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.DateSpread <= 0 {
		return fmt.Errorf("SIM_DATE_SPREAD_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	var err error
	dataPool.Patients, err = loadNIFs(ctx, pool, `SELECT nif FROM patients ORDER BY nif LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	dataPool.Doctors, err = loadNIFs(ctx, pool, `SELECT nif FROM doctors ORDER BY id LIMIT $1`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded")
	}

	return dataPool, nil
}

func loadNIFs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]string, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nifs []string
	for rows.Next() {
		var nif string
		if err := rows.Scan(&nif); err != nil {
			return nil, err
		}
		nifs = append(nifs, nif)
	}
	return nifs, rows.Err()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.ReserveRatio:
				s.doReserve(ctx, rng)
			case r < s.config.ReserveRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				s.doList(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doReserve(ctx context.Context, rng *rand.Rand) {
	res := reservation{
		PatientNIF: s.pool.Patients[rng.Intn(len(s.pool.Patients))],
		DoctorNIF:  s.pool.Doctors[rng.Intn(len(s.pool.Doctors))],
		Date:       s.config.StartDate.AddDate(0, 0, rng.Intn(s.config.DateSpread)),
	}

	status, latency, err := s.post(ctx, "/appointments", map[string]string{
		"patient_nif": res.PatientNIF,
		"doctor_nif":  res.DoctorNIF,
		"date":        appointment.FormatDate(res.Date),
	})
	if err == nil && status == http.StatusCreated {
		s.pool.AddReservation(res)
	}

	s.metrics.Reserve.Record(latency, status, ctxErr(ctx, err))
}

// doCancel cancels a reservation made earlier, between zero and four days
// ahead of it, so both sides of the notice rule are exercised.
func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	res, ok := s.pool.TakeReservation(rng)
	if !ok {
		return
	}

	cancelDate := res.Date.AddDate(0, 0, -rng.Intn(5))
	status, latency, err := s.post(ctx, "/appointments/cancel", map[string]string{
		"patient_nif":       res.PatientNIF,
		"doctor_nif":        res.DoctorNIF,
		"appointment_date":  appointment.FormatDate(res.Date),
		"cancellation_date": appointment.FormatDate(cancelDate),
		"reason":            "simulated",
	})
	if err == nil && status == http.StatusConflict {
		// Too late; the appointment stays active and can be retried.
		s.pool.AddReservation(res)
	}

	s.metrics.Cancel.Record(latency, status, ctxErr(ctx, err))
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/doctors/%s/appointments", s.config.APIBaseURL, url.PathEscape(doctor)), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	status := 0
	if err == nil {
		status = resp.StatusCode
		resp.Body.Close()
	}

	s.metrics.List.Record(latency, status, ctxErr(ctx, err))
}

func (s *Simulator) post(ctx context.Context, path string, body any) (int, time.Duration, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, 0, err
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, latency, nil
}

// ctxErr ignores failures caused by the simulation deadline itself.
func ctxErr(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// checkInvariants verifies no doctor holds two active appointments on one
// date and every counter matches the active appointments it counts.
func checkInvariants(ctx context.Context, pool *pgxpool.Pool, cfg config.Config, logger *zap.Logger) error {
	var doubleBooked int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT a.doctor_id, a.appointment_date
			FROM appointments a
			WHERE NOT EXISTS (SELECT 1 FROM cancellations c WHERE c.appointment_id = a.id)
			GROUP BY a.doctor_id, a.appointment_date
			HAVING count(*) > 1
		) dup
	`).Scan(&doubleBooked)
	if err != nil {
		return fmt.Errorf("count double bookings: %w", err)
	}
	if doubleBooked > 0 {
		return fmt.Errorf("%d doctor/date pairs hold more than one active appointment", doubleBooked)
	}

	cfg.AuditRepair = false
	svc := appointment.NewService(appointment.NewPgRepository(pool), nil, nil, cfg, logger)
	report, err := svc.AuditCounters(ctx)
	if err != nil {
		return err
	}
	if len(report.Drifts) > 0 {
		return fmt.Errorf("%d doctors have a drifted appointment counter", len(report.Drifts))
	}
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Reserve", &s.metrics.Reserve)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("List", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	rejected := atomic.LoadInt64(&om.Rejected)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, float64(rejected)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
