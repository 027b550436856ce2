// Command clinicctl runs reserve, cancel and list against the database
// directly, printing results the way the clinic's console tooling expects.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
)

const usage = `usage:
  clinicctl reserve -patient NIF -doctor NIF -date DATE
  clinicctl cancel  -patient NIF -doctor NIF -date DATE -on DATE -reason TEXT
  clinicctl list    -doctor NIF

DATE is YYYY-MM-DD or DD-MM-YYYY.
`

var errUsage = errors.New("invalid usage")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgresWithOptions(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	cancel()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pool.Close()

	svc := appointment.NewService(appointment.NewPgRepository(pool), nil, nil, cfg, logger)

	err = run(ctx, svc, os.Args[1], os.Args[2:], os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		fmt.Fprint(os.Stderr, usage)
		pool.Close()
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "%s: %v\n", appointment.KindOf(err), err)
		pool.Close()
		os.Exit(1)
	}
}

// service is the subset of *appointment.Service the commands call.
type service interface {
	Reserve(ctx context.Context, patientNIF, doctorNIF string, date time.Time) (*appointment.Appointment, error)
	Cancel(ctx context.Context, patientNIF, doctorNIF string, appointmentDate, cancellationDate time.Time, reason string) (*appointment.Cancellation, error)
	List(ctx context.Context, doctorNIF string) ([]appointment.HistoryEntry, error)
}

func run(ctx context.Context, svc service, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	patient := fs.String("patient", "", "patient NIF")
	doctor := fs.String("doctor", "", "doctor NIF")
	date := fs.String("date", "", "appointment date")
	on := fs.String("on", "", "cancellation date")
	reason := fs.String("reason", "", "cancellation reason")

	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	switch cmd {
	case "reserve":
		if *patient == "" || *doctor == "" {
			return errUsage
		}
		d, err := appointment.ParseDate(*date)
		if err != nil {
			return err
		}
		appt, err := svc.Reserve(ctx, *patient, *doctor, d)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "appointment %d reserved for %s\n", appt.ID, appointment.FormatDate(appt.Date))
		return err

	case "cancel":
		if *patient == "" || *doctor == "" {
			return errUsage
		}
		apptDate, err := appointment.ParseDate(*date)
		if err != nil {
			return err
		}
		cancelDate, err := appointment.ParseDate(*on)
		if err != nil {
			return err
		}
		c, err := svc.Cancel(ctx, *patient, *doctor, apptDate, cancelDate, *reason)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "appointment %d cancelled (cancellation %d)\n", c.AppointmentID, c.ID)
		return err

	case "list":
		if *doctor == "" {
			return errUsage
		}
		entries, err := svc.List(ctx, *doctor)
		if err != nil {
			return err
		}
		return appointment.RenderHistory(out, entries)

	default:
		return errUsage
	}
}
