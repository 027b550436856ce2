package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
)

const batchSize = 500

var specialties = []string{
	"Medicina General",
	"Oncologia",
	"Cardiologia",
	"Dermatologia",
	"Pediatria",
	"Traumatologia",
	"Neurologia",
	"Oftalmologia",
	"Psiquiatria",
	"Endocrinologia",
}

func main() {
	applySchema := flag.Bool("schema", false, "create tables and the reset_fixtures procedure")
	reset := flag.Bool("reset", false, "wipe every table and load the fixed data set")
	fakeDoctors := flag.Int("fake-doctors", 0, "number of random doctors to insert")
	fakePatients := flag.Int("fake-patients", 0, "number of random patients to insert")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logging.Sync(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if *applySchema {
		if err := db.ApplySchema(ctx, pool); err != nil {
			logger.Fatal("apply schema", zap.Error(err))
		}
		logger.Info("schema applied")
	}

	if *reset {
		if err := db.ResetFixtures(ctx, pool); err != nil {
			logger.Fatal("reset fixtures", zap.Error(err))
		}
		logger.Info("fixtures loaded")
	}

	faker := gofakeit.New(0)

	if *fakeDoctors > 0 {
		n, err := seedDoctors(ctx, pool, faker, *fakeDoctors, logger)
		if err != nil {
			logger.Fatal("seed doctors", zap.Error(err))
		}
		logger.Info("doctors seeded", zap.Int("inserted", n))
	}

	if *fakePatients > 0 {
		n, err := seedPatients(ctx, pool, faker, *fakePatients, logger)
		if err != nil {
			logger.Fatal("seed patients", zap.Error(err))
		}
		logger.Info("patients seeded", zap.Int("inserted", n))
	}
}

// fakeNIF builds a well formed NIF: eight digits and their control letter.
func fakeNIF(faker *gofakeit.Faker) string {
	const letters = "TRWAGMYFPDXBNJZSQVHLCKE"
	digits := faker.Numerify("########")
	n, _ := strconv.Atoi(digits)
	return digits + string(letters[n%23])
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger *zap.Logger) (int, error) {
	return insertInBatches(ctx, pool, count, logger.With(zap.String("table", "doctors")), func(b *pgx.Batch) {
		b.Queue(`
			INSERT INTO doctors (nif, first_name, last_name1, last_name2, specialty, appointment_count)
			VALUES ($1, $2, $3, $4, $5, 0)
			ON CONFLICT (nif) DO NOTHING
		`, fakeNIF(faker), faker.FirstName(), faker.LastName(), faker.LastName(),
			specialties[faker.Number(0, len(specialties)-1)])
	})
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger *zap.Logger) (int, error) {
	return insertInBatches(ctx, pool, count, logger.With(zap.String("table", "patients")), func(b *pgx.Batch) {
		b.Queue(`
			INSERT INTO patients (nif, first_name, last_name1, last_name2)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (nif) DO NOTHING
		`, fakeNIF(faker), faker.FirstName(), faker.LastName(), faker.LastName())
	})
}

// insertInBatches commits one transaction per batch and returns the number of
// rows actually inserted. Colliding NIFs are skipped.
func insertInBatches(ctx context.Context, pool *pgxpool.Pool, count int, logger *zap.Logger, queue func(*pgx.Batch)) (int, error) {
	inserted := 0

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			queue(batch)
		}

		batchInserted := 0
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			results := tx.SendBatch(ctx, batch)
			for i := offset; i < end; i++ {
				tag, err := results.Exec()
				if err != nil {
					_ = results.Close()
					return fmt.Errorf("row %d: %w", i, err)
				}
				batchInserted += int(tag.RowsAffected())
			}
			return results.Close()
		})
		if err != nil {
			return inserted, err
		}
		inserted += batchInserted

		logger.Info("batch committed", zap.Int("progress", end), zap.Int("total", count))
	}

	return inserted, nil
}
