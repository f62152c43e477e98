package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/triage-scheduling/internal/db"
	"github.com/hackgods/triage-scheduling/internal/doctor"
	"github.com/hackgods/triage-scheduling/internal/logging"
	"github.com/hackgods/triage-scheduling/internal/triage"
)

const (
	doctorCount  = 120
	patientCount = 9000
)

func main() {
	logger := logging.Init("seed", os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	if err := db.Migrate(dsn, logging.Component("migrations")); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	faker := gofakeit.New(0)

	if err := seedDoctors(context.Background(), pool, faker, doctorCount, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(context.Background(), pool, faker, patientCount, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

// seedDoctors spreads doctors over the specializations the classifier can
// recommend, so every triage outcome has someone to match.
func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding doctors")

	kb := triage.DefaultKnowledgeBase()
	var specs []string
	for _, s := range kb.Specializations() {
		specs = append(specs, s.Name())
	}
	specs = append(specs, "family_medicine")

	dir := doctor.NewPgDirectory(pool)
	for _, d := range doctor.Fake(faker, specs, count) {
		if err := dir.Insert(ctx, d); err != nil {
			return err
		}
	}

	logger.Info().Msg("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, age, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
				ON CONFLICT (email) DO NOTHING
			`, uuid.New(), faker.Name(), faker.Email(), faker.Number(1, 95))
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("seeded", end).Int("total", count).Msg("patients progress")
	}

	logger.Info().Msg("patients seeded")
	return nil
}
