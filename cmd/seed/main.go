package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mediqueue/dental-scheduling/internal/availability"
	"github.com/mediqueue/dental-scheduling/internal/clock"
	"github.com/mediqueue/dental-scheduling/internal/config"
	"github.com/mediqueue/dental-scheduling/internal/db"
	"github.com/mediqueue/dental-scheduling/internal/logger"
)

const (
	dentistCount      = 12
	patientCount      = 5000
	receptionistCount = 4
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", "prod")
		log.Fatal().Err(err).Msg("config load error")
	}
	logger.Init(cfg.LogLevel, cfg.Env)
	log.Info().Msg("seed starting")

	if cfg.PostgresDSN == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}
	policy, err := cfg.ClockPolicy()
	if err != nil {
		log.Fatal().Err(err).Msg("clinic clock")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedDentists(context.Background(), pool, faker, policy, dentistCount); err != nil {
		log.Fatal().Err(err).Msg("seed dentists")
	}
	if err := seedStaff(context.Background(), pool, faker, receptionistCount); err != nil {
		log.Fatal().Err(err).Msg("seed staff")
	}
	if err := seedPatients(context.Background(), pool, faker, patientCount); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedClinicEvents(context.Background(), pool, faker, policy); err != nil {
		log.Fatal().Err(err).Msg("seed clinic events")
	}

	log.Info().Msg("seed complete")
}

var shifts = []string{"09:00-17:00", "10:00-18:00", "08:30-14:30", "13:00-20:00"}

// seedDentists writes dentists with a weekly template and the odd leave period.
func seedDentists(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, policy clock.Policy, count int) error {
	log.Info().Int("count", count).Msg("seeding dentists")

	today := policy.DateOf(policy.Now())

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := 1; i <= count; i++ {
			code := fmt.Sprintf("D-%02d", i)
			if _, err := tx.Exec(ctx, `
				INSERT INTO dentists (code, name) VALUES ($1, $2)
				ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
			`, code, "Dr. "+faker.LastName()); err != nil {
				return err
			}

			shift := shifts[faker.Number(0, len(shifts)-1)]
			for _, day := range availability.Weekdays {
				window := shift
				switch {
				case day == availability.Sun:
					window = "closed"
				case day == availability.Sat && faker.Bool():
					window = "09:00-13:00"
				}
				if _, err := tx.Exec(ctx, `
					INSERT INTO dentist_availability (dentist_code, weekday, time_window)
					VALUES ($1, $2, $3)
					ON CONFLICT (dentist_code, weekday) DO UPDATE SET time_window = EXCLUDED.time_window
				`, code, string(day), window); err != nil {
					return err
				}
			}

			if faker.Number(1, 4) == 1 {
				from := today.AddDays(faker.Number(3, 40))
				to := from.AddDays(faker.Number(0, 4))
				if _, err := tx.Exec(ctx, `
					INSERT INTO dentist_leaves (dentist_code, date_from, date_to, reason)
					VALUES ($1, $2, $3, $4)
				`, code, from.String(), to.String(), faker.RandomString([]string{"Conference", "Vacation", "Training", "Personal"})); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func seedStaff(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	log.Info().Int("count", count).Msg("seeding receptionists")

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := 1; i <= count; i++ {
			if _, err := tx.Exec(ctx, `
				INSERT INTO staff (code, name, role) VALUES ($1, $2, 'receptionist')
				ON CONFLICT (code) DO NOTHING
			`, fmt.Sprintf("R-%02d", i), faker.Name()); err != nil {
				return err
			}
		}
		return nil
	})
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			batch.Queue(`
				INSERT INTO patients (code, name, email, phone) VALUES ($1, $2, $3, $4)
				ON CONFLICT (code) DO NOTHING
			`, fmt.Sprintf("P-%05d", i+1), faker.Name(), faker.Email(), faker.Phone())
		}

		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			return tx.SendBatch(ctx, batch).Close()
		})
		if err != nil {
			return err
		}

		log.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}
	return nil
}

// seedClinicEvents adds one published closure and one draft a few weeks out.
func seedClinicEvents(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, policy clock.Policy) error {
	today := policy.DateOf(policy.Now())
	closure := today.AddDays(faker.Number(14, 30))
	draft := today.AddDays(faker.Number(31, 60))

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, ev := range []struct {
			title     string
			day       clock.Date
			published bool
		}{
			{"Clinic maintenance", closure, true},
			{faker.Company() + " workshop", draft, false},
		} {
			if _, err := tx.Exec(ctx, `
				INSERT INTO clinic_events (title, start_date, end_date, is_published)
				VALUES ($1, $2, $3, $4)
			`, ev.title, policy.At(ev.day, 9*60), policy.At(ev.day, 13*60), ev.published); err != nil {
				return err
			}
		}
		return nil
	})
}
