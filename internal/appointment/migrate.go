package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mediqueue/dental-scheduling/internal/clock"
	"github.com/mediqueue/dental-scheduling/internal/queue"
)

// MigrateToday projects the confirmed appointments of date into the queue.
// Appointments that already have an entry are skipped, so running it again
// moves nothing. Each dentist's day is handled under its own lock.
func (s *Service) MigrateToday(ctx context.Context, date clock.Date, now time.Time) (int, error) {
	if err := s.settleDay(ctx, "", date, now); err != nil {
		return 0, err
	}

	confirmed, err := s.repo.ListAppointments(ctx, ListFilter{
		From:     s.clock.StartOfDay(date),
		To:       s.clock.EndOfDay(date),
		Statuses: []AppointmentStatus{StatusConfirmed},
	})
	if err != nil {
		return 0, fmt.Errorf("list confirmed appointments: %w", err)
	}

	byDentist := make(map[string][]string)
	for _, a := range confirmed {
		if s.clock.DateOf(a.AppointmentDate) != date {
			continue
		}
		byDentist[a.DentistCode] = append(byDentist[a.DentistCode], a.Code)
	}

	dentists := make([]string, 0, len(byDentist))
	for d := range byDentist {
		dentists = append(dentists, d)
	}
	sort.Strings(dentists)

	moved := 0
	var errs []error
	for _, dentist := range dentists {
		n, err := s.migrateDentist(ctx, queue.Key{DentistCode: dentist, Date: date}, byDentist[dentist], now)
		if err != nil {
			log.Error().Err(err).Str("dentist", dentist).Str("date", date.String()).Msg("queue migration failed")
			errs = append(errs, fmt.Errorf("migrate %s: %w", dentist, err))
			continue
		}
		moved += n
	}

	s.metrics.ObserveMigrated(moved)
	return moved, errors.Join(errs...)
}

func (s *Service) migrateDentist(ctx context.Context, key queue.Key, codes []string, now time.Time) (int, error) {
	moved := 0
	err := s.withLocks(ctx, []string{queueLockKey(key)}, func(ctx context.Context) error {
		moved = 0
		return s.repo.Tx(ctx, func(ctx context.Context, tx Store) error {
			for _, code := range codes {
				a, err := tx.GetAppointment(ctx, code)
				if err != nil {
					return err
				}
				// Re-checked under the lock: it may have been cancelled or moved.
				if a.Status != StatusConfirmed || a.DentistCode != key.DentistCode || s.clock.DateOf(a.AppointmentDate) != key.Date {
					continue
				}

				_, created, err := s.ensureQueueEntry(ctx, tx, a, now)
				if err != nil {
					return err
				}
				if created {
					moved++
				}
			}
			return nil
		})
	})
	return moved, err
}
