package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mediqueue/dental-scheduling/internal/clock"
	"github.com/mediqueue/dental-scheduling/internal/notify"
	"github.com/mediqueue/dental-scheduling/internal/queue"
)

// ListQueue returns the day's queue, one dentist or all, in call order. Due
// pending bookings for that day are confirmed first so they show up.
func (s *Service) ListQueue(ctx context.Context, dentistCode string, date clock.Date, now time.Time) ([]queue.Entry, error) {
	if err := s.settleDay(ctx, dentistCode, date, now); err != nil {
		return nil, err
	}

	entries, err := s.repo.ListQueue(ctx, QueueFilter{DentistCode: dentistCode, Date: date})
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return entries, nil
}

// SetQueueStatus moves a queue entry through its state machine. Cancelling or
// completing the entry does the same to its appointment.
func (s *Service) SetQueueStatus(ctx context.Context, queueCode string, to queue.Status, actor string, now time.Time) (*queue.Entry, error) {
	if !to.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"status": fmt.Sprintf("unknown queue status %q", to)}}
	}

	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		e, err := s.repo.GetQueueEntry(ctx, queueCode)
		if err != nil {
			return nil, err
		}
		key := e.Key()

		var (
			result *queue.Entry
			out    outbox
		)
		err = s.withLocks(ctx, []string{queueLockKey(key)}, func(ctx context.Context) error {
			out.reset()
			return s.repo.Tx(ctx, func(ctx context.Context, tx Store) error {
				cur, err := tx.GetQueueEntry(ctx, queueCode)
				if err != nil {
					return err
				}
				if cur.Key() != key {
					return errStaleLock
				}
				if !queue.CanTransition(cur.Status, to) {
					return invalidTransition("queue entry "+cur.Code, cur.Status, to)
				}

				from := cur.Status
				cur.Status = to
				cur.UpdatedAt = now
				if err := tx.UpdateQueueEntry(ctx, cur, from); err != nil {
					return err
				}
				out.add(s.queueEvent(cur, actor, now, map[string]any{"from": from}))

				if err := s.syncAppointment(ctx, tx, cur, actor, now, &out); err != nil {
					return err
				}

				result = cur
				return nil
			})
		})
		if errors.Is(err, errStaleLock) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.publish(ctx, out)
		return result, nil
	}
	return nil, fmt.Errorf("%w: queue entry %s keeps moving, please retry", ErrSlotUnavailable, queueCode)
}

func (s *Service) syncAppointment(ctx context.Context, tx Store, e *queue.Entry, actor string, now time.Time, out *outbox) error {
	if e.Status != queue.StatusCancelled && e.Status != queue.StatusCompleted {
		return nil
	}

	a, err := tx.GetAppointment(ctx, e.AppointmentCode)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.settle(ctx, tx, a, now, out); err != nil {
		return err
	}

	switch e.Status {
	case queue.StatusCancelled:
		if a.Status.Terminal() {
			return nil
		}
		if err := s.cancel(ctx, tx, a, actor, "cancelled from queue", now); err != nil {
			return err
		}
		out.add(s.event(notify.EventAppointmentCancelled, a, actor, now, map[string]any{"queue_code": e.Code}))
	case queue.StatusCompleted:
		if a.Status != StatusConfirmed {
			return nil
		}
		if err := s.complete(ctx, tx, a, now); err != nil {
			return err
		}
		out.add(s.event(notify.EventAppointmentCompleted, a, actor, now, map[string]any{"queue_code": e.Code}))
	}
	return nil
}

// NextPatient returns the entry the dentist should see next, or nil.
func (s *Service) NextPatient(ctx context.Context, dentistCode string, date clock.Date, now time.Time) (*queue.Entry, error) {
	entries, err := s.ListQueue(ctx, dentistCode, date, now)
	if err != nil {
		return nil, err
	}
	next, ok := queue.NextPatient(entries)
	if !ok {
		return nil, nil
	}
	return &next, nil
}

// Ongoing lists every entry in treatment on date across dentists.
func (s *Service) Ongoing(ctx context.Context, date clock.Date, now time.Time) ([]queue.Entry, error) {
	entries, err := s.ListQueue(ctx, "", date, now)
	if err != nil {
		return nil, err
	}
	return queue.Ongoing(entries), nil
}

func (s *Service) EstimateWait(ctx context.Context, dentistCode string, date clock.Date, now time.Time) (queue.WaitEstimate, error) {
	entries, err := s.ListQueue(ctx, dentistCode, date, now)
	if err != nil {
		return queue.WaitEstimate{}, err
	}
	return queue.EstimateWait(entries, s.cfg.AverageServiceMinutes), nil
}

// settleDay confirms the day's pending bookings whose delay ran out.
func (s *Service) settleDay(ctx context.Context, dentistCode string, date clock.Date, now time.Time) error {
	return s.settleRange(ctx, dentistCode, s.clock.StartOfDay(date), s.clock.EndOfDay(date), now)
}

// settleRange confirms due pending bookings in [from, to). Zero bounds and an
// empty dentist code are unbounded.
func (s *Service) settleRange(ctx context.Context, dentistCode string, from, to time.Time, now time.Time) error {
	pending, err := s.repo.ListAppointments(ctx, ListFilter{
		DentistCode: dentistCode,
		From:        from,
		To:          to,
		Statuses:    []AppointmentStatus{StatusPending},
	})
	if err != nil {
		return fmt.Errorf("list pending appointments: %w", err)
	}
	_, err = s.settleAll(ctx, pending, now)
	return err
}

// ensureQueueEntry gives a confirmed appointment its queue entry, once.
// Callers hold the appointment's dentist-day lock.
func (s *Service) ensureQueueEntry(ctx context.Context, tx Store, a *Appointment, now time.Time) (*queue.Entry, bool, error) {
	existing, err := tx.GetQueueEntryByAppointment(ctx, a.Code)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrQueueEntryNotFound) {
		return nil, false, err
	}

	key := queue.Key{DentistCode: a.DentistCode, Date: s.clock.DateOf(a.AppointmentDate)}
	day, err := tx.ListQueue(ctx, QueueFilter{DentistCode: key.DentistCode, Date: key.Date})
	if err != nil {
		return nil, false, err
	}

	code, err := tx.NextQueueCode(ctx)
	if err != nil {
		return nil, false, err
	}

	e := &queue.Entry{
		Code:            code,
		AppointmentCode: a.Code,
		DentistCode:     a.DentistCode,
		PatientCode:     a.PatientCode,
		PatientName:     displayName(a),
		Date:            key.Date,
		ScheduledAt:     a.AppointmentDate,
		DurationMinutes: a.DurationMinutes,
		Position:        maxPosition(day) + 1,
		Status:          queue.StatusWaiting,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.InsertQueueEntry(ctx, e); err != nil {
		return nil, false, err
	}

	if err := s.resequence(ctx, tx, key, now); err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// moveQueueEntry follows a rescheduled appointment: the entry takes the new
// time and day and both affected days are re-sorted.
func (s *Service) moveQueueEntry(ctx context.Context, tx Store, e *queue.Entry, a *Appointment, oldKey queue.Key, now time.Time) error {
	newKey := queue.Key{DentistCode: a.DentistCode, Date: s.clock.DateOf(a.AppointmentDate)}

	if newKey != oldKey {
		day, err := tx.ListQueue(ctx, QueueFilter{DentistCode: newKey.DentistCode, Date: newKey.Date})
		if err != nil {
			return err
		}
		e.Position = maxPosition(day) + 1
	}

	prev := e.Status
	e.DentistCode = newKey.DentistCode
	e.Date = newKey.Date
	e.ScheduledAt = a.AppointmentDate
	e.DurationMinutes = a.DurationMinutes
	e.Status = queue.StatusWaiting
	e.UpdatedAt = now
	if err := tx.UpdateQueueEntry(ctx, e, prev); err != nil {
		return err
	}

	if err := s.resequence(ctx, tx, newKey, now); err != nil {
		return err
	}
	if newKey != oldKey {
		return s.resequence(ctx, tx, oldKey, now)
	}
	return nil
}

// resequence restores dense, chronological positions for one dentist-day.
// Positions follow appointment time, not arrival: an entry joining with an
// earlier time shifts the entries after it down by one.
func (s *Service) resequence(ctx context.Context, tx Store, key queue.Key, now time.Time) error {
	day, err := tx.ListQueue(ctx, QueueFilter{DentistCode: key.DentistCode, Date: key.Date})
	if err != nil {
		return err
	}

	_, changed := queue.Resequence(day)
	for i := range changed {
		changed[i].UpdatedAt = now
	}
	if err := tx.SetQueuePositions(ctx, changed); err != nil {
		return fmt.Errorf("resequence %s: %w", key, err)
	}
	return nil
}

func maxPosition(entries []queue.Entry) int {
	max := 0
	for _, e := range entries {
		if e.Position > max {
			max = e.Position
		}
	}
	return max
}

func displayName(a *Appointment) string {
	if a.RecipientName != "" {
		return a.RecipientName
	}
	if a.Guest != nil {
		return a.Guest.Name
	}
	return ""
}
