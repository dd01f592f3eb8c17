package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mediqueue/dental-scheduling/internal/availability"
	"github.com/mediqueue/dental-scheduling/internal/clock"
	"github.com/mediqueue/dental-scheduling/internal/config"
	"github.com/mediqueue/dental-scheduling/internal/conflict"
	"github.com/mediqueue/dental-scheduling/internal/directory"
	"github.com/mediqueue/dental-scheduling/internal/metrics"
	"github.com/mediqueue/dental-scheduling/internal/notify"
	"github.com/mediqueue/dental-scheduling/internal/queue"
	redisclient "github.com/mediqueue/dental-scheduling/internal/redis"
	"github.com/mediqueue/dental-scheduling/internal/slot"
)

const maxLockAttempts = 3

var errStaleLock = errors.New("appointment moved while waiting for its lock")

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	calendar *availability.Calendar
	slots    *slot.Generator
	clock    clock.Policy
	cfg      config.SchedulingConfig
	notifier notify.Sink
	accounts directory.Accounts
	staff    directory.Staff
	metrics  *metrics.Scheduling
}

type Option func(*Service)

func WithNotifier(n notify.Sink) Option {
	return func(s *Service) { s.notifier = n }
}

func WithDirectory(accounts directory.Accounts, staff directory.Staff) Option {
	return func(s *Service) {
		s.accounts = accounts
		s.staff = staff
	}
}

func WithMetrics(m *metrics.Scheduling) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo Repository, locker redisclient.Locker, calendar *availability.Calendar, cfg config.SchedulingConfig, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		locker:   locker,
		calendar: calendar,
		slots:    slot.NewGenerator(calendar.Clock()),
		clock:    calendar.Clock(),
		cfg:      cfg,
		notifier: notify.LogSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Clock() clock.Policy {
	return s.clock
}

// GetDaySchedule resolves the dentist's window for date and classifies every
// step-sized slot in it.
func (s *Service) GetDaySchedule(ctx context.Context, dentistCode string, date clock.Date, stepMinutes int, now time.Time) (*DaySchedule, error) {
	if stepMinutes <= 0 {
		stepMinutes = s.cfg.DefaultStepMinutes
	}

	var (
		res  availability.Resolution
		busy []conflict.Interval
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		res, err = s.calendar.ResolveWindow(gctx, dentistCode, date)
		return err
	})
	g.Go(func() error {
		var err error
		busy, err = s.repo.ListOccupancy(gctx, dentistCode, s.clock.StartOfDay(date), s.clock.EndOfDay(date))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("get day schedule: %w", err)
	}

	schedule := &DaySchedule{
		DentistCode: dentistCode,
		Date:        date,
		StepMinutes: stepMinutes,
		Resolution:  res,
		Slots:       []slot.Slot{},
	}
	if res.Window == nil {
		schedule.Counts = map[slot.Status]int{}
		return schedule, nil
	}

	slots, err := s.slots.Generate(slot.Input{
		Window:      *res.Window,
		StepMinutes: stepMinutes,
		Date:        date,
		Now:         now,
		Bookings:    busy,
		Events:      res.Events,
		Leaves:      res.Leaves,
	})
	if err != nil {
		return nil, err
	}
	schedule.Slots = slots
	schedule.Counts = slot.Counts(slots)
	return schedule, nil
}

// CreateAppointment books [start, start+duration) for the dentist. The check
// and the insert run under the dentist-day lock inside one transaction.
func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest, now time.Time) (*Appointment, error) {
	if req.DurationMinutes == 0 {
		req.DurationMinutes = s.cfg.DefaultDurationMinutes
	}
	if err := validateCreate(req); err != nil {
		s.metrics.ObserveBooking(string(req.Origin), "invalid")
		return nil, err
	}
	if req.Origin == OriginReceptionist {
		s.checkReceptionist(ctx, req.ActorCode)
	}

	start := req.Start.In(s.clock.Location())
	key := s.dayKey(req.DentistCode, start)

	var (
		created *Appointment
		out     outbox
	)
	err := s.withLocks(ctx, []string{key}, func(ctx context.Context) error {
		out.reset()
		return s.repo.Tx(ctx, func(ctx context.Context, tx Store) error {
			if err := s.checkBookable(ctx, tx, req.DentistCode, start, req.DurationMinutes, "", now, req.OverrideLeave); err != nil {
				return err
			}

			code, err := tx.NextAppointmentCode(ctx)
			if err != nil {
				return err
			}

			a := &Appointment{
				Code:            code,
				PatientCode:     req.PatientCode,
				Guest:           normalizeGuest(req.Guest),
				RecipientName:   req.RecipientName,
				DentistCode:     req.DentistCode,
				AppointmentDate: start,
				DurationMinutes: req.DurationMinutes,
				Status:          StatusPending,
				Origin:          req.Origin,
				Reason:          req.Reason,
				RequestedAt:     now,
				CreatedByCode:   req.ActorCode,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if a.CreatedByCode == "" {
				a.CreatedByCode = a.PatientCode
			}
			if req.Origin == OriginReceptionist {
				a.Status = StatusConfirmed
				a.AcceptedByCode = req.ActorCode
				accepted := now
				a.AcceptedAt = &accepted
			}

			if err := tx.InsertAppointment(ctx, a); err != nil {
				return err
			}
			out.add(s.event(notify.EventBookingCreated, a, a.CreatedByCode, now, map[string]any{
				"origin":           a.Origin,
				"duration_minutes": a.DurationMinutes,
			}))

			if a.Status == StatusConfirmed && s.clock.SameDay(a.AppointmentDate, now) {
				if _, _, err := s.ensureQueueEntry(ctx, tx, a, now); err != nil {
					return err
				}
			}

			created = a
			return nil
		})
	})
	if err != nil {
		s.metrics.ObserveBooking(string(req.Origin), bookingResult(err))
		return nil, err
	}

	s.metrics.ObserveBooking(string(req.Origin), "created")
	s.publish(ctx, out)
	return created, nil
}

// ConfirmAppointment lets a receptionist accept a pending booking before the
// auto-confirm delay runs out.
func (s *Service) ConfirmAppointment(ctx context.Context, code, actor string, now time.Time) (*Appointment, error) {
	s.checkReceptionist(ctx, actor)

	return s.mutate(ctx, code, nil, func(ctx context.Context, tx Store, a *Appointment, out *outbox) error {
		if err := s.settle(ctx, tx, a, now, out); err != nil {
			return err
		}
		if a.Status != StatusPending {
			return invalidTransition("appointment "+a.Code, a.Status, StatusConfirmed)
		}

		if err := s.confirm(ctx, tx, a, actor, now, now); err != nil {
			return err
		}
		out.add(s.event(notify.EventAppointmentConfirmed, a, actor, now, nil))
		return nil
	})
}

// CancelAppointment is legal from pending or confirmed. The queue entry, if
// any, is cancelled with it and the slot becomes free again.
func (s *Service) CancelAppointment(ctx context.Context, code, actor, reason string, now time.Time) (*Appointment, error) {
	return s.mutate(ctx, code, nil, func(ctx context.Context, tx Store, a *Appointment, out *outbox) error {
		if err := s.settle(ctx, tx, a, now, out); err != nil {
			return err
		}
		if err := s.cancel(ctx, tx, a, actor, reason, now); err != nil {
			return err
		}

		entry, err := tx.GetQueueEntryByAppointment(ctx, a.Code)
		switch {
		case errors.Is(err, ErrQueueEntryNotFound):
		case err != nil:
			return err
		case !entry.Status.Terminal():
			prev := entry.Status
			entry.Status = queue.StatusCancelled
			entry.UpdatedAt = now
			if err := tx.UpdateQueueEntry(ctx, entry, prev); err != nil {
				return err
			}
		}

		out.add(s.event(notify.EventAppointmentCancelled, a, actor, now, map[string]any{"reason": reason}))
		return nil
	})
}

// RescheduleAppointment moves the appointment in place: same code and history,
// new time, dentist or duration. Its queue entry moves with it.
func (s *Service) RescheduleAppointment(ctx context.Context, code string, req RescheduleRequest, now time.Time) (*Appointment, error) {
	if err := validateReschedule(req); err != nil {
		return nil, err
	}
	newStart := req.Start.In(s.clock.Location())

	targetDentist := func(a *Appointment) string {
		if req.DentistCode != "" {
			return req.DentistCode
		}
		return a.DentistCode
	}
	extraKeys := func(a *Appointment) []string {
		return []string{s.dayKey(targetDentist(a), newStart)}
	}

	return s.mutate(ctx, code, extraKeys, func(ctx context.Context, tx Store, a *Appointment, out *outbox) error {
		if err := s.settle(ctx, tx, a, now, out); err != nil {
			return err
		}
		if a.Status != StatusPending && a.Status != StatusConfirmed {
			return invalidTransition("appointment "+a.Code, a.Status, "rescheduled")
		}

		dentist := targetDentist(a)
		minutes := req.DurationMinutes
		if minutes == 0 {
			minutes = a.DurationMinutes
		}

		entry, err := tx.GetQueueEntryByAppointment(ctx, a.Code)
		if err != nil && !errors.Is(err, ErrQueueEntryNotFound) {
			return err
		}
		if entry != nil && (entry.Status == queue.StatusCalled || entry.Status == queue.StatusInTreatment) {
			return invalidTransition("queue entry "+entry.Code, entry.Status, "rescheduled")
		}

		if err := s.checkBookable(ctx, tx, dentist, newStart, minutes, a.Code, now, false); err != nil {
			return err
		}

		from := map[string]any{
			"from_dentist": a.DentistCode,
			"from_start":   a.AppointmentDate,
			"from_minutes": a.DurationMinutes,
		}
		oldKey := queue.Key{DentistCode: a.DentistCode, Date: s.clock.DateOf(a.AppointmentDate)}

		a.DentistCode = dentist
		a.AppointmentDate = newStart
		a.DurationMinutes = minutes
		a.UpdatedAt = now
		if err := tx.UpdateAppointment(ctx, a, a.Status); err != nil {
			return err
		}

		switch {
		case entry != nil && (entry.Status == queue.StatusWaiting || entry.Status == queue.StatusNoShow):
			if err := s.moveQueueEntry(ctx, tx, entry, a, oldKey, now); err != nil {
				return err
			}
		case entry == nil && a.Status == StatusConfirmed && s.clock.SameDay(a.AppointmentDate, now):
			if _, _, err := s.ensureQueueEntry(ctx, tx, a, now); err != nil {
				return err
			}
		}

		out.add(s.event(notify.EventRescheduled, a, req.ActorCode, now, from))
		return nil
	})
}

// CompleteAppointment is legal from confirmed. When the visit went through the
// queue, the entry must be in treatment (or already completed).
func (s *Service) CompleteAppointment(ctx context.Context, code, actor string, now time.Time) (*Appointment, error) {
	return s.mutate(ctx, code, nil, func(ctx context.Context, tx Store, a *Appointment, out *outbox) error {
		if err := s.settle(ctx, tx, a, now, out); err != nil {
			return err
		}
		if !canTransition(a.Status, StatusCompleted) {
			return invalidTransition("appointment "+a.Code, a.Status, StatusCompleted)
		}

		entry, err := tx.GetQueueEntryByAppointment(ctx, a.Code)
		switch {
		case errors.Is(err, ErrQueueEntryNotFound):
		case err != nil:
			return err
		case entry.Status == queue.StatusInTreatment:
			entry.Status = queue.StatusCompleted
			entry.UpdatedAt = now
			if err := tx.UpdateQueueEntry(ctx, entry, queue.StatusInTreatment); err != nil {
				return err
			}
		case entry.Status != queue.StatusCompleted:
			return invalidTransition("queue entry "+entry.Code, entry.Status, queue.StatusCompleted)
		}

		if err := s.complete(ctx, tx, a, now); err != nil {
			return err
		}
		out.add(s.event(notify.EventAppointmentCompleted, a, actor, now, nil))
		return nil
	})
}

// GetAppointment returns the appointment as of now, applying a due
// auto-confirmation first, enriched with names and its queue entry.
func (s *Service) GetAppointment(ctx context.Context, code string, now time.Time) (*AppointmentDetail, error) {
	a, err := s.repo.GetAppointment(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if a.dueForAutoConfirm(now, s.cfg.AutoConfirmDelay) {
		if a, err = s.confirmIfDue(ctx, code, now); err != nil {
			return nil, err
		}
	}

	detail := &AppointmentDetail{Appointment: *a}
	entry, err := s.repo.GetQueueEntryByAppointment(ctx, code)
	switch {
	case err == nil:
		detail.Queue = entry
	case !errors.Is(err, ErrQueueEntryNotFound):
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	s.enrich(ctx, detail)
	return detail, nil
}

// ListAppointments retrieves appointments matching f as they read at now.
func (s *Service) ListAppointments(ctx context.Context, f ListFilter, now time.Time) ([]Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = 50 // default
	}
	if f.Limit > 500 {
		f.Limit = 500 // max
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	// A status filter runs in storage, so due pending rows are confirmed
	// first or they would be matched by their stale status.
	if len(f.Statuses) > 0 {
		if err := s.settleRange(ctx, f.DentistCode, f.From, f.To, now); err != nil {
			return nil, err
		}
	}

	list, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	list, err = s.settleAll(ctx, list, now)
	if err != nil {
		return nil, err
	}

	if len(f.Statuses) == 0 {
		return list, nil
	}
	out := list[:0]
	for _, a := range list {
		if containsStatus(f.Statuses, a.Status) {
			out = append(out, a)
		}
	}
	return out, nil
}

// LookupByGuestContact lets an unauthenticated guest check their bookings by
// email or phone.
func (s *Service) LookupByGuestContact(ctx context.Context, email, phone string, now time.Time) ([]Appointment, error) {
	email, phone = normalizeEmail(email), normalizePhone(phone)
	if email == "" && phone == "" {
		return nil, &ValidationError{Fields: map[string]string{"email": "email or phone is required"}}
	}

	list, err := s.repo.FindByGuestContact(ctx, email, phone)
	if err != nil {
		return nil, fmt.Errorf("lookup by guest contact: %w", err)
	}
	return s.settleAll(ctx, list, now)
}

// AutoConfirmDue is the periodic sweep. Failures are logged and left for the
// next run; reads still settle anything the sweep missed.
func (s *Service) AutoConfirmDue(ctx context.Context, now time.Time) (int, error) {
	batch := s.cfg.SweepBatchSize
	if batch <= 0 {
		batch = 200
	}

	due, err := s.repo.FindDuePending(ctx, now.Add(-s.cfg.AutoConfirmDelay), batch)
	if err != nil {
		return 0, fmt.Errorf("find due pending appointments: %w", err)
	}

	confirmed := 0
	var errs []error
	for _, a := range due {
		updated, err := s.confirmIfDue(ctx, a.Code, now)
		if err != nil {
			log.Error().Err(err).Str("appointment", a.Code).Msg("auto-confirm failed")
			errs = append(errs, fmt.Errorf("auto-confirm %s: %w", a.Code, err))
			continue
		}
		if updated.Status == StatusConfirmed && updated.AcceptedByCode == SystemActor {
			confirmed++
		}
	}
	return confirmed, errors.Join(errs...)
}

func (s *Service) settleAll(ctx context.Context, list []Appointment, now time.Time) ([]Appointment, error) {
	for i := range list {
		if !list[i].dueForAutoConfirm(now, s.cfg.AutoConfirmDelay) {
			continue
		}
		a, err := s.confirmIfDue(ctx, list[i].Code, now)
		if err != nil {
			return nil, err
		}
		list[i] = *a
	}
	return list, nil
}

func (s *Service) confirmIfDue(ctx context.Context, code string, now time.Time) (*Appointment, error) {
	return s.mutate(ctx, code, nil, func(ctx context.Context, tx Store, a *Appointment, out *outbox) error {
		return s.settle(ctx, tx, a, now, out)
	})
}

// settle applies a due auto-confirmation to a before anything else is decided
// about it. Callers hold the appointment's dentist-day lock.
func (s *Service) settle(ctx context.Context, tx Store, a *Appointment, now time.Time, out *outbox) error {
	if !a.dueForAutoConfirm(now, s.cfg.AutoConfirmDelay) {
		return nil
	}

	if err := s.confirm(ctx, tx, a, SystemActor, a.RequestedAt.Add(s.cfg.AutoConfirmDelay), now); err != nil {
		return err
	}
	s.metrics.ObserveAutoConfirm(1)
	out.add(s.event(notify.EventAutoConfirmed, a, SystemActor, now, nil))
	return nil
}

func (s *Service) confirm(ctx context.Context, tx Store, a *Appointment, actor string, acceptedAt, now time.Time) error {
	prev := a.Status
	a.Status = StatusConfirmed
	a.AcceptedByCode = actor
	a.AcceptedAt = &acceptedAt
	a.UpdatedAt = now
	if err := tx.UpdateAppointment(ctx, a, prev); err != nil {
		return err
	}

	if s.clock.SameDay(a.AppointmentDate, now) {
		if _, _, err := s.ensureQueueEntry(ctx, tx, a, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) cancel(ctx context.Context, tx Store, a *Appointment, actor, reason string, now time.Time) error {
	if !canTransition(a.Status, StatusCancelled) {
		return invalidTransition("appointment "+a.Code, a.Status, StatusCancelled)
	}
	prev := a.Status
	a.Status = StatusCancelled
	a.CancelledByCode = actor
	a.CancelReason = reason
	at := now
	a.CancelledAt = &at
	a.UpdatedAt = now
	return tx.UpdateAppointment(ctx, a, prev)
}

func (s *Service) complete(ctx context.Context, tx Store, a *Appointment, now time.Time) error {
	if !canTransition(a.Status, StatusCompleted) {
		return invalidTransition("appointment "+a.Code, a.Status, StatusCompleted)
	}
	prev := a.Status
	a.Status = StatusCompleted
	at := now
	a.CompletedAt = &at
	a.UpdatedAt = now
	return tx.UpdateAppointment(ctx, a, prev)
}

// checkBookable validates the full interval: inside the working window, not
// passed, not blocked, and free of any other booking except exclude.
func (s *Service) checkBookable(ctx context.Context, tx Store, dentistCode string, start time.Time, minutes int, exclude string, now time.Time, overrideLeave bool) error {
	date := s.clock.DateOf(start)
	end := start.Add(time.Duration(minutes) * time.Minute)

	res, err := s.calendar.ResolveWindow(ctx, dentistCode, date)
	if err != nil {
		return fmt.Errorf("resolve window: %w", err)
	}
	if res.Window == nil {
		return slotUnavailable("dentist %s does not work on %s", dentistCode, date)
	}
	if !res.Window.Contains(start, end) {
		return slotUnavailable("%s-%s is outside working hours %s",
			s.clock.FormatClock(start), s.clock.FormatClock(end), res.Window.Range)
	}

	leaves := res.Leaves
	if overrideLeave {
		leaves = nil
	}
	candidate, err := s.slots.Generate(slot.Input{
		Window:      availability.Window{Start: start, End: end},
		StepMinutes: minutes,
		Date:        date,
		Now:         now,
		Events:      res.Events,
		Leaves:      leaves,
	})
	if err != nil {
		return err
	}
	if len(candidate) != 1 || !candidate[0].Bookable() {
		status := slot.Status("invalid")
		if len(candidate) == 1 {
			status = candidate[0].Status
		}
		return slotUnavailable("%s is %s", s.clock.FormatClock(start), status)
	}

	busy, err := conflict.NewChecker(tx).HasConflict(ctx, dentistCode, start, minutes, exclude)
	if err != nil {
		return err
	}
	if busy {
		return slotUnavailable("%s-%s overlaps another booking", s.clock.FormatClock(start), s.clock.FormatClock(end))
	}
	return nil
}

// mutate runs fn on a freshly read appointment inside its dentist-day lock and
// a transaction. If the appointment moved to another day before the lock was
// taken, it starts over.
func (s *Service) mutate(ctx context.Context, code string, extraKeys func(a *Appointment) []string, fn func(ctx context.Context, tx Store, a *Appointment, out *outbox) error) (*Appointment, error) {
	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		a, err := s.repo.GetAppointment(ctx, code)
		if err != nil {
			return nil, err
		}

		key := s.dayKey(a.DentistCode, a.AppointmentDate)
		keys := []string{key}
		if extraKeys != nil {
			keys = append(keys, extraKeys(a)...)
		}

		var (
			result *Appointment
			out    outbox
		)
		err = s.withLocks(ctx, keys, func(ctx context.Context) error {
			out.reset()
			return s.repo.Tx(ctx, func(ctx context.Context, tx Store) error {
				cur, err := tx.GetAppointment(ctx, code)
				if err != nil {
					return err
				}
				if s.dayKey(cur.DentistCode, cur.AppointmentDate) != key {
					return errStaleLock
				}
				if err := fn(ctx, tx, cur, &out); err != nil {
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
	return nil, fmt.Errorf("%w: appointment %s keeps moving, please retry", ErrSlotUnavailable, code)
}

func (s *Service) dayKey(dentistCode string, t time.Time) string {
	return "dentist:" + dentistCode + ":" + s.clock.DateOf(t).String()
}

func queueLockKey(k queue.Key) string {
	return "dentist:" + k.DentistCode + ":" + k.Date.String()
}

// withLocks takes every key in a fixed order so two callers never deadlock.
// A lock that cannot be had in time reads as an unavailable slot.
func (s *Service) withLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	keys = uniqueSorted(keys)
	start := time.Now()

	var run func(ctx context.Context, i int) error
	run = func(ctx context.Context, i int) error {
		if i == len(keys) {
			s.metrics.ObserveLockWait("acquired", time.Since(start).Seconds())
			return fn(ctx)
		}
		return s.locker.WithLock(ctx, keys[i], func(ctx context.Context) error {
			return run(ctx, i+1)
		})
	}

	err := run(ctx, 0)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		s.metrics.ObserveLockWait("timeout", time.Since(start).Seconds())
		return fmt.Errorf("%w: schedule is busy, please retry", ErrSlotUnavailable)
	}
	return err
}

func uniqueSorted(keys []string) []string {
	sort.Strings(keys)
	out := keys[:0]
	for i, k := range keys {
		if i == 0 || k != keys[i-1] {
			out = append(out, k)
		}
	}
	return out
}

func (s *Service) checkReceptionist(ctx context.Context, actor string) {
	if s.staff == nil || actor == "" {
		return
	}
	ok, err := s.staff.IsActiveReceptionist(ctx, actor)
	if err != nil {
		log.Warn().Err(err).Str("actor", actor).Msg("receptionist lookup failed")
		return
	}
	if !ok {
		log.Warn().Str("actor", actor).Msg("action attributed to an unknown or inactive receptionist")
	}
}

func (s *Service) enrich(ctx context.Context, d *AppointmentDetail) {
	if s.accounts == nil {
		return
	}
	if d.PatientCode != "" {
		if name, err := s.accounts.PatientName(ctx, d.PatientCode); err == nil {
			d.PatientName = name
		}
	}
	if name, err := s.accounts.DentistName(ctx, d.DentistCode); err == nil {
		d.DentistName = name
	}
}

func bookingResult(err error) string {
	switch {
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
