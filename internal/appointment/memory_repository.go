package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mediqueue/dental-scheduling/internal/conflict"
	"github.com/mediqueue/dental-scheduling/internal/queue"
)

// MemoryRepository keeps everything in process. Transactions run against a
// copy of the state that replaces the original only on success, and the same
// overlap and uniqueness rules as the Postgres schema are enforced.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memState
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemState()}
}

type memState struct {
	appointments map[string]Appointment
	entries      map[string]queue.Entry
	apptSeq      int
	queueSeq     int
	events       []EventLog
}

func newMemState() *memState {
	return &memState{
		appointments: make(map[string]Appointment),
		entries:      make(map[string]queue.Entry),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		appointments: make(map[string]Appointment, len(s.appointments)),
		entries:      make(map[string]queue.Entry, len(s.entries)),
		apptSeq:      s.apptSeq,
		queueSeq:     s.queueSeq,
		events:       append([]EventLog(nil), s.events...),
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	return c
}

func (r *MemoryRepository) Tx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.state.clone()
	if err := fn(ctx, &memStore{s: work}); err != nil {
		return err
	}
	if err := work.checkPositions(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	r.state = work
	return nil
}

// Events returns the event log, oldest first.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventLog(nil), r.state.events...)
}

func (r *MemoryRepository) do(fn func(s *memStore) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := r.state.clone()
	if err := fn(&memStore{s: work}); err != nil {
		return err
	}
	if err := work.checkPositions(); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *MemoryRepository) NextAppointmentCode(ctx context.Context) (code string, err error) {
	err = r.do(func(s *memStore) error {
		code, err = s.NextAppointmentCode(ctx)
		return err
	})
	return code, err
}

func (r *MemoryRepository) NextQueueCode(ctx context.Context) (code string, err error) {
	err = r.do(func(s *memStore) error {
		code, err = s.NextQueueCode(ctx)
		return err
	})
	return code, err
}

func (r *MemoryRepository) InsertAppointment(ctx context.Context, a *Appointment) error {
	return r.do(func(s *memStore) error { return s.InsertAppointment(ctx, a) })
}

func (r *MemoryRepository) GetAppointment(ctx context.Context, code string) (a *Appointment, err error) {
	err = r.do(func(s *memStore) error {
		a, err = s.GetAppointment(ctx, code)
		return err
	})
	return a, err
}

func (r *MemoryRepository) UpdateAppointment(ctx context.Context, a *Appointment, expected AppointmentStatus) error {
	return r.do(func(s *memStore) error { return s.UpdateAppointment(ctx, a, expected) })
}

func (r *MemoryRepository) ListAppointments(ctx context.Context, f ListFilter) (out []Appointment, err error) {
	err = r.do(func(s *memStore) error {
		out, err = s.ListAppointments(ctx, f)
		return err
	})
	return out, err
}

func (r *MemoryRepository) FindByGuestContact(ctx context.Context, email, phone string) (out []Appointment, err error) {
	err = r.do(func(s *memStore) error {
		out, err = s.FindByGuestContact(ctx, email, phone)
		return err
	})
	return out, err
}

func (r *MemoryRepository) FindDuePending(ctx context.Context, requestedBefore time.Time, limit int) (out []Appointment, err error) {
	err = r.do(func(s *memStore) error {
		out, err = s.FindDuePending(ctx, requestedBefore, limit)
		return err
	})
	return out, err
}

func (r *MemoryRepository) ListOccupancy(ctx context.Context, dentistCode string, from, to time.Time) (out []conflict.Interval, err error) {
	err = r.do(func(s *memStore) error {
		out, err = s.ListOccupancy(ctx, dentistCode, from, to)
		return err
	})
	return out, err
}

func (r *MemoryRepository) InsertQueueEntry(ctx context.Context, e *queue.Entry) error {
	return r.do(func(s *memStore) error { return s.InsertQueueEntry(ctx, e) })
}

func (r *MemoryRepository) GetQueueEntry(ctx context.Context, code string) (e *queue.Entry, err error) {
	err = r.do(func(s *memStore) error {
		e, err = s.GetQueueEntry(ctx, code)
		return err
	})
	return e, err
}

func (r *MemoryRepository) GetQueueEntryByAppointment(ctx context.Context, appointmentCode string) (e *queue.Entry, err error) {
	err = r.do(func(s *memStore) error {
		e, err = s.GetQueueEntryByAppointment(ctx, appointmentCode)
		return err
	})
	return e, err
}

func (r *MemoryRepository) UpdateQueueEntry(ctx context.Context, e *queue.Entry, expected queue.Status) error {
	return r.do(func(s *memStore) error { return s.UpdateQueueEntry(ctx, e, expected) })
}

func (r *MemoryRepository) ListQueue(ctx context.Context, f QueueFilter) (out []queue.Entry, err error) {
	err = r.do(func(s *memStore) error {
		out, err = s.ListQueue(ctx, f)
		return err
	})
	return out, err
}

func (r *MemoryRepository) SetQueuePositions(ctx context.Context, entries []queue.Entry) error {
	return r.do(func(s *memStore) error { return s.SetQueuePositions(ctx, entries) })
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	return r.do(func(s *memStore) error { return s.InsertEvent(ctx, ev) })
}

// memStore operates on one state without locking; callers hold the lock.
type memStore struct {
	s *memState
}

func (m *memStore) NextAppointmentCode(context.Context) (string, error) {
	m.s.apptSeq++
	return fmt.Sprintf("AP-%04d", m.s.apptSeq), nil
}

func (m *memStore) NextQueueCode(context.Context) (string, error) {
	m.s.queueSeq++
	return fmt.Sprintf("Q-%04d", m.s.queueSeq), nil
}

func (m *memStore) overlaps(a Appointment) bool {
	if a.Status == StatusCancelled {
		return false
	}
	for _, other := range m.s.appointments {
		if other.Code == a.Code || other.DentistCode != a.DentistCode || other.Status == StatusCancelled {
			continue
		}
		if a.Interval().Overlaps(other.Interval()) {
			return true
		}
	}
	return false
}

func (m *memStore) InsertAppointment(_ context.Context, a *Appointment) error {
	if _, ok := m.s.appointments[a.Code]; ok {
		return fmt.Errorf("%w: duplicate appointment %s", ErrInvalidStateTransition, a.Code)
	}
	if m.overlaps(*a) {
		return fmt.Errorf("%w: overlapping appointment", ErrSlotUnavailable)
	}
	m.s.appointments[a.Code] = *a
	return nil
}

func (m *memStore) GetAppointment(_ context.Context, code string) (*Appointment, error) {
	a, ok := m.s.appointments[code]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memStore) UpdateAppointment(_ context.Context, a *Appointment, expected AppointmentStatus) error {
	cur, ok := m.s.appointments[a.Code]
	if !ok || cur.Status != expected {
		return invalidTransition("appointment "+a.Code, expected, a.Status)
	}
	if m.overlaps(*a) {
		return fmt.Errorf("%w: overlapping appointment", ErrSlotUnavailable)
	}

	// Identity and origin fields are immutable.
	upd := cur
	upd.DentistCode = a.DentistCode
	upd.AppointmentDate = a.AppointmentDate
	upd.DurationMinutes = a.DurationMinutes
	upd.Status = a.Status
	upd.AcceptedByCode = a.AcceptedByCode
	upd.AcceptedAt = a.AcceptedAt
	upd.CancelledByCode = a.CancelledByCode
	upd.CancelledAt = a.CancelledAt
	upd.CancelReason = a.CancelReason
	upd.CompletedAt = a.CompletedAt
	upd.UpdatedAt = a.UpdatedAt
	m.s.appointments[a.Code] = upd
	return nil
}

func sortAppointments(out []Appointment) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppointmentDate.Equal(out[j].AppointmentDate) {
			return out[i].AppointmentDate.Before(out[j].AppointmentDate)
		}
		return out[i].Code < out[j].Code
	})
}

func (m *memStore) ListAppointments(_ context.Context, f ListFilter) ([]Appointment, error) {
	var out []Appointment
	for _, a := range m.s.appointments {
		if f.DentistCode != "" && a.DentistCode != f.DentistCode {
			continue
		}
		if !f.From.IsZero() && !a.End().After(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.AppointmentDate.Before(f.To) {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
			continue
		}
		out = append(out, a)
	}
	sortAppointments(out)

	if f.Limit > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
		if len(out) > f.Limit {
			out = out[:f.Limit]
		}
	}
	return out, nil
}

func containsStatus(list []AppointmentStatus, s AppointmentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *memStore) FindByGuestContact(_ context.Context, email, phone string) ([]Appointment, error) {
	var out []Appointment
	for _, a := range m.s.appointments {
		if a.Guest == nil {
			continue
		}
		if (email != "" && a.Guest.Email == email) || (phone != "" && a.Guest.Phone == phone) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppointmentDate.Equal(out[j].AppointmentDate) {
			return out[i].AppointmentDate.After(out[j].AppointmentDate)
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (m *memStore) FindDuePending(_ context.Context, requestedBefore time.Time, limit int) ([]Appointment, error) {
	var out []Appointment
	for _, a := range m.s.appointments {
		if a.Status == StatusPending && !a.RequestedAt.After(requestedBefore) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].Code < out[j].Code
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListOccupancy(_ context.Context, dentistCode string, from, to time.Time) ([]conflict.Interval, error) {
	window := conflict.Interval{Start: from, End: to}
	var out []conflict.Interval
	for _, a := range m.s.appointments {
		if a.DentistCode != dentistCode || a.Status == StatusCancelled {
			continue
		}
		if iv := a.Interval(); iv.Overlaps(window) {
			out = append(out, iv)
		}
	}
	for _, e := range m.s.entries {
		if e.DentistCode != dentistCode || !e.Status.Occupies() {
			continue
		}
		iv := conflict.Interval{Start: e.ScheduledAt, End: e.End(), AppointmentCode: e.AppointmentCode, QueueCode: e.Code}
		if iv.Overlaps(window) {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *memStore) InsertQueueEntry(_ context.Context, e *queue.Entry) error {
	for _, cur := range m.s.entries {
		if cur.AppointmentCode == e.AppointmentCode {
			return fmt.Errorf("%w: appointment %s already queued", ErrInvalidStateTransition, e.AppointmentCode)
		}
	}
	if _, ok := m.s.entries[e.Code]; ok {
		return fmt.Errorf("%w: duplicate queue entry %s", ErrInvalidStateTransition, e.Code)
	}
	m.s.entries[e.Code] = *e
	return nil
}

func (m *memStore) GetQueueEntry(_ context.Context, code string) (*queue.Entry, error) {
	e, ok := m.s.entries[code]
	if !ok {
		return nil, ErrQueueEntryNotFound
	}
	return &e, nil
}

func (m *memStore) GetQueueEntryByAppointment(_ context.Context, appointmentCode string) (*queue.Entry, error) {
	for _, e := range m.s.entries {
		if e.AppointmentCode == appointmentCode {
			return &e, nil
		}
	}
	return nil, ErrQueueEntryNotFound
}

func (m *memStore) UpdateQueueEntry(_ context.Context, e *queue.Entry, expected queue.Status) error {
	cur, ok := m.s.entries[e.Code]
	if !ok || cur.Status != expected {
		return invalidTransition("queue entry "+e.Code, expected, e.Status)
	}
	cur.DentistCode = e.DentistCode
	cur.Date = e.Date
	cur.ScheduledAt = e.ScheduledAt
	cur.DurationMinutes = e.DurationMinutes
	cur.Position = e.Position
	cur.Status = e.Status
	cur.UpdatedAt = e.UpdatedAt
	m.s.entries[e.Code] = cur
	return nil
}

func (m *memStore) ListQueue(_ context.Context, f QueueFilter) ([]queue.Entry, error) {
	var out []queue.Entry
	for _, e := range m.s.entries {
		if e.Date != f.Date {
			continue
		}
		if f.DentistCode != "" && e.DentistCode != f.DentistCode {
			continue
		}
		out = append(out, e)
	}
	queue.SortByPosition(out)
	return out, nil
}

func (m *memStore) SetQueuePositions(_ context.Context, entries []queue.Entry) error {
	for _, e := range entries {
		cur, ok := m.s.entries[e.Code]
		if !ok {
			return ErrQueueEntryNotFound
		}
		cur.Position = e.Position
		cur.UpdatedAt = e.UpdatedAt
		m.s.entries[e.Code] = cur
	}
	return nil
}

func (m *memStore) InsertEvent(_ context.Context, ev EventLog) error {
	ev.ID = int64(len(m.s.events) + 1)
	m.s.events = append(m.s.events, ev)
	return nil
}

// checkPositions enforces unique (dentist, day, position), like the deferred
// constraint does at commit.
func (s *memState) checkPositions() error {
	seen := make(map[string]string, len(s.entries))
	for _, e := range s.entries {
		k := fmt.Sprintf("%s|%d", e.Key(), e.Position)
		if other, ok := seen[k]; ok {
			return fmt.Errorf("queue position %d of %s held by %s and %s", e.Position, e.Key(), other, e.Code)
		}
		seen[k] = e.Code
	}
	return nil
}
