package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mediqueue/dental-scheduling/internal/clock"
	"github.com/mediqueue/dental-scheduling/internal/conflict"
	"github.com/mediqueue/dental-scheduling/internal/queue"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

// querier is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgPool interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	pgStore
	pool PgPool
}

func NewPgRepository(pool PgPool) *PgRepository {
	return &PgRepository{pgStore: pgStore{db: pool}, pool: pool}
}

func (r *PgRepository) Tx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(ctx, &pgStore{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

type pgStore struct {
	db querier
}

const appointmentColumns = `code, patient_code, guest_name, guest_email, guest_phone, recipient_name,
	dentist_code, appointment_date, duration_minutes, status, origin, reason, requested_at,
	created_by_code, accepted_by_code, accepted_at, cancelled_by_code, cancelled_at, cancel_reason,
	completed_at, created_at, updated_at`

const queueColumns = `code, appointment_code, dentist_code, patient_code, patient_name, queue_date,
	scheduled_at, duration_minutes, position, status, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var guestName, guestEmail, guestPhone string

	err := row.Scan(
		&a.Code,
		&a.PatientCode,
		&guestName,
		&guestEmail,
		&guestPhone,
		&a.RecipientName,
		&a.DentistCode,
		&a.AppointmentDate,
		&a.DurationMinutes,
		&a.Status,
		&a.Origin,
		&a.Reason,
		&a.RequestedAt,
		&a.CreatedByCode,
		&a.AcceptedByCode,
		&a.AcceptedAt,
		&a.CancelledByCode,
		&a.CancelledAt,
		&a.CancelReason,
		&a.CompletedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if guestName != "" || guestEmail != "" || guestPhone != "" {
		a.Guest = &Guest{Name: guestName, Email: guestEmail, Phone: guestPhone}
	}
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanQueueEntry(row pgx.Row) (*queue.Entry, error) {
	var e queue.Entry
	var day time.Time

	err := row.Scan(
		&e.Code,
		&e.AppointmentCode,
		&e.DentistCode,
		&e.PatientCode,
		&e.PatientName,
		&day,
		&e.ScheduledAt,
		&e.DurationMinutes,
		&e.Position,
		&e.Status,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQueueEntryNotFound
		}
		return nil, err
	}

	e.Date = clock.NewDate(day.Year(), day.Month(), day.Day())
	return &e, nil
}

func guestFields(g *Guest) (name, email, phone string) {
	if g == nil {
		return "", "", ""
	}
	return g.Name, g.Email, g.Phone
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation:
			return fmt.Errorf("%w: overlapping appointment (%s)", ErrSlotUnavailable, pgErr.ConstraintName)
		case pgUniqueViolation:
			return fmt.Errorf("%w: duplicate record (%s)", ErrInvalidStateTransition, pgErr.ConstraintName)
		}
	}
	return err
}

// Interface methods

func (s *pgStore) NextAppointmentCode(ctx context.Context) (string, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT nextval('appointment_code_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("next appointment code: %w", err)
	}
	return fmt.Sprintf("AP-%04d", n), nil
}

func (s *pgStore) NextQueueCode(ctx context.Context) (string, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT nextval('queue_code_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("next queue code: %w", err)
	}
	return fmt.Sprintf("Q-%04d", n), nil
}

func (s *pgStore) InsertAppointment(ctx context.Context, a *Appointment) error {
	guestName, guestEmail, guestPhone := guestFields(a.Guest)

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`,
		a.Code, a.PatientCode, guestName, guestEmail, guestPhone, a.RecipientName,
		a.DentistCode, a.AppointmentDate, a.DurationMinutes, a.Status, a.Origin, a.Reason, a.RequestedAt,
		a.CreatedByCode, a.AcceptedByCode, a.AcceptedAt, a.CancelledByCode, a.CancelledAt, a.CancelReason,
		a.CompletedAt, a.CreatedAt, a.UpdatedAt, a.End(),
	)
	if err != nil {
		return mapPgError(fmt.Errorf("insert appointment: %w", err))
	}
	return nil
}

func (s *pgStore) GetAppointment(ctx context.Context, code string) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE code = $1
	`, code)
	return scanAppointment(row)
}

func (s *pgStore) UpdateAppointment(ctx context.Context, a *Appointment, expected AppointmentStatus) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET dentist_code = $2,
		    appointment_date = $3,
		    duration_minutes = $4,
		    ends_at = $5,
		    status = $6,
		    accepted_by_code = $7,
		    accepted_at = $8,
		    cancelled_by_code = $9,
		    cancelled_at = $10,
		    cancel_reason = $11,
		    completed_at = $12,
		    updated_at = $13
		WHERE code = $1
		  AND status = $14
	`,
		a.Code, a.DentistCode, a.AppointmentDate, a.DurationMinutes, a.End(), a.Status,
		a.AcceptedByCode, a.AcceptedAt, a.CancelledByCode, a.CancelledAt, a.CancelReason,
		a.CompletedAt, a.UpdatedAt, expected,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("update appointment: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return invalidTransition("appointment "+a.Code, expected, a.Status)
	}
	return nil
}

func (s *pgStore) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.DentistCode != "" {
		add("dentist_code = $%d", f.DentistCode)
	}
	if !f.From.IsZero() {
		add("ends_at > $%d", f.From)
	}
	if !f.To.IsZero() {
		add("appointment_date < $%d", f.To)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", statuses)
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY appointment_date, code`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return scanAppointments(rows)
}

func (s *pgStore) FindByGuestContact(ctx context.Context, email, phone string) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1 <> '' AND guest_email = $1)
		   OR ($2 <> '' AND guest_phone = $2)
		ORDER BY appointment_date DESC, code
	`, email, phone)
	if err != nil {
		return nil, fmt.Errorf("find by guest contact: %w", err)
	}
	return scanAppointments(rows)
}

func (s *pgStore) FindDuePending(ctx context.Context, requestedBefore time.Time, limit int) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND requested_at <= $1
		ORDER BY requested_at, code
		LIMIT $2
	`, requestedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("find due pending: %w", err)
	}
	return scanAppointments(rows)
}

func (s *pgStore) ListOccupancy(ctx context.Context, dentistCode string, from, to time.Time) ([]conflict.Interval, error) {
	rows, err := s.db.Query(ctx, `
		SELECT appointment_date, ends_at, code, ''
		FROM appointments
		WHERE dentist_code = $1
		  AND status <> 'cancelled'
		  AND appointment_date < $3
		  AND ends_at > $2
		UNION ALL
		SELECT scheduled_at, scheduled_at + make_interval(mins => duration_minutes), appointment_code, code
		FROM queue_entries
		WHERE dentist_code = $1
		  AND status <> 'cancelled'
		  AND scheduled_at < $3
		  AND scheduled_at + make_interval(mins => duration_minutes) > $2
	`, dentistCode, from, to)
	if err != nil {
		return nil, fmt.Errorf("list occupancy: %w", err)
	}
	defer rows.Close()

	var out []conflict.Interval
	for rows.Next() {
		var iv conflict.Interval
		if err := rows.Scan(&iv.Start, &iv.End, &iv.AppointmentCode, &iv.QueueCode); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *pgStore) InsertQueueEntry(ctx context.Context, e *queue.Entry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO queue_entries (`+queueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		e.Code, e.AppointmentCode, e.DentistCode, e.PatientCode, e.PatientName, e.Date.String(), e.ScheduledAt,
		e.DurationMinutes, e.Position, e.Status, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("insert queue entry: %w", err))
	}
	return nil
}

func (s *pgStore) GetQueueEntry(ctx context.Context, code string) (*queue.Entry, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+queueColumns+`
		FROM queue_entries
		WHERE code = $1
	`, code)
	return scanQueueEntry(row)
}

func (s *pgStore) GetQueueEntryByAppointment(ctx context.Context, appointmentCode string) (*queue.Entry, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+queueColumns+`
		FROM queue_entries
		WHERE appointment_code = $1
	`, appointmentCode)
	return scanQueueEntry(row)
}

func (s *pgStore) UpdateQueueEntry(ctx context.Context, e *queue.Entry, expected queue.Status) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE queue_entries
		SET dentist_code = $2,
		    queue_date = $3,
		    scheduled_at = $4,
		    duration_minutes = $5,
		    position = $6,
		    status = $7,
		    updated_at = $8
		WHERE code = $1
		  AND status = $9
	`,
		e.Code, e.DentistCode, e.Date.String(), e.ScheduledAt, e.DurationMinutes,
		e.Position, e.Status, e.UpdatedAt, expected,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("update queue entry: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return invalidTransition("queue entry "+e.Code, expected, e.Status)
	}
	return nil
}

func (s *pgStore) ListQueue(ctx context.Context, f QueueFilter) ([]queue.Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+queueColumns+`
		FROM queue_entries
		WHERE queue_date = $1
		  AND ($2 = '' OR dentist_code = $2)
		ORDER BY dentist_code, position
	`, f.Date.String(), f.DentistCode)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var out []queue.Entry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetQueuePositions relies on the deferred (dentist, day, position) constraint
// so positions can be swapped inside one transaction.
func (s *pgStore) SetQueuePositions(ctx context.Context, entries []queue.Entry) error {
	for _, e := range entries {
		if _, err := s.db.Exec(ctx, `
			UPDATE queue_entries
			SET position = $2, updated_at = $3
			WHERE code = $1
		`, e.Code, e.Position, e.UpdatedAt); err != nil {
			return mapPgError(fmt.Errorf("set queue position %s: %w", e.Code, err))
		}
	}
	return nil
}

func (s *pgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_code, queue_code, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`, ev.EventType, ev.AppointmentCode, ev.QueueCode, ev.Actor, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
