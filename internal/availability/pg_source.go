package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mediqueue/dental-scheduling/internal/clock"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgSource reads templates, leave and clinic events maintained by the admin modules.
type PgSource struct {
	db querier
}

func NewPgSource(db querier) *PgSource {
	return &PgSource{db: db}
}

func (s *PgSource) WeeklyAvailability(ctx context.Context, dentistCode string) (Weekly, bool, error) {
	rows, err := s.db.Query(ctx, `
		SELECT weekday, time_window
		FROM dentist_availability
		WHERE dentist_code = $1
	`, dentistCode)
	if err != nil {
		return nil, false, fmt.Errorf("query weekly availability: %w", err)
	}
	defer rows.Close()

	w := Weekly{}
	for rows.Next() {
		var day, window string
		if err := rows.Scan(&day, &window); err != nil {
			return nil, false, err
		}
		wd, err := ParseWeekday(day)
		if err != nil {
			return nil, false, fmt.Errorf("dentist %s: %w", dentistCode, err)
		}
		w[wd] = window
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	if len(w) == 0 {
		return nil, false, nil
	}
	return w, true, nil
}

func (s *PgSource) LeavePeriods(ctx context.Context, dentistCode string, from, to clock.Date) ([]LeavePeriod, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, dentist_code, date_from, date_to, COALESCE(reason, '')
		FROM dentist_leaves
		WHERE dentist_code = $1
		  AND date_from <= $3::date
		  AND date_to >= $2::date
		ORDER BY date_from
	`, dentistCode, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("query leave periods: %w", err)
	}
	defer rows.Close()

	var out []LeavePeriod
	for rows.Next() {
		var l LeavePeriod
		var dateFrom, dateTo time.Time
		if err := rows.Scan(&l.ID, &l.DentistCode, &dateFrom, &dateTo, &l.Reason); err != nil {
			return nil, err
		}
		l.DateFrom = clock.NewDate(dateFrom.Year(), dateFrom.Month(), dateFrom.Day())
		l.DateTo = clock.NewDate(dateTo.Year(), dateTo.Month(), dateTo.Day())
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PgSource) ClinicEvents(ctx context.Context, from, to time.Time) ([]ClinicEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, title, start_date, end_date, is_published, is_deleted
		FROM clinic_events
		WHERE start_date < $2
		  AND end_date > $1
		ORDER BY start_date
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query clinic events: %w", err)
	}
	defer rows.Close()

	var out []ClinicEvent
	for rows.Next() {
		var e ClinicEvent
		if err := rows.Scan(&e.ID, &e.Title, &e.StartDate, &e.EndDate, &e.IsPublished, &e.IsDeleted); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
