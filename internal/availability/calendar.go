package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/mediqueue/dental-scheduling/internal/clock"
)

// Source is the read-only view of availability data owned by staff management.
type Source interface {
	// WeeklyAvailability returns false when the dentist has no template at all.
	WeeklyAvailability(ctx context.Context, dentistCode string) (Weekly, bool, error)
	LeavePeriods(ctx context.Context, dentistCode string, from, to clock.Date) ([]LeavePeriod, error)
	ClinicEvents(ctx context.Context, from, to time.Time) ([]ClinicEvent, error)
}

type BlockedReason string

const (
	BlockedNone  BlockedReason = ""
	BlockedLeave BlockedReason = "leave"
	BlockedEvent BlockedReason = "event"
)

// Window is a resolved working window anchored to a concrete day.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Range TimeRange `json:"range"`
}

func (w Window) Contains(start, end time.Time) bool {
	return !start.Before(w.Start) && !end.After(w.End)
}

type Resolution struct {
	DentistCode   string        `json:"dentist_code"`
	Date          clock.Date    `json:"date"`
	Weekday       Weekday       `json:"weekday"`
	Window        *Window       `json:"window,omitempty"`
	BlockedReason BlockedReason `json:"blocked_reason,omitempty"`
	OnLeave       bool          `json:"on_leave"`
	EventBlocked  bool          `json:"event_blocked"`
	FromDefault   bool          `json:"from_default"`
	Leaves        []LeavePeriod `json:"leaves,omitempty"`
	Events        []ClinicEvent `json:"events,omitempty"`
}

type Calendar struct {
	source   Source
	clock    clock.Policy
	defaults DefaultPolicy
}

func NewCalendar(source Source, policy clock.Policy, defaults DefaultPolicy) *Calendar {
	return &Calendar{
		source:   source,
		clock:    policy,
		defaults: defaults,
	}
}

func (c *Calendar) Clock() clock.Policy {
	return c.clock
}

// ResolveWindow returns the nominal working window for the dentist on date.
// Leave and clinic events never hide the window; they are reported alongside it.
func (c *Calendar) ResolveWindow(ctx context.Context, dentistCode string, date clock.Date) (Resolution, error) {
	res := Resolution{
		DentistCode: dentistCode,
		Date:        date,
		Weekday:     WeekdayOf(date),
	}

	weekly, ok, err := c.source.WeeklyAvailability(ctx, dentistCode)
	if err != nil {
		return res, fmt.Errorf("load weekly availability: %w", err)
	}
	if !ok && c.defaults.Enabled {
		weekly = c.defaults.Template()
		res.FromDefault = true
	}

	tr, available, err := weekly.Window(res.Weekday)
	if err != nil {
		return res, fmt.Errorf("dentist %s %s: %w", dentistCode, res.Weekday, err)
	}
	if available {
		res.Window = &Window{
			Start: c.clock.At(date, tr.Start),
			End:   c.clock.At(date, tr.End),
			Range: tr,
		}
	}

	leaves, err := c.source.LeavePeriods(ctx, dentistCode, date, date)
	if err != nil {
		return res, fmt.Errorf("load leave periods: %w", err)
	}
	for _, l := range leaves {
		if l.Covers(date) {
			res.Leaves = append(res.Leaves, l)
		}
	}
	res.OnLeave = len(res.Leaves) > 0

	dayStart, dayEnd := c.clock.StartOfDay(date), c.clock.EndOfDay(date)
	events, err := c.source.ClinicEvents(ctx, dayStart, dayEnd)
	if err != nil {
		return res, fmt.Errorf("load clinic events: %w", err)
	}
	for _, e := range events {
		if e.Blocking() && e.Overlaps(dayStart, dayEnd) {
			res.Events = append(res.Events, e)
		}
	}
	res.EventBlocked = len(res.Events) > 0

	switch {
	case res.EventBlocked:
		res.BlockedReason = BlockedEvent
	case res.OnLeave:
		res.BlockedReason = BlockedLeave
	}

	return res, nil
}
