package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mediqueue/dental-scheduling/internal/clock"
)

var ErrInvalidTemplate = errors.New("invalid availability template")

type Weekday string

const (
	Mon Weekday = "Mon"
	Tue Weekday = "Tue"
	Wed Weekday = "Wed"
	Thu Weekday = "Thu"
	Fri Weekday = "Fri"
	Sat Weekday = "Sat"
	Sun Weekday = "Sun"
)

var Weekdays = []Weekday{Mon, Tue, Wed, Thu, Fri, Sat, Sun}

var weekdayMap = map[time.Weekday]Weekday{
	time.Monday:    Mon,
	time.Tuesday:   Tue,
	time.Wednesday: Wed,
	time.Thursday:  Thu,
	time.Friday:    Fri,
	time.Saturday:  Sat,
	time.Sunday:    Sun,
}

func WeekdayOf(d clock.Date) Weekday {
	return weekdayMap[d.Weekday()]
}

// ParseWeekday accepts "Mon", "mon", "monday" and similar spellings.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		for _, w := range Weekdays {
			if strings.HasPrefix(s, strings.ToLower(string(w))) {
				return w, nil
			}
		}
	}
	return "", fmt.Errorf("unknown weekday %q", s)
}

// TimeRange is a time-of-day interval in minutes after midnight.
type TimeRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r TimeRange) String() string {
	return clock.FormatClock(r.Start) + "-" + clock.FormatClock(r.End)
}

func (r TimeRange) Minutes() int {
	return r.End - r.Start
}

var unavailableMarkers = map[string]bool{
	"":              true,
	"-":             true,
	"off":           true,
	"closed":        true,
	"unavailable":   true,
	"not available": true,
	"n/a":           true,
}

// ParseTimeRange parses "HH:MM-HH:MM". The boolean is false for a not-available marker.
func ParseTimeRange(s string) (TimeRange, bool, error) {
	s = strings.TrimSpace(s)
	if unavailableMarkers[strings.ToLower(s)] {
		return TimeRange{}, false, nil
	}
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return TimeRange{}, false, fmt.Errorf("%w: %q", ErrInvalidTemplate, s)
	}
	start, err := clock.ParseClock(from)
	if err != nil {
		return TimeRange{}, false, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	end, err := clock.ParseClock(to)
	if err != nil {
		return TimeRange{}, false, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if start >= end {
		return TimeRange{}, false, fmt.Errorf("%w: %q start must be before end", ErrInvalidTemplate, s)
	}
	return TimeRange{Start: start, End: end}, true, nil
}

// Weekly is a dentist's template as stored: weekday -> "HH:MM-HH:MM" or a marker.
type Weekly map[Weekday]string

func (w Weekly) Window(day Weekday) (TimeRange, bool, error) {
	raw, ok := w[day]
	if !ok {
		return TimeRange{}, false, nil
	}
	return ParseTimeRange(raw)
}

func (w Weekly) Validate() error {
	for day := range w {
		if _, _, err := w.Window(day); err != nil {
			return fmt.Errorf("%s: %w", day, err)
		}
	}
	return nil
}

type LeavePeriod struct {
	ID          string     `json:"id"`
	DentistCode string     `json:"dentist_code"`
	DateFrom    clock.Date `json:"date_from"`
	DateTo      clock.Date `json:"date_to"`
	Reason      string     `json:"reason,omitempty"`
}

func (l LeavePeriod) Covers(d clock.Date) bool {
	return d.Between(l.DateFrom, l.DateTo)
}

type ClinicEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	IsPublished bool      `json:"is_published"`
	IsDeleted   bool      `json:"is_deleted"`
}

func (e ClinicEvent) Blocking() bool {
	return e.IsPublished && !e.IsDeleted
}

// Overlaps uses half-open intervals on both sides.
func (e ClinicEvent) Overlaps(start, end time.Time) bool {
	return e.StartDate.Before(end) && start.Before(e.EndDate)
}

// DefaultPolicy is substituted when a dentist has no template at all.
type DefaultPolicy struct {
	Enabled  bool
	Weekday  string
	Saturday string
	Sunday   string
}

func StandardDefaults() DefaultPolicy {
	return DefaultPolicy{
		Enabled:  true,
		Weekday:  "09:00-17:00",
		Saturday: "09:00-13:00",
		Sunday:   "closed",
	}
}

func (p DefaultPolicy) Template() Weekly {
	w := Weekly{Sat: p.Saturday, Sun: p.Sunday}
	for _, d := range []Weekday{Mon, Tue, Wed, Thu, Fri} {
		w[d] = p.Weekday
	}
	return w
}
