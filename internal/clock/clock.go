// Package clock isolates the clinic's date/time arithmetic: a fixed UTC offset,
// civil dates and local-day boundaries. Nothing in here reads the wall clock
// except Policy.Now, which is only meant for the transport edge.
package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var ErrInvalidOffset = errors.New("invalid utc offset")

// Date is a calendar day in the clinic's local time.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalises overflowing values the same way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) utc() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

func (d Date) Before(o Date) bool {
	return d.utc().Before(o.utc())
}

func (d Date) After(o Date) bool {
	return d.utc().After(o.utc())
}

func (d Date) Weekday() time.Weekday {
	return d.utc().Weekday()
}

// Between reports whether d lies in [from, to], both inclusive.
func (d Date) Between(from, to Date) bool {
	return !d.Before(from) && !d.After(to)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Policy pins every calculation to one fixed offset.
type Policy struct {
	loc *time.Location
	now func() time.Time
}

// NewPolicy accepts offsets such as "+05:30", "-03:00", "Z" or "UTC".
func NewPolicy(offset string) (Policy, error) {
	d, err := ParseOffset(offset)
	if err != nil {
		return Policy{}, err
	}
	return FixedPolicy(d), nil
}

func FixedPolicy(offset time.Duration) Policy {
	return Policy{loc: time.FixedZone(offsetName(offset), int(offset/time.Second)), now: time.Now}
}

func UTC() Policy {
	return Policy{loc: time.UTC, now: time.Now}
}

// WithNow returns a copy of the policy reading time from fn.
func (p Policy) WithNow(fn func() time.Time) Policy {
	p.now = fn
	return p
}

func (p Policy) Location() *time.Location {
	if p.loc == nil {
		return time.UTC
	}
	return p.loc
}

func (p Policy) Now() time.Time {
	if p.now == nil {
		return time.Now().In(p.Location())
	}
	return p.now().In(p.Location())
}

// DateOf returns the local calendar day containing t.
func (p Policy) DateOf(t time.Time) Date {
	lt := t.In(p.Location())
	return Date{Year: lt.Year(), Month: lt.Month(), Day: lt.Day()}
}

func (p Policy) StartOfDay(d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, p.Location())
}

// EndOfDay is the exclusive end of the day, i.e. the next day's start.
func (p Policy) EndOfDay(d Date) time.Time {
	return p.StartOfDay(d.AddDays(1))
}

// At returns the instant minuteOfDay minutes after local midnight of d.
func (p Policy) At(d Date, minuteOfDay int) time.Time {
	return p.StartOfDay(d).Add(time.Duration(minuteOfDay) * time.Minute)
}

func (p Policy) MinuteOfDay(t time.Time) int {
	lt := t.In(p.Location())
	return lt.Hour()*60 + lt.Minute()
}

func (p Policy) FormatClock(t time.Time) string {
	return t.In(p.Location()).Format("15:04")
}

func (p Policy) SameDay(a, b time.Time) bool {
	return p.DateOf(a) == p.DateOf(b)
}

// ParseClock parses "HH:MM" into minutes after midnight. "24:00" is allowed as an end marker.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("clock %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("clock %q: out of range", s)
	}
	return h*60 + m, nil
}

func FormatClock(minuteOfDay int) string {
	return fmt.Sprintf("%02d:%02d", minuteOfDay/60, minuteOfDay%60)
}

func ParseOffset(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "", "Z", "UTC":
		return 0, nil
	}
	sign := time.Duration(1)
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	}
	mins, err := ParseClock(s)
	if err != nil || mins > 14*60 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, s)
	}
	return sign * time.Duration(mins) * time.Minute, nil
}

func offsetName(d time.Duration) string {
	if d == 0 {
		return "UTC"
	}
	sign := "+"
	if d < 0 {
		sign = "-"
		d = -d
	}
	mins := int(d / time.Minute)
	return fmt.Sprintf("UTC%s%02d:%02d", sign, mins/60, mins%60)
}
