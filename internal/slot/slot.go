// Package slot divides a working window into fixed-size candidate slots and
// classifies each one. Generation is pure: same input, same output.
package slot

import (
	"errors"
	"time"

	"github.com/mediqueue/dental-scheduling/internal/availability"
	"github.com/mediqueue/dental-scheduling/internal/clock"
	"github.com/mediqueue/dental-scheduling/internal/conflict"
)

var ErrInvalidStep = errors.New("slot step must be positive")

type Status string

const (
	StatusBookable     Status = "bookable"
	StatusBooked       Status = "booked"
	StatusBlockedEvent Status = "blocked_event"
	StatusBlockedLeave Status = "blocked_leave"
	StatusDatePassed   Status = "date_passed"
	StatusTimePassed   Status = "time_passed"
)

type Slot struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status Status    `json:"status"`
}

func (s Slot) Bookable() bool {
	return s.Status == StatusBookable
}

func (s Slot) Label(p clock.Policy) string {
	return p.FormatClock(s.Start) + "-" + p.FormatClock(s.End)
}

type Input struct {
	Window      availability.Window
	StepMinutes int
	Date        clock.Date
	Now         time.Time
	// Bookings are the non-cancelled appointments and queue entries of the dentist.
	Bookings []conflict.Interval
	Events   []availability.ClinicEvent
	Leaves   []availability.LeavePeriod
}

type Generator struct {
	clock clock.Policy
}

func NewGenerator(policy clock.Policy) *Generator {
	return &Generator{clock: policy}
}

// Generate emits slots from the window start while start+step <= end.
func (g *Generator) Generate(in Input) ([]Slot, error) {
	if in.StepMinutes <= 0 {
		return nil, ErrInvalidStep
	}
	step := time.Duration(in.StepMinutes) * time.Minute

	today := g.clock.DateOf(in.Now)
	onLeave := false
	for _, l := range in.Leaves {
		if l.Covers(in.Date) {
			onLeave = true
			break
		}
	}

	var slots []Slot
	for start := in.Window.Start; !start.Add(step).After(in.Window.End); start = start.Add(step) {
		end := start.Add(step)
		slots = append(slots, Slot{
			Start:  start,
			End:    end,
			Status: g.classify(in, today, onLeave, start, end),
		})
	}
	return slots, nil
}

func (g *Generator) classify(in Input, today clock.Date, onLeave bool, start, end time.Time) Status {
	switch {
	case in.Date.Before(today):
		return StatusDatePassed
	case in.Date == today && !start.After(in.Now):
		return StatusTimePassed
	}

	for _, e := range in.Events {
		if e.Blocking() && e.Overlaps(start, end) {
			return StatusBlockedEvent
		}
	}

	if onLeave {
		return StatusBlockedLeave
	}

	candidate := conflict.Interval{Start: start, End: end}
	if conflict.Any(candidate, in.Bookings, "") {
		return StatusBooked
	}

	return StatusBookable
}

// Covering returns the slots intersecting [start, end), in order.
func Covering(slots []Slot, start, end time.Time) []Slot {
	want := conflict.Interval{Start: start, End: end}
	var out []Slot
	for _, s := range slots {
		if want.Overlaps(conflict.Interval{Start: s.Start, End: s.End}) {
			out = append(out, s)
		}
	}
	return out
}

// Counts tallies slots per status for summaries and metrics.
func Counts(slots []Slot) map[Status]int {
	out := make(map[Status]int, 6)
	for _, s := range slots {
		out[s.Status]++
	}
	return out
}
