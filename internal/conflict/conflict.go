// Package conflict decides whether a proposed treatment interval collides with
// anything already occupying a dentist's time.
package conflict

import (
	"context"
	"fmt"
	"time"
)

// Interval is a half-open [Start, End) occupancy record. Either code may be
// empty: queue entries can exist before their appointment is fully synced.
type Interval struct {
	Start           time.Time
	End             time.Time
	AppointmentCode string
	QueueCode       string
}

func NewInterval(start time.Time, minutes int) Interval {
	return Interval{Start: start, End: start.Add(time.Duration(minutes) * time.Minute)}
}

// Overlaps reports s1 < e2 && s2 < e1. Touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Occupancy lists every non-cancelled appointment and queue entry of a dentist
// intersecting [from, to).
type Occupancy interface {
	ListOccupancy(ctx context.Context, dentistCode string, from, to time.Time) ([]Interval, error)
}

type Checker struct {
	source Occupancy
}

func NewChecker(source Occupancy) *Checker {
	return &Checker{source: source}
}

// HasConflict checks [start, start+minutes) against the dentist's occupancy.
// excludeAppointment drops that appointment and its queue entry from the check.
func (c *Checker) HasConflict(ctx context.Context, dentistCode string, start time.Time, minutes int, excludeAppointment string) (bool, error) {
	candidate := NewInterval(start, minutes)

	busy, err := c.source.ListOccupancy(ctx, dentistCode, candidate.Start, candidate.End)
	if err != nil {
		return false, fmt.Errorf("list occupancy: %w", err)
	}

	return Any(candidate, busy, excludeAppointment), nil
}

// Any is the pure form of HasConflict over an already loaded occupancy list.
func Any(candidate Interval, busy []Interval, excludeAppointment string) bool {
	for _, b := range busy {
		if excludeAppointment != "" && b.AppointmentCode == excludeAppointment {
			continue
		}
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
