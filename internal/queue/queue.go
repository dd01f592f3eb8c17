// Package queue holds the same-day treatment queue rules: the entry status
// machine, position assignment and the read-side views receptionists use.
package queue

import (
	"sort"
	"time"

	"github.com/mediqueue/dental-scheduling/internal/clock"
)

type Status string

const (
	StatusWaiting     Status = "waiting"
	StatusCalled      Status = "called"
	StatusInTreatment Status = "in_treatment"
	StatusCompleted   Status = "completed"
	StatusNoShow      Status = "no_show"
	StatusCancelled   Status = "cancelled"
)

var Statuses = []Status{StatusWaiting, StatusCalled, StatusInTreatment, StatusCompleted, StatusNoShow, StatusCancelled}

var transitions = map[Status][]Status{
	StatusWaiting:     {StatusCalled, StatusNoShow, StatusCancelled},
	StatusCalled:      {StatusInTreatment, StatusNoShow, StatusCancelled},
	StatusInTreatment: {StatusCompleted, StatusCancelled},
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusNoShow || s == StatusCancelled
}

// CanTransition reports whether from -> to is a legal queue move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Occupies reports whether the entry still holds the dentist's time.
func (s Status) Occupies() bool {
	return s != StatusCancelled
}

type Entry struct {
	Code            string     `json:"code"`
	AppointmentCode string     `json:"appointment_code"`
	DentistCode     string     `json:"dentist_code"`
	PatientCode     string     `json:"patient_code,omitempty"`
	PatientName     string     `json:"patient_name,omitempty"`
	Date            clock.Date `json:"date"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	DurationMinutes int        `json:"duration_minutes"`
	Position        int        `json:"position"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (e Entry) End() time.Time {
	return e.ScheduledAt.Add(time.Duration(e.DurationMinutes) * time.Minute)
}

// Key identifies one dentist's queue on one day.
type Key struct {
	DentistCode string
	Date        clock.Date
}

func (k Key) String() string {
	return k.DentistCode + ":" + k.Date.String()
}

func (e Entry) Key() Key {
	return Key{DentistCode: e.DentistCode, Date: e.Date}
}

// SortChronological orders entries by scheduled time, then creation, then code.
func SortChronological(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Code < b.Code
	})
}

// Resequence returns the entries of one dentist-day in call order with dense
// positions 1..n, and the subset whose position changed.
func Resequence(entries []Entry) (ordered []Entry, changed []Entry) {
	ordered = append([]Entry(nil), entries...)
	SortChronological(ordered)
	for i := range ordered {
		pos := i + 1
		if ordered[i].Position != pos {
			ordered[i].Position = pos
			changed = append(changed, ordered[i])
		}
	}
	return ordered, changed
}

func SortByPosition(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].DentistCode != entries[j].DentistCode {
			return entries[i].DentistCode < entries[j].DentistCode
		}
		return entries[i].Position < entries[j].Position
	})
}

// NextPatient picks the entry to attend next for a single dentist's day:
// a called entry if any; otherwise, while someone is in treatment, the
// earliest waiting entry; otherwise nothing.
func NextPatient(entries []Entry) (Entry, bool) {
	sorted := append([]Entry(nil), entries...)
	SortByPosition(sorted)

	inTreatment := false
	for _, e := range sorted {
		switch e.Status {
		case StatusCalled:
			return e, true
		case StatusInTreatment:
			inTreatment = true
		}
	}
	if !inTreatment {
		return Entry{}, false
	}
	for _, e := range sorted {
		if e.Status == StatusWaiting {
			return e, true
		}
	}
	return Entry{}, false
}

// Ongoing returns every in-treatment entry, ordered by dentist then position.
func Ongoing(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Status == StatusInTreatment {
			out = append(out, e)
		}
	}
	SortByPosition(out)
	return out
}

type WaitEstimate struct {
	WaitingCount     int `json:"waiting_count"`
	EstimatedMinutes int `json:"estimated_minutes"`
}

// EstimateWait is waitingCount * averageServiceMinutes. Display only.
func EstimateWait(entries []Entry, averageServiceMinutes int) WaitEstimate {
	n := 0
	for _, e := range entries {
		if e.Status == StatusWaiting {
			n++
		}
	}
	return WaitEstimate{WaitingCount: n, EstimatedMinutes: n * averageServiceMinutes}
}
