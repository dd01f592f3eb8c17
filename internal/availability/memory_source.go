package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mediqueue/dental-scheduling/internal/clock"
)

// MemorySource keeps availability data in process. Used by tests and the
// memory storage driver.
type MemorySource struct {
	mu     sync.RWMutex
	weekly map[string]Weekly
	leaves []LeavePeriod
	events []ClinicEvent
}

func NewMemorySource() *MemorySource {
	return &MemorySource{weekly: make(map[string]Weekly)}
}

func (s *MemorySource) SetWeekly(dentistCode string, w Weekly) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(Weekly, len(w))
	for k, v := range w {
		cp[k] = v
	}
	s.weekly[dentistCode] = cp
}

func (s *MemorySource) AddLeave(l LeavePeriod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves = append(s.leaves, l)
}

func (s *MemorySource) AddEvent(e ClinicEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *MemorySource) WeeklyAvailability(_ context.Context, dentistCode string) (Weekly, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.weekly[dentistCode]
	if !ok {
		return nil, false, nil
	}
	cp := make(Weekly, len(w))
	for k, v := range w {
		cp[k] = v
	}
	return cp, true, nil
}

func (s *MemorySource) LeavePeriods(_ context.Context, dentistCode string, from, to clock.Date) ([]LeavePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []LeavePeriod
	for _, l := range s.leaves {
		if l.DentistCode != dentistCode {
			continue
		}
		if l.DateTo.Before(from) || l.DateFrom.After(to) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *MemorySource) ClinicEvents(_ context.Context, from, to time.Time) ([]ClinicEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ClinicEvent
	for _, e := range s.events {
		if e.Overlaps(from, to) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}
