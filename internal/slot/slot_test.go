package slot_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediqueue/dental-scheduling/internal/availability"
	"github.com/mediqueue/dental-scheduling/internal/clock"
	"github.com/mediqueue/dental-scheduling/internal/conflict"
	"github.com/mediqueue/dental-scheduling/internal/slot"
)

var (
	policy = clock.UTC()
	day    = clock.NewDate(2025, time.March, 10)
)

func window(from, to string) availability.Window {
	s, _ := clock.ParseClock(from)
	e, _ := clock.ParseClock(to)
	return availability.Window{Start: policy.At(day, s), End: policy.At(day, e), Range: availability.TimeRange{Start: s, End: e}}
}

func at(hhmm string) time.Time {
	m, _ := clock.ParseClock(hhmm)
	return policy.At(day, m)
}

func TestGenerate_BookedScenario(t *testing.T) {
	g := slot.NewGenerator(policy)
	in := slot.Input{
		Window:      window("09:00", "12:00"),
		StepMinutes: 30,
		Date:        day,
		Now:         at("08:00").AddDate(0, 0, -1),
		Bookings:    []conflict.Interval{conflict.NewInterval(at("10:00"), 30)},
	}

	slots, err := g.Generate(in)
	require.NoError(t, err)
	require.Len(t, slots, 6)

	for _, s := range slots {
		if s.Start.Equal(at("10:00")) {
			assert.Equal(t, slot.StatusBooked, s.Status)
			continue
		}
		assert.Equal(t, slot.StatusBookable, s.Status, s.Label(policy))
	}

	again, err := g.Generate(in)
	require.NoError(t, err)
	assert.Equal(t, slots, again, "generation is deterministic")
}

func TestGenerate_PartialTailIsDropped(t *testing.T) {
	slots, err := slot.NewGenerator(policy).Generate(slot.Input{
		Window:      window("09:00", "10:45"),
		StepMinutes: 30,
		Date:        day,
		Now:         at("00:00"),
	})
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, at("10:30"), slots[2].End)
}

func TestGenerate_LeaveBlocksWholeWindow(t *testing.T) {
	slots, err := slot.NewGenerator(policy).Generate(slot.Input{
		Window:      window("09:00", "12:00"),
		StepMinutes: 30,
		Date:        day,
		Now:         at("00:00").AddDate(0, 0, -3),
		Leaves:      []availability.LeavePeriod{{DentistCode: "D-001", DateFrom: day, DateTo: day.AddDays(2)}},
	})
	require.NoError(t, err)
	require.Len(t, slots, 6)
	for _, s := range slots {
		assert.Equal(t, slot.StatusBlockedLeave, s.Status)
		assert.False(t, s.Bookable())
	}
}

func TestGenerate_Precedence(t *testing.T) {
	g := slot.NewGenerator(policy)
	lunch := availability.ClinicEvent{ID: "E1", StartDate: at("10:00"), EndDate: at("11:00"), IsPublished: true}
	base := slot.Input{
		Window:      window("09:00", "12:00"),
		StepMinutes: 60,
		Date:        day,
		Events:      []availability.ClinicEvent{lunch},
		Leaves:      []availability.LeavePeriod{{DateFrom: day, DateTo: day}},
		Bookings:    []conflict.Interval{conflict.NewInterval(at("11:00"), 60)},
	}

	t.Run("future day", func(t *testing.T) {
		in := base
		in.Now = at("08:00").AddDate(0, 0, -1)
		slots, err := g.Generate(in)
		require.NoError(t, err)
		assert.Equal(t, []slot.Status{slot.StatusBlockedLeave, slot.StatusBlockedEvent, slot.StatusBlockedLeave},
			statuses(slots), "event wins over leave, leave wins over booked")
	})

	t.Run("same day", func(t *testing.T) {
		in := base
		in.Now = at("10:00")
		slots, err := g.Generate(in)
		require.NoError(t, err)
		assert.Equal(t, []slot.Status{slot.StatusTimePassed, slot.StatusTimePassed, slot.StatusBlockedLeave}, statuses(slots))
	})

	t.Run("past day", func(t *testing.T) {
		in := base
		in.Now = at("08:00").AddDate(0, 0, 1)
		slots, err := g.Generate(in)
		require.NoError(t, err)
		assert.Equal(t, []slot.Status{slot.StatusDatePassed, slot.StatusDatePassed, slot.StatusDatePassed}, statuses(slots))
	})

	t.Run("unpublished event", func(t *testing.T) {
		in := base
		in.Now = at("08:00")
		in.Leaves = nil
		in.Events = []availability.ClinicEvent{{StartDate: at("09:00"), EndDate: at("12:00")}}
		slots, err := g.Generate(in)
		require.NoError(t, err)
		assert.Equal(t, []slot.Status{slot.StatusBookable, slot.StatusBookable, slot.StatusBooked}, statuses(slots))
	})
}

func TestGenerate_InvalidStep(t *testing.T) {
	_, err := slot.NewGenerator(policy).Generate(slot.Input{Window: window("09:00", "10:00"), Date: day})
	assert.ErrorIs(t, err, slot.ErrInvalidStep)
}

func TestCovering(t *testing.T) {
	slots, err := slot.NewGenerator(policy).Generate(slot.Input{
		Window:      window("09:00", "12:00"),
		StepMinutes: 30,
		Date:        day,
		Now:         at("00:00"),
	})
	require.NoError(t, err)

	got := slot.Covering(slots, at("09:45"), at("10:45"))
	require.Len(t, got, 3)
	assert.Equal(t, at("09:30"), got[0].Start)
	assert.Equal(t, at("10:30"), got[2].Start)

	assert.Equal(t, map[slot.Status]int{slot.StatusBookable: 6}, slot.Counts(slots))
}

func statuses(slots []slot.Slot) []slot.Status {
	out := make([]slot.Status, len(slots))
	for i, s := range slots {
		out[i] = s.Status
	}
	return out
}
