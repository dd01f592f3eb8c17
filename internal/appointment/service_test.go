package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediqueue/dental-scheduling/internal/availability"
	"github.com/mediqueue/dental-scheduling/internal/clock"
	"github.com/mediqueue/dental-scheduling/internal/config"
	"github.com/mediqueue/dental-scheduling/internal/directory"
	"github.com/mediqueue/dental-scheduling/internal/notify"
	"github.com/mediqueue/dental-scheduling/internal/queue"
	redisclient "github.com/mediqueue/dental-scheduling/internal/redis"
	"github.com/mediqueue/dental-scheduling/internal/slot"
)

var (
	testPolicy = clock.FixedPolicy(5*time.Hour + 30*time.Minute)
	today      = clock.NewDate(2026, time.October, 19) // Monday
	tomorrow   = today.AddDays(1)
)

type fixture struct {
	svc      *Service
	repo     *MemoryRepository
	source   *availability.MemorySource
	recorder *notify.Recorder
	dir      *directory.Memory
}

func at(d clock.Date, hh, mm int) time.Time {
	return testPolicy.At(d, hh*60+mm)
}

func newFixture(t *testing.T, locker redisclient.Locker) *fixture {
	t.Helper()

	source := availability.NewMemorySource()
	source.SetWeekly("D-01", availability.Weekly{
		availability.Mon: "09:00-17:00",
		availability.Tue: "09:00-17:00",
		availability.Wed: "09:00-17:00",
		availability.Thu: "09:00-17:00",
		availability.Fri: "09:00-17:00",
		availability.Sat: "09:00-13:00",
		availability.Sun: "closed",
	})
	source.SetWeekly("D-02", availability.Weekly{
		availability.Mon: "10:00-14:00",
		availability.Tue: "10:00-14:00",
	})

	if locker == nil {
		locker = redisclient.NewProcessLocker(2 * time.Second)
	}

	dir := directory.NewMemory()
	dir.AddPatient("P-01", "Asha Raman")
	dir.AddDentist("D-01", "Dr. Mehta")
	dir.AddReceptionist("R-01", true)

	repo := NewMemoryRepository()
	recorder := notify.NewRecorder(256)
	cal := availability.NewCalendar(source, testPolicy, availability.StandardDefaults())
	svc := NewService(repo, locker, cal, config.SchedulingConfig{
		AutoConfirmDelay:       4 * time.Hour,
		AverageServiceMinutes:  20,
		DefaultDurationMinutes: 30,
		DefaultStepMinutes:     30,
		SweepBatchSize:         100,
	}, WithNotifier(recorder), WithDirectory(dir, dir))

	return &fixture{svc: svc, repo: repo, source: source, recorder: recorder, dir: dir}
}

func online(patient string, start time.Time) CreateRequest {
	return CreateRequest{
		PatientCode: patient,
		DentistCode: "D-01",
		Start:       start,
		Origin:      OriginOnline,
	}
}

func walkIn(patient string, start time.Time) CreateRequest {
	return CreateRequest{
		PatientCode: patient,
		DentistCode: "D-01",
		Start:       start,
		Origin:      OriginReceptionist,
		ActorCode:   "R-01",
	}
}

func TestCreateAppointment_OnlineStaysPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	a, err := f.svc.CreateAppointment(ctx, online("P-01", at(today, 10, 0)), now)
	require.NoError(t, err)

	assert.Equal(t, "AP-0001", a.Code)
	assert.Equal(t, StatusPending, a.Status)
	assert.Equal(t, 30, a.DurationMinutes)
	assert.Equal(t, now, a.RequestedAt)
	assert.Nil(t, a.AcceptedAt)

	detail, err := f.svc.GetAppointment(ctx, a.Code, now)
	require.NoError(t, err)
	assert.Nil(t, detail.Queue)
	assert.Equal(t, "Asha Raman", detail.PatientName)
	assert.Equal(t, "Dr. Mehta", detail.DentistName)

	events := f.recorder.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventBookingCreated, events[0].Type)
	assert.NotEmpty(t, events[0].ID)
	require.Len(t, f.repo.Events(), 1)
}

func TestCreateAppointment_ReceptionistSameDayJoinsQueue(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	a, err := f.svc.CreateAppointment(ctx, walkIn("P-01", at(today, 11, 0)), now)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, a.Status)
	assert.Equal(t, "R-01", a.AcceptedByCode)
	require.NotNil(t, a.AcceptedAt)
	assert.Equal(t, now, *a.AcceptedAt)

	b, err := f.svc.CreateAppointment(ctx, walkIn("P-02", at(today, 9, 30)), now)
	require.NoError(t, err)

	entries, err := f.svc.ListQueue(ctx, "D-01", today, now)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, b.Code, entries[0].AppointmentCode)
	assert.Equal(t, 1, entries[0].Position)
	assert.Equal(t, a.Code, entries[1].AppointmentCode)
	assert.Equal(t, 2, entries[1].Position)
	assert.Equal(t, queue.StatusWaiting, entries[1].Status)
}

func TestCreateAppointment_ReceptionistFutureDayNotQueued(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.svc.CreateAppointment(ctx, walkIn("P-01", at(tomorrow, 10, 0)), at(today, 8, 0))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, a.Status)

	entries, err := f.svc.ListQueue(ctx, "D-01", tomorrow, at(today, 8, 0))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateAppointment_Overlap(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	_, err := f.svc.CreateAppointment(ctx, online("P-01", at(today, 10, 0)), now)
	require.NoError(t, err)

	_, err = f.svc.CreateAppointment(ctx, online("P-02", at(today, 10, 15)), now)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// Touching intervals do not overlap.
	_, err = f.svc.CreateAppointment(ctx, online("P-02", at(today, 10, 30)), now)
	require.NoError(t, err)

	// Another dentist is unaffected.
	req := online("P-03", at(today, 10, 0))
	req.DentistCode = "D-02"
	_, err = f.svc.CreateAppointment(ctx, req, now)
	require.NoError(t, err)
}

func TestCreateAppointment_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 12, 0)

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{name: "before opening", req: online("P-01", at(tomorrow, 8, 30))},
		{name: "runs past closing", req: online("P-01", at(tomorrow, 16, 45))},
		{name: "time passed", req: online("P-01", at(today, 11, 0))},
		{name: "date passed", req: online("P-01", at(today.AddDays(-1), 10, 0))},
		{name: "closed day", req: online("P-01", at(clock.NewDate(2026, time.October, 25), 10, 0))},
		{name: "not working that day", req: CreateRequest{PatientCode: "P-01", DentistCode: "D-02", Start: at(today.AddDays(2), 11, 0), Origin: OriginOnline}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAppointment(ctx, tt.req, now)
			assert.ErrorIs(t, err, ErrSlotUnavailable)
		})
	}

	list, err := f.svc.ListAppointments(ctx, ListFilter{}, now)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateAppointment_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)
	start := at(today, 10, 0)

	tests := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{
			name:  "no identity",
			req:   CreateRequest{DentistCode: "D-01", Start: start, Origin: OriginOnline},
			field: "patient_code",
		},
		{
			name:  "both identities",
			req:   CreateRequest{PatientCode: "P-01", Guest: &Guest{Name: "A", Email: "a@b.co", Phone: "5551234567"}, DentistCode: "D-01", Start: start, Origin: OriginOnline},
			field: "guest",
		},
		{
			name:  "guest bad email",
			req:   CreateRequest{Guest: &Guest{Name: "A", Email: "nope", Phone: "5551234567"}, DentistCode: "D-01", Start: start, Origin: OriginOnline},
			field: "guest.email",
		},
		{
			name:  "guest short phone",
			req:   CreateRequest{Guest: &Guest{Name: "A", Email: "a@b.co", Phone: "12-34"}, DentistCode: "D-01", Start: start, Origin: OriginOnline},
			field: "guest.phone",
		},
		{
			name:  "missing dentist",
			req:   CreateRequest{PatientCode: "P-01", Start: start, Origin: OriginOnline},
			field: "dentist_code",
		},
		{
			name:  "unknown origin",
			req:   CreateRequest{PatientCode: "P-01", DentistCode: "D-01", Start: start, Origin: "fax"},
			field: "origin",
		},
		{
			name:  "online leave override",
			req:   CreateRequest{PatientCode: "P-01", DentistCode: "D-01", Start: start, Origin: OriginOnline, OverrideLeave: true},
			field: "override_leave",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAppointment(ctx, tt.req, now)
			require.ErrorIs(t, err, ErrValidation)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, ve.Fields, tt.field)
		})
	}
}

func TestCreateAppointment_GuestLookup(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	req := CreateRequest{
		Guest:         &Guest{Name: " Ravi K ", Email: "Ravi@Example.COM ", Phone: "+91 98765-43210"},
		RecipientName: "Meera K",
		DentistCode:   "D-01",
		Start:         at(tomorrow, 9, 0),
		Origin:        OriginOnline,
	}
	a, err := f.svc.CreateAppointment(ctx, req, now)
	require.NoError(t, err)
	require.NotNil(t, a.Guest)
	assert.Equal(t, "ravi@example.com", a.Guest.Email)
	assert.Equal(t, "+919876543210", a.Guest.Phone)
	assert.Equal(t, "guest:ravi@example.com|+919876543210", a.IdentityKey())

	byEmail, err := f.svc.LookupByGuestContact(ctx, "  RAVI@example.com", "", now)
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, a.Code, byEmail[0].Code)

	byPhone, err := f.svc.LookupByGuestContact(ctx, "", "+91 (98765) 43210", now)
	require.NoError(t, err)
	require.Len(t, byPhone, 1)

	_, err = f.svc.LookupByGuestContact(ctx, " ", "", now)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAutoConfirm_LazyOnRead(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	requested := at(today, 8, 0)

	a, err := f.svc.CreateAppointment(ctx, online("P-01", at(tomorrow, 10, 0)), requested)
	require.NoError(t, err)

	before, err := f.svc.GetAppointment(ctx, a.Code, requested.Add(3*time.Hour+59*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, before.Status)

	after, err := f.svc.GetAppointment(ctx, a.Code, requested.Add(4*time.Hour+time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, after.Status)
	assert.Equal(t, SystemActor, after.AcceptedByCode)
	require.NotNil(t, after.AcceptedAt)
	assert.True(t, after.AcceptedAt.Equal(requested.Add(4*time.Hour)))
	assert.Nil(t, after.Queue, "tomorrow's booking is not queued today")

	// Reading again later changes nothing.
	later, err := f.svc.GetAppointment(ctx, a.Code, requested.Add(9*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, later.Status)
	assert.True(t, later.AcceptedAt.Equal(*after.AcceptedAt))

	var autoConfirmed int
	for _, ev := range f.recorder.Drain() {
		if ev.Type == notify.EventAutoConfirmed {
			autoConfirmed++
		}
	}
	assert.Equal(t, 1, autoConfirmed)
}

func TestAutoConfirm_ExactlyAtDelay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	requested := at(today, 8, 0)

	a, err := f.svc.CreateAppointment(ctx, online("P-01", at(tomorrow, 10, 0)), requested)
	require.NoError(t, err)

	list, err := f.svc.ListAppointments(ctx, ListFilter{}, requested.Add(4*time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.Code, list[0].Code)
	assert.Equal(t, StatusConfirmed, list[0].Status)
}

func TestAutoConfirm_SameDayJoinsQueue(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	requested := at(today, 7, 0)

	a, err := f.svc.CreateAppointment(ctx, online("P-01", at(today, 15, 0)), requested)
	require.NoError(t, err)

	entries, err := f.svc.ListQueue(ctx, "D-01", today, at(today, 11, 0))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, a.Code, entries[0].AppointmentCode)
	assert.Equal(t, 1, entries[0].Position)

	got, err := f.svc.GetAppointment(ctx, a.Code, at(today, 11, 0))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	require.NotNil(t, got.Queue)
}

func TestAutoConfirmDue_Sweep(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.CreateAppointment(ctx, online("P-01", at(tomorrow, 10, 0)), at(today, 6, 0))
	require.NoError(t, err)
	_, err = f.svc.CreateAppointment(ctx, online("P-02", at(tomorrow, 11, 0)), at(today, 7, 0))
	require.NoError(t, err)
	late, err := f.svc.CreateAppointment(ctx, online("P-03", at(tomorrow, 12, 0)), at(today, 9, 0))
	require.NoError(t, err)

	n, err := f.svc.AutoConfirmDue(ctx, at(today, 11, 30))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.AutoConfirmDue(ctx, at(today, 11, 30))
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.repo.GetAppointment(ctx, late.Code)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestConfirmAppointment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	a, err := f.svc.CreateAppointment(ctx, online("P-01", at(today, 10, 0)), now)
	require.NoError(t, err)

	confirmed, err := f.svc.ConfirmAppointment(ctx, a.Code, "R-01", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.Equal(t, "R-01", confirmed.AcceptedByCode)

	entries, err := f.svc.ListQueue(ctx, "D-01", today, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = f.svc.ConfirmAppointment(ctx, a.Code, "R-01", now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = f.svc.ConfirmAppointment(ctx, "AP-9999", "R-01", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelAppointment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	a, err := f.svc.CreateAppointment(ctx, walkIn("P-01", at(today, 10, 0)), now)
	require.NoError(t, err)

	cancelled, err := f.svc.CancelAppointment(ctx, a.Code, "P-01", "feeling better", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "feeling better", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	entry, err := f.repo.GetQueueEntryByAppointment(ctx, a.Code)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCancelled, entry.Status)

	// A second cancel is rejected and leaves the record as it was.
	_, err = f.svc.CancelAppointment(ctx, a.Code, "R-01", "again", now.Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	got, err := f.repo.GetAppointment(ctx, a.Code)
	require.NoError(t, err)
	assert.Equal(t, "feeling better", got.CancelReason)
	assert.Equal(t, "P-01", got.CancelledByCode)

	// The slot is free again.
	_, err = f.svc.CreateAppointment(ctx, online("P-02", at(today, 10, 0)), now.Add(3*time.Minute))
	require.NoError(t, err)
}

func TestRescheduleAppointment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	first, err := f.svc.CreateAppointment(ctx, walkIn("P-01", at(today, 10, 0)), now)
	require.NoError(t, err)
	second, err := f.svc.CreateAppointment(ctx, walkIn("P-02", at(today, 11, 0)), now)
	require.NoError(t, err)

	// Cannot move onto the other booking.
	_, err = f.svc.RescheduleAppointment(ctx, first.Code, RescheduleRequest{Start: at(today, 11, 15)}, now)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// Moving within its own interval is fine.
	moved, err := f.svc.RescheduleAppointment(ctx, first.Code, RescheduleRequest{Start: at(today, 10, 15), ActorCode: "R-01"}, now)
	require.NoError(t, err)
	assert.Equal(t, first.Code, moved.Code)

	moved, err = f.svc.RescheduleAppointment(ctx, first.Code, RescheduleRequest{Start: at(today, 13, 0), DurationMinutes: 45}, now)
	require.NoError(t, err)
	assert.Equal(t, first.Code, moved.Code)
	assert.Equal(t, StatusConfirmed, moved.Status)
	assert.Equal(t, 45, moved.DurationMinutes)
	assert.True(t, moved.AppointmentDate.Equal(at(today, 13, 0)))

	entries, err := f.svc.ListQueue(ctx, "D-01", today, now)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.Code, entries[0].AppointmentCode)
	assert.Equal(t, 1, entries[0].Position)
	assert.Equal(t, first.Code, entries[1].AppointmentCode)
	assert.Equal(t, 2, entries[1].Position)
	assert.True(t, entries[1].ScheduledAt.Equal(at(today, 13, 0)))

	// The old slot is free.
	_, err = f.svc.CreateAppointment(ctx, online("P-03", at(today, 10, 0)), now)
	require.NoError(t, err)
}

func TestRescheduleAppointment_ToAnotherDay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	a, err := f.svc.CreateAppointment(ctx, walkIn("P-01", at(today, 10, 0)), now)
	require.NoError(t, err)
	b, err := f.svc.CreateAppointment(ctx, walkIn("P-02", at(today, 12, 0)), now)
	require.NoError(t, err)

	_, err = f.svc.RescheduleAppointment(ctx, a.Code, RescheduleRequest{Start: at(tomorrow, 10, 0)}, now)
	require.NoError(t, err)

	todayQueue, err := f.svc.ListQueue(ctx, "D-01", today, now)
	require.NoError(t, err)
	require.Len(t, todayQueue, 1)
	assert.Equal(t, b.Code, todayQueue[0].AppointmentCode)
	assert.Equal(t, 1, todayQueue[0].Position)

	tomorrowQueue, err := f.svc.ListQueue(ctx, "D-01", tomorrow, now)
	require.NoError(t, err)
	require.Len(t, tomorrowQueue, 1)
	assert.Equal(t, a.Code, tomorrowQueue[0].AppointmentCode)
}

func TestRescheduleAppointment_Rejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	a, err := f.svc.CreateAppointment(ctx, walkIn("P-01", at(today, 10, 0)), now)
	require.NoError(t, err)
	entry, err := f.repo.GetQueueEntryByAppointment(ctx, a.Code)
	require.NoError(t, err)

	_, err = f.svc.SetQueueStatus(ctx, entry.Code, queue.StatusCalled, "R-01", now)
	require.NoError(t, err)

	_, err = f.svc.RescheduleAppointment(ctx, a.Code, RescheduleRequest{Start: at(today, 14, 0)}, now)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = f.svc.RescheduleAppointment(ctx, a.Code, RescheduleRequest{}, now)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCompleteAppointment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	a, err := f.svc.CreateAppointment(ctx, walkIn("P-01", at(today, 10, 0)), now)
	require.NoError(t, err)
	entry, err := f.repo.GetQueueEntryByAppointment(ctx, a.Code)
	require.NoError(t, err)

	// Still waiting in the queue.
	_, err = f.svc.CompleteAppointment(ctx, a.Code, "D-01", now)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	for _, st := range []queue.Status{queue.StatusCalled, queue.StatusInTreatment} {
		_, err = f.svc.SetQueueStatus(ctx, entry.Code, st, "D-01", now)
		require.NoError(t, err)
	}

	done, err := f.svc.CompleteAppointment(ctx, a.Code, "D-01", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	entry, err = f.repo.GetQueueEntry(ctx, entry.Code)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, entry.Status)

	_, err = f.svc.CancelAppointment(ctx, a.Code, "R-01", "", now.Add(3*time.Hour))
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestCompleteAppointment_PendingRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	a, err := f.svc.CreateAppointment(ctx, online("P-01", at(tomorrow, 10, 0)), now)
	require.NoError(t, err)

	_, err = f.svc.CompleteAppointment(ctx, a.Code, "D-01", now)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestSetQueueStatus_SyncsAppointment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	a, err := f.svc.CreateAppointment(ctx, walkIn("P-01", at(today, 10, 0)), now)
	require.NoError(t, err)
	b, err := f.svc.CreateAppointment(ctx, walkIn("P-02", at(today, 11, 0)), now)
	require.NoError(t, err)

	ea, err := f.repo.GetQueueEntryByAppointment(ctx, a.Code)
	require.NoError(t, err)
	eb, err := f.repo.GetQueueEntryByAppointment(ctx, b.Code)
	require.NoError(t, err)

	_, err = f.svc.SetQueueStatus(ctx, ea.Code, queue.StatusCompleted, "D-01", now)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = f.svc.SetQueueStatus(ctx, ea.Code, "paused", "D-01", now)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.SetQueueStatus(ctx, ea.Code, queue.StatusCancelled, "R-01", now)
	require.NoError(t, err)
	got, err := f.repo.GetAppointment(ctx, a.Code)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	_, err = f.svc.SetQueueStatus(ctx, eb.Code, queue.StatusNoShow, "R-01", now)
	require.NoError(t, err)
	got, err = f.repo.GetAppointment(ctx, b.Code)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status, "no-show leaves the appointment confirmed")

	_, err = f.svc.SetQueueStatus(ctx, "Q-9999", queue.StatusCalled, "R-01", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetQueueStatus_CompletionCompletesAppointment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	a, err := f.svc.CreateAppointment(ctx, walkIn("P-01", at(today, 10, 0)), now)
	require.NoError(t, err)
	e, err := f.repo.GetQueueEntryByAppointment(ctx, a.Code)
	require.NoError(t, err)

	for _, st := range []queue.Status{queue.StatusCalled, queue.StatusInTreatment, queue.StatusCompleted} {
		_, err = f.svc.SetQueueStatus(ctx, e.Code, st, "D-01", now)
		require.NoError(t, err)
	}

	got, err := f.repo.GetAppointment(ctx, a.Code)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	// Completing the appointment afterwards is not a second transition.
	_, err = f.svc.CompleteAppointment(ctx, a.Code, "D-01", now)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestNextPatientAndWait(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	var codes []string
	for i, hh := range []int{9, 10, 11} {
		a, err := f.svc.CreateAppointment(ctx, walkIn(fmt.Sprintf("P-0%d", i+1), at(today, hh, 0)), now)
		require.NoError(t, err)
		e, err := f.repo.GetQueueEntryByAppointment(ctx, a.Code)
		require.NoError(t, err)
		codes = append(codes, e.Code)
	}

	next, err := f.svc.NextPatient(ctx, "D-01", today, now)
	require.NoError(t, err)
	assert.Nil(t, next, "nobody called and nobody in treatment")

	wait, err := f.svc.EstimateWait(ctx, "D-01", today, now)
	require.NoError(t, err)
	assert.Equal(t, 3, wait.WaitingCount)
	assert.Equal(t, 60, wait.EstimatedMinutes)

	_, err = f.svc.SetQueueStatus(ctx, codes[0], queue.StatusCalled, "R-01", now)
	require.NoError(t, err)
	next, err = f.svc.NextPatient(ctx, "D-01", today, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, codes[0], next.Code)

	_, err = f.svc.SetQueueStatus(ctx, codes[0], queue.StatusInTreatment, "D-01", now)
	require.NoError(t, err)
	next, err = f.svc.NextPatient(ctx, "D-01", today, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, codes[1], next.Code)

	ongoing, err := f.svc.Ongoing(ctx, today, now)
	require.NoError(t, err)
	require.Len(t, ongoing, 1)
	assert.Equal(t, codes[0], ongoing[0].Code)
}

func TestMigrateToday(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	yesterday := at(today.AddDays(-1), 12, 0)

	a, err := f.svc.CreateAppointment(ctx, walkIn("P-01", at(today, 11, 0)), yesterday)
	require.NoError(t, err)
	b, err := f.svc.CreateAppointment(ctx, walkIn("P-02", at(today, 9, 0)), yesterday)
	require.NoError(t, err)
	req := walkIn("P-03", at(today, 10, 0))
	req.DentistCode = "D-02"
	c, err := f.svc.CreateAppointment(ctx, req, yesterday)
	require.NoError(t, err)
	_, err = f.svc.CreateAppointment(ctx, walkIn("P-04", at(tomorrow, 9, 0)), yesterday)
	require.NoError(t, err)
	cancelled, err := f.svc.CreateAppointment(ctx, walkIn("P-05", at(today, 14, 0)), yesterday)
	require.NoError(t, err)
	_, err = f.svc.CancelAppointment(ctx, cancelled.Code, "R-01", "", yesterday)
	require.NoError(t, err)

	now := at(today, 7, 0)
	n, err := f.svc.MigrateToday(ctx, today, now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = f.svc.MigrateToday(ctx, today, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	d1, err := f.svc.ListQueue(ctx, "D-01", today, now)
	require.NoError(t, err)
	require.Len(t, d1, 2)
	assert.Equal(t, b.Code, d1[0].AppointmentCode)
	assert.Equal(t, a.Code, d1[1].AppointmentCode)

	all, err := f.svc.ListQueue(ctx, "", today, now)
	require.NoError(t, err)
	require.Len(t, all, 3)

	d2, err := f.svc.ListQueue(ctx, "D-02", today, now)
	require.NoError(t, err)
	require.Len(t, d2, 1)
	assert.Equal(t, c.Code, d2[0].AppointmentCode)
	assert.Equal(t, 1, d2[0].Position)
}

func TestGetDaySchedule(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	_, err := f.svc.CreateAppointment(ctx, CreateRequest{
		PatientCode: "P-01", DentistCode: "D-02", Start: at(today, 11, 0), Origin: OriginOnline,
	}, now)
	require.NoError(t, err)

	sched, err := f.svc.GetDaySchedule(ctx, "D-02", today, 60, at(today, 10, 30))
	require.NoError(t, err)
	require.Len(t, sched.Slots, 4)
	assert.Equal(t, slot.StatusTimePassed, sched.Slots[0].Status)
	assert.Equal(t, slot.StatusBooked, sched.Slots[1].Status)
	assert.Equal(t, slot.StatusBookable, sched.Slots[2].Status)
	assert.Equal(t, slot.StatusBookable, sched.Slots[3].Status)
	assert.Equal(t, 2, sched.Counts[slot.StatusBookable])

	closed, err := f.svc.GetDaySchedule(ctx, "D-01", clock.NewDate(2026, time.October, 25), 30, now)
	require.NoError(t, err)
	assert.Nil(t, closed.Resolution.Window)
	assert.Empty(t, closed.Slots)
}

func TestLeaveBlocksBookings(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)
	f.source.AddLeave(availability.LeavePeriod{ID: "L-1", DentistCode: "D-01", DateFrom: tomorrow, DateTo: tomorrow})

	sched, err := f.svc.GetDaySchedule(ctx, "D-01", tomorrow, 30, now)
	require.NoError(t, err)
	require.NotEmpty(t, sched.Slots)
	assert.Equal(t, len(sched.Slots), sched.Counts[slot.StatusBlockedLeave])

	_, err = f.svc.CreateAppointment(ctx, online("P-01", at(tomorrow, 10, 0)), now)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	_, err = f.svc.CreateAppointment(ctx, walkIn("P-01", at(tomorrow, 10, 0)), now)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	emergency := walkIn("P-01", at(tomorrow, 10, 0))
	emergency.OverrideLeave = true
	a, err := f.svc.CreateAppointment(ctx, emergency, now)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, a.Status)
}

func TestClinicEventBlocksBookings(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)
	f.source.AddEvent(availability.ClinicEvent{
		ID: "E-1", Title: "Fire drill",
		StartDate: at(tomorrow, 12, 0), EndDate: at(tomorrow, 13, 0),
		IsPublished: true,
	})

	_, err := f.svc.CreateAppointment(ctx, online("P-01", at(tomorrow, 11, 45)), now)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	_, err = f.svc.CreateAppointment(ctx, online("P-01", at(tomorrow, 11, 30)), now)
	require.NoError(t, err)
	_, err = f.svc.CreateAppointment(ctx, online("P-02", at(tomorrow, 13, 0)), now)
	require.NoError(t, err)
}

// recordingLocker notes every key taken through it.
type recordingLocker struct {
	redisclient.Locker
	mu   sync.Mutex
	keys []string
}

func (l *recordingLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return l.Locker.WithLock(ctx, key, fn)
}

func TestBookingsTakeDentistDayLock(t *testing.T) {
	locker := redisclient.NewProcessLocker(50 * time.Millisecond)
	rec := &recordingLocker{Locker: locker}
	f := newFixture(t, rec)
	ctx := context.Background()
	now := at(today, 8, 0)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- locker.WithLock(ctx, "dentist:D-01:"+tomorrow.String(), func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	// The slot is free, but another writer owns the dentist's day.
	_, err := f.svc.CreateAppointment(ctx, online("P-01", at(tomorrow, 10, 0)), now)
	require.ErrorIs(t, err, ErrSlotUnavailable)

	// Other days of the same dentist are not blocked.
	a, err := f.svc.CreateAppointment(ctx, online("P-01", at(today, 11, 0)), now)
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)

	list, err := f.svc.ListAppointments(ctx, ListFilter{DentistCode: "D-01"}, now)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.Code, list[0].Code)

	rec.mu.Lock()
	rec.keys = nil
	rec.mu.Unlock()

	_, err = f.svc.RescheduleAppointment(ctx, a.Code, RescheduleRequest{Start: at(tomorrow, 10, 0)}, now)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Contains(t, rec.keys, "dentist:D-01:"+today.String())
	assert.Contains(t, rec.keys, "dentist:D-01:"+tomorrow.String())
}

// The memory repository serializes transactions and rejects overlaps itself,
// so this checks the no-double-booking outcome under both lockers. That the
// lock guards the check is covered by TestBookingsTakeDentistDayLock.
func TestConcurrentBookingsSameSlot(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lockers := map[string]redisclient.Locker{
		"process": redisclient.NewProcessLocker(5 * time.Second),
		"redis":   redisclient.NewRedisLocker(client, 5*time.Second, 5*time.Second),
	}

	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, locker)
			ctx := context.Background()
			now := at(today, 8, 0)

			const n = 16
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				ok      int
				clashes int
				other   []error
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					// Staggered starts that all overlap 10:00-10:30.
					start := at(tomorrow, 10, 0).Add(time.Duration(i%3) * 10 * time.Minute)
					_, err := f.svc.CreateAppointment(ctx, online(fmt.Sprintf("P-%02d", i), start), now)

					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						ok++
					case errors.Is(err, ErrSlotUnavailable):
						clashes++
					default:
						other = append(other, err)
					}
				}(i)
			}
			wg.Wait()

			assert.Empty(t, other)
			assert.Equal(t, 1, ok)
			assert.Equal(t, n-1, clashes)

			list, err := f.svc.ListAppointments(ctx, ListFilter{DentistCode: "D-01"}, now)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestListAppointments_StatusFilterSeesAutoConfirmed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	a, err := f.svc.CreateAppointment(ctx, online("P-01", at(tomorrow, 10, 0)), now)
	require.NoError(t, err)
	b, err := f.svc.CreateAppointment(ctx, online("P-02", at(tomorrow, 11, 0)), now.Add(2*time.Hour))
	require.NoError(t, err)

	later := now.Add(4*time.Hour + time.Minute)

	confirmed, err := f.svc.ListAppointments(ctx, ListFilter{Statuses: []AppointmentStatus{StatusConfirmed}}, later)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, a.Code, confirmed[0].Code)
	assert.Equal(t, SystemActor, confirmed[0].AcceptedByCode)

	detail, err := f.svc.GetAppointment(ctx, a.Code, later)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, detail.Status)

	pending, err := f.svc.ListAppointments(ctx, ListFilter{Statuses: []AppointmentStatus{StatusPending}, Limit: 1}, later)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.Code, pending[0].Code)
}

func TestListAppointments_Filters(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := at(today, 8, 0)

	a, err := f.svc.CreateAppointment(ctx, online("P-01", at(tomorrow, 10, 0)), now)
	require.NoError(t, err)
	_, err = f.svc.CreateAppointment(ctx, walkIn("P-02", at(tomorrow, 11, 0)), now)
	require.NoError(t, err)

	pending, err := f.svc.ListAppointments(ctx, ListFilter{Statuses: []AppointmentStatus{StatusPending}}, now)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.Code, pending[0].Code)

	// Once the delay has run out the pending filter no longer matches it.
	pending, err = f.svc.ListAppointments(ctx, ListFilter{Statuses: []AppointmentStatus{StatusPending}}, now.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, pending)

	page, err := f.svc.ListAppointments(ctx, ListFilter{Limit: 1, Offset: 1}, now)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.True(t, page[0].AppointmentDate.Equal(at(tomorrow, 11, 0)))
}
