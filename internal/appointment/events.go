package appointment

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mediqueue/dental-scheduling/internal/notify"
	"github.com/mediqueue/dental-scheduling/internal/queue"
)

// outbox collects events inside a transaction; they go out only after commit.
type outbox struct {
	events []notify.Event
}

func (o *outbox) add(ev notify.Event) {
	o.events = append(o.events, ev)
}

func (o *outbox) reset() {
	o.events = o.events[:0]
}

func (s *Service) event(t notify.EventType, a *Appointment, actor string, now time.Time, details map[string]any) notify.Event {
	ev := notify.Event{
		Type:            t,
		AppointmentCode: a.Code,
		DentistCode:     a.DentistCode,
		PatientCode:     a.PatientCode,
		Status:          string(a.Status),
		Actor:           actor,
		OccurredAt:      now,
		Details:         details,
	}
	if a.Guest != nil {
		ev.GuestEmail = a.Guest.Email
		ev.GuestPhone = a.Guest.Phone
	}
	return ev
}

func (s *Service) queueEvent(e *queue.Entry, actor string, now time.Time, details map[string]any) notify.Event {
	return notify.Event{
		Type:            notify.EventQueueStatusChanged,
		AppointmentCode: e.AppointmentCode,
		QueueCode:       e.Code,
		DentistCode:     e.DentistCode,
		PatientCode:     e.PatientCode,
		Status:          string(e.Status),
		Actor:           actor,
		OccurredAt:      now,
		Details:         details,
	}
}

// publish records and announces committed transitions. Neither step can undo
// the transition; failures are only logged.
func (s *Service) publish(ctx context.Context, out outbox) {
	for _, ev := range out.events {
		ev.ID = uuid.NewString()

		entity := "appointment"
		if ev.Type == notify.EventQueueStatusChanged {
			entity = "queue"
		}
		s.metrics.ObserveTransition(entity, ev.Status)

		s.logEvent(ctx, ev)

		if s.notifier == nil {
			continue
		}
		if err := s.notifier.Notify(ctx, ev); err != nil {
			log.Warn().Err(err).
				Str("event", string(ev.Type)).
				Str("appointment", ev.AppointmentCode).
				Msg("notification failed")
		}
	}
}

func (s *Service) logEvent(ctx context.Context, ev notify.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event", string(ev.Type)).Msg("failed to marshal event payload")
		data = nil
	}

	entry := EventLog{
		EventType:       string(ev.Type),
		AppointmentCode: ev.AppointmentCode,
		QueueCode:       ev.QueueCode,
		Actor:           ev.Actor,
		Payload:         data,
		CreatedAt:       ev.OccurredAt,
	}

	if err := s.repo.InsertEvent(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("event", string(ev.Type)).
			Str("appointment", ev.AppointmentCode).
			Msg("failed to insert event log")
	}
}
