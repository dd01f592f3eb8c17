// Package notify carries scheduling events to whoever delivers them. Delivery
// is fire-and-forget: a failing sink never undoes a scheduling transition.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventBookingCreated       EventType = "booking.created"
	EventAppointmentConfirmed EventType = "appointment.confirmed"
	EventAutoConfirmed        EventType = "appointment.auto_confirmed"
	EventAppointmentCancelled EventType = "appointment.cancelled"
	EventRescheduled          EventType = "appointment.rescheduled"
	EventAppointmentCompleted EventType = "appointment.completed"
	EventQueueStatusChanged   EventType = "queue.status_changed"
)

type Event struct {
	ID              string         `json:"id"`
	Type            EventType      `json:"type"`
	AppointmentCode string         `json:"appointment_code,omitempty"`
	QueueCode       string         `json:"queue_code,omitempty"`
	DentistCode     string         `json:"dentist_code,omitempty"`
	PatientCode     string         `json:"patient_code,omitempty"`
	GuestEmail      string         `json:"guest_email,omitempty"`
	GuestPhone      string         `json:"guest_phone,omitempty"`
	Status          string         `json:"status,omitempty"`
	Actor           string         `json:"actor,omitempty"`
	OccurredAt      time.Time      `json:"occurred_at"`
	Details         map[string]any `json:"details,omitempty"`
}

type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// LogSink writes events to the structured log. Used when no broker is configured.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, ev Event) error {
	log.Info().
		Str("event", string(ev.Type)).
		Str("appointment", ev.AppointmentCode).
		Str("queue", ev.QueueCode).
		Str("dentist", ev.DentistCode).
		Str("status", ev.Status).
		Str("actor", ev.Actor).
		Time("occurred_at", ev.OccurredAt).
		Msg("scheduling event")
	return nil
}

// Multi fans an event out to every sink and returns the first error.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var first error
	for _, s := range m {
		if err := s.Notify(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps events in memory. Handy for tests and the simulator.
type Recorder struct {
	ch chan Event
}

func NewRecorder(buffer int) *Recorder {
	return &Recorder{ch: make(chan Event, buffer)}
}

func (r *Recorder) Notify(_ context.Context, ev Event) error {
	select {
	case r.ch <- ev:
	default:
	}
	return nil
}

// Drain returns everything recorded so far.
func (r *Recorder) Drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-r.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}
