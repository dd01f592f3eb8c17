package appointment

import (
	"time"

	"github.com/mediqueue/dental-scheduling/internal/availability"
	"github.com/mediqueue/dental-scheduling/internal/clock"
	"github.com/mediqueue/dental-scheduling/internal/conflict"
	"github.com/mediqueue/dental-scheduling/internal/queue"
	"github.com/mediqueue/dental-scheduling/internal/slot"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func canTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Origin string

const (
	OriginOnline       Origin = "online"
	OriginReceptionist Origin = "receptionist"
)

func (o Origin) Valid() bool {
	return o == OriginOnline || o == OriginReceptionist
}

// SystemActor is recorded when the engine itself moves an appointment.
const SystemActor = "system"

// Guest is the contact snapshot of an unregistered booker.
type Guest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Appointment struct {
	Code        string `json:"code"`
	PatientCode string `json:"patient_code,omitempty"`
	Guest       *Guest `json:"guest,omitempty"`
	// RecipientName is who receives treatment when booking for someone else.
	RecipientName   string            `json:"recipient_name,omitempty"`
	DentistCode     string            `json:"dentist_code"`
	AppointmentDate time.Time         `json:"appointment_date"`
	DurationMinutes int               `json:"duration_minutes"`
	Status          AppointmentStatus `json:"status"`
	Origin          Origin            `json:"origin"`
	Reason          string            `json:"reason,omitempty"`
	RequestedAt     time.Time         `json:"requested_at"`
	CreatedByCode   string            `json:"created_by_code,omitempty"`
	AcceptedByCode  string            `json:"accepted_by_code,omitempty"`
	AcceptedAt      *time.Time        `json:"accepted_at,omitempty"`
	CancelledByCode string            `json:"cancelled_by_code,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason    string            `json:"cancel_reason,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (a Appointment) End() time.Time {
	return a.AppointmentDate.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

func (a Appointment) Interval() conflict.Interval {
	return conflict.Interval{Start: a.AppointmentDate, End: a.End(), AppointmentCode: a.Code}
}

// IdentityKey is the booking account: the registered patient code, or the
// guest's contact details. RecipientName never takes part in it.
func (a Appointment) IdentityKey() string {
	if a.PatientCode != "" {
		return "patient:" + a.PatientCode
	}
	if a.Guest != nil {
		return "guest:" + normalizeEmail(a.Guest.Email) + "|" + normalizePhone(a.Guest.Phone)
	}
	return ""
}

// dueForAutoConfirm reports whether a pending booking has waited out delay at now.
func (a Appointment) dueForAutoConfirm(now time.Time, delay time.Duration) bool {
	return a.Status == StatusPending && !now.Before(a.RequestedAt.Add(delay))
}

type EventLog struct {
	ID              int64
	EventType       string
	AppointmentCode string
	QueueCode       string
	Actor           string
	Payload         []byte
	CreatedAt       time.Time
}

type AppointmentDetail struct {
	Appointment
	PatientName string       `json:"patient_name,omitempty"`
	DentistName string       `json:"dentist_name,omitempty"`
	Queue       *queue.Entry `json:"queue,omitempty"`
}

// CreateRequest is a booking attempt. Exactly one of PatientCode or Guest
// identifies the booking account.
type CreateRequest struct {
	PatientCode     string    `json:"patient_code" validate:"omitempty,max=64"`
	Guest           *Guest    `json:"guest" validate:"omitempty"`
	RecipientName   string    `json:"recipient_name" validate:"omitempty,max=128"`
	DentistCode     string    `json:"dentist_code" validate:"required,max=64"`
	Start           time.Time `json:"start" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"omitempty,min=5,max=480"`
	Origin          Origin    `json:"origin" validate:"required,oneof=online receptionist"`
	ActorCode       string    `json:"actor_code" validate:"omitempty,max=64"`
	Reason          string    `json:"reason" validate:"omitempty,max=500"`
	// OverrideLeave lets a receptionist book an emergency visit on a leave day.
	OverrideLeave bool `json:"override_leave"`
}

type RescheduleRequest struct {
	DentistCode     string    `json:"dentist_code" validate:"omitempty,max=64"`
	Start           time.Time `json:"start" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"omitempty,min=5,max=480"`
	ActorCode       string    `json:"actor_code" validate:"omitempty,max=64"`
}

type ListFilter struct {
	DentistCode string
	From        time.Time
	To          time.Time
	Statuses    []AppointmentStatus
	Limit       int
	Offset      int
}

type QueueFilter struct {
	DentistCode string
	Date        clock.Date
}

type DaySchedule struct {
	DentistCode string                  `json:"dentist_code"`
	Date        clock.Date              `json:"date"`
	StepMinutes int                     `json:"step_minutes"`
	Resolution  availability.Resolution `json:"availability"`
	Slots       []slot.Slot             `json:"slots"`
	Counts      map[slot.Status]int     `json:"counts"`
}
