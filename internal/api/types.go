package api

import (
	"strings"
	"time"

	"github.com/mediqueue/dental-scheduling/internal/appointment"
	"github.com/mediqueue/dental-scheduling/internal/queue"
)

type GuestRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type CreateAppointmentRequest struct {
	PatientCode     string        `json:"patient_code"`
	Guest           *GuestRequest `json:"guest"`
	RecipientName   string        `json:"recipient_name"`
	DentistCode     string        `json:"dentist_code"`
	Start           time.Time     `json:"start"`
	DurationMinutes int           `json:"duration_minutes"`
	Origin          string        `json:"origin"`
	ActorCode       string        `json:"actor_code"`
	Reason          string        `json:"reason"`
	OverrideLeave   bool          `json:"override_leave"`
}

func (r CreateAppointmentRequest) toDomain() appointment.CreateRequest {
	req := appointment.CreateRequest{
		PatientCode:     strings.TrimSpace(r.PatientCode),
		RecipientName:   strings.TrimSpace(r.RecipientName),
		DentistCode:     strings.TrimSpace(r.DentistCode),
		Start:           r.Start,
		DurationMinutes: r.DurationMinutes,
		Origin:          normalizeOrigin(r.Origin),
		ActorCode:       strings.TrimSpace(r.ActorCode),
		Reason:          r.Reason,
		OverrideLeave:   r.OverrideLeave,
	}
	if r.Guest != nil {
		req.Guest = &appointment.Guest{Name: r.Guest.Name, Email: r.Guest.Email, Phone: r.Guest.Phone}
	}
	return req
}

type ActorRequest struct {
	ActorCode string `json:"actor_code"`
}

type CancelRequest struct {
	ActorCode string `json:"actor_code"`
	Reason    string `json:"reason"`
}

type RescheduleRequest struct {
	DentistCode     string    `json:"dentist_code"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	ActorCode       string    `json:"actor_code"`
}

type QueueStatusRequest struct {
	Status    string `json:"status"`
	ActorCode string `json:"actor_code"`
}

type MigrateRequest struct {
	Date string `json:"date"`
}

type MigrateResponse struct {
	Date     string `json:"date"`
	Migrated int    `json:"migrated"`
}

type AppointmentListResponse struct {
	Items  []appointment.Appointment `json:"items"`
	Limit  int                       `json:"limit"`
	Offset int                       `json:"offset"`
}

type QueueResponse struct {
	Date    string        `json:"date"`
	Dentist string        `json:"dentist_code,omitempty"`
	Entries []queue.Entry `json:"entries"`
}

type NextPatientResponse struct {
	Next *queue.Entry `json:"next"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// normalizeStatusToken turns "No-Show" or "in treatment" into "no_show" and
// "in_treatment". Only the HTTP edge accepts the loose spellings.
func normalizeStatusToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

func normalizeQueueStatus(s string) queue.Status {
	return queue.Status(normalizeStatusToken(s))
}

func normalizeAppointmentStatus(s string) appointment.AppointmentStatus {
	return appointment.AppointmentStatus(normalizeStatusToken(s))
}

func normalizeOrigin(s string) appointment.Origin {
	switch normalizeStatusToken(s) {
	case "", "online", "web":
		return appointment.OriginOnline
	case "receptionist", "walk_in", "front_desk":
		return appointment.OriginReceptionist
	default:
		return appointment.Origin(s)
	}
}
