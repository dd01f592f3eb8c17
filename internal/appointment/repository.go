package appointment

import (
	"context"
	"time"

	"github.com/mediqueue/dental-scheduling/internal/conflict"
	"github.com/mediqueue/dental-scheduling/internal/queue"
)

// Store contains all persistence operations the service needs. Conditional
// updates return ErrInvalidStateTransition when the row moved on meanwhile.
type Store interface {
	NextAppointmentCode(ctx context.Context) (string, error)
	NextQueueCode(ctx context.Context) (string, error)

	InsertAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, code string) (*Appointment, error)
	// UpdateAppointment writes a only if its stored status still equals expected.
	UpdateAppointment(ctx context.Context, a *Appointment, expected AppointmentStatus) error
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)
	FindByGuestContact(ctx context.Context, email, phone string) ([]Appointment, error)
	FindDuePending(ctx context.Context, requestedBefore time.Time, limit int) ([]Appointment, error)

	// ListOccupancy returns non-cancelled appointments and queue entries of the
	// dentist intersecting [from, to).
	ListOccupancy(ctx context.Context, dentistCode string, from, to time.Time) ([]conflict.Interval, error)

	InsertQueueEntry(ctx context.Context, e *queue.Entry) error
	GetQueueEntry(ctx context.Context, code string) (*queue.Entry, error)
	GetQueueEntryByAppointment(ctx context.Context, appointmentCode string) (*queue.Entry, error)
	UpdateQueueEntry(ctx context.Context, e *queue.Entry, expected queue.Status) error
	ListQueue(ctx context.Context, f QueueFilter) ([]queue.Entry, error)
	SetQueuePositions(ctx context.Context, entries []queue.Entry) error

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Repository is a Store that can run a unit of work atomically. The Store
// handed to fn is bound to the transaction; nothing persists if fn fails.
type Repository interface {
	Store
	Tx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
