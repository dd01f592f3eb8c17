package appointment

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrSlotUnavailable        = errors.New("slot unavailable")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")

	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrQueueEntryNotFound  = fmt.Errorf("queue entry %w", ErrNotFound)
)

// ValidationError carries field-level messages. errors.Is(err, ErrValidation) holds.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func slotUnavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSlotUnavailable, fmt.Sprintf(format, args...))
}

func invalidTransition(entity string, from, to any) error {
	return fmt.Errorf("%w: %s %v -> %v", ErrInvalidStateTransition, entity, from, to)
}
