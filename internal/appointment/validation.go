package appointment

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func structErrors(ve *ValidationError, s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	for _, fe := range fieldErrs {
		ve.add(fe.Field(), fieldMessage(fe))
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	default:
		return "is invalid"
	}
}

// validateCreate checks the request shape and the booking identity rule: a
// registered patient code, or a guest with name, email and phone.
func validateCreate(req CreateRequest) error {
	ve := &ValidationError{}
	if err := structErrors(ve, req); err != nil {
		return err
	}

	switch {
	case req.PatientCode != "" && req.Guest != nil:
		ve.add("guest", "must be empty when patient_code is set")
	case req.PatientCode == "" && req.Guest == nil:
		ve.add("patient_code", "patient_code or guest details are required")
	case req.Guest != nil:
		g := req.Guest
		if strings.TrimSpace(g.Name) == "" {
			ve.add("guest.name", "is required")
		}
		if strings.TrimSpace(g.Email) == "" {
			ve.add("guest.email", "is required")
		} else if validate.Var(strings.TrimSpace(g.Email), "email") != nil {
			ve.add("guest.email", "must be a valid email address")
		}
		if strings.TrimSpace(g.Phone) == "" {
			ve.add("guest.phone", "is required")
		} else if len(strings.TrimPrefix(normalizePhone(g.Phone), "+")) < 7 {
			ve.add("guest.phone", "must contain at least 7 digits")
		}
	}

	if req.OverrideLeave && req.Origin != OriginReceptionist {
		ve.add("override_leave", "only receptionists may book over leave")
	}

	return ve.orNil()
}

func validateReschedule(req RescheduleRequest) error {
	ve := &ValidationError{}
	if err := structErrors(ve, req); err != nil {
		return err
	}
	return ve.orNil()
}

func normalizeGuest(g *Guest) *Guest {
	if g == nil {
		return nil
	}
	return &Guest{
		Name:  strings.TrimSpace(g.Name),
		Email: normalizeEmail(g.Email),
		Phone: normalizePhone(g.Phone),
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizePhone keeps digits and a leading plus sign.
func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
