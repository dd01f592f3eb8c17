package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mediqueue/dental-scheduling/internal/appointment"
	"github.com/mediqueue/dental-scheduling/internal/clock"
)

type Handler struct {
	svc   *appointment.Service
	clock clock.Policy
}

func NewHandler(svc *appointment.Service) *Handler {
	return &Handler{svc: svc, clock: svc.Clock()}
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	date, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}

	step := 0
	if raw := r.URL.Query().Get("step"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_step", "step must be a positive number of minutes")
			return
		}
		step = n
	}

	sched, err := h.svc.GetDaySchedule(r.Context(), chi.URLParam(r, "code"), date, step, now)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	appt, err := h.svc.CreateAppointment(r.Context(), req.toDomain(), h.clock.Now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetAppointment(r.Context(), chi.URLParam(r, "code"), h.clock.Now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := appointment.ListFilter{DentistCode: q.Get("dentist_code")}

	if raw := q.Get("from"); raw != "" {
		d, err := clock.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "from must be YYYY-MM-DD")
			return
		}
		f.From = h.clock.StartOfDay(d)
	}
	if raw := q.Get("to"); raw != "" {
		d, err := clock.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "to must be YYYY-MM-DD")
			return
		}
		f.To = h.clock.EndOfDay(d)
	}
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := normalizeAppointmentStatus(part)
			if !st.Valid() {
				writeError(w, http.StatusBadRequest, "invalid_status", "unknown appointment status "+strconv.Quote(part))
				return
			}
			f.Statuses = append(f.Statuses, st)
		}
	}

	var err error
	if f.Limit, err = intParam(q.Get("limit"), 50); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a number")
		return
	}
	if f.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be a number")
		return
	}

	items, err := h.svc.ListAppointments(r.Context(), f, h.clock.Now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []appointment.Appointment{}
	}
	writeJSON(w, http.StatusOK, AppointmentListResponse{Items: items, Limit: f.Limit, Offset: f.Offset})
}

func (h *Handler) lookupAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.svc.LookupByGuestContact(r.Context(), q.Get("email"), q.Get("phone"), h.clock.Now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []appointment.Appointment{}
	}
	writeJSON(w, http.StatusOK, AppointmentListResponse{Items: items, Limit: len(items)})
}

func (h *Handler) confirmAppointment(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	appt, err := h.svc.ConfirmAppointment(r.Context(), chi.URLParam(r, "code"), req.ActorCode, h.clock.Now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	appt, err := h.svc.CancelAppointment(r.Context(), chi.URLParam(r, "code"), req.ActorCode, req.Reason, h.clock.Now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	var req RescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	appt, err := h.svc.RescheduleAppointment(r.Context(), chi.URLParam(r, "code"), appointment.RescheduleRequest{
		DentistCode:     strings.TrimSpace(req.DentistCode),
		Start:           req.Start,
		DurationMinutes: req.DurationMinutes,
		ActorCode:       req.ActorCode,
	}, h.clock.Now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) completeAppointment(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	appt, err := h.svc.CompleteAppointment(r.Context(), chi.URLParam(r, "code"), req.ActorCode, h.clock.Now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// dateParam reads a YYYY-MM-DD query parameter, defaulting to today.
func (h *Handler) dateParam(w http.ResponseWriter, r *http.Request, name string) (clock.Date, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return h.clock.DateOf(h.clock.Now()), true
	}
	d, err := clock.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", name+" must be YYYY-MM-DD")
		return clock.Date{}, false
	}
	return d, true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// decodeOptional accepts an empty body for actions whose fields are all optional.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSON(r, v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}
