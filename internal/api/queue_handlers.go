package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mediqueue/dental-scheduling/internal/clock"
	"github.com/mediqueue/dental-scheduling/internal/queue"
)

func (h *Handler) listQueue(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}
	dentist := r.URL.Query().Get("dentist_code")

	entries, err := h.svc.ListQueue(r.Context(), dentist, date, h.clock.Now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []queue.Entry{}
	}
	writeJSON(w, http.StatusOK, QueueResponse{Date: date.String(), Dentist: dentist, Entries: entries})
}

func (h *Handler) nextPatient(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}
	dentist := r.URL.Query().Get("dentist_code")
	if dentist == "" {
		writeError(w, http.StatusBadRequest, "missing_dentist_code", "dentist_code is required")
		return
	}

	next, err := h.svc.NextPatient(r.Context(), dentist, date, h.clock.Now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NextPatientResponse{Next: next})
}

func (h *Handler) ongoing(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}

	entries, err := h.svc.Ongoing(r.Context(), date, h.clock.Now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []queue.Entry{}
	}
	writeJSON(w, http.StatusOK, QueueResponse{Date: date.String(), Entries: entries})
}

func (h *Handler) estimateWait(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}
	dentist := r.URL.Query().Get("dentist_code")
	if dentist == "" {
		writeError(w, http.StatusBadRequest, "missing_dentist_code", "dentist_code is required")
		return
	}

	est, err := h.svc.EstimateWait(r.Context(), dentist, date, h.clock.Now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (h *Handler) setQueueStatus(w http.ResponseWriter, r *http.Request) {
	var req QueueStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	entry, err := h.svc.SetQueueStatus(r.Context(), chi.URLParam(r, "code"), normalizeQueueStatus(req.Status), req.ActorCode, h.clock.Now())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) migrateToday(w http.ResponseWriter, r *http.Request) {
	var req MigrateRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	now := h.clock.Now()
	date := h.clock.DateOf(now)
	if req.Date != "" {
		d, err := clock.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		date = d
	}

	n, err := h.svc.MigrateToday(r.Context(), date, now)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MigrateResponse{Date: date.String(), Migrated: n})
}
