package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/notify"
	"github.com/khushigoyal02/EMS-back/internal/service"
)

// CreateEvent handles POST /events
// Creates the event and one booking request per selected service.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.Events.CreateEvent(r.Context(), uid(r), req)
	if err != nil {
		h.fail(w, r, err, "failed to create event")
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// ListEvents handles GET /events
// Returns every event with customer and vendor names.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Events.ListAll(r.Context(), uid(r))
	if err != nil {
		h.fail(w, r, err, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

// ListMyEvents handles GET /events/mine
func (h *Handler) ListMyEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Events.ListCustomerEvents(r.Context(), uid(r))
	if err != nil {
		h.fail(w, r, err, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

// ─── Guests ───────────────────────────────────────────────────────────────────

// UploadGuests handles POST /events/{id}/guests
// Replaces the event's guest list.
func (h *Handler) UploadGuests(w http.ResponseWriter, r *http.Request) {
	var req model.UploadGuestsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	list, err := h.Guests.Upload(r.Context(), uid(r), chi.URLParam(r, "id"), req.Guests)
	if err != nil {
		h.fail(w, r, err, "failed to save guest list")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":   "Guest list saved successfully",
		"guestList": list,
		"count":     len(req.Guests),
	})
}

// SendInvitations handles POST /events/{id}/invitations
// A partial failure is reported with 207 and may be retried.
func (h *Handler) SendInvitations(w http.ResponseWriter, r *http.Request) {
	report, err := h.Guests.SendInvitationsAs(r.Context(), uid(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "failed to send invitations")
		return
	}
	if report.Failed == nil {
		report.Failed = []model.InvitationFailure{}
	}

	status := http.StatusOK
	if !report.InvitesSent {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, report)
}

// RSVP handles GET /rsvp/{eventID}/{guestID}/{response}
// Guests reach it from their invitation, so every outcome is an HTML page.
func (h *Handler) RSVP(w http.ResponseWriter, r *http.Request) {
	res, err := h.Guests.HandleRSVP(r.Context(),
		chi.URLParam(r, "eventID"),
		chi.URLParam(r, "guestID"),
		chi.URLParam(r, "response"),
	)
	if err != nil {
		switch {
		case service.IsValidation(err):
			http.Error(w, "Invalid RSVP link.", http.StatusBadRequest)
		case isNotFound(err):
			http.Error(w, "Guest or event not found.", http.StatusNotFound)
		default:
			h.Log.Error().Err(err).Msg("rsvp")
			http.Error(w, "Something went wrong. Please try again later.", http.StatusInternalServerError)
		}
		return
	}

	var (
		page string
		data notify.RSVPData
	)
	switch res.Outcome {
	case model.RSVPClosed:
		page = notify.TemplateRSVPClosed
		data.Deadline = res.Deadline.Format("January 2, 2006")
	case model.RSVPAlreadyResponded:
		page = notify.TemplateRSVPAlready
		data.Status = string(res.Status)
	default:
		page = notify.TemplateRSVPRecorded
		data.Status = string(res.Status)
	}

	msg, err := h.Pages.Render(page, data)
	if err != nil {
		h.Log.Error().Err(err).Str("page", page).Msg("render rsvp page")
		http.Error(w, "Something went wrong. Please try again later.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(msg.HTML))
}
