package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/khushigoyal02/EMS-back/internal/auth"
	"github.com/khushigoyal02/EMS-back/internal/calendar"
	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/repository"
)

// CreateAccount handles POST /users, /vendors and /admins.
// The account is bound to the token subject.
func (h *Handler) CreateAccount(role model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.CreateAccountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		id, _ := auth.FromContext(r.Context())
		account, err := h.Accounts.Create(r.Context(), id, role, req)
		if err != nil {
			h.fail(w, r, err, "failed to create account")
			return
		}

		writeJSON(w, http.StatusCreated, account)
	}
}

// ListAccounts handles GET /users and /vendors.
func (h *Handler) ListAccounts(role model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := h.Accounts.List(r.Context(), uid(r), role)
		if err != nil {
			h.fail(w, r, err, "failed to list accounts")
			return
		}
		writeJSON(w, http.StatusOK, nonNil(accounts))
	}
}

// MyRole handles GET /me/role
func (h *Handler) MyRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.Accounts.Role(r.Context(), uid(r))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.fail(w, r, err, "failed to look up role")
		return
	}
	writeJSON(w, http.StatusOK, map[string]model.Role{"role": role})
}

// ─── Google Calendar linking ──────────────────────────────────────────────────

// GoogleAuth handles GET /auth/google
// Returns the Google consent page URL for the caller. The state in it is
// signed and expires.
func (h *Handler) GoogleAuth(w http.ResponseWriter, r *http.Request) {
	if h.Calendar == nil {
		writeError(w, http.StatusServiceUnavailable, "google calendar is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": h.Calendar.AuthURL(uid(r))})
}

// GoogleCallback handles GET /auth/google/callback
// Stores the caller's tokens and sends the browser to their dashboard.
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.Calendar == nil {
		writeError(w, http.StatusServiceUnavailable, "google calendar is not configured")
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, "google authorization failed: "+e)
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "code and state are required")
		return
	}

	id, err := h.Calendar.Exchange(r.Context(), state, code)
	if errors.Is(err, calendar.ErrInvalidState) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Msg("google calendar exchange")
		writeError(w, http.StatusInternalServerError, "failed to link google calendar")
		return
	}

	role, err := h.Accounts.Role(r.Context(), id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.fail(w, r, err, "failed to look up role")
		return
	}
	http.Redirect(w, r, dashboardURL(h.FrontendURL, role), http.StatusFound)
}

func dashboardURL(frontend string, role model.Role) string {
	base := strings.TrimRight(frontend, "/")
	switch role {
	case model.RoleCustomer, model.RoleVendor, model.RoleAdmin:
		return base + "/" + string(role) + "/dashboard?role=" + url.QueryEscape(string(role))
	}
	return base + "/"
}
