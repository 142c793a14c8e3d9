package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/khushigoyal02/EMS-back/internal/model"
)

// ListServices handles GET /services
// Returns every service with its vendor name.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.Catalog.ListAll(r.Context())
	if err != nil {
		h.fail(w, r, err, "failed to list services")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(services))
}

// AddService handles POST /services
func (h *Handler) AddService(w http.ResponseWriter, r *http.Request) {
	var req model.ServiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	svc, err := h.Catalog.Add(r.Context(), uid(r), req)
	if err != nil {
		h.fail(w, r, err, "failed to add service")
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

// ListMyServices handles GET /services/mine
func (h *Handler) ListMyServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.Catalog.ListMine(r.Context(), uid(r))
	if err != nil {
		h.fail(w, r, err, "failed to list services")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(services))
}

// UpdateService handles PUT /services/{id}
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var req model.ServiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.Catalog.Update(r.Context(), uid(r), chi.URLParam(r, "id"), req); err != nil {
		h.fail(w, r, err, "failed to update service")
		return
	}
	writeMessage(w, http.StatusOK, "Service updated successfully")
}

// DeleteService handles DELETE /services/{id}
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.Delete(r.Context(), uid(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err, "failed to delete service")
		return
	}
	writeMessage(w, http.StatusOK, "Service deleted successfully")
}
