package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/khushigoyal02/EMS-back/internal/model"
)

// ListVendorBookings handles GET /vendor/bookings
// Returns the vendor's active booking requests with their events.
func (h *Handler) ListVendorBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Bookings.ListVendorBookings(r.Context(), uid(r))
	if err != nil {
		h.fail(w, r, err, "failed to list bookings")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(bookings))
}

// ChangeBookingStatus handles PATCH /vendor/bookings/{id}
// Completed moves the request into the completed bookings.
func (h *Handler) ChangeBookingStatus(w http.ResponseWriter, r *http.Request) {
	var req model.StatusChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.Bookings.ChangeStatus(r.Context(), uid(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.fail(w, r, err, "failed to update booking status")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListCompletedBookings handles GET /vendor/completed-bookings
func (h *Handler) ListCompletedBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Bookings.ListCompleted(r.Context(), uid(r))
	if err != nil {
		h.fail(w, r, err, "failed to list completed bookings")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(bookings))
}

// MonthlyStats handles GET /vendor/stats
func (h *Handler) MonthlyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Bookings.MonthlyStats(r.Context(), uid(r))
	if err != nil {
		h.fail(w, r, err, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(stats))
}

// ListReviews handles GET /vendor/reviews
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.Bookings.ListReviews(r.Context(), uid(r))
	if err != nil {
		h.fail(w, r, err, "failed to list reviews")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(reviews))
}

// SubmitReview handles POST /reviews
// A completed booking can be reviewed once.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req model.ReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	review, err := h.Bookings.SubmitReview(r.Context(), uid(r), req)
	if err != nil {
		h.fail(w, r, err, "failed to submit review")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Review submitted successfully",
		"review":  review,
	})
}

// ─── Payments ─────────────────────────────────────────────────────────────────

// ListVendorPayments handles GET /payments/pending
func (h *Handler) ListVendorPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Payments.ListVendorPayments(r.Context(), uid(r))
	if err != nil {
		h.fail(w, r, err, "failed to list vendor payments")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(payments))
}

// PayVendor handles POST /payments/{id}/pay
// Each completed booking is paid at most once.
func (h *Handler) PayVendor(w http.ResponseWriter, r *http.Request) {
	res, err := h.Payments.Pay(r.Context(), uid(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "failed to pay vendor")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ReconcilePayout handles POST /payments/{id}/reconcile
func (h *Handler) ReconcilePayout(w http.ResponseWriter, r *http.Request) {
	var req model.ReconcilePayoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := h.Payments.Reconcile(r.Context(), uid(r), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, err, "failed to reconcile payout")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
