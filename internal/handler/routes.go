package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/khushigoyal02/EMS-back/internal/model"
)

// Mount registers every route on r. authn guards the routes that need a
// caller identity; role checks happen in the services.
func (h *Handler) Mount(r chi.Router, authn func(http.Handler) http.Handler) {
	// Public
	r.Get("/health", HealthCheck)
	r.Get("/services", h.ListServices)
	r.Get("/rsvp/{eventID}/{guestID}/{response}", h.RSVP)
	r.Get("/auth/google/callback", h.GoogleCallback)

	r.Group(func(r chi.Router) {
		r.Use(authn)

		r.Post("/users", h.CreateAccount(model.RoleCustomer))
		r.Post("/vendors", h.CreateAccount(model.RoleVendor))
		r.Post("/admins", h.CreateAccount(model.RoleAdmin))
		r.Get("/users", h.ListAccounts(model.RoleCustomer))
		r.Get("/vendors", h.ListAccounts(model.RoleVendor))
		r.Get("/me/role", h.MyRole)
		r.Get("/auth/google", h.GoogleAuth)

		r.Post("/services", h.AddService)
		r.Get("/services/mine", h.ListMyServices)
		r.Put("/services/{id}", h.UpdateService)
		r.Delete("/services/{id}", h.DeleteService)

		r.Post("/events", h.CreateEvent)
		r.Get("/events", h.ListEvents)
		r.Get("/events/mine", h.ListMyEvents)
		r.Post("/events/{id}/guests", h.UploadGuests)
		r.Post("/events/{id}/invitations", h.SendInvitations)

		r.Get("/vendor/bookings", h.ListVendorBookings)
		r.Patch("/vendor/bookings/{id}", h.ChangeBookingStatus)
		r.Get("/vendor/completed-bookings", h.ListCompletedBookings)
		r.Get("/vendor/stats", h.MonthlyStats)
		r.Get("/vendor/reviews", h.ListReviews)

		r.Post("/reviews", h.SubmitReview)

		r.Get("/payments/pending", h.ListVendorPayments)
		r.Post("/payments/{id}/pay", h.PayVendor)
		r.Post("/payments/{id}/reconcile", h.ReconcilePayout)

		r.Get("/transactions", h.ListTransactions)
		r.Post("/transactions", h.CreateTransaction)
		r.Get("/transactions/receipts.zip", h.DownloadReceipts)
		r.Get("/transactions/receipts/{filename}", h.DownloadReceipt)
	})
}
