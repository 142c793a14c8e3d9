// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/khushigoyal02/EMS-back/internal/auth"
	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/notify"
	"github.com/khushigoyal02/EMS-back/internal/repository"
	"github.com/khushigoyal02/EMS-back/internal/service"
)

// ─── Service contracts ────────────────────────────────────────────────────────

// Accounts manages caller accounts.
type Accounts interface {
	Create(ctx context.Context, id auth.Identity, role model.Role, req model.CreateAccountRequest) (model.Account, error)
	Role(ctx context.Context, uid string) (model.Role, error)
	List(ctx context.Context, uid string, role model.Role) ([]model.Account, error)
}

// Catalog manages vendor services.
type Catalog interface {
	Add(ctx context.Context, uid string, req model.ServiceRequest) (model.Service, error)
	ListAll(ctx context.Context) ([]model.Service, error)
	ListMine(ctx context.Context, uid string) ([]model.Service, error)
	Update(ctx context.Context, uid, id string, req model.ServiceRequest) error
	Delete(ctx context.Context, uid, id string) error
}

// Events creates and lists events.
type Events interface {
	CreateEvent(ctx context.Context, uid string, req model.CreateEventRequest) (model.CreateEventResponse, error)
	ListAll(ctx context.Context, uid string) ([]model.AdminEventView, error)
	ListCustomerEvents(ctx context.Context, uid string) ([]model.CustomerEventView, error)
}

// Guests manages guest lists, invitations and RSVPs.
type Guests interface {
	Upload(ctx context.Context, uid, eventID string, guests []model.GuestInput) (model.GuestList, error)
	SendInvitationsAs(ctx context.Context, uid, eventID string) (model.InvitationReport, error)
	HandleRSVP(ctx context.Context, eventID, encodedEmail, response string) (model.RSVPResult, error)
}

// Bookings drives vendor bookings and reviews.
type Bookings interface {
	ChangeStatus(ctx context.Context, uid, bookingID, status string) (model.StatusChangeResult, error)
	ListVendorBookings(ctx context.Context, uid string) ([]model.VendorBookingView, error)
	ListCompleted(ctx context.Context, uid string) ([]model.CompletedBookingView, error)
	MonthlyStats(ctx context.Context, uid string) ([]model.MonthlyStat, error)
	ListReviews(ctx context.Context, uid string) ([]model.ReviewView, error)
	SubmitReview(ctx context.Context, uid string, req model.ReviewRequest) (model.VendorReview, error)
}

// Payments pays vendors for completed bookings.
type Payments interface {
	ListVendorPayments(ctx context.Context, uid string) ([]model.CompletedBookingView, error)
	Pay(ctx context.Context, uid, completedBookingID string) (model.PaymentResult, error)
	Reconcile(ctx context.Context, uid, completedBookingID string, req model.ReconcilePayoutRequest) (model.PaymentResult, error)
}

// Transactions is the admin ledger.
type Transactions interface {
	List(ctx context.Context, uid string, q model.TransactionQuery) (model.TransactionPage, error)
	ExportCSV(ctx context.Context, uid string, q model.TransactionQuery) (func(io.Writer) error, error)
	Create(ctx context.Context, uid string, req model.CreateTransactionRequest) (model.Transaction, error)
	ReceiptsArchive(ctx context.Context, uid, eventID string) (func(io.Writer) (int, error), error)
	ReceiptPath(ctx context.Context, uid, name string) (string, error)
}

// Calendar links Google Calendar accounts. Exchange verifies the OAuth state
// and returns the uid it was issued for.
type Calendar interface {
	AuthURL(uid string) string
	Exchange(ctx context.Context, state, code string) (string, error)
}

// Pages renders the HTML pages shown to guests.
type Pages interface {
	Render(name string, data any) (notify.Message, error)
}

// Deps groups the Handler collaborators. Calendar may be nil when Google
// Calendar is not configured.
type Deps struct {
	Accounts     Accounts
	Catalog      Catalog
	Events       Events
	Guests       Guests
	Bookings     Bookings
	Payments     Payments
	Transactions Transactions
	Calendar     Calendar
	Pages        Pages
	// FrontendURL is where the OAuth callback sends the browser afterwards.
	FrontendURL string
	Log         zerolog.Logger
}

// Handler holds all HTTP handlers for the Plannova API.
type Handler struct {
	Deps
}

// New constructs a Handler.
func New(d Deps) *Handler {
	return &Handler{Deps: d}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.MessageResponse{Message: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// uid returns the authenticated caller's uid, or "" on public routes.
func uid(r *http.Request) string {
	id, _ := auth.FromContext(r.Context())
	return id.UID
}

// nonNil keeps empty listings serialised as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

// fail maps a service error to a status code. Unexpected errors are logged
// and reported with the generic msg.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case service.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		if errors.Unwrap(err) == nil && err != repository.ErrNotFound {
			// A service-level not-found carries its own message.
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, repository.ErrAlreadyReviewed),
		errors.Is(err, repository.ErrAlreadyPaid),
		errors.Is(err, repository.ErrPayoutInProgress),
		errors.Is(err, repository.ErrInvitesAlreadySent),
		errors.Is(err, repository.ErrInvitationsInProgress),
		errors.Is(err, repository.ErrInvalidTransition),
		errors.Is(err, repository.ErrInUse):
		writeError(w, http.StatusConflict, conflictMessage(err))
	default:
		h.Log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg(msg)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

// conflictMessage returns the sentinel's message without any wrapping
// context.
func conflictMessage(err error) string {
	for _, s := range []error{
		repository.ErrDuplicate,
		repository.ErrAlreadyReviewed,
		repository.ErrAlreadyPaid,
		repository.ErrPayoutInProgress,
		repository.ErrInvitesAlreadySent,
		repository.ErrInvitationsInProgress,
		repository.ErrInvalidTransition,
		repository.ErrInUse,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return err.Error()
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
