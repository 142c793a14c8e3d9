// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/repository"
	"github.com/khushigoyal02/EMS-back/internal/telemetry"
)

var tracer = telemetry.Tracer("service")

// ErrUnauthenticated is returned when no identity accompanies the request.
var ErrUnauthenticated = errors.New("authentication required")

// ErrForbidden is returned when the caller may not act on a resource.
var ErrForbidden = errors.New("you are not allowed to perform this action")

// ValidationError reports bad input. Handlers turn it into a 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ─── Stores ──────────────────────────────────────────────────────────────────

// AccountStore is the account persistence the services need.
type AccountStore interface {
	Create(ctx context.Context, a model.Account) error
	GetByUID(ctx context.Context, uid string) (model.Account, error)
	GetByID(ctx context.Context, id string) (model.Account, error)
	ListByRole(ctx context.Context, role model.Role) ([]model.Account, error)
	CountByRole(ctx context.Context, role model.Role) (int, error)
}

// ServiceStore is the vendor catalog persistence.
type ServiceStore interface {
	Create(ctx context.Context, s model.Service) error
	Get(ctx context.Context, id string) (model.Service, error)
	ListAll(ctx context.Context) ([]model.Service, error)
	ListByVendor(ctx context.Context, vendorID string) ([]model.Service, error)
	Update(ctx context.Context, s model.Service) error
	Delete(ctx context.Context, id, vendorID string) error
}

// EventStore is the event persistence.
type EventStore interface {
	CreateWithBookings(ctx context.Context, e model.Event, requests []model.BookingRequest) error
	Get(ctx context.Context, id string) (model.Event, error)
	ListAdmin(ctx context.Context) ([]model.AdminEventView, error)
	ListByCustomer(ctx context.Context, customerID string) ([]model.Event, error)
}

// BookingStore is the booking, completed booking and review persistence.
type BookingStore interface {
	Get(ctx context.Context, id string) (model.BookingRequest, error)
	ListForCustomerEvent(ctx context.Context, eventID string) ([]model.CustomerBookingView, error)
	ListVendorActive(ctx context.Context, vendorID string) ([]model.VendorBookingView, error)
	ChangeStatus(ctx context.Context, id string, to model.BookingStatus, now time.Time, check func(model.BookingRequest) error) (model.BookingRequest, *model.CompletedBooking, error)
	GetCompleted(ctx context.Context, id string) (model.CompletedBooking, error)
	ListCompletedByVendor(ctx context.Context, vendorID string) ([]model.CompletedBookingView, error)
	ListCompletedByEvent(ctx context.Context, eventID string) ([]model.CompletedBookingView, error)
	ListAllCompleted(ctx context.Context) ([]model.CompletedBookingView, error)
	MonthlyStats(ctx context.Context, vendorID string) ([]model.MonthlyStat, error)
	ReservePayout(ctx context.Context, id string) (model.CompletedBooking, error)
	RecordPayoutReference(ctx context.Context, id, reference string) error
	ReleasePayout(ctx context.Context, id string) error
	FinishPayout(ctx context.Context, id string, now time.Time, ledger model.Transaction) (model.CompletedBooking, error)
	SubmitReview(ctx context.Context, review model.VendorReview) error
	ListReviewsByVendor(ctx context.Context, vendorID string) ([]model.ReviewView, error)
}

// GuestStore is the guest list persistence.
type GuestStore interface {
	Replace(ctx context.Context, eventID string, guests []model.Guest, now time.Time) (model.GuestList, error)
	Get(ctx context.Context, eventID string) (model.GuestList, error)
	FindByEmailIndex(ctx context.Context, eventID string, index []byte) (model.Guest, error)
	RecordRSVP(ctx context.Context, guestID string, status model.RSVPStatus, at time.Time) (bool, error)
	MarkInvited(ctx context.Context, guestID string, at time.Time) error
	MarkInvitesSent(ctx context.Context, listID string) (bool, error)
	LockForSending(ctx context.Context, listID string) (func(), error)
}

// TransactionStore is the ledger persistence.
type TransactionStore interface {
	Create(ctx context.Context, t model.Transaction) error
	List(ctx context.Context, filter model.TransactionFilter) (model.TransactionPage, error)
	ListAll(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, error)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// isValidEmail does a basic structural check.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".") && !strings.ContainsAny(email, " \t\r\n")
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// accountFor loads the caller's account and checks its role.
func accountFor(ctx context.Context, accounts AccountStore, uid string, role model.Role) (model.Account, error) {
	if uid == "" {
		return model.Account{}, ErrUnauthenticated
	}
	a, err := accounts.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Account{}, ErrForbidden
		}
		return model.Account{}, fmt.Errorf("load account: %w", err)
	}
	if a.Role != role {
		return model.Account{}, ErrForbidden
	}
	return a, nil
}
