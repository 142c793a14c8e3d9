package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/khushigoyal02/EMS-back/internal/clock"
	"github.com/khushigoyal02/EMS-back/internal/events"
	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/payout"
	"github.com/khushigoyal02/EMS-back/internal/repository"
)

// PaymentService pays vendors for completed bookings.
type PaymentService struct {
	accounts  AccountStore
	events    EventStore
	bookings  BookingStore
	gateway   payout.Gateway
	publisher events.Publisher
	clk       clock.Clock
	log       zerolog.Logger
}

// NewPaymentService constructs a PaymentService. A nil gateway records
// payouts for manual settlement.
func NewPaymentService(accounts AccountStore, evs EventStore, bookings BookingStore, gateway payout.Gateway, publisher events.Publisher, clk clock.Clock, log zerolog.Logger) *PaymentService {
	if gateway == nil {
		gateway = payout.Manual{}
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &PaymentService{
		accounts:  accounts,
		events:    evs,
		bookings:  bookings,
		gateway:   gateway,
		publisher: publisher,
		clk:       clk,
		log:       log,
	}
}

// ListVendorPayments returns every completed booking with its payment state.
func (s *PaymentService) ListVendorPayments(ctx context.Context, uid string) ([]model.CompletedBookingView, error) {
	if _, err := accountFor(ctx, s.accounts, uid, model.RoleAdmin); err != nil {
		return nil, err
	}
	views, err := s.bookings.ListAllCompleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vendor payments: %w", err)
	}
	return views, nil
}

// Pay transfers the amount of a completed booking to its vendor and records
// the payout in the ledger. The booking is reserved as paying before the
// transfer and the transfer reference is stored before the ledger write, so a
// retry after a partial failure finishes the payout without moving money
// twice.
func (s *PaymentService) Pay(ctx context.Context, uid, completedBookingID string) (model.PaymentResult, error) {
	ctx, span := tracer.Start(ctx, "PaymentService.Pay")
	defer span.End()

	if _, err := accountFor(ctx, s.accounts, uid, model.RoleAdmin); err != nil {
		return model.PaymentResult{}, err
	}
	if !isUUID(completedBookingID) {
		return model.PaymentResult{}, repository.ErrNotFound
	}
	span.SetAttributes(attribute.String("booking.id", completedBookingID), attribute.String("payout.method", s.gateway.Method()))

	res, err := s.pay(ctx, completedBookingID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrAlreadyPaid) ||
			errors.Is(err, repository.ErrPayoutInProgress) || IsValidation(err) {
			return model.PaymentResult{}, err
		}
		return model.PaymentResult{}, fmt.Errorf("pay vendor: %w", err)
	}
	return res, nil
}

func (s *PaymentService) pay(ctx context.Context, id string) (model.PaymentResult, error) {
	b, err := s.bookings.ReservePayout(ctx, id)
	if err != nil {
		return model.PaymentResult{}, err
	}
	log := s.log.With().Str("booking_id", b.ID).Logger()

	vendor, err := s.accounts.GetByID(ctx, b.VendorID)
	if err != nil {
		if b.PayoutReference == "" {
			s.release(ctx, b)
		}
		return model.PaymentResult{}, fmt.Errorf("load vendor: %w", err)
	}

	ref := b.PayoutReference
	if ref == "" {
		ref, err = s.gateway.Transfer(ctx, payout.Request{
			BookingID: b.ID,
			Recipient: vendor.PayoutRecipient,
			Amount:    b.Amount,
		})
		switch {
		case errors.Is(err, payout.ErrNoRecipient):
			s.release(ctx, b)
			return model.PaymentResult{}, invalid("vendor %s has no payout recipient", vendor.Name)
		case errors.Is(err, payout.ErrRejected):
			s.release(ctx, b)
			return model.PaymentResult{}, fmt.Errorf("transfer: %w", err)
		case err != nil:
			log.Error().Err(err).Msg("transfer outcome unknown, booking left paying")
			return model.PaymentResult{}, fmt.Errorf("transfer: %w", err)
		}
		if err := s.bookings.RecordPayoutReference(ctx, b.ID, ref); err != nil {
			log.Error().Err(err).Str("reference", ref).Msg("transfer made but reference not recorded")
			return model.PaymentResult{}, fmt.Errorf("record transfer %s: %w", ref, err)
		}
	} else {
		log.Info().Str("reference", ref).Msg("resuming payout with recorded transfer")
	}

	eventName := ""
	if ev, err := s.events.Get(ctx, b.EventID); err == nil {
		eventName = ev.Name
	}
	now := s.clk.Now()
	ledger := model.Transaction{
		ID:        uuid.New().String(),
		UserName:  vendor.Name,
		EventName: eventName,
		EventID:   b.EventID,
		Type:      model.TransactionTypeVendorPayout,
		Amount:    b.Amount,
		Method:    s.gateway.Method(),
		Status:    "completed",
		Reference: ref,
		CreatedAt: now,
	}
	booking, err := s.bookings.FinishPayout(ctx, b.ID, now, ledger)
	if err != nil {
		return model.PaymentResult{}, fmt.Errorf("finish payout %s: %w", ref, err)
	}

	if err := s.publisher.PublishJSON(ctx, events.PaymentPaid, booking); err != nil {
		log.Warn().Err(err).Msg("publish payment")
	}
	log.Info().Str("reference", booking.PayoutReference).Msg("vendor paid")

	return model.PaymentResult{
		Message:         "Payment successful and transaction recorded.",
		BookingID:       booking.ID,
		PaidAt:          booking.PaidAt,
		PayoutReference: booking.PayoutReference,
		TransactionID:   ledger.ID,
	}, nil
}

// release returns a reservation to pending after a transfer that certainly
// moved no money.
func (s *PaymentService) release(ctx context.Context, b model.CompletedBooking) {
	if err := s.bookings.ReleasePayout(ctx, b.ID); err != nil {
		s.log.Error().Err(err).Str("booking_id", b.ID).Msg("release payout reservation")
	}
}

// Reconcile settles a payout left in progress. With a reference the transfer
// is recorded and the payout finished; without one the booking returns to
// pending so it can be paid again.
func (s *PaymentService) Reconcile(ctx context.Context, uid, completedBookingID string, req model.ReconcilePayoutRequest) (model.PaymentResult, error) {
	if _, err := accountFor(ctx, s.accounts, uid, model.RoleAdmin); err != nil {
		return model.PaymentResult{}, err
	}
	if !isUUID(completedBookingID) {
		return model.PaymentResult{}, repository.ErrNotFound
	}

	if req.Reference == "" {
		if err := s.bookings.ReleasePayout(ctx, completedBookingID); err != nil {
			return model.PaymentResult{}, err
		}
		s.log.Info().Str("booking_id", completedBookingID).Msg("payout released")
		return model.PaymentResult{Message: "Payout released; the booking can be paid again.", BookingID: completedBookingID}, nil
	}
	if err := s.bookings.RecordPayoutReference(ctx, completedBookingID, req.Reference); err != nil {
		return model.PaymentResult{}, err
	}
	return s.Pay(ctx, uid, completedBookingID)
}
