package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/khushigoyal02/EMS-back/internal/calendar"
	"github.com/khushigoyal02/EMS-back/internal/clock"
	"github.com/khushigoyal02/EMS-back/internal/events"
	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/repository"
)

// Calendar creates calendar entries for linked accounts.
type Calendar interface {
	CreateEvent(ctx context.Context, uid string, e calendar.Entry) (string, error)
}

// BookingService runs the booking request lifecycle for vendors and reviews
// for customers.
type BookingService struct {
	accounts  AccountStore
	services  ServiceStore
	events    EventStore
	bookings  BookingStore
	calendar  Calendar
	publisher events.Publisher
	clk       clock.Clock
	log       zerolog.Logger
}

// BookingDeps groups BookingService collaborators. Calendar may be nil.
type BookingDeps struct {
	Accounts  AccountStore
	Services  ServiceStore
	Events    EventStore
	Bookings  BookingStore
	Calendar  Calendar
	Publisher events.Publisher
	Clock     clock.Clock
	Log       zerolog.Logger
}

// NewBookingService constructs a BookingService.
func NewBookingService(d BookingDeps) *BookingService {
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	return &BookingService{
		accounts:  d.Accounts,
		services:  d.Services,
		events:    d.Events,
		bookings:  d.Bookings,
		calendar:  d.Calendar,
		publisher: d.Publisher,
		clk:       d.Clock,
		log:       d.Log,
	}
}

// ChangeStatus moves one of the caller's booking requests to status.
// Completed replaces the request with a CompletedBooking atomically. Accepted
// additionally tries to put the booking in both parties' calendars; calendar
// problems are reported in the result and never fail the change.
func (s *BookingService) ChangeStatus(ctx context.Context, uid, bookingID, status string) (model.StatusChangeResult, error) {
	ctx, span := tracer.Start(ctx, "BookingService.ChangeStatus")
	defer span.End()

	to, ok := model.ParseBookingStatus(status)
	if !ok {
		return model.StatusChangeResult{}, invalid("invalid booking status %q", status)
	}
	vendor, err := accountFor(ctx, s.accounts, uid, model.RoleVendor)
	if err != nil {
		return model.StatusChangeResult{}, err
	}
	if !isUUID(bookingID) {
		return model.StatusChangeResult{}, repository.ErrNotFound
	}
	span.SetAttributes(attribute.String("booking.id", bookingID), attribute.String("booking.status", string(to)))

	owner := func(b model.BookingRequest) error {
		if b.VendorID != vendor.ID {
			return ErrForbidden
		}
		return nil
	}
	booking, completed, err := s.bookings.ChangeStatus(ctx, bookingID, to, s.clk.Now(), owner)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrForbidden) || errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidTransition) {
			return model.StatusChangeResult{}, err
		}
		return model.StatusChangeResult{}, fmt.Errorf("change booking status: %w", err)
	}

	result := model.StatusChangeResult{
		Message:   "Booking status updated to " + string(to),
		BookingID: booking.ID,
		Status:    booking.Status,
	}
	if completed != nil {
		result.CompletedBookingID = completed.ID
	}
	if to == model.BookingAccepted {
		result.Calendar = s.addToCalendars(ctx, booking, vendor)
	}

	if err := s.publisher.PublishJSON(ctx, events.BookingKey(string(to)), booking); err != nil {
		s.log.Warn().Err(err).Str("booking_id", booking.ID).Msg("publish booking status")
	}
	s.log.Info().Str("booking_id", booking.ID).Str("status", string(to)).Msg("booking status changed")
	return result, nil
}

// addToCalendars creates an entry for the customer and the vendor.
func (s *BookingService) addToCalendars(ctx context.Context, b model.BookingRequest, vendor model.Account) []model.CalendarOutcome {
	if s.calendar == nil {
		return nil
	}
	warn := func(party, msg string, err error) []model.CalendarOutcome {
		s.log.Warn().Err(err).Str("booking_id", b.ID).Str("party", party).Msg(msg)
		return []model.CalendarOutcome{{Party: party, Warning: msg}}
	}

	ev, err := s.events.Get(ctx, b.EventID)
	if err != nil {
		return warn("both", "calendar entries were not created: event unavailable", err)
	}
	svc, err := s.services.Get(ctx, b.ServiceID)
	if err != nil {
		return warn("both", "calendar entries were not created: service unavailable", err)
	}
	customer, err := s.accounts.GetByID(ctx, b.CustomerID)
	if err != nil {
		return warn("both", "calendar entries were not created: customer unavailable", err)
	}

	base := calendar.Entry{
		Description: fmt.Sprintf("Booking confirmed with %s for event: %s", vendor.Name, ev.Name),
		Location:    ev.Location,
		Start:       ev.StartsAt,
		End:         ev.EndsAt,
	}
	if ev.StartDate != "" {
		base.AllDay, base.StartDate, base.EndDate = true, ev.StartDate, ev.EndDate
	} else if ev.StartTime == "" {
		base.AllDay, base.StartDate, base.EndDate = true, ev.Date, ev.Date
	}

	parties := []struct {
		party, uid, summary string
	}{
		{"customer", customer.UID, fmt.Sprintf("Service with %s - %s", vendor.Name, svc.Name)},
		{"vendor", vendor.UID, fmt.Sprintf("Service for %s - %s", customer.Name, svc.Name)},
	}
	outcomes := make([]model.CalendarOutcome, 0, len(parties))
	for _, p := range parties {
		entry := base
		entry.Summary = p.summary
		link, err := s.calendar.CreateEvent(ctx, p.uid, entry)
		if err != nil {
			msg := "calendar entry was not created"
			if errors.Is(err, calendar.ErrNotLinked) {
				msg = "calendar entry was not created: Google Calendar is not linked"
			}
			s.log.Warn().Err(err).Str("booking_id", b.ID).Str("party", p.party).Msg("calendar entry")
			outcomes = append(outcomes, model.CalendarOutcome{Party: p.party, Warning: msg})
			continue
		}
		outcomes = append(outcomes, model.CalendarOutcome{Party: p.party, Created: true, Link: link})
	}
	return outcomes
}

// ListVendorBookings returns the caller's booking requests for events still
// being planned.
func (s *BookingService) ListVendorBookings(ctx context.Context, uid string) ([]model.VendorBookingView, error) {
	vendor, err := accountFor(ctx, s.accounts, uid, model.RoleVendor)
	if err != nil {
		return nil, err
	}
	views, err := s.bookings.ListVendorActive(ctx, vendor.ID)
	if err != nil {
		return nil, fmt.Errorf("list vendor bookings: %w", err)
	}
	return views, nil
}

// ListCompleted returns the caller's completed bookings.
func (s *BookingService) ListCompleted(ctx context.Context, uid string) ([]model.CompletedBookingView, error) {
	vendor, err := accountFor(ctx, s.accounts, uid, model.RoleVendor)
	if err != nil {
		return nil, err
	}
	views, err := s.bookings.ListCompletedByVendor(ctx, vendor.ID)
	if err != nil {
		return nil, fmt.Errorf("list completed bookings: %w", err)
	}
	return views, nil
}

// MonthlyStats returns the caller's paid earnings per month.
func (s *BookingService) MonthlyStats(ctx context.Context, uid string) ([]model.MonthlyStat, error) {
	vendor, err := accountFor(ctx, s.accounts, uid, model.RoleVendor)
	if err != nil {
		return nil, err
	}
	stats, err := s.bookings.MonthlyStats(ctx, vendor.ID)
	if err != nil {
		return nil, fmt.Errorf("monthly stats: %w", err)
	}
	return stats, nil
}

// ListReviews returns reviews left on the caller's bookings.
func (s *BookingService) ListReviews(ctx context.Context, uid string) ([]model.ReviewView, error) {
	vendor, err := accountFor(ctx, s.accounts, uid, model.RoleVendor)
	if err != nil {
		return nil, err
	}
	reviews, err := s.bookings.ListReviewsByVendor(ctx, vendor.ID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// SubmitReview records the caller's review of one of their completed
// bookings. A booking can be reviewed once.
func (s *BookingService) SubmitReview(ctx context.Context, uid string, req model.ReviewRequest) (model.VendorReview, error) {
	ctx, span := tracer.Start(ctx, "BookingService.SubmitReview")
	defer span.End()

	customer, err := accountFor(ctx, s.accounts, uid, model.RoleCustomer)
	if err != nil {
		return model.VendorReview{}, err
	}
	if req.Rating < 1 || req.Rating > 5 {
		return model.VendorReview{}, invalid("rating must be between 1 and 5")
	}
	if !isUUID(req.BookingID) {
		return model.VendorReview{}, invalid("invalid bookingId")
	}

	booking, err := s.bookings.GetCompleted(ctx, req.BookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.VendorReview{}, err
		}
		return model.VendorReview{}, fmt.Errorf("load booking: %w", err)
	}
	if booking.CustomerID != customer.ID {
		return model.VendorReview{}, ErrForbidden
	}

	review := model.VendorReview{
		ID:        uuid.New().String(),
		BookingID: booking.ID,
		Rating:    req.Rating,
		Comment:   strings.TrimSpace(req.Comment),
		CreatedAt: s.clk.Now(),
	}
	if err := s.bookings.SubmitReview(ctx, review); err != nil {
		if errors.Is(err, repository.ErrAlreadyReviewed) {
			return model.VendorReview{}, err
		}
		return model.VendorReview{}, fmt.Errorf("submit review: %w", err)
	}
	return review, nil
}
