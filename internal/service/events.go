package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/khushigoyal02/EMS-back/internal/clock"
	"github.com/khushigoyal02/EMS-back/internal/events"
	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/pii"
	"github.com/khushigoyal02/EMS-back/internal/repository"
)

// maxServicesPerEvent bounds the fan-out of one event creation.
const maxServicesPerEvent = 50

// EventService creates events and their booking requests and serves the
// event listings.
type EventService struct {
	accounts  AccountStore
	services  ServiceStore
	events    EventStore
	bookings  BookingStore
	guests    GuestStore
	sealer    *pii.Sealer
	publisher events.Publisher
	clk       clock.Clock
	loc       *time.Location
	log       zerolog.Logger
}

// EventDeps groups EventService collaborators.
type EventDeps struct {
	Accounts  AccountStore
	Services  ServiceStore
	Events    EventStore
	Bookings  BookingStore
	Guests    GuestStore
	Sealer    *pii.Sealer
	Publisher events.Publisher
	Clock     clock.Clock
	Location  *time.Location
	Log       zerolog.Logger
}

// NewEventService constructs an EventService.
func NewEventService(d EventDeps) *EventService {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	return &EventService{
		accounts:  d.Accounts,
		services:  d.Services,
		events:    d.Events,
		bookings:  d.Bookings,
		guests:    d.Guests,
		sealer:    d.Sealer,
		publisher: d.Publisher,
		clk:       d.Clock,
		loc:       d.Location,
		log:       d.Log,
	}
}

// CreateEvent validates the request, resolves every service to its vendor and
// price, then writes the event and one booking request per service in a
// single transaction. An unknown service aborts the whole creation.
func (s *EventService) CreateEvent(ctx context.Context, uid string, req model.CreateEventRequest) (model.CreateEventResponse, error) {
	ctx, span := tracer.Start(ctx, "EventService.CreateEvent")
	defer span.End()

	customer, err := accountFor(ctx, s.accounts, uid, model.RoleCustomer)
	if err != nil {
		return model.CreateEventResponse{}, err
	}

	ev, err := s.newEvent(req)
	if err != nil {
		return model.CreateEventResponse{}, err
	}
	ev.CreatedBy = customer.ID

	resolved, err := s.resolveServices(ctx, req.Services)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return model.CreateEventResponse{}, err
	}

	now := s.clk.Now()
	ev.CreatedAt = now
	requests := make([]model.BookingRequest, len(resolved))
	for i, svc := range resolved {
		requests[i] = model.BookingRequest{
			ID:         uuid.New().String(),
			EventID:    ev.ID,
			CustomerID: customer.ID,
			VendorID:   svc.VendorID,
			ServiceID:  svc.ID,
			Status:     model.BookingPending,
			Price:      svc.Price,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		ev.Services = append(ev.Services, svc.ID)
		ev.EstimatedCost += svc.Price
	}

	if err := s.events.CreateWithBookings(ctx, ev, requests); err != nil {
		span.RecordError(err)
		return model.CreateEventResponse{}, fmt.Errorf("create event: %w", err)
	}
	span.SetAttributes(attribute.String("event.id", ev.ID), attribute.Int("event.services", len(requests)))

	if err := s.publisher.PublishJSON(ctx, events.EventCreated, ev); err != nil {
		s.log.Warn().Err(err).Str("event_id", ev.ID).Msg("publish event created")
	}
	s.log.Info().Str("event_id", ev.ID).Int("booking_requests", len(requests)).Msg("event created")

	return model.CreateEventResponse{
		Message:         "Event created and booking requests sent",
		EventID:         ev.ID,
		BookingRequests: len(requests),
	}, nil
}

// newEvent validates the scheduling fields and derives StartsAt/EndsAt in the
// configured location.
func (s *EventService) newEvent(req model.CreateEventRequest) (model.Event, error) {
	ev := model.Event{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(req.Name),
		Location:    strings.TrimSpace(req.Location),
		Description: strings.TrimSpace(req.Description),
		Status:      model.EventPending,
		Services:    []string{},
	}
	if ev.Name == "" {
		return model.Event{}, invalid("event name is required")
	}

	date := strings.TrimSpace(req.Date)
	startDate := strings.TrimSpace(req.StartDate)
	endDate := strings.TrimSpace(req.EndDate)

	switch {
	case date != "" && (startDate != "" || endDate != ""):
		return model.Event{}, invalid("provide either date or startDate/endDate, not both")

	case date != "":
		day, err := time.ParseInLocation(model.DateLayout, date, s.loc)
		if err != nil {
			return model.Event{}, invalid("date must be YYYY-MM-DD")
		}
		ev.Date = date
		ev.StartTime = strings.TrimSpace(req.StartTime)
		ev.EndTime = strings.TrimSpace(req.EndTime)
		ev.StartsAt = day
		ev.EndsAt = day.AddDate(0, 0, 1)
		if ev.StartTime != "" {
			if ev.StartsAt, err = atTime(day, ev.StartTime); err != nil {
				return model.Event{}, invalid("startTime must be HH:MM")
			}
		}
		if ev.EndTime != "" {
			if ev.EndsAt, err = atTime(day, ev.EndTime); err != nil {
				return model.Event{}, invalid("endTime must be HH:MM")
			}
		}
		if !ev.EndsAt.After(ev.StartsAt) {
			return model.Event{}, invalid("endTime must be after startTime")
		}

	case startDate != "" && endDate != "":
		start, err := time.ParseInLocation(model.DateLayout, startDate, s.loc)
		if err != nil {
			return model.Event{}, invalid("startDate must be YYYY-MM-DD")
		}
		end, err := time.ParseInLocation(model.DateLayout, endDate, s.loc)
		if err != nil {
			return model.Event{}, invalid("endDate must be YYYY-MM-DD")
		}
		if end.Before(start) {
			return model.Event{}, invalid("endDate cannot be before startDate")
		}
		ev.StartDate, ev.EndDate = startDate, endDate
		ev.StartsAt = start
		ev.EndsAt = end.AddDate(0, 0, 1)

	default:
		return model.Event{}, invalid("either date or both startDate and endDate are required")
	}

	if len(req.Services) == 0 {
		return model.Event{}, invalid("at least one service is required")
	}
	if len(req.Services) > maxServicesPerEvent {
		return model.Event{}, invalid("an event can book at most %d services", maxServicesPerEvent)
	}
	seen := make(map[string]bool, len(req.Services))
	for _, id := range req.Services {
		if !isUUID(id) {
			return model.Event{}, invalid("invalid service id %q", id)
		}
		if seen[id] {
			return model.Event{}, invalid("service %s listed twice", id)
		}
		seen[id] = true
	}
	return ev, nil
}

func atTime(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse(model.TimeLayout, hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// resolveServices loads every service concurrently, keeping request order.
func (s *EventService) resolveServices(ctx context.Context, ids []string) ([]model.Service, error) {
	out := make([]model.Service, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			svc, err := s.services.Get(gctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("service %s: %w", id, repository.ErrNotFound)
				}
				return fmt.Errorf("resolve service %s: %w", id, err)
			}
			out[i] = svc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAll returns every event for the admin dashboard.
func (s *EventService) ListAll(ctx context.Context, uid string) ([]model.AdminEventView, error) {
	if _, err := accountFor(ctx, s.accounts, uid, model.RoleAdmin); err != nil {
		return nil, err
	}
	views, err := s.events.ListAdmin(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	for i := range views {
		if views[i].ServiceInfo == nil {
			views[i].ServiceInfo = []model.ServiceVendor{}
		}
	}
	return views, nil
}

// ListCustomerEvents returns the caller's events with their active and
// completed bookings and decrypted guests.
func (s *EventService) ListCustomerEvents(ctx context.Context, uid string) ([]model.CustomerEventView, error) {
	ctx, span := tracer.Start(ctx, "EventService.ListCustomerEvents")
	defer span.End()

	customer, err := accountFor(ctx, s.accounts, uid, model.RoleCustomer)
	if err != nil {
		return nil, err
	}
	evs, err := s.events.ListByCustomer(ctx, customer.ID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	views := make([]model.CustomerEventView, 0, len(evs))
	for _, ev := range evs {
		v := model.CustomerEventView{
			Event:             ev,
			Bookings:          []model.CustomerBookingView{},
			CompletedBookings: []model.CompletedBookingView{},
			Guests:            []model.GuestView{},
		}
		bookings, err := s.bookings.ListForCustomerEvent(ctx, ev.ID)
		if err != nil {
			return nil, fmt.Errorf("list bookings: %w", err)
		}
		if bookings != nil {
			v.Bookings = bookings
		}
		completed, err := s.bookings.ListCompletedByEvent(ctx, ev.ID)
		if err != nil {
			return nil, fmt.Errorf("list completed bookings: %w", err)
		}
		if completed != nil {
			v.CompletedBookings = completed
		}

		list, err := s.guests.Get(ctx, ev.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("load guests: %w", err)
		default:
			v.InvitesSent = list.InvitesSent
			if v.Guests, err = openGuests(s.sealer, list.Guests); err != nil {
				return nil, err
			}
		}
		views = append(views, v)
	}
	return views, nil
}

// openGuests decrypts guests for display to the list owner.
func openGuests(sealer *pii.Sealer, guests []model.Guest) ([]model.GuestView, error) {
	out := make([]model.GuestView, 0, len(guests))
	for _, g := range guests {
		c, err := sealer.OpenContact(g.Contact)
		if err != nil {
			return nil, fmt.Errorf("open guest %d: %w", g.Position, err)
		}
		out = append(out, model.GuestView{
			Name:         c.Name,
			Email:        c.Email,
			Phone:        c.Phone,
			RSVPStatus:   g.RSVPStatus,
			HasResponded: g.HasResponded,
			InvitedAt:    g.InvitedAt,
		})
	}
	return out, nil
}
