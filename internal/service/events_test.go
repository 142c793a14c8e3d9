package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/khushigoyal02/EMS-back/internal/events"
	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/repository"
)

func TestCreateEventOneBookingPerService(t *testing.T) {
	f := newFixture(t)
	other := f.accounts.add(model.RoleVendor, "vera")
	photo := f.services.add(f.vendor, "Photography", 15000)
	food := f.services.add(other, "Catering", 40000)

	resp, err := f.eventService().CreateEvent(context.Background(), f.customer.UID, model.CreateEventRequest{
		Name:      "Wedding",
		Location:  "Goa",
		Date:      "2025-04-20",
		StartTime: "18:00",
		EndTime:   "23:30",
		Services:  []string{photo.ID, food.ID},
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if resp.BookingRequests != 2 {
		t.Fatalf("BookingRequests = %d, want 2", resp.BookingRequests)
	}

	requests := f.bookings.forEvent(resp.EventID)
	if len(requests) != 2 {
		t.Fatalf("stored %d booking requests, want 2", len(requests))
	}
	wantVendor := map[string]string{photo.ID: f.vendor.ID, food.ID: other.ID}
	for _, r := range requests {
		if r.VendorID != wantVendor[r.ServiceID] {
			t.Errorf("request for %s went to vendor %s, want %s", r.ServiceID, r.VendorID, wantVendor[r.ServiceID])
		}
		if r.Status != model.BookingPending {
			t.Errorf("status = %s, want Pending", r.Status)
		}
		if r.CustomerID != f.customer.ID {
			t.Errorf("customer = %s, want %s", r.CustomerID, f.customer.ID)
		}
	}

	ev, _ := f.events.Get(context.Background(), resp.EventID)
	if ev.EstimatedCost != 55000 {
		t.Errorf("EstimatedCost = %v, want 55000", ev.EstimatedCost)
	}
	if len(ev.Services) != 2 || ev.Services[0] != photo.ID || ev.Services[1] != food.ID {
		t.Errorf("Services = %v, want request order", ev.Services)
	}
	wantStart := time.Date(2025, 4, 20, 18, 0, 0, 0, time.UTC)
	if !ev.StartsAt.Equal(wantStart) {
		t.Errorf("StartsAt = %v, want %v", ev.StartsAt, wantStart)
	}
	if got := f.publisher.keys(); len(got) != 1 || got[0] != events.EventCreated {
		t.Errorf("published %v, want [%s]", got, events.EventCreated)
	}
}

func TestCreateEventUnknownServiceWritesNothing(t *testing.T) {
	f := newFixture(t)
	photo := f.services.add(f.vendor, "Photography", 15000)

	_, err := f.eventService().CreateEvent(context.Background(), f.customer.UID, model.CreateEventRequest{
		Name:     "Wedding",
		Date:     "2025-04-20",
		Services: []string{photo.ID, uuid.New().String()},
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(f.events.byID) != 0 {
		t.Errorf("event stored despite unknown service")
	}
	if len(f.bookings.requests) != 0 {
		t.Errorf("booking requests stored despite unknown service")
	}
}

func TestCreateEventRangeEndsAfterLastDay(t *testing.T) {
	f := newFixture(t)
	photo := f.services.add(f.vendor, "Photography", 100)

	resp, err := f.eventService().CreateEvent(context.Background(), f.customer.UID, model.CreateEventRequest{
		Name:      "Festival",
		StartDate: "2025-05-01",
		EndDate:   "2025-05-03",
		Services:  []string{photo.ID},
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	ev, _ := f.events.Get(context.Background(), resp.EventID)
	if want := time.Date(2025, 5, 4, 0, 0, 0, 0, time.UTC); !ev.EndsAt.Equal(want) {
		t.Errorf("EndsAt = %v, want %v", ev.EndsAt, want)
	}
}

func TestCreateEventValidation(t *testing.T) {
	f := newFixture(t)
	svc := f.services.add(f.vendor, "Photography", 100)

	tests := []struct {
		name string
		req  model.CreateEventRequest
	}{
		{"missing name", model.CreateEventRequest{Date: "2025-04-20", Services: []string{svc.ID}}},
		{"no date", model.CreateEventRequest{Name: "x", Services: []string{svc.ID}}},
		{"date and range", model.CreateEventRequest{Name: "x", Date: "2025-04-20", StartDate: "2025-04-20", EndDate: "2025-04-21", Services: []string{svc.ID}}},
		{"half range", model.CreateEventRequest{Name: "x", StartDate: "2025-04-20", Services: []string{svc.ID}}},
		{"range reversed", model.CreateEventRequest{Name: "x", StartDate: "2025-04-22", EndDate: "2025-04-20", Services: []string{svc.ID}}},
		{"bad date", model.CreateEventRequest{Name: "x", Date: "20/04/2025", Services: []string{svc.ID}}},
		{"bad time", model.CreateEventRequest{Name: "x", Date: "2025-04-20", StartTime: "7pm", Services: []string{svc.ID}}},
		{"end before start", model.CreateEventRequest{Name: "x", Date: "2025-04-20", StartTime: "20:00", EndTime: "19:00", Services: []string{svc.ID}}},
		{"no services", model.CreateEventRequest{Name: "x", Date: "2025-04-20"}},
		{"invalid service id", model.CreateEventRequest{Name: "x", Date: "2025-04-20", Services: []string{"nope"}}},
		{"duplicate service", model.CreateEventRequest{Name: "x", Date: "2025-04-20", Services: []string{svc.ID, svc.ID}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eventService().CreateEvent(context.Background(), f.customer.UID, tt.req)
			if !IsValidation(err) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
	if len(f.events.byID) != 0 {
		t.Errorf("invalid requests stored %d events", len(f.events.byID))
	}
}

func TestCreateEventRequiresCustomer(t *testing.T) {
	f := newFixture(t)
	svc := f.services.add(f.vendor, "Photography", 100)
	req := model.CreateEventRequest{Name: "x", Date: "2025-04-20", Services: []string{svc.ID}}

	if _, err := f.eventService().CreateEvent(context.Background(), f.vendor.UID, req); !errors.Is(err, ErrForbidden) {
		t.Errorf("vendor: err = %v, want ErrForbidden", err)
	}
	if _, err := f.eventService().CreateEvent(context.Background(), "", req); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("anonymous: err = %v, want ErrUnauthenticated", err)
	}
	if _, err := f.eventService().CreateEvent(context.Background(), "uid-stranger", req); !errors.Is(err, ErrForbidden) {
		t.Errorf("unknown account: err = %v, want ErrForbidden", err)
	}
}

func TestListCustomerEventsOpensGuests(t *testing.T) {
	f := newFixture(t)
	svc := f.services.add(f.vendor, "Photography", 100)
	ev := f.createEvent(t, "2025-04-20", svc)

	gs := f.guestService(t, &fakeSender{}, nil)
	if _, err := gs.Upload(context.Background(), f.customer.UID, ev.ID, []model.GuestInput{
		{Name: "Gina", Email: "Gina@Example.com", Phone: "98765 43210"},
	}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	views, err := f.eventService().ListCustomerEvents(context.Background(), f.customer.UID)
	if err != nil {
		t.Fatalf("ListCustomerEvents: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d events, want 1", len(views))
	}
	v := views[0]
	if len(v.Bookings) != 1 {
		t.Errorf("bookings = %d, want 1", len(v.Bookings))
	}
	if len(v.Guests) != 1 || v.Guests[0].Email != "gina@example.com" || v.Guests[0].Name != "Gina" {
		t.Errorf("guests = %+v", v.Guests)
	}
}

func TestListAllEventsAdminOnly(t *testing.T) {
	f := newFixture(t)
	svc := f.services.add(f.vendor, "Photography", 100)
	f.createEvent(t, "2025-04-20", svc)

	if _, err := f.eventService().ListAll(context.Background(), f.customer.UID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer: err = %v, want ErrForbidden", err)
	}
	views, err := f.eventService().ListAll(context.Background(), f.admin.UID)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(views) != 1 || views[0].ServiceInfo == nil {
		t.Errorf("views = %+v", views)
	}
}
