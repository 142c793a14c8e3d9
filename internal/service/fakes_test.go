package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/khushigoyal02/EMS-back/internal/calendar"
	"github.com/khushigoyal02/EMS-back/internal/clock"
	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/notify"
	"github.com/khushigoyal02/EMS-back/internal/pii"
	"github.com/khushigoyal02/EMS-back/internal/repository"
)

// ─── Accounts ────────────────────────────────────────────────────────────────

type fakeAccounts struct {
	mu    sync.Mutex
	byUID map[string]model.Account
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byUID: map[string]model.Account{}}
}

func (f *fakeAccounts) add(role model.Role, name string) model.Account {
	a := model.Account{
		ID:    uuid.New().String(),
		UID:   "uid-" + name,
		Role:  role,
		Name:  name,
		Email: name + "@example.com",
		Phone: "+919876543210",
	}
	if role == model.RoleVendor {
		a.PayoutRecipient = "recp_" + name
	}
	f.byUID[a.UID] = a
	return a
}

func (f *fakeAccounts) Create(_ context.Context, a model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byUID[a.UID]; ok {
		return repository.ErrDuplicate
	}
	f.byUID[a.UID] = a
	return nil
}

func (f *fakeAccounts) GetByUID(_ context.Context, uid string) (model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byUID[uid]
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	return a, nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id string) (model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byUID {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Account{}, repository.ErrNotFound
}

func (f *fakeAccounts) ListByRole(_ context.Context, role model.Role) ([]model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Account{}
	for _, a := range f.byUID {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccounts) CountByRole(ctx context.Context, role model.Role) (int, error) {
	list, _ := f.ListByRole(ctx, role)
	return len(list), nil
}

// ─── Services ────────────────────────────────────────────────────────────────

type fakeServices struct {
	mu   sync.Mutex
	byID map[string]model.Service
}

func newFakeServices() *fakeServices {
	return &fakeServices{byID: map[string]model.Service{}}
}

func (f *fakeServices) add(vendor model.Account, name string, price float64) model.Service {
	s := model.Service{ID: uuid.New().String(), VendorID: vendor.ID, VendorName: vendor.Name, Name: name, Category: "general", Price: price}
	f.byID[s.ID] = s
	return s
}

func (f *fakeServices) Create(_ context.Context, s model.Service) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[s.ID] = s
	return nil
}

func (f *fakeServices) Get(_ context.Context, id string) (model.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return model.Service{}, repository.ErrNotFound
	}
	return s, nil
}

func (f *fakeServices) ListAll(context.Context) ([]model.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Service{}
	for _, s := range f.byID {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeServices) ListByVendor(_ context.Context, vendorID string) ([]model.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Service{}
	for _, s := range f.byID {
		if s.VendorID == vendorID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeServices) Update(_ context.Context, s model.Service) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.byID[s.ID]
	if !ok || cur.VendorID != s.VendorID {
		return repository.ErrNotFound
	}
	s.CreatedAt, s.VendorName = cur.CreatedAt, cur.VendorName
	f.byID[s.ID] = s
	return nil
}

func (f *fakeServices) Delete(_ context.Context, id, vendorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.byID[id]
	if !ok || cur.VendorID != vendorID {
		return repository.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

// ─── Events ──────────────────────────────────────────────────────────────────

type fakeEvents struct {
	mu       sync.Mutex
	byID     map[string]model.Event
	bookings *fakeBookings
	failWith error
}

func newFakeEvents(bookings *fakeBookings) *fakeEvents {
	return &fakeEvents{byID: map[string]model.Event{}, bookings: bookings}
}

func (f *fakeEvents) put(e model.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[e.ID] = e
}

func (f *fakeEvents) CreateWithBookings(_ context.Context, e model.Event, requests []model.BookingRequest) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.mu.Lock()
	f.byID[e.ID] = e
	f.mu.Unlock()
	f.bookings.mu.Lock()
	defer f.bookings.mu.Unlock()
	for _, r := range requests {
		f.bookings.requests[r.ID] = r
	}
	return nil
}

func (f *fakeEvents) Get(_ context.Context, id string) (model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return model.Event{}, repository.ErrNotFound
	}
	return e, nil
}

func (f *fakeEvents) ListAdmin(context.Context) ([]model.AdminEventView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.AdminEventView{}
	for _, e := range f.byID {
		out = append(out, model.AdminEventView{Event: e})
	}
	return out, nil
}

func (f *fakeEvents) ListByCustomer(_ context.Context, customerID string) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Event{}
	for _, e := range f.byID {
		if e.CreatedBy == customerID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ─── Bookings ────────────────────────────────────────────────────────────────

type fakeBookings struct {
	mu           sync.Mutex
	requests     map[string]model.BookingRequest
	completed    map[string]model.CompletedBooking
	reviews      []model.VendorReview
	transactions []model.Transaction
	finishErr    error
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{
		requests:  map[string]model.BookingRequest{},
		completed: map[string]model.CompletedBooking{},
	}
}

func (f *fakeBookings) forEvent(eventID string) []model.BookingRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.BookingRequest
	for _, r := range f.requests {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeBookings) Get(_ context.Context, id string) (model.BookingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.requests[id]
	if !ok {
		return model.BookingRequest{}, repository.ErrNotFound
	}
	return b, nil
}

func (f *fakeBookings) ListForCustomerEvent(_ context.Context, eventID string) ([]model.CustomerBookingView, error) {
	out := []model.CustomerBookingView{}
	for _, r := range f.forEvent(eventID) {
		out = append(out, model.CustomerBookingView{ID: r.ID, Price: r.Price, Status: r.Status})
	}
	return out, nil
}

func (f *fakeBookings) ListVendorActive(_ context.Context, vendorID string) ([]model.VendorBookingView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.VendorBookingView{}
	for _, r := range f.requests {
		if r.VendorID == vendorID {
			out = append(out, model.VendorBookingView{BookingRequest: r})
		}
	}
	return out, nil
}

func (f *fakeBookings) ChangeStatus(_ context.Context, id string, to model.BookingStatus, now time.Time, check func(model.BookingRequest) error) (model.BookingRequest, *model.CompletedBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.requests[id]
	if !ok {
		return model.BookingRequest{}, nil, repository.ErrNotFound
	}
	if err := check(b); err != nil {
		return model.BookingRequest{}, nil, err
	}
	if !model.CanTransition(b.Status, to) {
		return model.BookingRequest{}, nil, repository.ErrInvalidTransition
	}
	b.Status, b.UpdatedAt = to, now
	if to != model.BookingCompleted {
		f.requests[id] = b
		return b, nil, nil
	}
	c := model.CompletedBooking{
		ID:               uuid.New().String(),
		BookingRequestID: b.ID,
		CustomerID:       b.CustomerID,
		VendorID:         b.VendorID,
		ServiceID:        b.ServiceID,
		EventID:          b.EventID,
		Amount:           b.Price,
		Status:           model.PaymentPending,
		CompletedAt:      now,
	}
	delete(f.requests, id)
	f.completed[c.ID] = c
	return b, &c, nil
}

func (f *fakeBookings) GetCompleted(_ context.Context, id string) (model.CompletedBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.completed[id]
	if !ok {
		return model.CompletedBooking{}, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeBookings) listCompleted(keep func(model.CompletedBooking) bool) []model.CompletedBookingView {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.CompletedBookingView{}
	for _, c := range f.completed {
		if keep(c) {
			out = append(out, model.CompletedBookingView{CompletedBooking: c})
		}
	}
	return out
}

func (f *fakeBookings) ListCompletedByVendor(_ context.Context, vendorID string) ([]model.CompletedBookingView, error) {
	return f.listCompleted(func(c model.CompletedBooking) bool { return c.VendorID == vendorID }), nil
}

func (f *fakeBookings) ListCompletedByEvent(_ context.Context, eventID string) ([]model.CompletedBookingView, error) {
	return f.listCompleted(func(c model.CompletedBooking) bool { return c.EventID == eventID }), nil
}

func (f *fakeBookings) ListAllCompleted(context.Context) ([]model.CompletedBookingView, error) {
	return f.listCompleted(func(model.CompletedBooking) bool { return true }), nil
}

func (f *fakeBookings) MonthlyStats(context.Context, string) ([]model.MonthlyStat, error) {
	return []model.MonthlyStat{}, nil
}

func (f *fakeBookings) ReservePayout(_ context.Context, id string) (model.CompletedBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.completed[id]
	if !ok {
		return model.CompletedBooking{}, repository.ErrNotFound
	}
	switch c.Status {
	case model.PaymentPaid:
		return model.CompletedBooking{}, repository.ErrAlreadyPaid
	case model.PaymentPaying:
		if c.PayoutReference == "" {
			return model.CompletedBooking{}, repository.ErrPayoutInProgress
		}
		return c, nil
	}
	c.Status = model.PaymentPaying
	f.completed[id] = c
	return c, nil
}

func (f *fakeBookings) RecordPayoutReference(_ context.Context, id, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.completed[id]
	if !ok || c.Status != model.PaymentPaying || c.PayoutReference != "" {
		return repository.ErrInvalidTransition
	}
	c.PayoutReference = reference
	f.completed[id] = c
	return nil
}

func (f *fakeBookings) ReleasePayout(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.completed[id]
	if !ok || c.Status != model.PaymentPaying || c.PayoutReference != "" {
		return repository.ErrInvalidTransition
	}
	c.Status = model.PaymentPending
	f.completed[id] = c
	return nil
}

func (f *fakeBookings) FinishPayout(_ context.Context, id string, now time.Time, ledger model.Transaction) (model.CompletedBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finishErr != nil {
		err := f.finishErr
		f.finishErr = nil
		return model.CompletedBooking{}, err
	}
	c, ok := f.completed[id]
	if !ok {
		return model.CompletedBooking{}, repository.ErrNotFound
	}
	if c.Status == model.PaymentPaid {
		return model.CompletedBooking{}, repository.ErrAlreadyPaid
	}
	if c.Status != model.PaymentPaying || c.PayoutReference == "" {
		return model.CompletedBooking{}, repository.ErrInvalidTransition
	}
	c.Status, c.PaidAt = model.PaymentPaid, &now
	f.completed[id] = c
	f.transactions = append(f.transactions, ledger)
	return c, nil
}

func (f *fakeBookings) SubmitReview(_ context.Context, review model.VendorReview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.completed[review.BookingID]
	if !ok {
		return repository.ErrNotFound
	}
	if c.HasReviewed {
		return repository.ErrAlreadyReviewed
	}
	c.HasReviewed = true
	f.completed[c.ID] = c
	f.reviews = append(f.reviews, review)
	return nil
}

func (f *fakeBookings) ListReviewsByVendor(context.Context, string) ([]model.ReviewView, error) {
	return []model.ReviewView{}, nil
}

// ─── Guests ──────────────────────────────────────────────────────────────────

type fakeGuests struct {
	mu     sync.Mutex
	lists  map[string]*model.GuestList
	locked map[string]bool
}

func newFakeGuests() *fakeGuests {
	return &fakeGuests{lists: map[string]*model.GuestList{}, locked: map[string]bool{}}
}

func (f *fakeGuests) Replace(_ context.Context, eventID string, guests []model.Guest, now time.Time) (model.GuestList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := &model.GuestList{ID: uuid.New().String(), EventID: eventID, CreatedAt: now}
	for i, g := range guests {
		g.ID = uuid.New().String()
		g.GuestListID = list.ID
		g.Position = i
		list.Guests = append(list.Guests, g)
	}
	f.lists[eventID] = list
	return *list, nil
}

func (f *fakeGuests) Get(_ context.Context, eventID string) (model.GuestList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list, ok := f.lists[eventID]
	if !ok {
		return model.GuestList{}, repository.ErrNotFound
	}
	out := *list
	out.Guests = append([]model.Guest(nil), list.Guests...)
	return out, nil
}

func (f *fakeGuests) find(guestID string) *model.Guest {
	for _, list := range f.lists {
		for i := range list.Guests {
			if list.Guests[i].ID == guestID {
				return &list.Guests[i]
			}
		}
	}
	return nil
}

func (f *fakeGuests) FindByEmailIndex(_ context.Context, eventID string, index []byte) (model.Guest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list, ok := f.lists[eventID]
	if !ok {
		return model.Guest{}, repository.ErrNotFound
	}
	for _, g := range list.Guests {
		if bytes.Equal(g.Contact.EmailIndex, index) {
			return g, nil
		}
	}
	return model.Guest{}, repository.ErrNotFound
}

func (f *fakeGuests) RecordRSVP(_ context.Context, guestID string, status model.RSVPStatus, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.find(guestID)
	if g == nil || g.HasResponded {
		return false, nil
	}
	g.RSVPStatus, g.HasResponded, g.RespondedAt = status, true, &at
	return true, nil
}

func (f *fakeGuests) MarkInvited(_ context.Context, guestID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g := f.find(guestID); g != nil && g.InvitedAt == nil {
		g.InvitedAt = &at
	}
	return nil
}

func (f *fakeGuests) MarkInvitesSent(_ context.Context, listID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, list := range f.lists {
		if list.ID != listID {
			continue
		}
		for _, g := range list.Guests {
			if g.InvitedAt == nil {
				return false, nil
			}
		}
		list.InvitesSent = true
		return true, nil
	}
	return false, nil
}

func (f *fakeGuests) LockForSending(_ context.Context, listID string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked[listID] {
		return nil, repository.ErrInvitationsInProgress
	}
	f.locked[listID] = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.locked, listID)
	}, nil
}

// ─── Transactions ────────────────────────────────────────────────────────────

type fakeTransactions struct {
	mu      sync.Mutex
	entries []model.Transaction
	filters []model.TransactionFilter
}

func (f *fakeTransactions) Create(_ context.Context, t model.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, t)
	return nil
}

func (f *fakeTransactions) List(_ context.Context, filter model.TransactionFilter) (model.TransactionPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return model.TransactionPage{Transactions: f.entries, Total: len(f.entries), Page: filter.Page, Limit: filter.Limit}, nil
}

func (f *fakeTransactions) ListAll(_ context.Context, filter model.TransactionFilter) ([]model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return f.entries, nil
}

// ─── Collaborators ───────────────────────────────────────────────────────────

type published struct {
	key string
	v   any
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
}

func (p *fakePublisher) PublishJSON(_ context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{key, v})
	return nil
}

func (p *fakePublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sent))
	for i, s := range p.sent {
		out[i] = s.key
	}
	return out
}

type sentMessage struct {
	to  string
	msg notify.Message
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]bool
}

func (s *fakeSender) Send(_ context.Context, to string, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[to] {
		return errors.New("mailbox unavailable")
	}
	s.sent = append(s.sent, sentMessage{to, msg})
	return nil
}

func (s *fakeSender) recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = m.to
	}
	return out
}

type fakeCalendar struct {
	mu      sync.Mutex
	errs    map[string]error
	entries map[string]calendar.Entry
}

func (c *fakeCalendar) CreateEvent(_ context.Context, uid string, e calendar.Entry) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.errs[uid]; err != nil {
		return "", err
	}
	if c.entries == nil {
		c.entries = map[string]calendar.Entry{}
	}
	c.entries[uid] = e
	return "https://calendar.example/" + uid, nil
}

// ─── Fixture ─────────────────────────────────────────────────────────────────

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	clk       *clock.FakeClock
	accounts  *fakeAccounts
	services  *fakeServices
	events    *fakeEvents
	bookings  *fakeBookings
	guests    *fakeGuests
	txs       *fakeTransactions
	publisher *fakePublisher
	sealer    *pii.Sealer

	customer model.Account
	vendor   model.Account
	admin    model.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sealer, err := pii.NewSealer(bytes.Repeat([]byte{7}, pii.KeySize))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	bookings := newFakeBookings()
	f := &fixture{
		clk:       clock.Fake(testNow),
		accounts:  newFakeAccounts(),
		services:  newFakeServices(),
		events:    newFakeEvents(bookings),
		bookings:  bookings,
		guests:    newFakeGuests(),
		txs:       &fakeTransactions{},
		publisher: &fakePublisher{},
		sealer:    sealer,
	}
	f.customer = f.accounts.add(model.RoleCustomer, "carol")
	f.vendor = f.accounts.add(model.RoleVendor, "victor")
	f.admin = f.accounts.add(model.RoleAdmin, "ada")
	return f
}

func (f *fixture) eventService() *EventService {
	return NewEventService(EventDeps{
		Accounts:  f.accounts,
		Services:  f.services,
		Events:    f.events,
		Bookings:  f.bookings,
		Guests:    f.guests,
		Sealer:    f.sealer,
		Publisher: f.publisher,
		Clock:     f.clk,
		Location:  time.UTC,
		Log:       zerolog.Nop(),
	})
}

func (f *fixture) bookingService(cal Calendar) *BookingService {
	return NewBookingService(BookingDeps{
		Accounts:  f.accounts,
		Services:  f.services,
		Events:    f.events,
		Bookings:  f.bookings,
		Calendar:  cal,
		Publisher: f.publisher,
		Clock:     f.clk,
		Log:       zerolog.Nop(),
	})
}

func (f *fixture) guestService(t *testing.T, mail, whatsapp notify.Sender) *GuestService {
	t.Helper()
	renderer, err := notify.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return NewGuestService(GuestDeps{
		Accounts:      f.accounts,
		Events:        f.events,
		Guests:        f.guests,
		Sealer:        f.sealer,
		Renderer:      renderer,
		Mail:          mail,
		WhatsApp:      whatsapp,
		Publisher:     f.publisher,
		Clock:         f.clk,
		Location:      time.UTC,
		PublicBaseURL: "https://plannova.example/",
		Log:           zerolog.Nop(),
	})
}

// createEvent creates a single-day event on day booking the given services.
func (f *fixture) createEvent(t *testing.T, day string, services ...model.Service) model.Event {
	t.Helper()
	ids := make([]string, len(services))
	for i, s := range services {
		ids[i] = s.ID
	}
	resp, err := f.eventService().CreateEvent(context.Background(), f.customer.UID, model.CreateEventRequest{
		Name:     "Launch party",
		Location: "Pune",
		Date:     day,
		Services: ids,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	ev, err := f.events.Get(context.Background(), resp.EventID)
	if err != nil {
		t.Fatalf("Get event: %v", err)
	}
	return ev
}
