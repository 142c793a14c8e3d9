package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/khushigoyal02/EMS-back/internal/clock"
	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/notify"
	"github.com/khushigoyal02/EMS-back/internal/repository"
)

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeEvents struct {
	mu       sync.Mutex
	events   map[string]*model.Event
	listErrs []error
}

func (f *fakeEvents) add(id string, status model.EventStatus, startsAt time.Time) {
	if f.events == nil {
		f.events = map[string]*model.Event{}
	}
	f.events[id] = &model.Event{ID: id, CreatedBy: "carol", Name: "Event " + id, Status: status, StartsAt: startsAt, EndsAt: startsAt.Add(4 * time.Hour)}
}

func (f *fakeEvents) status(id string) model.EventStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[id].Status
}

func (f *fakeEvents) ListStartingBetween(_ context.Context, from, to time.Time, statuses []model.EventStatus) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.listErrs) > 0 {
		err := f.listErrs[0]
		f.listErrs = f.listErrs[1:]
		return nil, err
	}
	var out []model.Event
	for _, ev := range f.events {
		if ev.StartsAt.Before(from) || !ev.StartsAt.Before(to) {
			continue
		}
		for _, st := range statuses {
			if ev.Status == st {
				out = append(out, *ev)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeEvents) SetStatusIf(_ context.Context, id string, from []model.EventStatus, to model.EventStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if ev.Status == st {
			ev.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEvents) CompleteEnded(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, ev := range f.events {
		if ev.Status == model.EventConfirmed && ev.EndsAt.Before(now) {
			ev.Status = model.EventCompleted
			n++
		}
	}
	return n, nil
}

func (f *fakeEvents) MarkReminderSent(_ context.Context, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := f.events[id]
	if ev.ReminderSentAt != nil {
		return false, nil
	}
	ev.ReminderSentAt = &at
	return true, nil
}

func (f *fakeEvents) ClearReminder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[id].ReminderSentAt = nil
	return nil
}

type fakeBookings map[string][]model.BookingStatus

func (f fakeBookings) StatusesForEvent(_ context.Context, eventID string) ([]model.BookingStatus, error) {
	return f[eventID], nil
}

type fakeAccounts struct{}

func (fakeAccounts) GetByID(_ context.Context, id string) (model.Account, error) {
	return model.Account{UID: id, Name: "Carol", Email: id + "@example.com"}, nil
}

type fakeRuns struct {
	claimed map[string]bool
}

func (f *fakeRuns) Claim(_ context.Context, job, window string, _ time.Time) (bool, error) {
	if f.claimed == nil {
		f.claimed = map[string]bool{}
	}
	key := job + "/" + window
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeRuns) Release(_ context.Context, job, window string) error {
	delete(f.claimed, job+"/"+window)
	return nil
}

type fakeInviter struct {
	calls []string
	err   error
}

func (f *fakeInviter) SendInvitations(_ context.Context, eventID string) (model.InvitationReport, error) {
	f.calls = append(f.calls, eventID)
	if f.err != nil {
		return model.InvitationReport{}, f.err
	}
	return model.InvitationReport{Sent: 2}, nil
}

type sentMail struct {
	to  string
	msg notify.Message
}

type fakeMail struct {
	sent []sentMail
	err  error
}

func (f *fakeMail) Send(_ context.Context, to string, msg notify.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, msg: msg})
	return nil
}

type harness struct {
	events   *fakeEvents
	bookings fakeBookings
	runs     *fakeRuns
	inviter  *fakeInviter
	mail     *fakeMail
	clk      *clock.FakeClock
	s        *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	r, err := notify.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	h := &harness{
		events:   &fakeEvents{},
		bookings: fakeBookings{},
		runs:     &fakeRuns{},
		inviter:  &fakeInviter{},
		mail:     &fakeMail{},
		clk:      clock.Fake(testNow),
	}
	h.s = New(Deps{
		Events:      h.events,
		Bookings:    h.bookings,
		Accounts:    fakeAccounts{},
		Runs:        h.runs,
		Inviter:     h.inviter,
		Renderer:    r,
		Mail:        h.mail,
		Clock:       h.clk,
		Location:    time.UTC,
		FrontendURL: "https://app.example/",
		Log:         zerolog.Nop(),
	})
	return h
}

func daysOut(n int) time.Time {
	return time.Date(2025, 3, 1+n, 18, 0, 0, 0, time.UTC)
}

func TestTenDayConfirmsWhenAllAccepted(t *testing.T) {
	h := newHarness(t)
	h.events.add("e1", model.EventPending, daysOut(10))
	h.bookings["e1"] = []model.BookingStatus{model.BookingAccepted, model.BookingAccepted}

	sum, err := h.s.Run(context.Background(), JobTenDay, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := h.events.status("e1"); got != model.EventConfirmed {
		t.Errorf("status = %s, want Confirmed", got)
	}
	if len(h.mail.sent) != 0 {
		t.Errorf("sent %d reminders, want none", len(h.mail.sent))
	}
	if sum.Examined != 1 || sum.Changed != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestTenDayRemindsOnce(t *testing.T) {
	h := newHarness(t)
	h.events.add("e1", model.EventPending, daysOut(10))
	h.events.add("later", model.EventPending, daysOut(11))
	h.bookings["e1"] = []model.BookingStatus{model.BookingAccepted, model.BookingPending}
	ctx := context.Background()

	if _, err := h.s.Run(ctx, JobTenDay, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := h.events.status("e1"); got != model.EventPartiallyConfirmed {
		t.Errorf("status = %s, want Partially-confirmed", got)
	}
	if got := h.events.status("later"); got != model.EventPending {
		t.Errorf("event outside the window changed to %s", got)
	}
	if len(h.mail.sent) != 1 {
		t.Fatalf("sent %d reminders, want 1", len(h.mail.sent))
	}
	m := h.mail.sent[0]
	if m.to != "carol@example.com" || !strings.Contains(m.msg.HTML, "https://app.example/user/events/e1") {
		t.Errorf("reminder to %s, html %q", m.to, m.msg.HTML)
	}

	if _, err := h.s.Run(ctx, JobTenDay, true); err != nil {
		t.Fatalf("forced rerun: %v", err)
	}
	if len(h.mail.sent) != 1 {
		t.Errorf("rerun sent another reminder; total %d", len(h.mail.sent))
	}
}

func TestTenDayRetriesFailedReminder(t *testing.T) {
	h := newHarness(t)
	h.events.add("e1", model.EventPending, daysOut(10))
	h.mail.err = errors.New("smtp down")
	ctx := context.Background()

	sum, err := h.s.Run(ctx, JobTenDay, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Failed != 1 {
		t.Errorf("failed = %d, want 1", sum.Failed)
	}
	if h.events.events["e1"].ReminderSentAt != nil {
		t.Error("reminder stamp kept after a failed send")
	}

	h.mail.err = nil
	if _, err := h.s.Run(ctx, JobTenDay, true); err != nil {
		t.Fatal(err)
	}
	if len(h.mail.sent) != 1 {
		t.Errorf("sent %d reminders after retry, want 1", len(h.mail.sent))
	}
}

func TestThreeDayCancelsAndInvites(t *testing.T) {
	h := newHarness(t)
	h.events.add("pending", model.EventPending, daysOut(3))
	h.events.add("partial", model.EventPartiallyConfirmed, daysOut(3))
	h.events.add("confirmed", model.EventConfirmed, daysOut(3))
	h.events.add("next-week", model.EventPending, daysOut(7))

	sum, err := h.s.Run(context.Background(), JobThreeDay, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, id := range []string{"pending", "partial"} {
		if got := h.events.status(id); got != model.EventCancelled {
			t.Errorf("%s status = %s, want Cancelled", id, got)
		}
	}
	if got := h.events.status("next-week"); got != model.EventPending {
		t.Errorf("next-week status = %s", got)
	}
	if len(h.inviter.calls) != 1 || h.inviter.calls[0] != "confirmed" {
		t.Errorf("invited %v, want [confirmed]", h.inviter.calls)
	}
	if sum.Changed != 2 || sum.Notified != 2 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestThreeDaySkipsAlreadyInvited(t *testing.T) {
	h := newHarness(t)
	h.events.add("confirmed", model.EventConfirmed, daysOut(3))
	h.inviter.err = repository.ErrInvitesAlreadySent

	sum, err := h.s.Run(context.Background(), JobThreeDay, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Failed != 0 {
		t.Errorf("failed = %d, want 0", sum.Failed)
	}
}

func TestCompleteEnded(t *testing.T) {
	h := newHarness(t)
	h.events.add("past", model.EventConfirmed, daysOut(-2))
	h.events.add("future", model.EventConfirmed, daysOut(2))

	sum, err := h.s.Run(context.Background(), JobComplete, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Changed != 1 || h.events.status("past") != model.EventCompleted || h.events.status("future") != model.EventConfirmed {
		t.Errorf("summary = %+v, past %s, future %s", sum, h.events.status("past"), h.events.status("future"))
	}
}

func TestRunOncePerWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.s.Run(ctx, JobComplete, false); err != nil {
		t.Fatal(err)
	}
	if _, err := h.s.Run(ctx, JobComplete, false); !errors.Is(err, ErrAlreadyRan) {
		t.Errorf("second run: err = %v, want ErrAlreadyRan", err)
	}
	if _, err := h.s.Run(ctx, JobComplete, true); err != nil {
		t.Errorf("forced run: %v", err)
	}

	h.clk.Advance(24 * time.Hour)
	if _, err := h.s.Run(ctx, JobComplete, false); err != nil {
		t.Errorf("next day: %v", err)
	}
	if _, err := h.s.Run(ctx, "hourly", false); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("unknown job: err = %v", err)
	}
}

func TestFailedRunCanRetrySameDay(t *testing.T) {
	h := newHarness(t)
	h.events.add("pending", model.EventPending, daysOut(3))
	h.events.listErrs = []error{errors.New("connection refused")}
	ctx := context.Background()

	if _, err := h.s.Run(ctx, JobThreeDay, false); err == nil {
		t.Fatal("first run: want the listing error")
	}
	if got := h.events.status("pending"); got != model.EventPending {
		t.Fatalf("status after failed run = %s", got)
	}

	if _, err := h.s.Run(ctx, JobThreeDay, false); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := h.events.status("pending"); got != model.EventCancelled {
		t.Errorf("status after retry = %s, want Cancelled", got)
	}
	if _, err := h.s.Run(ctx, JobThreeDay, false); !errors.Is(err, ErrAlreadyRan) {
		t.Errorf("after a successful run: err = %v, want ErrAlreadyRan", err)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	h := newHarness(t)
	err := h.s.Start(context.Background(), Schedules{ThreeDay: "0 9 * * *", Complete: "not a schedule", TenDay: "0 9 * * *"})
	if err == nil {
		t.Fatal("Start accepted an invalid schedule")
	}
}
