// Package scheduler runs the daily event sweeps: cancelling or inviting three
// days out, completing finished events, and confirming or reminding ten days
// out.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/khushigoyal02/EMS-back/internal/clock"
	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/notify"
	"github.com/khushigoyal02/EMS-back/internal/repository"
	"github.com/khushigoyal02/EMS-back/internal/telemetry"
)

var tracer = telemetry.Tracer("scheduler")

// Job names, also used as run markers.
const (
	JobThreeDay = "three-day"
	JobComplete = "complete"
	JobTenDay   = "ten-day"
)

// Jobs lists every job name.
var Jobs = []string{JobThreeDay, JobComplete, JobTenDay}

// ErrAlreadyRan is returned when a job has already run in the current window.
var ErrAlreadyRan = errors.New("job already ran in this window")

// ErrUnknownJob is returned for a job name that is not in Jobs.
var ErrUnknownJob = errors.New("unknown job")

var activeStatuses = []model.EventStatus{model.EventPending, model.EventPartiallyConfirmed}

// EventStore is the event access the sweeps need.
type EventStore interface {
	ListStartingBetween(ctx context.Context, from, to time.Time, statuses []model.EventStatus) ([]model.Event, error)
	SetStatusIf(ctx context.Context, id string, from []model.EventStatus, to model.EventStatus) (bool, error)
	CompleteEnded(ctx context.Context, now time.Time) (int64, error)
	MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error)
	ClearReminder(ctx context.Context, id string) error
}

// BookingStore reports the booking statuses of an event.
type BookingStore interface {
	StatusesForEvent(ctx context.Context, eventID string) ([]model.BookingStatus, error)
}

// AccountStore resolves event owners.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (model.Account, error)
}

// RunStore records job runs. A released window can be claimed again.
type RunStore interface {
	Claim(ctx context.Context, job, window string, now time.Time) (bool, error)
	Release(ctx context.Context, job, window string) error
}

// Inviter sends an event's guest invitations.
type Inviter interface {
	SendInvitations(ctx context.Context, eventID string) (model.InvitationReport, error)
}

// Renderer renders a catalog message.
type Renderer interface {
	Render(name string, data any) (notify.Message, error)
}

// Schedules holds the cron expression of each job.
type Schedules struct {
	ThreeDay string
	Complete string
	TenDay   string
}

// Deps groups Scheduler collaborators.
type Deps struct {
	Events   EventStore
	Bookings BookingStore
	Accounts AccountStore
	Runs     RunStore
	Inviter  Inviter
	Renderer Renderer
	Mail     notify.Sender
	Clock    clock.Clock
	Location *time.Location
	// FrontendURL prefixes the event link in reminders.
	FrontendURL string
	Log         zerolog.Logger
}

// Summary reports what one run did.
type Summary struct {
	Job      string `json:"job"`
	Window   string `json:"window"`
	Examined int    `json:"examined"`
	Changed  int    `json:"changed"`
	Notified int    `json:"notified"`
	Failed   int    `json:"failed"`
}

// Scheduler runs the sweeps on a cron schedule or on demand.
type Scheduler struct {
	d    Deps
	cron *cron.Cron
}

// New constructs a Scheduler.
func New(d Deps) *Scheduler {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	d.FrontendURL = strings.TrimRight(d.FrontendURL, "/")
	return &Scheduler{d: d}
}

// Start registers the jobs on cron in the scheduler's location and starts
// it. Jobs run with ctx until Stop.
func (s *Scheduler) Start(ctx context.Context, sched Schedules) error {
	logger := cronLogger{log: s.d.Log}
	c := cron.New(
		cron.WithLocation(s.d.Location),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	for job, spec := range map[string]string{
		JobThreeDay: sched.ThreeDay,
		JobComplete: sched.Complete,
		JobTenDay:   sched.TenDay,
	} {
		job := job
		if _, err := c.AddFunc(spec, func() { s.runScheduled(ctx, job) }); err != nil {
			return fmt.Errorf("schedule %s %q: %w", job, spec, err)
		}
	}
	s.cron = c
	c.Start()
	s.d.Log.Info().Str("location", s.d.Location.String()).Msg("scheduler started")
	return nil
}

// Stop stops the cron and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.d.Log.Warn().Msg("scheduler stop timed out with jobs still running")
	}
}

func (s *Scheduler) runScheduled(ctx context.Context, job string) {
	if _, err := s.Run(ctx, job, false); err != nil {
		if errors.Is(err, ErrAlreadyRan) {
			s.d.Log.Info().Str("job", job).Msg("job already ran today, skipping")
			return
		}
		s.d.Log.Error().Err(err).Str("job", job).Msg("job failed")
	}
}

// Run executes one job once. Unless force is set, a job runs at most once
// per local calendar day; later calls in the same day return ErrAlreadyRan.
func (s *Scheduler) Run(ctx context.Context, job string, force bool) (Summary, error) {
	ctx, span := tracer.Start(ctx, "Scheduler."+job)
	defer span.End()

	now := s.d.Clock.Now().In(s.d.Location)
	sum := Summary{Job: job, Window: now.Format(model.DateLayout)}

	var sweep func(context.Context, time.Time, *Summary) error
	switch job {
	case JobThreeDay:
		sweep = s.threeDay
	case JobComplete:
		sweep = s.complete
	case JobTenDay:
		sweep = s.tenDay
	default:
		return sum, fmt.Errorf("%w %q", ErrUnknownJob, job)
	}

	if !force {
		claimed, err := s.d.Runs.Claim(ctx, job, sum.Window, now)
		if err != nil {
			return sum, fmt.Errorf("claim %s: %w", job, err)
		}
		if !claimed {
			return sum, ErrAlreadyRan
		}
	}

	err := sweep(ctx, now, &sum)
	s.d.Log.Info().
		Str("job", job).
		Str("window", sum.Window).
		Int("examined", sum.Examined).
		Int("changed", sum.Changed).
		Int("notified", sum.Notified).
		Int("failed", sum.Failed).
		Msg("job finished")
	if err != nil {
		span.RecordError(err)
		if !force {
			s.release(job, sum.Window)
		}
	}
	return sum, err
}

// release drops the window marker of a failed run so the next tick retries.
// It runs on its own context because the sweep's may already be cancelled.
func (s *Scheduler) release(job, window string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.d.Runs.Release(ctx, job, window); err != nil {
		s.d.Log.Error().Err(err).Str("job", job).Str("window", window).Msg("release job window")
	}
}

// day returns the local day offset days after now as [start, end).
func (s *Scheduler) day(now time.Time, offset int) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day()+offset, 0, 0, 0, 0, s.d.Location)
	return start, start.AddDate(0, 0, 1)
}

// threeDay cancels events three days out that are still not confirmed and
// sends the invitations of confirmed ones.
func (s *Scheduler) threeDay(ctx context.Context, now time.Time, sum *Summary) error {
	from, to := s.day(now, 3)
	evs, err := s.d.Events.ListStartingBetween(ctx, from, to,
		[]model.EventStatus{model.EventPending, model.EventPartiallyConfirmed, model.EventConfirmed})
	if err != nil {
		return err
	}

	var errs []error
	for _, ev := range evs {
		sum.Examined++
		log := s.d.Log.With().Str("event_id", ev.ID).Logger()

		if ev.Status != model.EventConfirmed {
			changed, err := s.d.Events.SetStatusIf(ctx, ev.ID, activeStatuses, model.EventCancelled)
			if err != nil {
				sum.Failed++
				errs = append(errs, fmt.Errorf("cancel %s: %w", ev.ID, err))
				continue
			}
			if changed {
				sum.Changed++
				log.Info().Str("from", string(ev.Status)).Msg("event cancelled")
			}
			continue
		}

		report, err := s.d.Inviter.SendInvitations(ctx, ev.ID)
		switch {
		case errors.Is(err, repository.ErrInvitesAlreadySent),
			errors.Is(err, repository.ErrInvitationsInProgress),
			errors.Is(err, repository.ErrNotFound):
			log.Info().Err(err).Msg("invitations skipped")
		case err != nil:
			sum.Failed++
			errs = append(errs, fmt.Errorf("invite %s: %w", ev.ID, err))
		default:
			sum.Notified += report.Sent
			sum.Failed += len(report.Failed)
		}
	}
	return errors.Join(errs...)
}

// complete marks Confirmed events that have ended as Completed.
func (s *Scheduler) complete(ctx context.Context, now time.Time, sum *Summary) error {
	n, err := s.d.Events.CompleteEnded(ctx, now)
	if err != nil {
		return err
	}
	sum.Changed = int(n)
	return nil
}

// tenDay confirms events ten days out whose bookings are all accepted and
// marks the rest Partially-confirmed, reminding their customer once.
func (s *Scheduler) tenDay(ctx context.Context, now time.Time, sum *Summary) error {
	from, to := s.day(now, 10)
	evs, err := s.d.Events.ListStartingBetween(ctx, from, to, activeStatuses)
	if err != nil {
		return err
	}

	var errs []error
	for _, ev := range evs {
		sum.Examined++
		log := s.d.Log.With().Str("event_id", ev.ID).Logger()

		statuses, err := s.d.Bookings.StatusesForEvent(ctx, ev.ID)
		if err != nil {
			sum.Failed++
			errs = append(errs, fmt.Errorf("booking statuses %s: %w", ev.ID, err))
			continue
		}

		if allAccepted(statuses) {
			changed, err := s.d.Events.SetStatusIf(ctx, ev.ID, activeStatuses, model.EventConfirmed)
			if err != nil {
				sum.Failed++
				errs = append(errs, fmt.Errorf("confirm %s: %w", ev.ID, err))
				continue
			}
			if changed {
				sum.Changed++
				log.Info().Msg("event confirmed")
			}
			continue
		}

		if ev.Status != model.EventPartiallyConfirmed {
			changed, err := s.d.Events.SetStatusIf(ctx, ev.ID, []model.EventStatus{model.EventPending}, model.EventPartiallyConfirmed)
			if err != nil {
				sum.Failed++
				errs = append(errs, fmt.Errorf("mark partially confirmed %s: %w", ev.ID, err))
				continue
			}
			if changed {
				sum.Changed++
			}
		}

		sent, err := s.remind(ctx, ev, now)
		if err != nil {
			sum.Failed++
			log.Error().Err(err).Msg("reminder")
			continue
		}
		if sent {
			sum.Notified++
		}
	}
	return errors.Join(errs...)
}

func allAccepted(statuses []model.BookingStatus) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, st := range statuses {
		if st != model.BookingAccepted {
			return false
		}
	}
	return true
}

// remind emails the event's customer unless a reminder has already been
// sent. A failed delivery clears the stamp so the next run retries.
func (s *Scheduler) remind(ctx context.Context, ev model.Event, now time.Time) (bool, error) {
	stamped, err := s.d.Events.MarkReminderSent(ctx, ev.ID, now)
	if err != nil {
		return false, err
	}
	if !stamped {
		return false, nil
	}

	err = s.sendReminder(ctx, ev)
	if err != nil {
		if cerr := s.d.Events.ClearReminder(ctx, ev.ID); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return false, err
	}
	return true, nil
}

func (s *Scheduler) sendReminder(ctx context.Context, ev model.Event) error {
	customer, err := s.d.Accounts.GetByID(ctx, ev.CreatedBy)
	if err != nil {
		return fmt.Errorf("load customer: %w", err)
	}
	msg, err := s.d.Renderer.Render(notify.TemplateReminder, notify.ReminderData{
		CustomerName: customer.Name,
		EventName:    ev.Name,
		Date:         ev.StartsAt.In(s.d.Location).Format("Mon Jan 02 2006"),
		EventURL:     s.d.FrontendURL + "/user/events/" + ev.ID,
	})
	if err != nil {
		return err
	}
	if err := s.d.Mail.Send(ctx, customer.Email, msg); err != nil {
		return fmt.Errorf("send reminder: %w", err)
	}
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
