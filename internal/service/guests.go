package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/khushigoyal02/EMS-back/internal/clock"
	"github.com/khushigoyal02/EMS-back/internal/events"
	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/notify"
	"github.com/khushigoyal02/EMS-back/internal/pii"
	"github.com/khushigoyal02/EMS-back/internal/repository"
)

// maxGuestsPerList bounds one upload.
const maxGuestsPerList = 2000

// ErrNoGuests is returned when an event has no guests to invite. It matches
// repository.ErrNotFound.
var ErrNoGuests error = notFoundError("no guest emails found for this event")

type notFoundError string

func (e notFoundError) Error() string        { return string(e) }
func (e notFoundError) Is(target error) bool { return target == repository.ErrNotFound }

// Renderer renders a catalog message.
type Renderer interface {
	Render(name string, data any) (notify.Message, error)
}

// GuestService manages guest lists, sends invitations and records RSVPs.
type GuestService struct {
	accounts  AccountStore
	events    EventStore
	guests    GuestStore
	sealer    *pii.Sealer
	renderer  Renderer
	mail      notify.Sender
	whatsapp  notify.Sender
	publisher events.Publisher
	clk       clock.Clock
	loc       *time.Location
	baseURL   string
	log       zerolog.Logger
}

// GuestDeps groups GuestService collaborators. WhatsApp may be nil.
type GuestDeps struct {
	Accounts  AccountStore
	Events    EventStore
	Guests    GuestStore
	Sealer    *pii.Sealer
	Renderer  Renderer
	Mail      notify.Sender
	WhatsApp  notify.Sender
	Publisher events.Publisher
	Clock     clock.Clock
	Location  *time.Location
	// PublicBaseURL prefixes the RSVP links in invitations.
	PublicBaseURL string
	Log           zerolog.Logger
}

// NewGuestService constructs a GuestService.
func NewGuestService(d GuestDeps) *GuestService {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	return &GuestService{
		accounts:  d.Accounts,
		events:    d.Events,
		guests:    d.Guests,
		sealer:    d.Sealer,
		renderer:  d.Renderer,
		mail:      d.Mail,
		whatsapp:  d.WhatsApp,
		publisher: d.Publisher,
		clk:       d.Clock,
		loc:       d.Location,
		baseURL:   strings.TrimRight(d.PublicBaseURL, "/"),
		log:       d.Log,
	}
}

// ownedEvent loads eventID and checks that the caller's customer account
// created it.
func (s *GuestService) ownedEvent(ctx context.Context, uid, eventID string) (model.Event, error) {
	customer, err := accountFor(ctx, s.accounts, uid, model.RoleCustomer)
	if err != nil {
		return model.Event{}, err
	}
	if !isUUID(eventID) {
		return model.Event{}, repository.ErrNotFound
	}
	ev, err := s.events.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Event{}, err
		}
		return model.Event{}, fmt.Errorf("load event: %w", err)
	}
	if ev.CreatedBy != customer.ID {
		return model.Event{}, ErrForbidden
	}
	return ev, nil
}

// Upload replaces the guest list of one of the caller's events. Contact
// details are sealed before they reach the store.
func (s *GuestService) Upload(ctx context.Context, uid, eventID string, input []model.GuestInput) (model.GuestList, error) {
	ctx, span := tracer.Start(ctx, "GuestService.Upload")
	defer span.End()

	ev, err := s.ownedEvent(ctx, uid, eventID)
	if err != nil {
		return model.GuestList{}, err
	}
	if len(input) == 0 {
		return model.GuestList{}, invalid("guest list must be a non-empty array")
	}
	if len(input) > maxGuestsPerList {
		return model.GuestList{}, invalid("a guest list can hold at most %d guests", maxGuestsPerList)
	}

	seen := make(map[string]int, len(input))
	guests := make([]model.Guest, 0, len(input))
	for i, in := range input {
		c := pii.Contact{
			Name:  strings.TrimSpace(in.Name),
			Email: pii.NormalizeEmail(in.Email),
			Phone: strings.TrimSpace(in.Phone),
		}
		if c.Name == "" {
			return model.GuestList{}, invalid("guest %d: name is required", i+1)
		}
		if !isValidEmail(c.Email) {
			return model.GuestList{}, invalid("guest %d: invalid email address", i+1)
		}
		if c.Phone != "" && !isValidPhone(c.Phone) {
			return model.GuestList{}, invalid("guest %d: invalid phone number", i+1)
		}
		if first, dup := seen[c.Email]; dup {
			return model.GuestList{}, invalid("guest %d has the same email as guest %d", i+1, first)
		}
		seen[c.Email] = i + 1

		sealed, err := s.sealer.SealContact(c)
		if err != nil {
			return model.GuestList{}, fmt.Errorf("seal guest %d: %w", i+1, err)
		}
		guests = append(guests, model.Guest{
			Position:   i,
			Contact:    sealed,
			RSVPStatus: model.RSVPPending,
		})
	}

	list, err := s.guests.Replace(ctx, ev.ID, guests, s.clk.Now())
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrDuplicate) {
			return model.GuestList{}, err
		}
		return model.GuestList{}, fmt.Errorf("store guest list: %w", err)
	}
	list.Guests = guests
	s.log.Info().Str("event_id", ev.ID).Int("guests", len(guests)).Msg("guest list uploaded")
	return list, nil
}

// SendInvitationsAs sends the invitations of one of the caller's events.
func (s *GuestService) SendInvitationsAs(ctx context.Context, uid, eventID string) (model.InvitationReport, error) {
	if _, err := s.ownedEvent(ctx, uid, eventID); err != nil {
		return model.InvitationReport{}, err
	}
	return s.SendInvitations(ctx, eventID)
}

// SendInvitations emails every guest of the event that has not been invited
// yet, one at a time. A successful send stamps the guest, and the list is
// flagged as sent once every guest is stamped. Failures are listed in the
// report and leave the flag unset, so a later call only retries the guests
// that were missed.
func (s *GuestService) SendInvitations(ctx context.Context, eventID string) (model.InvitationReport, error) {
	ctx, span := tracer.Start(ctx, "GuestService.SendInvitations")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", eventID))

	if !isUUID(eventID) {
		return model.InvitationReport{}, repository.ErrNotFound
	}
	ev, err := s.events.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.InvitationReport{}, err
		}
		return model.InvitationReport{}, fmt.Errorf("load event: %w", err)
	}

	list, err := s.loadList(ctx, eventID)
	if err != nil {
		return model.InvitationReport{}, err
	}

	release, err := s.guests.LockForSending(ctx, list.ID)
	if err != nil {
		if errors.Is(err, repository.ErrInvitationsInProgress) {
			return model.InvitationReport{}, err
		}
		return model.InvitationReport{}, fmt.Errorf("lock guest list: %w", err)
	}
	defer release()

	// Another sender may have finished between the first read and the lock.
	if list, err = s.loadList(ctx, eventID); err != nil {
		return model.InvitationReport{}, err
	}

	host := ""
	if a, err := s.accounts.GetByID(ctx, ev.CreatedBy); err == nil {
		host = a.Name
	}
	data := notify.InvitationData{
		EventName:   ev.Name,
		Description: ev.Description,
		When:        describeWhen(ev, s.loc),
		Location:    ev.Location,
		MapURL:      "https://www.google.com/maps?q=" + url.QueryEscape(ev.Location),
		Deadline:    ev.RSVPDeadline(s.loc).Format("January 2, 2006"),
		Host:        host,
	}

	report := model.InvitationReport{Failed: []model.InvitationFailure{}}
	for _, g := range list.Guests {
		if g.InvitedAt != nil {
			report.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return model.InvitationReport{}, err
		}
		if reason := s.invite(ctx, ev, g, data); reason != "" {
			report.Failed = append(report.Failed, model.InvitationFailure{Position: g.Position, Reason: reason})
			continue
		}
		report.Sent++
	}

	sent, err := s.guests.MarkInvitesSent(ctx, list.ID)
	if err != nil {
		return model.InvitationReport{}, fmt.Errorf("flag invitations: %w", err)
	}
	report.InvitesSent = sent
	span.SetAttributes(attribute.Int("invitations.sent", report.Sent), attribute.Int("invitations.failed", len(report.Failed)))

	if sent {
		if err := s.publisher.PublishJSON(ctx, events.InvitationsSent, map[string]any{
			"eventId": ev.ID,
			"guests":  len(list.Guests),
		}); err != nil {
			s.log.Warn().Err(err).Str("event_id", ev.ID).Msg("publish invitations sent")
		}
	}
	s.log.Info().
		Str("event_id", ev.ID).
		Int("sent", report.Sent).
		Int("skipped", report.Skipped).
		Int("failed", len(report.Failed)).
		Bool("complete", sent).
		Msg("invitations processed")
	return report, nil
}

func (s *GuestService) loadList(ctx context.Context, eventID string) (model.GuestList, error) {
	list, err := s.guests.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.GuestList{}, ErrNoGuests
		}
		return model.GuestList{}, fmt.Errorf("load guest list: %w", err)
	}
	if len(list.Guests) == 0 {
		return model.GuestList{}, ErrNoGuests
	}
	if list.InvitesSent {
		return model.GuestList{}, repository.ErrInvitesAlreadySent
	}
	return list, nil
}

// invite delivers one invitation and returns a failure reason, or "" on
// success. Contact details are only opened here.
func (s *GuestService) invite(ctx context.Context, ev model.Event, g model.Guest, data notify.InvitationData) string {
	log := s.log.With().Str("event_id", ev.ID).Int("position", g.Position).Logger()

	c, err := s.sealer.OpenContact(g.Contact)
	if err != nil {
		log.Error().Err(err).Msg("open guest contact")
		return "guest details could not be read"
	}

	encoded := base64.RawURLEncoding.EncodeToString([]byte(c.Email))
	data.GuestName = c.Name
	data.AcceptURL = fmt.Sprintf("%s/rsvp/%s/%s/accept", s.baseURL, ev.ID, encoded)
	data.DeclineURL = fmt.Sprintf("%s/rsvp/%s/%s/decline", s.baseURL, ev.ID, encoded)

	msg, err := s.renderer.Render(notify.TemplateInvitation, data)
	if err != nil {
		log.Error().Err(err).Msg("render invitation")
		return "invitation could not be rendered"
	}
	if err := s.mail.Send(ctx, c.Email, msg); err != nil {
		log.Warn().Err(err).Msg("send invitation")
		return "email delivery failed"
	}
	if err := s.guests.MarkInvited(ctx, g.ID, s.clk.Now()); err != nil {
		log.Error().Err(err).Msg("stamp invitation")
		return "invitation sent but could not be recorded"
	}

	if s.whatsapp != nil && c.Phone != "" {
		if err := s.whatsapp.Send(ctx, c.Phone, msg); err != nil {
			log.Warn().Err(err).Msg("whatsapp invitation")
		}
	}
	return ""
}

// describeWhen formats the date line of an invitation.
func describeWhen(ev model.Event, loc *time.Location) string {
	const day = "Monday, January 2, 2006"
	if ev.StartDate != "" && ev.StartDate != ev.EndDate {
		start := ev.StartsAt.In(loc)
		end := ev.EndsAt.In(loc).AddDate(0, 0, -1)
		return fmt.Sprintf("%s – %s", start.Format(day), end.Format(day))
	}
	out := ev.StartsAt.In(loc).Format(day)
	if ev.StartTime != "" {
		out += " · " + ev.StartsAt.In(loc).Format("3:04 PM")
		if ev.EndTime != "" {
			out += " – " + ev.EndsAt.In(loc).Format("3:04 PM")
		}
	}
	return out
}

// HandleRSVP records a guest's answer. encodedEmail is the base64 form of
// the guest's email as it appears in the invitation link; response is
// "accept" or "decline". Closed and already-answered RSVPs are reported as
// outcomes and change nothing.
func (s *GuestService) HandleRSVP(ctx context.Context, eventID, encodedEmail, response string) (model.RSVPResult, error) {
	ctx, span := tracer.Start(ctx, "GuestService.HandleRSVP")
	defer span.End()

	var status model.RSVPStatus
	switch strings.ToLower(strings.TrimSpace(response)) {
	case "accept":
		status = model.RSVPAccepted
	case "decline":
		status = model.RSVPDeclined
	default:
		return model.RSVPResult{}, invalid("response must be accept or decline")
	}
	email, ok := decodeGuestID(encodedEmail)
	if !ok {
		return model.RSVPResult{}, invalid("invalid guest link")
	}
	if !isUUID(eventID) {
		return model.RSVPResult{}, repository.ErrNotFound
	}

	ev, err := s.events.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.RSVPResult{}, err
		}
		return model.RSVPResult{}, fmt.Errorf("load event: %w", err)
	}

	deadline := ev.RSVPDeadline(s.loc)
	now := s.clk.Now()
	if now.After(deadline) {
		span.SetAttributes(attribute.String("rsvp.outcome", string(model.RSVPClosed)))
		return model.RSVPResult{Outcome: model.RSVPClosed, Deadline: deadline}, nil
	}

	index := s.sealer.Index(email)
	guest, err := s.guests.FindByEmailIndex(ctx, ev.ID, index)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.RSVPResult{}, err
		}
		return model.RSVPResult{}, fmt.Errorf("find guest: %w", err)
	}

	recorded, err := s.guests.RecordRSVP(ctx, guest.ID, status, now)
	if err != nil {
		return model.RSVPResult{}, fmt.Errorf("record rsvp: %w", err)
	}
	if !recorded {
		// Re-read so a concurrent answer is reported, not the stale Pending.
		if g, err := s.guests.FindByEmailIndex(ctx, ev.ID, index); err == nil {
			guest = g
		}
		return model.RSVPResult{Outcome: model.RSVPAlreadyResponded, Status: guest.RSVPStatus, Deadline: deadline}, nil
	}

	if err := s.publisher.PublishJSON(ctx, events.RSVPRecorded, map[string]any{
		"eventId": ev.ID,
		"guestId": guest.ID,
		"status":  status,
	}); err != nil {
		s.log.Warn().Err(err).Str("event_id", ev.ID).Msg("publish rsvp")
	}
	s.log.Info().Str("event_id", ev.ID).Str("guest_id", guest.ID).Str("status", string(status)).Msg("rsvp recorded")
	return model.RSVPResult{Outcome: model.RSVPRecorded, Status: status, Deadline: deadline}, nil
}

// decodeGuestID accepts standard and URL-safe base64, padded or not.
func decodeGuestID(encoded string) (string, bool) {
	encoded = strings.TrimSpace(encoded)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(encoded); err == nil && len(b) > 0 {
			return pii.NormalizeEmail(string(b)), true
		}
	}
	return "", false
}
