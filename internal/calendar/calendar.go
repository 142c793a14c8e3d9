// Package calendar links accounts to Google Calendar and creates entries for
// accepted bookings.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/khushigoyal02/EMS-back/internal/clock"
	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/pii"
	"github.com/khushigoyal02/EMS-back/internal/repository"
)

// ErrNotLinked is returned when the account never granted calendar access.
var ErrNotLinked = errors.New("google calendar is not linked for this account")

// Reminder offsets attached to every entry.
const (
	emailReminderMinutes = 2 * 24 * 60
	popupReminderMinutes = 60
)

// Config holds the OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TimeZone     string
	Timeout      time.Duration
	// StateKey signs the OAuth state. It must be 32 bytes.
	StateKey []byte
	StateTTL time.Duration
}

// TokenStore persists one token per identity subject.
type TokenStore interface {
	Save(ctx context.Context, t model.CalendarToken) error
	Get(ctx context.Context, uid string) (model.CalendarToken, error)
}

// Entry is a calendar entry to create.
type Entry struct {
	Summary     string
	Location    string
	Description string
	Start       time.Time
	End         time.Time
	// AllDay entries use StartDate and EndDate (inclusive) instead of times.
	AllDay    bool
	StartDate string
	EndDate   string
}

// Bridge performs the OAuth dance and inserts calendar entries on behalf of
// linked accounts.
type Bridge struct {
	oauth    *oauth2.Config
	store    TokenStore
	sealer   *pii.TokenSealer
	states   *stateSigner
	timeZone string
	timeout  time.Duration
	clk      clock.Clock
	log      zerolog.Logger

	// endpoint overrides the Calendar API base URL.
	endpoint string
}

// New constructs a Bridge.
func New(cfg Config, store TokenStore, sealer *pii.TokenSealer, clk clock.Clock, log zerolog.Logger) (*Bridge, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	states, err := newStateSigner(cfg.StateKey, cfg.StateTTL, clk)
	if err != nil {
		return nil, err
	}
	return &Bridge{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gcal.CalendarEventsScope},
		},
		store:    store,
		sealer:   sealer,
		states:   states,
		timeZone: cfg.TimeZone,
		timeout:  timeout,
		clk:      clk,
		log:      log,
	}, nil
}

// AuthURL returns the consent page URL. The uid travels in a signed,
// expiring OAuth state and comes back to the callback.
func (b *Bridge) AuthURL(uid string) string {
	return b.oauth.AuthCodeURL(b.states.sign(uid), oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange checks the OAuth state, trades the authorization code for tokens
// and stores them with the refresh token sealed. It returns the uid the state
// was issued for, or ErrInvalidState.
func (b *Bridge) Exchange(ctx context.Context, state, code string) (string, error) {
	uid, err := b.states.verify(state)
	if err != nil {
		return "", err
	}
	if err := b.exchange(ctx, uid, code); err != nil {
		return "", err
	}
	return uid, nil
}

func (b *Bridge) exchange(ctx context.Context, uid, code string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	tok, err := b.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}

	stored := model.CalendarToken{UID: uid}
	if tok.RefreshToken != "" {
		if stored.SealedToken, err = b.sealer.Seal(tok.RefreshToken); err != nil {
			return err
		}
	} else {
		// Google omits the refresh token when consent was already granted.
		prev, err := b.store.Get(ctx, uid)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("exchange code: no refresh token issued")
			}
			return err
		}
		stored.SealedToken = prev.SealedToken
	}
	return b.save(ctx, stored, tok)
}

func (b *Bridge) save(ctx context.Context, stored model.CalendarToken, tok *oauth2.Token) error {
	stored.AccessToken = tok.AccessToken
	stored.TokenType = tok.TokenType
	if scope, ok := tok.Extra("scope").(string); ok {
		stored.Scope = scope
	}
	stored.Expiry = tok.Expiry
	stored.UpdatedAt = b.clk.Now()
	return b.store.Save(ctx, stored)
}

// CreateEvent inserts e in the primary calendar of uid and returns the
// entry's link.
func (b *Bridge) CreateEvent(ctx context.Context, uid string, e Entry) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	stored, err := b.store.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNotLinked
		}
		return "", err
	}
	refresh, err := b.sealer.Open(stored.SealedToken)
	if err != nil {
		return "", err
	}

	ts := b.oauth.TokenSource(ctx, &oauth2.Token{
		AccessToken:  stored.AccessToken,
		TokenType:    stored.TokenType,
		RefreshToken: refresh,
		Expiry:       stored.Expiry,
	})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if b.endpoint != "" {
		opts = append(opts, option.WithEndpoint(b.endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("calendar client: %w", err)
	}

	created, err := svc.Events.Insert("primary", b.toEvent(e)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}

	// Keep a refreshed access token so the next call skips the refresh.
	if tok, err := ts.Token(); err == nil && tok.AccessToken != stored.AccessToken {
		if err := b.save(ctx, stored, tok); err != nil {
			b.log.Warn().Err(err).Str("uid", uid).Msg("store refreshed calendar token")
		}
	}
	return created.HtmlLink, nil
}

func (b *Bridge) toEvent(e Entry) *gcal.Event {
	ev := &gcal.Event{
		Summary:     e.Summary,
		Location:    e.Location,
		Description: e.Description,
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: emailReminderMinutes},
				{Method: "popup", Minutes: popupReminderMinutes},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}
	if e.AllDay {
		ev.Start = &gcal.EventDateTime{Date: e.StartDate, TimeZone: b.timeZone}
		ev.End = &gcal.EventDateTime{Date: exclusiveEnd(e.EndDate), TimeZone: b.timeZone}
		return ev
	}
	ev.Start = &gcal.EventDateTime{DateTime: e.Start.Format(time.RFC3339), TimeZone: b.timeZone}
	ev.End = &gcal.EventDateTime{DateTime: e.End.Format(time.RFC3339), TimeZone: b.timeZone}
	return ev
}

// exclusiveEnd turns an inclusive last day into the day after, which is what
// all-day entries expect.
func exclusiveEnd(day string) string {
	t, err := time.Parse(model.DateLayout, day)
	if err != nil {
		return day
	}
	return t.AddDate(0, 0, 1).Format(model.DateLayout)
}
