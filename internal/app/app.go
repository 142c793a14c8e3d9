// Package app assembles the repositories, integrations and services shared by
// the API server and the job runner.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/khushigoyal02/EMS-back/internal/auth"
	"github.com/khushigoyal02/EMS-back/internal/calendar"
	"github.com/khushigoyal02/EMS-back/internal/clock"
	"github.com/khushigoyal02/EMS-back/internal/config"
	"github.com/khushigoyal02/EMS-back/internal/database"
	"github.com/khushigoyal02/EMS-back/internal/events"
	"github.com/khushigoyal02/EMS-back/internal/export"
	"github.com/khushigoyal02/EMS-back/internal/handler"
	"github.com/khushigoyal02/EMS-back/internal/logging"
	"github.com/khushigoyal02/EMS-back/internal/notify"
	"github.com/khushigoyal02/EMS-back/internal/payout"
	"github.com/khushigoyal02/EMS-back/internal/pii"
	"github.com/khushigoyal02/EMS-back/internal/repository"
	"github.com/khushigoyal02/EMS-back/internal/scheduler"
	"github.com/khushigoyal02/EMS-back/internal/service"
)

// App is the wired application.
type App struct {
	Config    config.App
	Pool      *pgxpool.Pool
	Handler   *handler.Handler
	Verifier  *auth.Verifier
	Scheduler *scheduler.Scheduler

	closers []func() error
}

// Build connects to the database, applies the schema and wires every
// component. Optional integrations fall back to local stand-ins when their
// settings are empty.
func Build(ctx context.Context, cfg config.App, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg}
	clk := clock.Real()
	loc := cfg.Location()

	// ── Storage ──
	pool, err := database.NewPool(ctx, cfg.DatabaseURL, logging.Component(log, "database"))
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	if err := database.Migrate(ctx, pool); err != nil {
		a.Close()
		return nil, err
	}

	accounts := repository.NewAccountRepository(pool)
	services := repository.NewServiceRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	bookings := repository.NewBookingRepository(pool)
	guests := repository.NewGuestRepository(pool)
	transactions := repository.NewTransactionRepository(pool)
	runs := repository.NewJobRunRepository(pool)

	// ── Secrets ──
	key, err := pii.ParseKey(cfg.PIIKey)
	if err != nil {
		a.Close()
		return nil, err
	}
	sealer, err := pii.NewSealer(key)
	if err != nil {
		a.Close()
		return nil, err
	}

	// ── Messaging ──
	renderer, err := notify.NewRenderer()
	if err != nil {
		a.Close()
		return nil, err
	}
	mailLog := logging.Component(log, "mail")
	var mail notify.Sender = notify.LogSender{Log: mailLog}
	if cfg.SMTPUser != "" && cfg.SMTPPassword != "" {
		mail = notify.NewMailer(notify.MailerConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Timeout:  cfg.SendTimeout,
		}, mailLog)
	} else {
		log.Warn().Msg("SMTP credentials not set, emails will only be logged")
	}
	mail = notify.NewRetrying(mail, clk, mailLog)

	var whatsapp notify.Sender
	if cfg.WhatsAppDataDir != "" {
		wa, err := notify.NewWhatsApp(ctx, cfg.WhatsAppDataDir, logging.Component(log, "whatsapp"))
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := wa.Connect(ctx); err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() error { wa.Disconnect(); return nil })
		whatsapp = wa
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.RabbitURL != "" {
		amqp, err := events.NewAMQP(cfg.RabbitURL, cfg.EventsExchange)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, amqp.Close)
		publisher = amqp
	}

	var gateway payout.Gateway = payout.Manual{}
	if cfg.OmiseSecretKey != "" {
		omise, err := payout.NewOmise(cfg.OmisePublicKey, cfg.OmiseSecretKey)
		if err != nil {
			a.Close()
			return nil, err
		}
		gateway = omise
	}

	// ── Services ──
	bookingDeps := service.BookingDeps{
		Accounts:  accounts,
		Services:  services,
		Events:    eventRepo,
		Bookings:  bookings,
		Publisher: publisher,
		Clock:     clk,
		Log:       logging.Component(log, "bookings"),
	}
	var bridge *calendar.Bridge
	if cfg.CalendarEnabled() {
		if cfg.TokenAgeIdentity == "" {
			a.Close()
			return nil, errors.New("TOKEN_AGE_IDENTITY is required when Google Calendar is configured")
		}
		tokens, err := pii.NewTokenSealer(cfg.TokenAgeIdentity)
		if err != nil {
			a.Close()
			return nil, err
		}
		stateKey, err := pii.SubKey(key, "oauth-state")
		if err != nil {
			a.Close()
			return nil, err
		}
		bridge, err = calendar.New(calendar.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			TimeZone:     cfg.CalendarTimeZone,
			Timeout:      cfg.SendTimeout,
			StateKey:     stateKey,
		}, repository.NewCalendarTokenRepository(pool), tokens, clk, logging.Component(log, "calendar"))
		if err != nil {
			a.Close()
			return nil, err
		}
		bookingDeps.Calendar = bridge
	}

	accountSvc := service.NewAccountService(accounts, clk, logging.Component(log, "accounts"))
	catalogSvc := service.NewCatalogService(accounts, services, clk)
	eventSvc := service.NewEventService(service.EventDeps{
		Accounts:  accounts,
		Services:  services,
		Events:    eventRepo,
		Bookings:  bookings,
		Guests:    guests,
		Sealer:    sealer,
		Publisher: publisher,
		Clock:     clk,
		Location:  loc,
		Log:       logging.Component(log, "events"),
	})
	bookingSvc := service.NewBookingService(bookingDeps)
	guestSvc := service.NewGuestService(service.GuestDeps{
		Accounts:      accounts,
		Events:        eventRepo,
		Guests:        guests,
		Sealer:        sealer,
		Renderer:      renderer,
		Mail:          mail,
		WhatsApp:      whatsapp,
		Publisher:     publisher,
		Clock:         clk,
		Location:      loc,
		PublicBaseURL: cfg.PublicBaseURL,
		Log:           logging.Component(log, "guests"),
	})
	paymentSvc := service.NewPaymentService(accounts, eventRepo, bookings, gateway, publisher, clk, logging.Component(log, "payments"))
	transactionSvc := service.NewTransactionService(accounts, transactions, export.NewReceipts(cfg.ReceiptsDir), clk, loc, logging.Component(log, "transactions"))

	deps := handler.Deps{
		Accounts:     accountSvc,
		Catalog:      catalogSvc,
		Events:       eventSvc,
		Guests:       guestSvc,
		Bookings:     bookingSvc,
		Payments:     paymentSvc,
		Transactions: transactionSvc,
		Pages:        renderer,
		FrontendURL:  cfg.FrontendURL,
		Log:          logging.Component(log, "http"),
	}
	if bridge != nil {
		deps.Calendar = bridge
	}
	a.Handler = handler.New(deps)
	a.Verifier = auth.NewVerifier(cfg.FirebaseProjectID,
		auth.NewGoogleCerts(&http.Client{Timeout: 10 * time.Second}, auth.GoogleCertsURL))

	a.Scheduler = scheduler.New(scheduler.Deps{
		Events:      eventRepo,
		Bookings:    bookings,
		Accounts:    accounts,
		Runs:        runs,
		Inviter:     guestSvc,
		Renderer:    renderer,
		Mail:        mail,
		Clock:       clk,
		Location:    loc,
		FrontendURL: cfg.FrontendURL,
		Log:         logging.Component(log, "scheduler"),
	})
	return a, nil
}

// Schedules returns the configured cron expressions.
func (a *App) Schedules() scheduler.Schedules {
	return scheduler.Schedules{
		ThreeDay: a.Config.ThreeDaySchedule,
		Complete: a.Config.CompleteSchedule,
		TenDay:   a.Config.TenDaySchedule,
	}
}

// Close releases integrations in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("closing app: %w", errors.Join(errs...))
	}
	return nil
}
