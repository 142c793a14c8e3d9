// Package config loads the application settings from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// App holds every setting the server and the job runner need.
// Optional integrations are disabled when their credentials are empty.
type App struct {
	// HTTP
	Port          string        `envconfig:"PORT" default:"8000"`
	PublicBaseURL string        `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8000"`
	FrontendURL   string        `envconfig:"FRONTEND_URL" default:"http://localhost:5173"`
	ReadTimeout   time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout  time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"60s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// DB
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Identity provider (Firebase project that issues ID tokens)
	FirebaseProjectID string `envconfig:"FIREBASE_PROJECT_ID" required:"true"`

	// Google OAuth for calendar entries
	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `envconfig:"GOOGLE_REDIRECT_URI"`
	CalendarTimeZone   string `envconfig:"CALENDAR_TIME_ZONE" default:"Asia/Kolkata"`
	// TokenAgeIdentity is the AGE-SECRET-KEY-1... used to seal stored refresh tokens.
	TokenAgeIdentity string `envconfig:"TOKEN_AGE_IDENTITY"`

	// SMTP
	SMTPHost     string        `envconfig:"SMTP_HOST" default:"smtp.gmail.com"`
	SMTPPort     int           `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string        `envconfig:"EMAIL_USER"`
	SMTPPassword string        `envconfig:"EMAIL_PASS"`
	SMTPFrom     string        `envconfig:"EMAIL_FROM"`
	SendTimeout  time.Duration `envconfig:"SEND_TIMEOUT" default:"20s"`

	// WhatsApp guest channel; empty disables it.
	WhatsAppDataDir string `envconfig:"WHATSAPP_DATA_DIR"`

	// PIIKey is a base64 encoded 32 byte master key for guest contact fields.
	PIIKey string `envconfig:"PII_KEY" required:"true"`

	// RabbitMQ
	RabbitURL      string `envconfig:"RABBIT_URL"`
	EventsExchange string `envconfig:"EVENTS_EXCHANGE" default:"plannova.exchange"`

	// Omise payouts
	OmisePublicKey string `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey string `envconfig:"OMISE_SECRET_KEY"`

	// Tracing
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Environment  string `envconfig:"ENV" default:"dev"`

	// Scheduled jobs
	JobsEnabled      bool   `envconfig:"JOBS_ENABLED" default:"true"`
	JobsTimeZone     string `envconfig:"JOBS_TIME_ZONE" default:"Asia/Kolkata"`
	ThreeDaySchedule string `envconfig:"THREE_DAY_SCHEDULE" default:"0 9 * * *"`
	CompleteSchedule string `envconfig:"COMPLETE_SCHEDULE" default:"0 1 * * *"`
	TenDaySchedule   string `envconfig:"TEN_DAY_SCHEDULE" default:"0 9 * * *"`

	// Receipts live as <transaction id>.pdf files in this directory.
	ReceiptsDir string `envconfig:"RECEIPTS_DIR" default:"uploads/receipts"`
}

// Load reads App from the environment.
func Load() (App, error) {
	var c App
	if err := envconfig.Process("", &c); err != nil {
		return App{}, fmt.Errorf("load config: %w", err)
	}
	return c, nil
}

// Location resolves JobsTimeZone, falling back to UTC.
func (c App) Location() *time.Location {
	loc, err := time.LoadLocation(c.JobsTimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CalendarEnabled reports whether Google OAuth credentials are configured.
func (c App) CalendarEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURI != ""
}
