package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// Sender delivers one rendered message to one address.
type Sender interface {
	Send(ctx context.Context, to string, msg Message) error
}

// MailerConfig holds SMTP settings.
type MailerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Mailer sends HTML email over SMTP.
type Mailer struct {
	cfg MailerConfig
	log zerolog.Logger
}

// NewMailer returns a Mailer. From defaults to the SMTP username.
func NewMailer(cfg MailerConfig, log zerolog.Logger) *Mailer {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Mailer{cfg: cfg, log: log}
}

// Send implements Sender. Bad addresses and client setup errors are Permanent.
func (m *Mailer) Send(ctx context.Context, to string, msg Message) error {
	message := mail.NewMsg()
	if err := message.From(m.cfg.From); err != nil {
		return Permanent(fmt.Errorf("invalid from address: %w", err))
	}
	if err := message.To(to); err != nil {
		return Permanent(fmt.Errorf("invalid recipient: %w", err))
	}
	message.Subject(msg.Subject)
	message.SetBodyString(mail.TypeTextHTML, msg.HTML)
	message.AddAlternativeString(mail.TypeTextPlain, msg.Text)

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	if m.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(m.cfg.Timeout))
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return Permanent(fmt.Errorf("creating smtp client: %w", err))
	}

	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}
	if err := client.DialAndSendWithContext(ctx, message); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	m.log.Debug().Str("subject", msg.Subject).Msg("mail sent")
	return nil
}

// LogSender records messages in the log instead of delivering them. It is
// used when SMTP is not configured.
type LogSender struct {
	Log zerolog.Logger
}

// Send implements Sender by logging the subject and size of msg.
func (s LogSender) Send(_ context.Context, to string, msg Message) error {
	s.Log.Info().Str("subject", msg.Subject).Int("bytes", len(msg.HTML)).Msg("mail delivery disabled, message dropped")
	return nil
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
