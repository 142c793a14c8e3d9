package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
)

// ErrNotOnWhatsApp is returned when the recipient has no WhatsApp account.
var ErrNotOnWhatsApp = errors.New("number is not registered on WhatsApp")

// ErrWhatsAppNotLinked is returned by Send while the device is not paired or
// not connected. It is not Permanent.
var ErrWhatsAppNotLinked = errors.New("whatsapp device is not linked yet")

// WhatsApp delivers the plain-text form of a message to a phone number
// through a linked WhatsApp device. The device session lives in a sqlite
// database under the data directory.
type WhatsApp struct {
	client *whatsmeow.Client
	linked atomic.Bool
	log    zerolog.Logger
}

// NewWhatsApp opens (or creates) the device store in dataDir.
func NewWhatsApp(ctx context.Context, dataDir string, log zerolog.Logger) (*WhatsApp, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating whatsapp data dir: %w", err)
	}
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s/whatsmeow.db?_foreign_keys=on", dataDir), nil)
	if err != nil {
		return nil, fmt.Errorf("opening whatsapp store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading whatsapp device: %w", err)
	}

	w := &WhatsApp{client: whatsmeow.NewClient(device, nil), log: log}
	w.client.AddEventHandler(w.handleEvent)
	return w, nil
}

// Connect connects to WhatsApp and returns without waiting for the device to
// be linked. An unpaired device prints pairing QR codes to stderr from a
// background goroutine until ctx ends or pairing completes; Send fails with
// ErrWhatsAppNotLinked until then.
func (w *WhatsApp) Connect(ctx context.Context) error {
	if w.client.Store.ID != nil {
		if err := w.client.Connect(); err != nil {
			return fmt.Errorf("connecting to whatsapp: %w", err)
		}
		return nil
	}

	qrChan, err := w.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("requesting pairing code: %w", err)
	}
	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connecting to whatsapp: %w", err)
	}
	go w.pair(qrChan)
	return nil
}

func (w *WhatsApp) pair(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		if evt.Event != "code" {
			w.log.Info().Str("event", evt.Event).Msg("whatsapp pairing")
			continue
		}
		q, err := qrcode.New(evt.Code, qrcode.Medium)
		if err != nil {
			w.log.Warn().Err(err).Msg("rendering pairing qr code")
			continue
		}
		fmt.Fprintln(os.Stderr, q.ToSmallString(false))
		w.log.Info().Msg("scan the QR code with WhatsApp > Linked Devices to enable guest messages")
	}
}

// Disconnect closes the WhatsApp connection.
func (w *WhatsApp) Disconnect() {
	w.client.Disconnect()
}

// Send implements Sender. The recipient is a phone number. Invalid and
// unregistered numbers are Permanent errors.
func (w *WhatsApp) Send(ctx context.Context, phone string, msg Message) error {
	number := NormalizePhone(phone)
	if number == "" {
		return Permanent(fmt.Errorf("invalid phone number %q", phone))
	}
	if !w.linked.Load() {
		return ErrWhatsAppNotLinked
	}

	resp, err := w.client.IsOnWhatsApp(ctx, []string{"+" + number})
	if err != nil {
		return fmt.Errorf("checking whatsapp registration: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return Permanent(ErrNotOnWhatsApp)
	}

	text := msg.Subject + "\n\n" + msg.Text
	if _, err := w.client.SendMessage(ctx, resp[0].JID, &waE2E.Message{Conversation: &text}); err != nil {
		return fmt.Errorf("sending whatsapp message: %w", err)
	}
	return nil
}

func (w *WhatsApp) handleEvent(evt any) {
	switch evt.(type) {
	case *events.Connected:
		w.linked.Store(true)
		w.log.Info().Msg("connected to whatsapp")
	case *events.PairSuccess:
		w.log.Info().Msg("whatsapp device linked")
	case *events.Disconnected:
		w.linked.Store(false)
		w.log.Info().Msg("disconnected from whatsapp")
	case *events.LoggedOut:
		w.linked.Store(false)
		w.log.Warn().Msg("whatsapp device logged out")
	}
}

// NormalizePhone strips formatting from a phone number and returns its
// digits in international form. A ten-digit number is assumed to be Indian
// and gets the 91 country code.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	if len(digits) == 10 {
		digits = "91" + digits
	}
	if len(digits) < 8 {
		return ""
	}
	return digits
}
