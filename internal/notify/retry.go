package notify

import (
	"context"
	"time"

	"github.com/khushigoyal02/EMS-back/internal/clock"
	"github.com/rs/zerolog"
)

// sendMaxAttempts bounds delivery attempts per recipient. Backoff between
// attempts doubles from one second (1s, 2s).
const sendMaxAttempts = 3

// Retrying wraps a Sender with bounded exponential backoff. Errors marked
// Permanent are returned without retrying.
type Retrying struct {
	next  Sender
	clock clock.Clock
	log   zerolog.Logger
}

// NewRetrying wraps next. Backoff waits on clk.
func NewRetrying(next Sender, clk clock.Clock, log zerolog.Logger) *Retrying {
	return &Retrying{next: next, clock: clk, log: log}
}

// Send delivers msg through the wrapped Sender, retrying transient failures.
// It returns the last error once the attempts run out.
func (r *Retrying) Send(ctx context.Context, to string, msg Message) error {
	var lastErr error
	for attempt := 0; attempt < sendMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(backoff):
			}
		}

		err := r.next.Send(ctx, to, msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if IsPermanent(err) {
			return err
		}

		r.log.Warn().
			Err(err).
			Str("subject", msg.Subject).
			Int("attempt", attempt+1).
			Msg("transient send failure, retrying")
	}
	return lastErr
}
