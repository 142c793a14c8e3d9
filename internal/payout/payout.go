// Package payout transfers money owed to vendors.
package payout

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// ErrNoRecipient is returned when the vendor has no payout recipient on file.
var ErrNoRecipient = errors.New("vendor has no payout recipient")

// ErrRejected wraps a provider response that refused the transfer. No money
// moved. Any other Transfer error leaves the outcome unknown.
var ErrRejected = errors.New("transfer rejected")

// Request describes one transfer. Amount is in rupees.
type Request struct {
	BookingID string
	Recipient string
	Amount    float64
}

// Gateway performs a transfer and returns its provider reference.
type Gateway interface {
	Transfer(ctx context.Context, req Request) (string, error)
	Method() string
}

// Omise transfers through an Omise recipient.
type Omise struct {
	client *omise.Client
}

// NewOmise returns a gateway using the given Omise key pair.
func NewOmise(publicKey, secretKey string) (*Omise, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	c.SetDebug(false)
	return &Omise{client: c}, nil
}

// Method reports "omise".
func (o *Omise) Method() string { return "omise" }

// Transfer sends req.Amount to req.Recipient. The booking ID travels in the
// transfer metadata so a payout can be matched to its booking on the Omise
// dashboard.
func (o *Omise) Transfer(ctx context.Context, req Request) (string, error) {
	if req.Recipient == "" {
		return "", ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	transfer := &omise.Transfer{}
	err := o.client.Do(transfer, &operations.CreateTransfer{
		Amount:    toMinorUnits(req.Amount),
		Recipient: req.Recipient,
		Metadata:  map[string]interface{}{"booking_id": req.BookingID},
	})
	if err != nil {
		var apiErr *omise.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return "", fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return "", fmt.Errorf("omise transfer: %w", err)
	}
	return transfer.ID, nil
}

// Manual records the payout for out-of-band settlement.
type Manual struct{}

// Method reports "manual".
func (Manual) Method() string { return "manual" }

// Transfer returns a fresh manual reference. Nothing is sent.
func (Manual) Transfer(context.Context, Request) (string, error) {
	return "manual-" + uuid.NewString(), nil
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
