// Package repository implements all database queries for the marketplace.
// It uses pgx directly (no ORM).
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique key already exists.
var ErrDuplicate = errors.New("already exists")

// ErrAlreadyReviewed is returned when a completed booking already has a review.
var ErrAlreadyReviewed = errors.New("booking has already been reviewed")

// ErrAlreadyPaid is returned when a completed booking has already been paid.
var ErrAlreadyPaid = errors.New("vendor has already been paid for this booking")

// ErrPayoutInProgress is returned when an earlier payout attempt left a
// booking paying with no recorded transfer.
var ErrPayoutInProgress = errors.New("a payout for this booking is in progress and must be reconciled")

// ErrInvitesAlreadySent is returned when every guest on a list has been invited.
var ErrInvitesAlreadySent = errors.New("invitations have already been sent")

// ErrInvitationsInProgress is returned when another sender holds the list.
var ErrInvitationsInProgress = errors.New("invitations are already being sent for this event")

// ErrInvalidTransition is returned when a booking cannot move to the
// requested status from its current one.
var ErrInvalidTransition = errors.New("invalid booking status transition")

// ErrInUse is returned when a row cannot be deleted because other rows
// still reference it.
var ErrInUse = errors.New("still referenced by existing bookings")

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// querier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
