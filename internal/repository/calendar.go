package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khushigoyal02/EMS-back/internal/model"
)

// CalendarTokenRepository stores Google OAuth tokens per identity.
type CalendarTokenRepository struct {
	db *pgxpool.Pool
}

// NewCalendarTokenRepository constructs a CalendarTokenRepository.
func NewCalendarTokenRepository(db *pgxpool.Pool) *CalendarTokenRepository {
	return &CalendarTokenRepository{db: db}
}

// Save inserts or replaces the token for t.UID.
func (r *CalendarTokenRepository) Save(ctx context.Context, t model.CalendarToken) error {
	var expiry *time.Time
	if !t.Expiry.IsZero() {
		expiry = &t.Expiry
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO calendar_tokens (uid, sealed_token, access_token, token_type, scope, expiry, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (uid) DO UPDATE
		 SET sealed_token = EXCLUDED.sealed_token,
		     access_token = EXCLUDED.access_token,
		     token_type   = EXCLUDED.token_type,
		     scope        = EXCLUDED.scope,
		     expiry       = EXCLUDED.expiry,
		     updated_at   = EXCLUDED.updated_at`,
		t.UID, t.SealedToken, t.AccessToken, t.TokenType, t.Scope, expiry, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save calendar token: %w", err)
	}
	return nil
}

// Get returns the stored token for uid or ErrNotFound.
func (r *CalendarTokenRepository) Get(ctx context.Context, uid string) (model.CalendarToken, error) {
	var (
		t      model.CalendarToken
		expiry *time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT uid, sealed_token, access_token, token_type, scope, expiry, updated_at
		 FROM calendar_tokens WHERE uid = $1`, uid,
	).Scan(&t.UID, &t.SealedToken, &t.AccessToken, &t.TokenType, &t.Scope, &expiry, &t.UpdatedAt)
	if err != nil {
		return model.CalendarToken{}, notFound(fmt.Errorf("get calendar token: %w", err))
	}
	if expiry != nil {
		t.Expiry = *expiry
	}
	return t, nil
}
