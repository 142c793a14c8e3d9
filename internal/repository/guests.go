package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khushigoyal02/EMS-back/internal/database"
	"github.com/khushigoyal02/EMS-back/internal/model"
)

// GuestRepository handles guest lists and their sealed guests.
type GuestRepository struct {
	db *pgxpool.Pool
}

// NewGuestRepository constructs a GuestRepository.
func NewGuestRepository(db *pgxpool.Pool) *GuestRepository {
	return &GuestRepository{db: db}
}

const guestColumns = `id, guest_list_id, position, name, email, phone, email_index,
	rsvp_status, has_responded, invited_at, responded_at`

func scanGuest(row pgx.Row) (model.Guest, error) {
	var g model.Guest
	var name, email, phone []byte
	err := row.Scan(&g.ID, &g.GuestListID, &g.Position,
		&name, &email, &phone, &g.Contact.EmailIndex,
		&g.RSVPStatus, &g.HasResponded, &g.InvitedAt, &g.RespondedAt)
	g.Contact.Name, g.Contact.Email, g.Contact.Phone = name, email, phone
	return g, err
}

// Replace drops any existing list for the event and stores guests as the new
// list, in one transaction.
func (r *GuestRepository) Replace(ctx context.Context, eventID string, guests []model.Guest, now time.Time) (model.GuestList, error) {
	list := model.GuestList{ID: uuid.New().String(), EventID: eventID, CreatedAt: now}
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM guest_lists WHERE event_id = $1`, eventID); err != nil {
			return fmt.Errorf("delete guest list: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO guest_lists (id, event_id, invites_sent, created_at) VALUES ($1, $2, false, $3)`,
			list.ID, eventID, now); err != nil {
			return fmt.Errorf("insert guest list: %w", err)
		}

		rows := make([][]any, len(guests))
		for i, g := range guests {
			var phone any
			if len(g.Contact.Phone) > 0 {
				phone = []byte(g.Contact.Phone)
			}
			rows[i] = []any{
				uuid.New().String(), list.ID, i,
				[]byte(g.Contact.Name), []byte(g.Contact.Email), phone, g.Contact.EmailIndex,
				string(model.RSVPPending), false,
			}
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"guests"},
			[]string{"id", "guest_list_id", "position", "name", "email", "phone", "email_index", "rsvp_status", "has_responded"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("copy guests: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.GuestList{}, err
	}
	return list, nil
}

// Get returns the event's guest list with its guests in upload order.
func (r *GuestRepository) Get(ctx context.Context, eventID string) (model.GuestList, error) {
	var list model.GuestList
	err := r.db.QueryRow(ctx,
		`SELECT id, event_id, invites_sent, created_at FROM guest_lists WHERE event_id = $1`, eventID,
	).Scan(&list.ID, &list.EventID, &list.InvitesSent, &list.CreatedAt)
	if err != nil {
		return model.GuestList{}, notFound(fmt.Errorf("get guest list: %w", err))
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+guestColumns+` FROM guests WHERE guest_list_id = $1 ORDER BY position`, list.ID)
	if err != nil {
		return model.GuestList{}, fmt.Errorf("list guests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return model.GuestList{}, fmt.Errorf("scan guest: %w", err)
		}
		list.Guests = append(list.Guests, g)
	}
	return list, rows.Err()
}

// FindByEmailIndex looks a guest up by blind index.
func (r *GuestRepository) FindByEmailIndex(ctx context.Context, eventID string, index []byte) (model.Guest, error) {
	g, err := scanGuest(r.db.QueryRow(ctx,
		`SELECT `+guestColumns+` FROM guests
		 WHERE guest_list_id = (SELECT id FROM guest_lists WHERE event_id = $1) AND email_index = $2`,
		eventID, index,
	))
	if err != nil {
		return model.Guest{}, notFound(fmt.Errorf("find guest: %w", err))
	}
	return g, nil
}

// RecordRSVP sets the guest's answer if they have not answered yet. It
// reports false when an earlier answer is already stored.
func (r *GuestRepository) RecordRSVP(ctx context.Context, guestID string, status model.RSVPStatus, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE guests SET rsvp_status = $2, has_responded = true, responded_at = $3
		 WHERE id = $1 AND has_responded = false`,
		guestID, status, at,
	)
	if err != nil {
		return false, fmt.Errorf("record rsvp: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkInvited stamps invited_at on a guest that has not been stamped yet.
func (r *GuestRepository) MarkInvited(ctx context.Context, guestID string, at time.Time) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE guests SET invited_at = $2 WHERE id = $1 AND invited_at IS NULL`, guestID, at); err != nil {
		return fmt.Errorf("stamp invitation: %w", err)
	}
	return nil
}

// MarkInvitesSent flips invites_sent once every guest has been invited. It
// reports whether the flag is now set.
func (r *GuestRepository) MarkInvitesSent(ctx context.Context, listID string) (bool, error) {
	var sent bool
	err := r.db.QueryRow(ctx,
		`UPDATE guest_lists SET invites_sent = true
		 WHERE id = $1
		   AND NOT EXISTS (SELECT 1 FROM guests WHERE guest_list_id = $1 AND invited_at IS NULL)
		 RETURNING invites_sent`,
		listID,
	).Scan(&sent)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("flag invites sent: %w", err)
	}
	return sent, nil
}

// LockForSending takes a session-level advisory lock on the list so only one
// sender works through it at a time. The returned release func must be
// called when sending is done.
func (r *GuestRepository) LockForSending(ctx context.Context, listID string) (func(), error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, listID).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, ErrInvitationsInProgress
	}
	return func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, listID)
		conn.Release()
	}, nil
}
