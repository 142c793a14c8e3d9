package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khushigoyal02/EMS-back/internal/database"
	"github.com/khushigoyal02/EMS-back/internal/model"
)

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `e.id, e.created_by, e.name, e.location, e.description,
	COALESCE(to_char(e.event_date, 'YYYY-MM-DD'), ''), e.start_time, e.end_time,
	COALESCE(to_char(e.start_date, 'YYYY-MM-DD'), ''), COALESCE(to_char(e.end_date, 'YYYY-MM-DD'), ''),
	e.starts_at, e.ends_at, e.status, e.services::text[], e.estimated_cost, e.reminder_sent_at, e.created_at`

func scanEvent(row pgx.Row, extra ...any) (model.Event, error) {
	var e model.Event
	dest := []any{
		&e.ID, &e.CreatedBy, &e.Name, &e.Location, &e.Description,
		&e.Date, &e.StartTime, &e.EndTime, &e.StartDate, &e.EndDate,
		&e.StartsAt, &e.EndsAt, &e.Status, &e.Services, &e.EstimatedCost, &e.ReminderSentAt, &e.CreatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if e.Services == nil {
		e.Services = []string{}
	}
	return e, err
}

func collectEvents(rows pgx.Rows) ([]model.Event, error) {
	defer rows.Close()
	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CreateWithBookings inserts the event and one booking request per resolved
// service in a single transaction. Either all rows exist afterwards or none.
func (r *EventRepository) CreateWithBookings(ctx context.Context, e model.Event, requests []model.BookingRequest) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO events (id, created_by, name, location, description,
			                     event_date, start_time, end_time, start_date, end_date,
			                     starts_at, ends_at, status, services, estimated_cost, created_at)
			 VALUES ($1, $2, $3, $4, $5,
			         $6::text::date, $7, $8, $9::text::date, $10::text::date,
			         $11, $12, $13, '{}', 0, $14)`,
			e.ID, e.CreatedBy, e.Name, e.Location, e.Description,
			nullIfEmpty(e.Date), e.StartTime, e.EndTime, nullIfEmpty(e.StartDate), nullIfEmpty(e.EndDate),
			e.StartsAt, e.EndsAt, e.Status, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		batch := &pgx.Batch{}
		for _, br := range requests {
			batch.Queue(
				`INSERT INTO booking_requests (id, event_id, customer_id, vendor_id, service_id, status, price, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
				br.ID, br.EventID, br.CustomerID, br.VendorID, br.ServiceID, br.Status, br.Price, br.CreatedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert booking requests: %w", err)
		}

		// Services are attached last, once every request exists.
		_, err = tx.Exec(ctx,
			`UPDATE events SET services = $2::text[]::uuid[], estimated_cost = $3 WHERE id = $1`,
			e.ID, e.Services, e.EstimatedCost,
		)
		if err != nil {
			return fmt.Errorf("attach services: %w", err)
		}
		return nil
	})
}

// Get returns a single event or ErrNotFound.
func (r *EventRepository) Get(ctx context.Context, id string) (model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = $1`, id))
	if err != nil {
		return model.Event{}, notFound(fmt.Errorf("get event: %w", err))
	}
	return e, nil
}

// ListAdmin returns every event, newest first, with its customer name, the
// booked services and whether invitations have gone out.
func (r *EventRepository) ListAdmin(ctx context.Context) ([]model.AdminEventView, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`,
		        COALESCE(c.name, ''),
		        COALESCE(gl.invites_sent, false),
		        COALESCE((
		            SELECT json_agg(json_build_object('serviceName', s.name, 'vendorName', COALESCE(v.name, '')) ORDER BY s.name)
		            FROM services s
		            LEFT JOIN accounts v ON v.id = s.vendor_id
		            WHERE s.id = ANY(e.services)
		        ), '[]'::json)
		 FROM events e
		 LEFT JOIN accounts c ON c.id = e.created_by
		 LEFT JOIN guest_lists gl ON gl.event_id = e.id
		 ORDER BY e.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var views []model.AdminEventView
	for rows.Next() {
		var v model.AdminEventView
		v.Event, err = scanEvent(rows, &v.CustomerName, &v.InvitesSent, &v.ServiceInfo)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// ListByCustomer returns the events a customer created, newest first.
func (r *EventRepository) ListByCustomer(ctx context.Context, customerID string) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events e WHERE e.created_by = $1 ORDER BY e.created_at DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list customer events: %w", err)
	}
	return collectEvents(rows)
}

// ListStartingBetween returns events with starts_at in [from, to) whose
// status is one of statuses.
func (r *EventRepository) ListStartingBetween(ctx context.Context, from, to time.Time, statuses []model.EventStatus) ([]model.Event, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events e
		 WHERE e.starts_at >= $1 AND e.starts_at < $2 AND e.status = ANY($3::text[])
		 ORDER BY e.starts_at`,
		from, to, names,
	)
	if err != nil {
		return nil, fmt.Errorf("list events by start: %w", err)
	}
	return collectEvents(rows)
}

// SetStatusIf moves an event to status when its current status is one of
// from. It reports whether the row changed.
func (r *EventRepository) SetStatusIf(ctx context.Context, id string, from []model.EventStatus, to model.EventStatus) (bool, error) {
	names := make([]string, len(from))
	for i, s := range from {
		names[i] = string(s)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET status = $3 WHERE id = $1 AND status = ANY($2::text[])`, id, names, to)
	if err != nil {
		return false, fmt.Errorf("update event status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteEnded marks every Confirmed event whose end has passed as Completed.
func (r *EventRepository) CompleteEnded(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET status = $2 WHERE status = $1 AND ends_at < $3`,
		model.EventConfirmed, model.EventCompleted, now,
	)
	if err != nil {
		return 0, fmt.Errorf("complete ended events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkReminderSent stamps reminder_sent_at once. It reports false when the
// reminder had already been stamped.
func (r *EventRepository) MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET reminder_sent_at = $2 WHERE id = $1 AND reminder_sent_at IS NULL`, id, at)
	if err != nil {
		return false, fmt.Errorf("stamp reminder: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClearReminder undoes MarkReminderSent after a failed delivery so a later
// run can try again.
func (r *EventRepository) ClearReminder(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `UPDATE events SET reminder_sent_at = NULL WHERE id = $1`, id); err != nil {
		return fmt.Errorf("clear reminder: %w", err)
	}
	return nil
}
