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

// BookingRepository handles booking requests, completed bookings and the
// reviews attached to them.
type BookingRepository struct {
	db *pgxpool.Pool
}

// NewBookingRepository constructs a BookingRepository.
func NewBookingRepository(db *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `b.id, b.event_id, b.customer_id, b.vendor_id, b.service_id, b.status, b.price, b.created_at, b.updated_at`

func scanBooking(row pgx.Row, extra ...any) (model.BookingRequest, error) {
	var b model.BookingRequest
	dest := []any{&b.ID, &b.EventID, &b.CustomerID, &b.VendorID, &b.ServiceID, &b.Status, &b.Price, &b.CreatedAt, &b.UpdatedAt}
	err := row.Scan(append(dest, extra...)...)
	return b, err
}

const completedColumns = `c.id, c.booking_request_id, c.customer_id, c.vendor_id, c.service_id, c.event_id,
	c.amount, c.status, c.paid_at, c.payout_reference, c.has_reviewed, c.completed_at`

func scanCompleted(row pgx.Row, extra ...any) (model.CompletedBooking, error) {
	var c model.CompletedBooking
	dest := []any{
		&c.ID, &c.BookingRequestID, &c.CustomerID, &c.VendorID, &c.ServiceID, &c.EventID,
		&c.Amount, &c.Status, &c.PaidAt, &c.PayoutReference, &c.HasReviewed, &c.CompletedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return c, err
}

// Get returns one booking request.
func (r *BookingRepository) Get(ctx context.Context, id string) (model.BookingRequest, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM booking_requests b WHERE b.id = $1`, id))
	if err != nil {
		return model.BookingRequest{}, notFound(fmt.Errorf("get booking: %w", err))
	}
	return b, nil
}

// StatusesForEvent returns the status of every booking for an event.
// Completed bookings have left booking_requests and are reported as Accepted.
func (r *BookingRepository) StatusesForEvent(ctx context.Context, eventID string) ([]model.BookingStatus, error) {
	rows, err := r.db.Query(ctx,
		`SELECT status FROM booking_requests WHERE event_id = $1
		 UNION ALL
		 SELECT 'Accepted'::text FROM completed_bookings WHERE event_id = $1`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list booking statuses: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[model.BookingStatus])
}

// ListForCustomerEvent returns the active bookings of one event with vendor
// and service details.
func (r *BookingRepository) ListForCustomerEvent(ctx context.Context, eventID string) ([]model.CustomerBookingView, error) {
	rows, err := r.db.Query(ctx,
		`SELECT b.id, COALESCE(v.name, ''), COALESCE(s.name, ''), COALESCE(s.category, ''), b.price, b.status
		 FROM booking_requests b
		 LEFT JOIN accounts v ON v.id = b.vendor_id
		 LEFT JOIN services s ON s.id = b.service_id
		 WHERE b.event_id = $1
		 ORDER BY b.created_at`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list event bookings: %w", err)
	}
	defer rows.Close()

	var views []model.CustomerBookingView
	for rows.Next() {
		var v model.CustomerBookingView
		if err := rows.Scan(&v.ID, &v.VendorName, &v.ServiceName, &v.Category, &v.Price, &v.Status); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// ListVendorActive returns a vendor's booking requests whose event is still
// being planned, newest first.
func (r *BookingRepository) ListVendorActive(ctx context.Context, vendorID string) ([]model.VendorBookingView, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+bookingColumns+`, COALESCE(cu.name, ''), COALESCE(s.name, ''), `+eventColumns+`
		 FROM booking_requests b
		 JOIN events e ON e.id = b.event_id
		 LEFT JOIN accounts cu ON cu.id = b.customer_id
		 LEFT JOIN services s ON s.id = b.service_id
		 WHERE b.vendor_id = $1 AND e.status <> ALL($2::text[])
		 ORDER BY b.created_at DESC`,
		vendorID, []string{string(model.EventCancelled), string(model.EventConfirmed), string(model.EventCompleted)},
	)
	if err != nil {
		return nil, fmt.Errorf("list vendor bookings: %w", err)
	}
	defer rows.Close()

	var views []model.VendorBookingView
	for rows.Next() {
		var v model.VendorBookingView
		var e model.Event
		var services []string
		v.BookingRequest, err = scanBooking(rows,
			&v.CustomerName, &v.ServiceName,
			&e.ID, &e.CreatedBy, &e.Name, &e.Location, &e.Description,
			&e.Date, &e.StartTime, &e.EndTime, &e.StartDate, &e.EndDate,
			&e.StartsAt, &e.EndsAt, &e.Status, &services, &e.EstimatedCost, &e.ReminderSentAt, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan vendor booking: %w", err)
		}
		e.Services = services
		v.Event = e
		views = append(views, v)
	}
	return views, rows.Err()
}

// ChangeStatus locks the booking row, lets check validate the transition
// against the locked row, then applies it. Moving to Completed inserts the
// CompletedBooking and deletes the request in the same transaction.
func (r *BookingRepository) ChangeStatus(
	ctx context.Context,
	id string,
	to model.BookingStatus,
	now time.Time,
	check func(model.BookingRequest) error,
) (model.BookingRequest, *model.CompletedBooking, error) {
	var (
		booking   model.BookingRequest
		completed *model.CompletedBooking
	)
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		booking, err = scanBooking(tx.QueryRow(ctx,
			`SELECT `+bookingColumns+` FROM booking_requests b WHERE b.id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(fmt.Errorf("lock booking: %w", err))
		}
		if err := check(booking); err != nil {
			return err
		}
		if !model.CanTransition(booking.Status, to) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, booking.Status, to)
		}

		if to != model.BookingCompleted {
			if _, err := tx.Exec(ctx,
				`UPDATE booking_requests SET status = $2, updated_at = $3 WHERE id = $1`, id, to, now); err != nil {
				return fmt.Errorf("update booking status: %w", err)
			}
			booking.Status = to
			booking.UpdatedAt = now
			return nil
		}

		cb := model.CompletedBooking{
			ID:               uuid.New().String(),
			BookingRequestID: booking.ID,
			CustomerID:       booking.CustomerID,
			VendorID:         booking.VendorID,
			ServiceID:        booking.ServiceID,
			EventID:          booking.EventID,
			Amount:           booking.Price,
			Status:           model.PaymentPending,
			CompletedAt:      now,
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO completed_bookings (id, booking_request_id, customer_id, vendor_id, service_id, event_id, amount, status, completed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			cb.ID, cb.BookingRequestID, cb.CustomerID, cb.VendorID, cb.ServiceID, cb.EventID, cb.Amount, cb.Status, cb.CompletedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("insert completed booking: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM booking_requests WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete booking request: %w", err)
		}
		booking.Status = model.BookingCompleted
		booking.UpdatedAt = now
		completed = &cb
		return nil
	})
	if err != nil {
		return model.BookingRequest{}, nil, err
	}
	return booking, completed, nil
}

// GetCompleted returns one completed booking.
func (r *BookingRepository) GetCompleted(ctx context.Context, id string) (model.CompletedBooking, error) {
	c, err := scanCompleted(r.db.QueryRow(ctx, `SELECT `+completedColumns+` FROM completed_bookings c WHERE c.id = $1`, id))
	if err != nil {
		return model.CompletedBooking{}, notFound(fmt.Errorf("get completed booking: %w", err))
	}
	return c, nil
}

const completedViewQuery = `SELECT ` + completedColumns + `,
	COALESCE(cu.name, ''), COALESCE(v.name, ''), COALESCE(e.name, ''), COALESCE(s.name, '')
	FROM completed_bookings c
	LEFT JOIN accounts cu ON cu.id = c.customer_id
	LEFT JOIN accounts v ON v.id = c.vendor_id
	LEFT JOIN events e ON e.id = c.event_id
	LEFT JOIN services s ON s.id = c.service_id`

func (r *BookingRepository) listCompleted(ctx context.Context, where string, args ...any) ([]model.CompletedBookingView, error) {
	rows, err := r.db.Query(ctx, completedViewQuery+where+` ORDER BY c.completed_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list completed bookings: %w", err)
	}
	defer rows.Close()

	var views []model.CompletedBookingView
	for rows.Next() {
		var v model.CompletedBookingView
		v.CompletedBooking, err = scanCompleted(rows, &v.CustomerName, &v.VendorName, &v.EventName, &v.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("scan completed booking: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// ListCompletedByVendor returns a vendor's completed bookings.
func (r *BookingRepository) ListCompletedByVendor(ctx context.Context, vendorID string) ([]model.CompletedBookingView, error) {
	return r.listCompleted(ctx, ` WHERE c.vendor_id = $1`, vendorID)
}

// ListCompletedByEvent returns an event's completed bookings.
func (r *BookingRepository) ListCompletedByEvent(ctx context.Context, eventID string) ([]model.CompletedBookingView, error) {
	return r.listCompleted(ctx, ` WHERE c.event_id = $1`, eventID)
}

// ListAllCompleted returns every completed booking for payout review.
func (r *BookingRepository) ListAllCompleted(ctx context.Context) ([]model.CompletedBookingView, error) {
	return r.listCompleted(ctx, "")
}

// MonthlyStats groups a vendor's paid bookings by the month they were paid.
func (r *BookingRepository) MonthlyStats(ctx context.Context, vendorID string) ([]model.MonthlyStat, error) {
	rows, err := r.db.Query(ctx,
		`SELECT EXTRACT(YEAR FROM paid_at)::int, EXTRACT(MONTH FROM paid_at)::int, SUM(amount)::float8, COUNT(*)::int
		 FROM completed_bookings
		 WHERE vendor_id = $1 AND status = $2 AND paid_at IS NOT NULL
		 GROUP BY 1, 2
		 ORDER BY 1, 2`,
		vendorID, model.PaymentPaid,
	)
	if err != nil {
		return nil, fmt.Errorf("monthly stats: %w", err)
	}
	defer rows.Close()

	var stats []model.MonthlyStat
	for rows.Next() {
		var s model.MonthlyStat
		if err := rows.Scan(&s.Year, &s.Month, &s.TotalEarnings, &s.Count); err != nil {
			return nil, fmt.Errorf("scan monthly stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// ReservePayout locks the completed booking and moves it to paying before any
// money moves. A paid booking is ErrAlreadyPaid. A booking already paying is
// returned as is when its transfer reference is known, so the caller can
// finish it without a second transfer, and is ErrPayoutInProgress otherwise.
func (r *BookingRepository) ReservePayout(ctx context.Context, id string) (model.CompletedBooking, error) {
	var booking model.CompletedBooking
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		booking, err = scanCompleted(tx.QueryRow(ctx,
			`SELECT `+completedColumns+` FROM completed_bookings c WHERE c.id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(fmt.Errorf("lock completed booking: %w", err))
		}
		switch booking.Status {
		case model.PaymentPaid:
			return ErrAlreadyPaid
		case model.PaymentPaying:
			if booking.PayoutReference == "" {
				return ErrPayoutInProgress
			}
			return nil
		}
		if _, err := tx.Exec(ctx,
			`UPDATE completed_bookings SET status = $2 WHERE id = $1`, id, model.PaymentPaying); err != nil {
			return fmt.Errorf("reserve payout: %w", err)
		}
		booking.Status = model.PaymentPaying
		return nil
	})
	if err != nil {
		return model.CompletedBooking{}, err
	}
	return booking, nil
}

// RecordPayoutReference stores the provider reference of a transfer made for
// a paying booking. A reference already on file is never replaced.
func (r *BookingRepository) RecordPayoutReference(ctx context.Context, id, reference string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE completed_bookings SET payout_reference = $3
		 WHERE id = $1 AND status = $2 AND payout_reference = ''`,
		id, model.PaymentPaying, reference)
	if err != nil {
		return fmt.Errorf("record payout reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// ReleasePayout returns a paying booking with no recorded transfer to
// pending.
func (r *BookingRepository) ReleasePayout(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE completed_bookings SET status = $2
		 WHERE id = $1 AND status = $3 AND payout_reference = ''`,
		id, model.PaymentPending, model.PaymentPaying)
	if err != nil {
		return fmt.Errorf("release payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// FinishPayout stamps a paying booking with a recorded reference as paid and
// writes the ledger entry in the same transaction.
func (r *BookingRepository) FinishPayout(ctx context.Context, id string, now time.Time, ledger model.Transaction) (model.CompletedBooking, error) {
	var booking model.CompletedBooking
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		booking, err = scanCompleted(tx.QueryRow(ctx,
			`SELECT `+completedColumns+` FROM completed_bookings c WHERE c.id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(fmt.Errorf("lock completed booking: %w", err))
		}
		if booking.Status == model.PaymentPaid {
			return ErrAlreadyPaid
		}
		if booking.Status != model.PaymentPaying || booking.PayoutReference == "" {
			return ErrInvalidTransition
		}

		if _, err := tx.Exec(ctx,
			`UPDATE completed_bookings SET status = $2, paid_at = $3 WHERE id = $1`,
			id, model.PaymentPaid, now); err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		if err := insertTransaction(ctx, tx, ledger); err != nil {
			return err
		}

		booking.Status = model.PaymentPaid
		booking.PaidAt = &now
		return nil
	})
	if err != nil {
		return model.CompletedBooking{}, err
	}
	return booking, nil
}

// SubmitReview flips has_reviewed false→true and inserts the review in one
// transaction. A second review for the same booking is ErrAlreadyReviewed.
func (r *BookingRepository) SubmitReview(ctx context.Context, review model.VendorReview) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE completed_bookings SET has_reviewed = true WHERE id = $1 AND has_reviewed = false`, review.BookingID)
		if err != nil {
			return fmt.Errorf("flag reviewed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyReviewed
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO vendor_reviews (id, booking_id, rating, comment, created_at) VALUES ($1, $2, $3, $4, $5)`,
			review.ID, review.BookingID, review.Rating, review.Comment, review.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyReviewed
			}
			return fmt.Errorf("insert review: %w", err)
		}
		return nil
	})
}

// ListReviewsByVendor returns reviews of a vendor's completed bookings.
func (r *BookingRepository) ListReviewsByVendor(ctx context.Context, vendorID string) ([]model.ReviewView, error) {
	rows, err := r.db.Query(ctx,
		`SELECT rv.id, rv.booking_id, rv.rating, rv.comment, rv.created_at,
		        COALESCE(cu.name, ''), COALESCE(s.name, ''), COALESCE(e.name, '')
		 FROM vendor_reviews rv
		 JOIN completed_bookings c ON c.id = rv.booking_id
		 LEFT JOIN accounts cu ON cu.id = c.customer_id
		 LEFT JOIN services s ON s.id = c.service_id
		 LEFT JOIN events e ON e.id = c.event_id
		 WHERE c.vendor_id = $1
		 ORDER BY rv.created_at DESC`,
		vendorID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var views []model.ReviewView
	for rows.Next() {
		var v model.ReviewView
		if err := rows.Scan(&v.ID, &v.BookingID, &v.Rating, &v.Comment, &v.CreatedAt,
			&v.CustomerName, &v.ServiceName, &v.EventName); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}
