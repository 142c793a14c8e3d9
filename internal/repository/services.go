package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khushigoyal02/EMS-back/internal/model"
)

// ServiceRepository handles persistence for vendor services.
type ServiceRepository struct {
	db *pgxpool.Pool
}

// NewServiceRepository constructs a ServiceRepository.
func NewServiceRepository(db *pgxpool.Pool) *ServiceRepository {
	return &ServiceRepository{db: db}
}

const serviceColumns = `s.id, s.vendor_id, COALESCE(v.name, ''), s.name, s.category, s.description, s.price, s.image, s.created_at`

const serviceFrom = ` FROM services s LEFT JOIN accounts v ON v.id = s.vendor_id`

func scanService(row pgx.Row) (model.Service, error) {
	var s model.Service
	err := row.Scan(&s.ID, &s.VendorID, &s.VendorName, &s.Name, &s.Category, &s.Description, &s.Price, &s.Image, &s.CreatedAt)
	return s, err
}

func (r *ServiceRepository) list(ctx context.Context, where string, args ...any) ([]model.Service, error) {
	rows, err := r.db.Query(ctx, `SELECT `+serviceColumns+serviceFrom+where+` ORDER BY s.created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// Create inserts a service.
func (r *ServiceRepository) Create(ctx context.Context, s model.Service) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO services (id, vendor_id, name, category, description, price, image, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.VendorID, s.Name, s.Category, s.Description, s.Price, s.Image, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert service: %w", err)
	}
	return nil
}

// Get returns one service with its vendor name.
func (r *ServiceRepository) Get(ctx context.Context, id string) (model.Service, error) {
	s, err := scanService(r.db.QueryRow(ctx, `SELECT `+serviceColumns+serviceFrom+` WHERE s.id = $1`, id))
	if err != nil {
		return model.Service{}, notFound(fmt.Errorf("get service: %w", err))
	}
	return s, nil
}

// ListAll returns every service with vendor names.
func (r *ServiceRepository) ListAll(ctx context.Context) ([]model.Service, error) {
	return r.list(ctx, "")
}

// ListByVendor returns a vendor's services.
func (r *ServiceRepository) ListByVendor(ctx context.Context, vendorID string) ([]model.Service, error) {
	return r.list(ctx, ` WHERE s.vendor_id = $1`, vendorID)
}

// Update edits a service owned by s.VendorID. A service owned by someone
// else is reported as ErrNotFound.
func (r *ServiceRepository) Update(ctx context.Context, s model.Service) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE services
		 SET name = $3, category = $4, description = $5, price = $6, image = $7
		 WHERE id = $1 AND vendor_id = $2`,
		s.ID, s.VendorID, s.Name, s.Category, s.Description, s.Price, s.Image,
	)
	if err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a service owned by vendorID. A service with bookings is
// ErrInUse.
func (r *ServiceRepository) Delete(ctx context.Context, id, vendorID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM services WHERE id = $1 AND vendor_id = $2`, id, vendorID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrInUse
		}
		return fmt.Errorf("delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
