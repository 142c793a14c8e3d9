package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khushigoyal02/EMS-back/internal/model"
)

// AccountRepository handles persistence for customers, vendors and admins.
type AccountRepository struct {
	db *pgxpool.Pool
}

// NewAccountRepository constructs an AccountRepository.
func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, uid, role, name, email, phone, payout_recipient, created_at`

func scanAccount(row pgx.Row) (model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.UID, &a.Role, &a.Name, &a.Email, &a.Phone, &a.PayoutRecipient, &a.CreatedAt)
	return a, err
}

// Create inserts an account. A second account for the same uid is ErrDuplicate.
func (r *AccountRepository) Create(ctx context.Context, a model.Account) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO accounts (id, uid, role, name, email, phone, payout_recipient, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.UID, a.Role, a.Name, a.Email, a.Phone, a.PayoutRecipient, a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByUID returns the account for an identity provider subject.
func (r *AccountRepository) GetByUID(ctx context.Context, uid string) (model.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE uid = $1`, uid))
	if err != nil {
		return model.Account{}, notFound(fmt.Errorf("get account: %w", err))
	}
	return a, nil
}

// GetByID returns an account by primary key.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (model.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return model.Account{}, notFound(fmt.Errorf("get account: %w", err))
	}
	return a, nil
}

// ListByRole returns every account with role, newest first.
func (r *AccountRepository) ListByRole(ctx context.Context, role model.Role) ([]model.Account, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE role = $1 ORDER BY created_at DESC`, role)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// CountByRole returns how many accounts have role.
func (r *AccountRepository) CountByRole(ctx context.Context, role model.Role) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE role = $1`, role).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}
