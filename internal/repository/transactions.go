package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khushigoyal02/EMS-back/internal/model"
)

// TransactionRepository handles the ledger.
type TransactionRepository struct {
	db *pgxpool.Pool
}

// NewTransactionRepository constructs a TransactionRepository.
func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, user_name, event_name, COALESCE(event_id::text, ''), type, amount, method, status, reference, created_at`

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(&t.ID, &t.UserName, &t.EventName, &t.EventID, &t.Type, &t.Amount, &t.Method, &t.Status, &t.Reference, &t.CreatedAt)
	t.Flagged = t.IsFlagged()
	return t, err
}

func insertTransaction(ctx context.Context, q querier, t model.Transaction) error {
	_, err := q.Exec(ctx,
		`INSERT INTO transactions (id, user_name, event_name, event_id, type, amount, method, status, reference, created_at)
		 VALUES ($1, $2, $3, $4::text::uuid, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.UserName, t.EventName, nullIfEmpty(t.EventID), t.Type, t.Amount, t.Method, t.Status, t.Reference, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// Create records a ledger entry.
func (r *TransactionRepository) Create(ctx context.Context, t model.Transaction) error {
	return insertTransaction(ctx, r.db, t)
}

// filterBuilder collects numbered WHERE conditions. Every "?" in a
// condition becomes the placeholder of its single argument.
type filterBuilder struct {
	conds []string
	args  []any
}

func (f filterBuilder) where() (string, []any) {
	if len(f.conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(f.conds, " AND "), f.args
}

func (f *filterBuilder) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(f.args))))
}

func buildFilter(filter model.TransactionFilter) filterBuilder {
	var f filterBuilder
	if filter.Type != "" {
		f.add("type = ?", filter.Type)
	}
	if filter.Status != "" {
		f.add("status = ?", filter.Status)
	}
	if filter.EventID != "" {
		f.add("event_id::text = ?", filter.EventID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		f.add("(user_name ILIKE ? OR event_name ILIKE ? OR reference ILIKE ? OR method ILIKE ?)", "%"+escapeLike(s)+"%")
	}
	if filter.From != nil {
		f.add("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		f.add("created_at < ?", *filter.To)
	}
	return f
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns one page of entries matching filter, newest first, together
// with the total number of matches. Page and Limit must already be positive.
func (r *TransactionRepository) List(ctx context.Context, filter model.TransactionFilter) (model.TransactionPage, error) {
	where, args := buildFilter(filter).where()

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return model.TransactionPage{}, fmt.Errorf("count transactions: %w", err)
	}

	n := len(args)
	pageArgs := append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	rows, err := r.db.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions`+where+
			` ORDER BY created_at DESC, id LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2),
		pageArgs...,
	)
	if err != nil {
		return model.TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}
	txs, err := collectTransactions(rows)
	if err != nil {
		return model.TransactionPage{}, err
	}
	return model.TransactionPage{Transactions: txs, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// ListAll returns every entry matching filter, ignoring pagination.
func (r *TransactionRepository) ListAll(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, error) {
	where, args := buildFilter(filter).where()
	rows, err := r.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions`+where+` ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collectTransactions(rows)
}

// Get returns one ledger entry.
func (r *TransactionRepository) Get(ctx context.Context, id string) (model.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id::text = $1`, id))
	if err != nil {
		return model.Transaction{}, notFound(fmt.Errorf("get transaction: %w", err))
	}
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]model.Transaction, error) {
	defer rows.Close()
	txs := []model.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
