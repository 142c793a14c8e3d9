package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/khushigoyal02/EMS-back/internal/clock"
	"github.com/khushigoyal02/EMS-back/internal/export"
	"github.com/khushigoyal02/EMS-back/internal/model"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// TransactionService serves the admin ledger: listings, manual entries and
// exports.
type TransactionService struct {
	accounts     AccountStore
	transactions TransactionStore
	receipts     *export.Receipts
	clk          clock.Clock
	loc          *time.Location
	log          zerolog.Logger
}

// NewTransactionService constructs a TransactionService. Dates in queries are
// read in loc.
func NewTransactionService(accounts AccountStore, transactions TransactionStore, receipts *export.Receipts, clk clock.Clock, loc *time.Location, log zerolog.Logger) *TransactionService {
	if loc == nil {
		loc = time.UTC
	}
	return &TransactionService{
		accounts:     accounts,
		transactions: transactions,
		receipts:     receipts,
		clk:          clk,
		loc:          loc,
		log:          log,
	}
}

// filter validates q and turns it into a store filter.
func (s *TransactionService) filter(q model.TransactionQuery) (model.TransactionFilter, error) {
	f := model.TransactionFilter{
		Type:    strings.TrimSpace(q.Type),
		Status:  strings.TrimSpace(q.Status),
		EventID: strings.TrimSpace(q.EventID),
		Search:  strings.TrimSpace(q.Search),
		Page:    q.Page,
		Limit:   q.Limit,
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	switch {
	case f.Limit <= 0:
		f.Limit = defaultPageSize
	case f.Limit > maxPageSize:
		f.Limit = maxPageSize
	}
	if q.StartDate != "" {
		from, err := time.ParseInLocation(model.DateLayout, q.StartDate, s.loc)
		if err != nil {
			return model.TransactionFilter{}, invalid("startDate must be YYYY-MM-DD")
		}
		f.From = &from
	}
	if q.EndDate != "" {
		end, err := time.ParseInLocation(model.DateLayout, q.EndDate, s.loc)
		if err != nil {
			return model.TransactionFilter{}, invalid("endDate must be YYYY-MM-DD")
		}
		to := end.AddDate(0, 0, 1)
		f.To = &to
	}
	if f.From != nil && f.To != nil && !f.To.After(*f.From) {
		return model.TransactionFilter{}, invalid("endDate cannot be before startDate")
	}
	return f, nil
}

// List returns one page of the ledger, newest first, with suspicious entries
// flagged.
func (s *TransactionService) List(ctx context.Context, uid string, q model.TransactionQuery) (model.TransactionPage, error) {
	if _, err := accountFor(ctx, s.accounts, uid, model.RoleAdmin); err != nil {
		return model.TransactionPage{}, err
	}
	f, err := s.filter(q)
	if err != nil {
		return model.TransactionPage{}, err
	}
	page, err := s.transactions.List(ctx, f)
	if err != nil {
		return model.TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}
	page.TotalPages = (page.Total + f.Limit - 1) / f.Limit
	return page, nil
}

// ExportCSV checks the caller and loads every matching entry. The returned
// func writes them as CSV.
func (s *TransactionService) ExportCSV(ctx context.Context, uid string, q model.TransactionQuery) (func(io.Writer) error, error) {
	if _, err := accountFor(ctx, s.accounts, uid, model.RoleAdmin); err != nil {
		return nil, err
	}
	f, err := s.filter(q)
	if err != nil {
		return nil, err
	}
	txs, err := s.transactions.ListAll(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("export transactions: %w", err)
	}
	return func(w io.Writer) error {
		return export.WriteTransactionsCSV(w, txs)
	}, nil
}

// Create records a manual ledger entry.
func (s *TransactionService) Create(ctx context.Context, uid string, req model.CreateTransactionRequest) (model.Transaction, error) {
	if _, err := accountFor(ctx, s.accounts, uid, model.RoleAdmin); err != nil {
		return model.Transaction{}, err
	}
	t := model.Transaction{
		ID:        uuid.New().String(),
		UserName:  strings.TrimSpace(req.UserName),
		EventName: strings.TrimSpace(req.EventName),
		EventID:   strings.TrimSpace(req.EventID),
		Type:      strings.TrimSpace(req.Type),
		Amount:    req.Amount,
		Method:    strings.TrimSpace(req.Method),
		Status:    strings.ToLower(strings.TrimSpace(req.Status)),
		Reference: strings.TrimSpace(req.Reference),
		CreatedAt: s.clk.Now(),
	}
	if t.UserName == "" || t.Type == "" {
		return model.Transaction{}, invalid("userName and type are required")
	}
	if t.Amount < 0 || math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return model.Transaction{}, invalid("amount must be a non-negative number")
	}
	if t.EventID != "" && !isUUID(t.EventID) {
		return model.Transaction{}, invalid("invalid eventId")
	}
	if t.Status == "" {
		t.Status = "pending"
	}
	t.Flagged = t.IsFlagged()

	if err := s.transactions.Create(ctx, t); err != nil {
		return model.Transaction{}, fmt.Errorf("record transaction: %w", err)
	}
	if t.Flagged {
		s.log.Warn().Str("transaction_id", t.ID).Float64("amount", t.Amount).Str("status", t.Status).Msg("flagged transaction recorded")
	}
	return t, nil
}

// ReceiptsArchive checks the caller and selects the entries, optionally of
// one event, whose receipts go in the archive. The returned func streams the
// ZIP and reports how many receipts it held.
func (s *TransactionService) ReceiptsArchive(ctx context.Context, uid, eventID string) (func(io.Writer) (int, error), error) {
	if _, err := accountFor(ctx, s.accounts, uid, model.RoleAdmin); err != nil {
		return nil, err
	}
	txs, err := s.transactions.ListAll(ctx, model.TransactionFilter{EventID: strings.TrimSpace(eventID)})
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return func(w io.Writer) (int, error) {
		return s.receipts.WriteZip(w, txs)
	}, nil
}

// ReceiptPath resolves one receipt file for download.
func (s *TransactionService) ReceiptPath(ctx context.Context, uid, name string) (string, error) {
	if _, err := accountFor(ctx, s.accounts, uid, model.RoleAdmin); err != nil {
		return "", err
	}
	p, err := s.receipts.Path(name)
	if err != nil {
		if errors.Is(err, export.ErrInvalidName) {
			return "", invalid("invalid receipt name")
		}
		if errors.Is(err, export.ErrReceiptNotFound) {
			return "", notFoundError("receipt not found")
		}
		return "", err
	}
	return p, nil
}
