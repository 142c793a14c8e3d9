package handler

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/khushigoyal02/EMS-back/internal/model"
)

func transactionQuery(r *http.Request) (model.TransactionQuery, string) {
	v := r.URL.Query()
	q := model.TransactionQuery{
		Type:      v.Get("type"),
		Status:    v.Get("status"),
		EventID:   v.Get("eventId"),
		Search:    v.Get("search"),
		StartDate: v.Get("startDate"),
		EndDate:   v.Get("endDate"),
	}
	for name, dst := range map[string]*int{"page": &q.Page, "limit": &q.Limit} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, name + " must be a positive integer"
		}
		*dst = n
	}
	return q, ""
}

// ListTransactions handles GET /transactions
// With ?export=csv the filtered rows are streamed as a CSV attachment.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q, bad := transactionQuery(r)
	if bad != "" {
		writeError(w, http.StatusBadRequest, bad)
		return
	}

	if r.URL.Query().Get("export") == "csv" {
		write, err := h.Transactions.ExportCSV(r.Context(), uid(r), q)
		if err != nil {
			h.fail(w, r, err, "failed to export transactions")
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
		if err := write(w); err != nil {
			h.Log.Error().Err(err).Msg("stream transactions csv")
		}
		return
	}

	page, err := h.Transactions.List(r.Context(), uid(r), q)
	if err != nil {
		h.fail(w, r, err, "failed to list transactions")
		return
	}
	page.Transactions = nonNil(page.Transactions)
	writeJSON(w, http.StatusOK, page)
}

// CreateTransaction handles POST /transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	tx, err := h.Transactions.Create(r.Context(), uid(r), req)
	if err != nil {
		h.fail(w, r, err, "failed to record transaction")
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// DownloadReceipts handles GET /transactions/receipts.zip
// Transactions without a receipt file are left out of the archive.
func (h *Handler) DownloadReceipts(w http.ResponseWriter, r *http.Request) {
	write, err := h.Transactions.ReceiptsArchive(r.Context(), uid(r), r.URL.Query().Get("eventId"))
	if err != nil {
		h.fail(w, r, err, "failed to download receipts")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="receipts.zip"`)
	n, err := write(w)
	if err != nil {
		h.Log.Error().Err(err).Int("receipts", n).Msg("stream receipts zip")
		return
	}
	h.Log.Debug().Int("receipts", n).Msg("receipts zip sent")
}

// DownloadReceipt handles GET /transactions/receipts/{filename}
func (h *Handler) DownloadReceipt(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	path, err := h.Transactions.ReceiptPath(r.Context(), uid(r), name)
	if err != nil {
		h.fail(w, r, err, "failed to download receipt")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}
