package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/khushigoyal02/EMS-back/internal/auth"
	"github.com/khushigoyal02/EMS-back/internal/calendar"
	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/notify"
	"github.com/khushigoyal02/EMS-back/internal/repository"
	"github.com/khushigoyal02/EMS-back/internal/service"
)

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, raw string) (*auth.Claims, error) {
	if raw != "good-token" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{Email: "carol@example.com", RegisteredClaims: jwt.RegisteredClaims{Subject: "uid-carol"}}, nil
}

type fakeAccounts struct {
	Accounts
	role model.Role
}

func (f fakeAccounts) Role(_ context.Context, uid string) (model.Role, error) {
	if f.role == "" {
		return "", repository.ErrNotFound
	}
	return f.role, nil
}

type fakeCatalog struct {
	Catalog
	gotUID string
}

func (f *fakeCatalog) ListAll(context.Context) ([]model.Service, error) { return nil, nil }

func (f *fakeCatalog) ListMine(_ context.Context, uid string) ([]model.Service, error) {
	f.gotUID = uid
	return []model.Service{{ID: "s1", Name: "Photography"}}, nil
}

type fakePayments struct {
	Payments
	err        error
	reconciled string
}

func (f *fakePayments) Pay(context.Context, string, string) (model.PaymentResult, error) {
	return model.PaymentResult{Message: "Payment successful and transaction recorded."}, f.err
}

func (f *fakePayments) Reconcile(_ context.Context, _, id string, req model.ReconcilePayoutRequest) (model.PaymentResult, error) {
	f.reconciled = id + "/" + req.Reference
	return model.PaymentResult{BookingID: id, PayoutReference: req.Reference}, nil
}

type fakeGuests struct {
	Guests
	res model.RSVPResult
	err error
}

func (f fakeGuests) HandleRSVP(context.Context, string, string, string) (model.RSVPResult, error) {
	return f.res, f.err
}

type fakeTransactions struct {
	Transactions
	query model.TransactionQuery
}

func (f *fakeTransactions) ExportCSV(_ context.Context, _ string, q model.TransactionQuery) (func(io.Writer) error, error) {
	f.query = q
	return func(w io.Writer) error {
		_, err := io.WriteString(w, "id,userName\nt1,carol\n")
		return err
	}, nil
}

func (f *fakeTransactions) List(_ context.Context, _ string, q model.TransactionQuery) (model.TransactionPage, error) {
	f.query = q
	return model.TransactionPage{Page: q.Page, Limit: q.Limit}, nil
}

// fakeCalendar issues states of the form "signed.<uid>" and rejects others.
type fakeCalendar struct {
	exchanged string
}

func (f *fakeCalendar) AuthURL(uid string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=signed." + uid
}

func (f *fakeCalendar) Exchange(_ context.Context, state, _ string) (string, error) {
	uid, ok := strings.CutPrefix(state, "signed.")
	if !ok {
		return "", calendar.ErrInvalidState
	}
	f.exchanged = uid
	return uid, nil
}

func newServer(t *testing.T, d Deps) http.Handler {
	t.Helper()
	if d.Pages == nil {
		pages, err := notify.NewRenderer()
		if err != nil {
			t.Fatalf("NewRenderer: %v", err)
		}
		d.Pages = pages
	}
	d.Log = zerolog.Nop()
	r := chi.NewRouter()
	r.Use(CORS(""))
	New(d).Mount(r, Authenticate(fakeVerifier{}, zerolog.Nop()))
	return r
}

func do(h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	catalog := &fakeCatalog{}
	srv := newServer(t, Deps{Catalog: catalog})

	if rec := do(srv, http.MethodGet, "/services/mine", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
	if rec := do(srv, http.MethodGet, "/services/mine", "forged"); rec.Code != http.StatusForbidden {
		t.Errorf("bad token: status = %d, want 403", rec.Code)
	}
	rec := do(srv, http.MethodGet, "/services/mine", "good-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("good token: status = %d, body %s", rec.Code, rec.Body)
	}
	if catalog.gotUID != "uid-carol" {
		t.Errorf("service saw uid %q", catalog.gotUID)
	}

	public := do(srv, http.MethodGet, "/services", "")
	if public.Code != http.StatusOK || strings.TrimSpace(public.Body.String()) != "[]" {
		t.Errorf("public listing: %d %q", public.Code, public.Body)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"validation", &service.ValidationError{Msg: "vendor has no payout recipient"}, http.StatusBadRequest, "vendor has no payout recipient"},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, service.ErrForbidden.Error()},
		{"not found", fmt.Errorf("load booking: %w", repository.ErrNotFound), http.StatusNotFound, "not found"},
		{"already paid", fmt.Errorf("pay: %w", repository.ErrAlreadyPaid), http.StatusConflict, repository.ErrAlreadyPaid.Error()},
		{"internal", errors.New("connection reset by peer"), http.StatusInternalServerError, "failed to pay vendor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, Deps{Payments: &fakePayments{err: tt.err}})
			rec := do(srv, http.MethodPost, "/payments/b1/pay", "good-token")
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			if !strings.Contains(rec.Body.String(), `"error":"`+tt.body+`"`) {
				t.Errorf("body = %s, want error %q", rec.Body, tt.body)
			}
		})
	}
}

func TestRSVPPages(t *testing.T) {
	deadline := time.Date(2025, 4, 18, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		res  model.RSVPResult
		want string
	}{
		{"recorded", model.RSVPResult{Outcome: model.RSVPRecorded, Status: model.RSVPAccepted}, "recorded as <strong>Accepted</strong>"},
		{"already", model.RSVPResult{Outcome: model.RSVPAlreadyResponded, Status: model.RSVPDeclined}, "already recorded your RSVP as <strong>Declined</strong>"},
		{"closed", model.RSVPResult{Outcome: model.RSVPClosed, Deadline: deadline}, "April 18, 2025"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, Deps{Guests: fakeGuests{res: tt.res}})
			rec := do(srv, http.MethodGet, "/rsvp/e1/Y2Fyb2xAZXhhbXBsZS5jb20/accept", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Errorf("content type = %q", ct)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("page does not contain %q:\n%s", tt.want, rec.Body)
			}
		})
	}

	srv := newServer(t, Deps{Guests: fakeGuests{err: repository.ErrNotFound}})
	if rec := do(srv, http.MethodGet, "/rsvp/e1/x/accept", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown guest: status = %d, want 404", rec.Code)
	}
}

func TestTransactionsQueryAndExport(t *testing.T) {
	txs := &fakeTransactions{}
	srv := newServer(t, Deps{Transactions: txs})

	rec := do(srv, http.MethodGet, "/transactions?export=csv&status=failed&startDate=2025-01-01", "good-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("export: status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "transactions.csv") {
		t.Errorf("disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	if txs.query.Status != "failed" || txs.query.StartDate != "2025-01-01" {
		t.Errorf("query = %+v", txs.query)
	}

	rec = do(srv, http.MethodGet, "/transactions?page=2&limit=5", "good-token")
	if rec.Code != http.StatusOK || txs.query.Page != 2 || txs.query.Limit != 5 {
		t.Errorf("list: status %d, query %+v", rec.Code, txs.query)
	}
	if !strings.Contains(rec.Body.String(), `"transactions":[]`) {
		t.Errorf("body = %s", rec.Body)
	}

	if rec := do(srv, http.MethodGet, "/transactions?page=two", "good-token"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad page: status = %d, want 400", rec.Code)
	}
}

func TestGoogleCallbackRedirectsByRole(t *testing.T) {
	cal := &fakeCalendar{}
	srv := newServer(t, Deps{
		Accounts:    fakeAccounts{role: model.RoleVendor},
		Calendar:    cal,
		FrontendURL: "https://app.example/",
	})

	if rec := do(srv, http.MethodGet, "/auth/google", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("auth without token: status = %d, want 401", rec.Code)
	}
	rec := do(srv, http.MethodGet, "/auth/google?uid=uid-victim", "good-token")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "state=signed.uid-carol") {
		t.Errorf("auth: %d %s", rec.Code, rec.Body)
	}

	rec = do(srv, http.MethodGet, "/auth/google/callback?code=abc&state=signed.uid-carol", "")
	if rec.Code != http.StatusFound {
		t.Fatalf("callback: status = %d, body %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Location"); got != "https://app.example/vendor/dashboard?role=vendor" {
		t.Errorf("redirect = %q", got)
	}
	if cal.exchanged != "uid-carol" {
		t.Errorf("exchanged for %q", cal.exchanged)
	}

	if rec := do(srv, http.MethodGet, "/auth/google/callback?state=signed.uid-carol", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing code: status = %d, want 400", rec.Code)
	}

	off := newServer(t, Deps{})
	if rec := do(off, http.MethodGet, "/auth/google", "good-token"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured calendar: status = %d, want 503", rec.Code)
	}
}

func TestGoogleCallbackRejectsForgedState(t *testing.T) {
	cal := &fakeCalendar{}
	srv := newServer(t, Deps{Accounts: fakeAccounts{role: model.RoleVendor}, Calendar: cal})

	rec := do(srv, http.MethodGet, "/auth/google/callback?code=abc&state=uid-victim", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), calendar.ErrInvalidState.Error()) {
		t.Errorf("body = %s", rec.Body)
	}
	if cal.exchanged != "" {
		t.Errorf("tokens stored for %q", cal.exchanged)
	}
}

func TestReconcilePayoutRoute(t *testing.T) {
	pay := &fakePayments{}
	srv := newServer(t, Deps{Payments: pay})

	req := httptest.NewRequest(http.MethodPost, "/payments/b1/reconcile", strings.NewReader(`{"reference":"trsf_9"}`))
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if pay.reconciled != "b1/trsf_9" {
		t.Errorf("reconciled %q", pay.reconciled)
	}

	pay.err = repository.ErrPayoutInProgress
	rec = do(srv, http.MethodPost, "/payments/b1/pay", "good-token")
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), repository.ErrPayoutInProgress.Error()) {
		t.Errorf("pay in progress: %d %s", rec.Code, rec.Body)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newServer(t, Deps{})
	rec := do(srv, http.MethodOptions, "/events", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("allow origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
