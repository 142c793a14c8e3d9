package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/khushigoyal02/EMS-back/internal/clock"
	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/pii"
	"github.com/khushigoyal02/EMS-back/internal/repository"
)

type memStore struct {
	mu     sync.Mutex
	tokens map[string]model.CalendarToken
}

func newMemStore() *memStore { return &memStore{tokens: map[string]model.CalendarToken{}} }

func (m *memStore) Save(_ context.Context, t model.CalendarToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.UID] = t
	return nil
}

func (m *memStore) Get(_ context.Context, uid string) (model.CalendarToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[uid]
	if !ok {
		return model.CalendarToken{}, repository.ErrNotFound
	}
	return t, nil
}

var testStateKey = []byte("0123456789abcdef0123456789abcdef")

func newTestBridge(t *testing.T, tokenURL string) (*Bridge, *memStore, *pii.TokenSealer) {
	t.Helper()
	b, store, sealer, _ := newTestBridgeClock(t, tokenURL)
	return b, store, sealer
}

func newTestBridgeClock(t *testing.T, tokenURL string) (*Bridge, *memStore, *pii.TokenSealer, *clock.FakeClock) {
	t.Helper()
	sealer, _, err := pii.GenerateTokenSealer()
	if err != nil {
		t.Fatal(err)
	}
	store := newMemStore()
	clk := clock.Fake(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	b, err := New(Config{ClientID: "cid", ClientSecret: "secret", RedirectURL: "http://localhost/cb", TimeZone: "Asia/Kolkata", StateKey: testStateKey},
		store, sealer, clk, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if tokenURL != "" {
		b.oauth.Endpoint = oauth2.Endpoint{AuthURL: tokenURL + "/auth", TokenURL: tokenURL + "/token", AuthStyle: oauth2.AuthStyleInParams}
	}
	return b, store, sealer, clk
}

func TestAuthURLCarriesStateAndOfflineAccess(t *testing.T) {
	b, _, _ := newTestBridge(t, "")
	u, err := url.Parse(b.AuthURL("uid-1"))
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("access_type") != "offline" || q.Get("prompt") != "consent" {
		t.Fatalf("unexpected query: %v", q)
	}
	if q.Get("state") == "uid-1" || q.Get("state") == "" {
		t.Fatalf("state %q is not signed", q.Get("state"))
	}
	uid, err := b.states.verify(q.Get("state"))
	if err != nil || uid != "uid-1" {
		t.Fatalf("verify = %q, %v", uid, err)
	}
}

func TestExchangeRejectsForgedState(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","refresh_token":"rt-1","expires_in":3600}`))
	}))
	defer srv.Close()
	b, store, _, clk := newTestBridgeClock(t, srv.URL)
	ctx := context.Background()

	other, err := newStateSigner([]byte("ffffffffffffffffffffffffffffffff"), time.Minute, clk)
	if err != nil {
		t.Fatal(err)
	}
	issued := b.states.sign("uid-victim")
	payload, _, _ := strings.Cut(issued, ".")
	for name, state := range map[string]string{
		"raw uid":       "uid-victim",
		"other key":     other.sign("uid-victim"),
		"swapped mac":   payload + "." + strings.SplitN(other.sign("uid-victim"), ".", 2)[1],
		"truncated mac": issued[:len(issued)-2],
	} {
		if _, err := b.Exchange(ctx, state, "code"); !errors.Is(err, ErrInvalidState) {
			t.Errorf("%s: err = %v, want ErrInvalidState", name, err)
		}
	}

	clk.Advance(defaultStateTTL + time.Second)
	if _, err := b.Exchange(ctx, issued, "code"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expired: err = %v, want ErrInvalidState", err)
	}
	if calls != 0 {
		t.Errorf("token endpoint called %d times for rejected states", calls)
	}
	if _, err := store.Get(ctx, "uid-victim"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("token stored for a rejected state: %v", err)
	}
}

func TestExchangeSealsRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","refresh_token":"rt-1","expires_in":3600,"scope":"calendar.events"}`))
	}))
	defer srv.Close()

	b, store, sealer := newTestBridge(t, srv.URL)
	uid, err := b.Exchange(context.Background(), b.states.sign("uid-1"), "code")
	if err != nil || uid != "uid-1" {
		t.Fatalf("Exchange = %q, %v", uid, err)
	}
	stored, err := store.Get(context.Background(), "uid-1")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(stored.SealedToken, "rt-1") {
		t.Fatal("refresh token stored in clear")
	}
	refresh, err := sealer.Open(stored.SealedToken)
	if err != nil || refresh != "rt-1" {
		t.Fatalf("Open = %q, %v", refresh, err)
	}
	if stored.AccessToken != "at-1" || stored.Scope != "calendar.events" {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestCreateEventNotLinked(t *testing.T) {
	b, _, _ := newTestBridge(t, "")
	_, err := b.CreateEvent(context.Background(), "nobody", Entry{Summary: "x"})
	if !errors.Is(err, ErrNotLinked) {
		t.Fatalf("got %v, want ErrNotLinked", err)
	}
}

func TestCreateEventInsertsWithReminders(t *testing.T) {
	var got struct {
		Summary   string `json:"summary"`
		Start     struct{ Date, TimeZone string }
		End       struct{ Date string }
		Reminders struct {
			UseDefault bool `json:"useDefault"`
			Overrides  []struct {
				Method  string `json:"method"`
				Minutes int64  `json:"minutes"`
			} `json:"overrides"`
		} `json:"reminders"`
	}
	var auth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/calendars/primary/events") {
			http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
			return
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"evt","htmlLink":"https://calendar.example/evt"}`))
	}))
	defer api.Close()

	b, store, sealer := newTestBridge(t, "")
	b.endpoint = api.URL + "/"
	sealed, err := sealer.Seal("rt")
	if err != nil {
		t.Fatal(err)
	}
	_ = store.Save(context.Background(), model.CalendarToken{
		UID: "uid-1", SealedToken: sealed, AccessToken: "at", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour),
	})

	link, err := b.CreateEvent(context.Background(), "uid-1", Entry{
		Summary: "Wedding", AllDay: true, StartDate: "2025-04-10", EndDate: "2025-04-11",
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if link != "https://calendar.example/evt" {
		t.Fatalf("link = %q", link)
	}
	if auth != "Bearer at" {
		t.Fatalf("Authorization = %q", auth)
	}
	if got.Summary != "Wedding" || got.Start.Date != "2025-04-10" || got.End.Date != "2025-04-12" {
		t.Fatalf("body = %+v", got)
	}
	if got.Reminders.UseDefault || len(got.Reminders.Overrides) != 2 || got.Reminders.Overrides[0].Minutes != 2880 {
		t.Fatalf("reminders = %+v", got.Reminders)
	}
}
