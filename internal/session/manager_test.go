package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/primewallet/walletclient/internal/logging"
	"github.com/primewallet/walletclient/internal/notification"
	"github.com/primewallet/walletclient/internal/transport"
)

const sessionCookie = "wallet_session"

type fakeBackend struct {
	userCalls   atomic.Int32
	walletCalls atomic.Int32
	setCookie   atomic.Bool
	alwaysAuthd atomic.Bool
	logoutFails atomic.Bool
	userDelay   time.Duration
	walletDelay time.Duration
	server      *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{userDelay: 100 * time.Millisecond, walletDelay: 100 * time.Millisecond}
	fb.setCookie.Store(true)

	writeJSON := func(w http.ResponseWriter, status int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/sanctum/csrf-cookie", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "csrf", Path: "/"})
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch {
		case body.Email == "pending@example.com":
			writeJSON(w, http.StatusForbidden, map[string]any{"message": "Your email address is not verified."})
			return
		case body.Password != "secret123":
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"message": "These credentials do not match our records.",
				"errors":  map[string]any{"email": []string{"These credentials do not match our records."}},
			})
			return
		}
		if fb.setCookie.Load() {
			http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "s1", Path: "/"})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Welcome back",
			"user":    map[string]any{"id": 1, "email": body.Email},
			"wallet":  map[string]any{"id": 99, "balance": "0"},
		})
	})
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if fb.logoutFails.Load() {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "boom"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		fb.userCalls.Add(1)
		time.Sleep(fb.userDelay)
		if _, err := r.Cookie(sessionCookie); err == nil || fb.alwaysAuthd.Load() {
			writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"id": 1, "name": "Ada", "email": "ada@example.com"}})
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
	})
	mux.HandleFunc("/api/wallets", func(w http.ResponseWriter, r *http.Request) {
		fb.walletCalls.Add(1)
		time.Sleep(fb.walletDelay)
		writeJSON(w, http.StatusOK, map[string]any{"wallets": []any{
			map[string]any{"id": 7, "address": "PW-0001", "currency": "NGN", "balance": "1,500.00"},
		}})
	})
	mux.HandleFunc("/api/protected", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
	})

	fb.server = httptest.NewServer(mux)
	t.Cleanup(fb.server.Close)
	return fb
}

func newTestManager(t *testing.T, fb *fakeBackend, opts ...Option) (*Manager, *transport.Client) {
	t.Helper()
	client, err := transport.New(transport.Options{BaseURL: fb.server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	return NewManager(client, opts...), client
}

func login(t *testing.T, m *Manager) {
	t.Helper()
	res := m.Login(context.Background(), Credentials{Email: "ada@example.com", Password: "secret123"})
	if !res.Success() {
		t.Fatalf("login: outcome %s message %q", res.Outcome, res.Message)
	}
}

func TestEnsureSessionConcurrentCallersShareOneCheck(t *testing.T) {
	fb := newFakeBackend(t)
	m, _ := newTestManager(t, fb)

	const callers = 10
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- m.EnsureSession(context.Background())
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("ensure session: %v", err)
		}
	}
	if got := fb.userCalls.Load(); got != 1 {
		t.Fatalf("expected one identity request, got %d", got)
	}
	if m.Status() != StatusAnonymous {
		t.Fatalf("expected anonymous, got %s", m.Status())
	}

	if err := m.EnsureSession(context.Background()); err != nil {
		t.Fatalf("second ensure session: %v", err)
	}
	if got := fb.userCalls.Load(); got != 1 {
		t.Fatalf("completed check should not hit the network again, got %d calls", got)
	}
}

func TestEnsureSessionAuthenticatedFetchesWalletOnce(t *testing.T) {
	fb := newFakeBackend(t)
	fb.alwaysAuthd.Store(true)
	m, _ := newTestManager(t, fb)

	if err := m.EnsureSession(context.Background()); err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	if !m.IsAuthenticated() {
		t.Fatalf("expected authenticated, got %s", m.Status())
	}
	if m.CurrentUser() == nil || m.CurrentUser().ID != "1" {
		t.Fatalf("unexpected user %+v", m.CurrentUser())
	}
	w := m.CurrentWallet()
	if w == nil {
		t.Fatalf("expected wallet snapshot")
	}
	if w.Address != "PW-0001" || w.Balance.String() != "1500" {
		t.Fatalf("unexpected wallet %+v", w)
	}
	if got := fb.walletCalls.Load(); got != 1 {
		t.Fatalf("expected one wallet fetch, got %d", got)
	}
}

func TestLoginReverifiesSession(t *testing.T) {
	fb := newFakeBackend(t)
	m, _ := newTestManager(t, fb)

	login(t, m)

	snap := m.Snapshot()
	if snap.Status != StatusAuthenticated || snap.User == nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Wallet == nil || snap.Wallet.ID != "7" {
		t.Fatalf("wallet should come from /wallets, got %+v", snap.Wallet)
	}
	if fb.userCalls.Load() != 1 {
		t.Fatalf("expected login to re-verify with /user once, got %d", fb.userCalls.Load())
	}
}

func TestLoginWithoutSessionCookieIsNotEstablished(t *testing.T) {
	fb := newFakeBackend(t)
	fb.setCookie.Store(false)
	m, _ := newTestManager(t, fb)

	res := m.Login(context.Background(), Credentials{Email: "ada@example.com", Password: "secret123"})
	if res.Outcome != LoginSessionNotEstablished {
		t.Fatalf("expected session_not_established, got %s", res.Outcome)
	}
	if res.Success() {
		t.Fatalf("result must not report success")
	}
	if m.CurrentUser() != nil {
		t.Fatalf("user should remain nil")
	}
	if m.IsAuthenticated() {
		t.Fatalf("must not be authenticated")
	}
}

func TestLoginUnverifiedEmail(t *testing.T) {
	fb := newFakeBackend(t)
	m, _ := newTestManager(t, fb)

	res := m.Login(context.Background(), Credentials{Email: "pending@example.com", Password: "secret123"})
	if res.Outcome != LoginUnverified {
		t.Fatalf("expected unverified, got %s", res.Outcome)
	}
	if res.Status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Status)
	}
	if m.CurrentUser() != nil || m.IsAuthenticated() {
		t.Fatalf("unverified login must not authenticate")
	}
}

func TestLoginRejectedCarriesFieldErrors(t *testing.T) {
	fb := newFakeBackend(t)
	m, _ := newTestManager(t, fb)

	res := m.Login(context.Background(), Credentials{Email: "ada@example.com", Password: "wrong"})
	if res.Outcome != LoginRejected {
		t.Fatalf("expected rejected, got %s", res.Outcome)
	}
	if len(res.FieldErrors["email"]) != 1 {
		t.Fatalf("expected email field error, got %+v", res.FieldErrors)
	}
	if fb.userCalls.Load() != 0 {
		t.Fatalf("rejected login must not re-verify")
	}
}

func TestLogoutClearsStateWhenServerFails(t *testing.T) {
	fb := newFakeBackend(t)
	m, _ := newTestManager(t, fb)
	login(t, m)

	fb.logoutFails.Store(true)
	m.Logout(context.Background())

	snap := m.Snapshot()
	if snap.Status != StatusUnchecked {
		t.Fatalf("expected unchecked after logout, got %s", snap.Status)
	}
	if snap.User != nil || snap.Wallet != nil {
		t.Fatalf("expected cleared state, got %+v", snap)
	}

	// Credentials were dropped, so the next check is anonymous.
	if err := m.EnsureSession(context.Background()); err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	if m.Status() != StatusAnonymous {
		t.Fatalf("expected anonymous after logout, got %s", m.Status())
	}
}

func TestFetchWalletConcurrentCallersShareRequest(t *testing.T) {
	fb := newFakeBackend(t)
	fb.walletDelay = 150 * time.Millisecond
	m, _ := newTestManager(t, fb)
	login(t, m)
	fb.walletCalls.Store(0)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			w, err := m.FetchWallet(context.Background())
			if err != nil {
				t.Errorf("fetch wallet: %v", err)
				return
			}
			if w == nil || w.ID != "7" {
				t.Errorf("unexpected wallet %+v", w)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := fb.walletCalls.Load(); got != 1 {
		t.Fatalf("expected one wallet request, got %d", got)
	}
}

func TestUnauthorizedResponseForcesLogout(t *testing.T) {
	fb := newFakeBackend(t)
	recorder := &notification.Recorder{}
	m, client := newTestManager(t, fb, WithNotifier(recorder))
	login(t, m)
	m.SetCurrentView("/dashboard")

	events := make(chan ForcedLogout, 1)
	unsubscribe := m.OnForcedLogout(func(ev ForcedLogout) { events <- ev })
	defer unsubscribe()

	if _, err := client.Get(context.Background(), "/protected", nil); err == nil {
		t.Fatalf("expected error from protected endpoint")
	}

	select {
	case ev := <-events:
		if !ev.Redirect || ev.RedirectTo != LoginView {
			t.Fatalf("expected redirect to login, got %+v", ev)
		}
		if ev.View != "/dashboard" {
			t.Fatalf("unexpected view %q", ev.View)
		}
	default:
		t.Fatalf("expected forced logout event")
	}
	if m.IsAuthenticated() || m.CurrentUser() != nil || m.CurrentWallet() != nil {
		t.Fatalf("forced logout must clear state, got %+v", m.Snapshot())
	}
	if m.Status() != StatusAnonymous {
		t.Fatalf("expected anonymous, got %s", m.Status())
	}
	msgs := recorder.Messages()
	if len(msgs) != 1 || msgs[0].Kind != notification.KindForcedLogout {
		t.Fatalf("expected one forced logout notification, got %+v", msgs)
	}
}

func TestForcedLogoutOnGuestViewDoesNotRedirect(t *testing.T) {
	fb := newFakeBackend(t)
	m, client := newTestManager(t, fb)
	m.SetCurrentView("/login")

	var got ForcedLogout
	m.OnForcedLogout(func(ev ForcedLogout) { got = ev })

	_, _ = client.Get(context.Background(), "/protected", nil)

	if got.Redirect {
		t.Fatalf("guest view must not redirect, got %+v", got)
	}
}

func TestUnsubscribeStopsEvents(t *testing.T) {
	fb := newFakeBackend(t)
	m, client := newTestManager(t, fb)

	var calls atomic.Int32
	unsubscribe := m.OnForcedLogout(func(ForcedLogout) { calls.Add(1) })
	unsubscribe()

	_, _ = client.Get(context.Background(), "/protected", nil)
	if calls.Load() != 0 {
		t.Fatalf("unsubscribed handler was called")
	}
}

func TestIsGuestView(t *testing.T) {
	cases := map[string]bool{
		"":                    true,
		"/":                   true,
		"home":                true,
		"/login":              true,
		"/Register":           true,
		"/verify-email?id=42": true,
		"/dashboard":          false,
		"/transactions":       false,
	}
	for view, want := range cases {
		if got := IsGuestView(view); got != want {
			t.Fatalf("IsGuestView(%q) = %v, want %v", view, got, want)
		}
	}
}

func TestGuardRedirects(t *testing.T) {
	fb := newFakeBackend(t)
	fb.userDelay = 0
	fb.walletDelay = 0
	m, _ := newTestManager(t, fb)
	ctx := context.Background()

	redirect, err := m.Guard(ctx, Route{Path: "/dashboard", RequiresAuth: true})
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	if redirect != LoginView {
		t.Fatalf("expected redirect to login, got %q", redirect)
	}

	login(t, m)
	redirect, err = m.Guard(ctx, Route{Path: "/login", GuestOnly: true})
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	if redirect != "/dashboard" {
		t.Fatalf("expected redirect to dashboard, got %q", redirect)
	}

	redirect, err = m.Guard(ctx, Route{Path: "/dashboard", RequiresAuth: true})
	if err != nil || redirect != "" {
		t.Fatalf("expected to proceed, got %q %v", redirect, err)
	}
}

func TestRegisterValidatesLocally(t *testing.T) {
	fb := newFakeBackend(t)
	m, _ := newTestManager(t, fb)

	res := m.Register(context.Background(), Registration{
		Name:                 " ",
		Email:                "not-an-email",
		Password:             "short",
		PasswordConfirmation: "short",
	})
	if res.Success {
		t.Fatalf("expected validation failure")
	}
	for _, field := range []string{"name", "email", "password"} {
		if len(res.FieldErrors[field]) == 0 {
			t.Fatalf("expected %s error, got %+v", field, res.FieldErrors)
		}
	}
}

func TestResendVerificationRequiresEmail(t *testing.T) {
	fb := newFakeBackend(t)
	m, _ := newTestManager(t, fb)

	if _, err := m.ResendVerification(context.Background(), "  "); err != ErrEmailRequired {
		t.Fatalf("expected ErrEmailRequired, got %v", err)
	}
}

func TestStaleSessionCheckDoesNotUndoLogin(t *testing.T) {
	var userCalls atomic.Int32
	firstArrived := make(chan struct{})
	hold := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/sanctum/csrf-cookie", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "csrf", Path: "/"})
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "s1", Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"Welcome back"}`))
	})
	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if userCalls.Add(1) == 1 {
			close(firstArrived)
			<-hold
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"Unauthenticated."}`))
			return
		}
		w.Write([]byte(`{"user":{"id":1,"email":"ada@example.com"}}`))
	})
	mux.HandleFunc("/api/wallets", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"wallets":[{"id":7,"currency":"NGN","balance":"10"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := transport.New(transport.Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	m := NewManager(client)
	ctx := context.Background()

	checked := make(chan error, 1)
	go func() { checked <- m.EnsureSession(ctx) }()
	<-firstArrived

	res := m.Login(ctx, Credentials{Email: "ada@example.com", Password: "secret123"})
	if !res.Success() {
		t.Fatalf("login: outcome %s message %q", res.Outcome, res.Message)
	}
	close(hold)
	if err := <-checked; err != nil {
		t.Fatalf("ensure session: %v", err)
	}

	snap := m.Snapshot()
	if snap.Status != StatusAuthenticated || snap.User == nil {
		t.Fatalf("a check started before login must not undo it, got %+v", snap)
	}
}

func TestFetchWalletCancelledCallerDoesNotFailOthers(t *testing.T) {
	fb := newFakeBackend(t)
	fb.walletDelay = 200 * time.Millisecond
	m, _ := newTestManager(t, fb)
	login(t, m)
	fb.walletCalls.Store(0)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leader := make(chan error, 1)
	go func() {
		_, err := m.FetchWallet(leaderCtx)
		leader <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for fb.walletCalls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("wallet request never reached the backend")
		}
		time.Sleep(5 * time.Millisecond)
	}

	waiter := make(chan error, 1)
	go func() {
		w, err := m.FetchWallet(context.Background())
		if err == nil && (w == nil || w.ID != "7") {
			t.Errorf("unexpected wallet %+v", w)
		}
		waiter <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-leader; !transport.IsAbort(err) {
		t.Fatalf("cancelled caller should get an abort, got %v", err)
	}
	if err := <-waiter; err != nil {
		t.Fatalf("waiting caller must not inherit the cancellation: %v", err)
	}
	if got := fb.walletCalls.Load(); got != 1 {
		t.Fatalf("expected one shared wallet request, got %d", got)
	}
}

func TestForcedLogoutLogsViewAndRedirect(t *testing.T) {
	fb := newFakeBackend(t)
	var buf bytes.Buffer
	m, client := newTestManager(t, fb, WithLogger(logging.NewWithWriter(&buf, "debug")))
	m.SetCurrentView("/dashboard")

	_, _ = client.Get(context.Background(), "/protected", nil)

	var line map[string]any
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		if json.Unmarshal(raw, &entry) == nil && entry["msg"] == "session rejected by backend" {
			line = entry
		}
	}
	if line == nil {
		t.Fatalf("expected a forced logout log line, got %s", buf.String())
	}
	if line["view"] != "/dashboard" || line["redirect"] != true || line["component"] != "session" {
		t.Fatalf("unexpected log attributes %+v", line)
	}
}
