package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/primewallet/walletclient/internal/identity"
	"github.com/primewallet/walletclient/internal/logging"
)

func TestCSRFDoubleSubmit(t *testing.T) {
	app := fiber.New()
	app.Get("/csrf", IssueCSRF(false))
	app.Use(CSRF())
	app.Post("/api/thing", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/csrf", nil))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	var cookie *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == CSRFCookie {
			cookie = ck
		}
	}
	if cookie == nil {
		t.Fatalf("no %s cookie issued", CSRFCookie)
	}
	token, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		t.Fatalf("cookie not url-encoded: %v", err)
	}

	send := func(header string, bearer bool) int {
		req := httptest.NewRequest(fiber.MethodPost, "/api/thing", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: cookie.Value})
		req.AddCookie(&http.Cookie{Name: identity.SessionCookie, Value: "sess"})
		if header != "" {
			req.Header.Set(CSRFHeader, header)
		}
		if bearer {
			req.Header.Set(fiber.HeaderAuthorization, "Bearer tok")
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		return resp.StatusCode
	}

	if got := send(token, false); got != http.StatusNoContent {
		t.Fatalf("matching token rejected: %d", got)
	}
	if got := send("", false); got != StatusCSRFMismatch {
		t.Fatalf("missing header accepted: %d", got)
	}
	if got := send(cookie.Value+"x", false); got != StatusCSRFMismatch {
		t.Fatalf("wrong header accepted: %d", got)
	}
	if got := send("", true); got != http.StatusNoContent {
		t.Fatalf("bearer requests skip csrf, got %d", got)
	}

	resp, err = app.Test(httptest.NewRequest(fiber.MethodPost, "/api/thing", nil))
	if err != nil {
		t.Fatalf("cookieless post: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("requests without cookies are not stateful, got %d", resp.StatusCode)
	}
}

func TestSessionAndRequireAuth(t *testing.T) {
	sessions := identity.NewSessions(time.Hour)
	token := sessions.Create("user-9")

	app := fiber.New()
	app.Use(Session(sessions))
	app.Get("/me", RequireAuth(), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(identity.LocalUserID).(string))
	})

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"anonymous", func(*http.Request) {}, http.StatusUnauthorized},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: identity.SessionCookie, Value: token}) }, http.StatusOK},
		{"bearer", func(r *http.Request) { r.Header.Set(fiber.HeaderAuthorization, "Bearer "+token) }, http.StatusOK},
		{"unknown", func(r *http.Request) { r.Header.Set(fiber.HeaderAuthorization, "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
			tc.setup(req)
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d got %d", tc.status, resp.StatusCode)
			}
		})
	}
}

func TestLoginRateLimit(t *testing.T) {
	cache, mr := newRedis(t)
	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, 2, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	attempt := func(email string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"email":"`+email+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if got := attempt("Ada@example.com"); got != http.StatusOK {
			t.Fatalf("attempt %d limited early: %d", i, got)
		}
	}
	if got := attempt("ada@example.com"); got != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", got)
	}
	if got := attempt("bo@example.com"); got != http.StatusOK {
		t.Fatalf("other emails must not be limited, got %d", got)
	}

	mr.FastForward(time.Minute + time.Second)
	if got := attempt("ada@example.com"); got != http.StatusOK {
		t.Fatalf("limit should reset after a minute, got %d", got)
	}
}
