package session

import (
	"context"
	"log/slog"
	"strings"

	"github.com/primewallet/walletclient/internal/notification"
)

// LoginView is where a forced logout sends the user.
const LoginView = "/login"

var guestViews = map[string]bool{
	"":             true,
	"home":         true,
	"login":        true,
	"register":     true,
	"verify-email": true,
}

// ForcedLogout is delivered to subscribers when the backend rejects the session.
type ForcedLogout struct {
	Err error
	// View is the view that was current when the session was lost.
	View string
	// Redirect is false when View is already a guest page.
	Redirect   bool
	RedirectTo string
}

// OnForcedLogout subscribes fn to forced logout events. The returned function
// removes the subscription.
func (m *Manager) OnForcedLogout(fn func(ForcedLogout)) (unsubscribe func()) {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

// SetCurrentView is called by the navigation layer on every route change.
func (m *Manager) SetCurrentView(view string) {
	m.mu.Lock()
	m.view = view
	m.mu.Unlock()
}

// IsGuestView reports whether view is reachable without a session.
func IsGuestView(view string) bool {
	v := strings.ToLower(strings.TrimSpace(view))
	if i := strings.IndexAny(v, "?#"); i >= 0 {
		v = v[:i]
	}
	return guestViews[strings.Trim(v, "/")]
}

// handleUnauthorized is registered with the transport. It is the only path by
// which a 401 from an ordinary call ends the session.
func (m *Manager) handleUnauthorized(err error) {
	m.mu.RLock()
	view := m.view
	m.mu.RUnlock()

	m.clear(StatusAnonymous, true)

	event := ForcedLogout{Err: err, View: view, Redirect: !IsGuestView(view)}
	if event.Redirect {
		event.RedirectTo = LoginView
	}
	m.logger.Warn("session rejected by backend", slog.String("view", view), slog.Bool("redirect", event.Redirect))

	m.subsMu.Lock()
	subs := make([]func(ForcedLogout), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subsMu.Unlock()
	for _, fn := range subs {
		fn(event)
	}

	if m.notifier != nil {
		body := "session expired"
		if err != nil {
			body = err.Error()
		}
		_ = m.notifier.Send(context.Background(), notification.Message{
			Kind:        notification.KindForcedLogout,
			Destination: event.RedirectTo,
			Body:        body,
		})
	}
}

// Route describes what a view requires of the session.
type Route struct {
	Path         string
	RequiresAuth bool
	GuestOnly    bool
}

// Guard resolves the session if needed and returns where navigation to route
// should go instead, or "" to proceed.
func (m *Manager) Guard(ctx context.Context, route Route) (string, error) {
	if err := m.EnsureSession(ctx); err != nil {
		return "", err
	}
	authed := m.IsAuthenticated()
	switch {
	case route.RequiresAuth && !authed:
		return LoginView, nil
	case route.GuestOnly && authed:
		return "/dashboard", nil
	}
	m.SetCurrentView(route.Path)
	return "", nil
}
