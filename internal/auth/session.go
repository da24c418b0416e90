package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/mediahub/internal/apperror"
	"github.com/sakif/mediahub/internal/model"
)

// RememberFor is how long a "remember me" cookie survives.
const RememberFor = 30 * 24 * time.Hour

// UserLookup resolves a username to a user. It returns an error wrapping
// apperror.ErrNotFound when the username does not exist.
type UserLookup func(ctx context.Context, username string) (*model.User, error)

// SessionConfig controls the session cookie.
type SessionConfig struct {
	CookieName string
	// Secure sets the cookie's Secure attribute. Turn it off only when the
	// site is served over plain HTTP (local development).
	Secure bool
}

// SessionManager issues, reads and clears the session cookie.
//
// It is stateless: nothing is stored server-side. The cookie value is a
// TokenCodec token, so the only way to get a valid session is to have been
// issued one by this server (or to know its secret).
type SessionManager struct {
	codec  *TokenCodec
	cfg    SessionConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(codec *TokenCodec, cfg SessionConfig, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		codec:  codec,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// CookieName returns the configured cookie name.
func (m *SessionManager) CookieName() string {
	return m.cfg.CookieName
}

// Begin signs username and attaches the session cookie to w.
//
// With remember set the cookie carries Max-Age and Expires 30 days out.
// Without it neither attribute is sent, so the browser drops the cookie
// when the browsing session ends.
func (m *SessionManager) Begin(w http.ResponseWriter, username string, remember bool) error {
	token, err := m.codec.Encode(username)
	if err != nil {
		return err
	}

	cookie := &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if remember {
		cookie.MaxAge = int(RememberFor.Seconds())
		cookie.Expires = m.now().Add(RememberFor).UTC()
	}

	http.SetCookie(w, cookie)
	return nil
}

// End tells the browser to delete the session cookie immediately.
func (m *SessionManager) End(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Username returns the username carried by the request's session cookie
// without touching the user store.
func (m *SessionManager) Username(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return m.codec.Decode(cookie.Value)
}

// CurrentUser resolves the request's session to a user record.
//
// It returns nil when there is no cookie, when the token does not verify,
// and when the username no longer exists (the account was deleted or
// renamed after the cookie was issued). That last case is routine, not an
// error. Store failures other than not-found are logged and also yield nil:
// an outage degrades to "signed out" instead of a 500 on every page.
//
// CurrentUser only reads; it never creates or updates a user.
func (m *SessionManager) CurrentUser(r *http.Request, lookup UserLookup) *model.User {
	username, ok := m.Username(r)
	if !ok {
		return nil
	}

	user, err := lookup(r.Context(), username)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			m.logger.Error("session user lookup failed",
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	return user
}
