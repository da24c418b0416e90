package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sakif/mediahub/internal/auth"
	"github.com/sakif/mediahub/internal/metrics"
	"github.com/sakif/mediahub/internal/service"
)

// AuthHandler serves login, registration and logout.
//
// Sessions are stateless: login sets a signed cookie, logout tells the
// browser to drop it. See auth.SessionManager.
type AuthHandler struct {
	auth     *service.AuthService
	sessions *auth.SessionManager
	pages    *Pages
	rec      metrics.Recorder
	logger   *slog.Logger
}

func NewAuthHandler(
	authService *service.AuthService,
	sessions *auth.SessionManager,
	pages *Pages,
	rec metrics.Recorder,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:     authService,
		sessions: sessions,
		pages:    pages,
		rec:      rec,
		logger:   logger,
	}
}

// HandleLoginPage shows the login form.
//
// HTTP: GET /login?back_url=/upload
//
// A signed-in user arriving with a back_url other than "/" was bounced
// here by mistake (or by a stale link) and goes straight on.
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	back := safeBackURL(r.URL.Query().Get("back_url"))

	if _, ok := auth.UserFromContext(r.Context()); ok && back != "/" {
		http.Redirect(w, r, back, http.StatusFound)
		return
	}

	h.pages.render(w, r, http.StatusOK, PageLogin, View{Title: "Login", BackURL: back})
}

// HandleLogin checks the credentials and starts a session.
//
// HTTP: POST /login
// FORM: username, password, remember=yes, back_url
//
// A wrong password and an unknown username get the same answer and no
// cookie.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.pages.render(w, r, http.StatusBadRequest, PageLogin, View{
			Title: "Login", Message: "Invalid form", IsError: true, BackURL: "/",
		})
		return
	}

	username := r.PostFormValue("username")
	back := safeBackURL(r.PostFormValue("back_url"))

	user, err := h.auth.Authenticate(r.Context(), username, r.PostFormValue("password"))
	if err != nil {
		if !errors.Is(err, service.ErrInvalidCredentials) {
			h.pages.renderError(w, r, err)
			return
		}
		h.rec.Login(metrics.LoginFailure)
		h.logger.Info("login failed", slog.String("username", username))
		h.pages.render(w, r, http.StatusUnauthorized, PageLogin, View{
			Title:    "Login",
			Message:  "Invalid credentials",
			IsError:  true,
			BackURL:  back,
			Username: username,
		})
		return
	}

	if err := h.sessions.Begin(w, user.Username, r.PostFormValue("remember") == "yes"); err != nil {
		h.pages.renderError(w, r, err)
		return
	}

	h.rec.Login(metrics.LoginSuccess)
	h.logger.Info("user logged in", slog.String("username", user.Username))
	http.Redirect(w, r, back, http.StatusFound)
}

// HandleRegisterPage shows the sign-up form.
//
// HTTP: GET /register
func (h *AuthHandler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, r, http.StatusOK, PageRegister, View{Title: "Register"})
}

// HandleRegister creates an account and sends the new user to the login
// form. Registration does not sign anyone in.
//
// HTTP: POST /register
// FORM: username, password
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.pages.render(w, r, http.StatusBadRequest, PageRegister, View{
			Title: "Register", Message: "Invalid form", IsError: true,
		})
		return
	}

	username := r.PostFormValue("username")
	if _, err := h.auth.Register(r.Context(), username, r.PostFormValue("password")); err != nil {
		if !isClientError(err) {
			h.pages.renderError(w, r, err)
			return
		}
		status, _ := statusFor(err)
		h.pages.render(w, r, status, PageRegister, View{
			Title:    "Register",
			Message:  clientMessage(err),
			IsError:  true,
			Username: username,
		})
		return
	}

	http.Redirect(w, r, "/login", http.StatusFound)
}

// HandleLogout clears the session cookie.
//
// HTTP: GET /logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		h.logger.Info("user logged out", slog.String("username", user.Username))
	}
	h.sessions.End(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// safeBackURL keeps post-login redirects on this site. Anything that is
// not a plain absolute path ("//evil.example", "https://...", "/\evil")
// becomes "/".
func safeBackURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return "/"
	}
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, `/\`) {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return raw
}
