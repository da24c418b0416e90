package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/mediahub/internal/apperror"
	"github.com/sakif/mediahub/internal/auth"
	"github.com/sakif/mediahub/internal/service"
)

// UserHandler lists, edits and deletes accounts. Every route sits behind
// auth.RequirePageUser.
type UserHandler struct {
	users    *service.UserService
	sessions *auth.SessionManager
	pages    *Pages
	logger   *slog.Logger
}

func NewUserHandler(users *service.UserService, sessions *auth.SessionManager, pages *Pages, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, sessions: sessions, pages: pages, logger: logger}
}

// HandleList shows every account.
//
// HTTP: GET /users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.pages.renderError(w, r, err)
		return
	}
	h.pages.render(w, r, http.StatusOK, PageUsers, View{Title: "Users", Users: users})
}

// HandleEditPage shows the edit form, which is the register page with the
// account filled in.
//
// HTTP: GET /user/update/{id}
func (h *UserHandler) HandleEditPage(w http.ResponseWriter, r *http.Request) {
	id, err := userID(chi.URLParam(r, "id"))
	if err != nil {
		h.pages.renderError(w, r, err)
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.pages.renderError(w, r, err)
		return
	}

	h.pages.render(w, r, http.StatusOK, PageRegister, View{
		Title:    "Update user",
		Message:  "Update user information",
		Editing:  user,
		Username: user.Username,
	})
}

// HandleUpdate saves the edit form. Leaving the password empty keeps the
// current one.
//
// HTTP: POST /user/update
// FORM: user_id, username, password
//
// Renaming the signed-in account re-issues the session cookie for the new
// name; otherwise the next request would find no user and sign them out.
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.pages.renderError(w, r, apperror.ValidationFailed("", "Invalid form"))
		return
	}

	id, err := userID(r.PostFormValue("user_id"))
	if err != nil {
		h.pages.renderError(w, r, err)
		return
	}

	username := r.PostFormValue("username")
	updated, err := h.users.Update(r.Context(), id, username, r.PostFormValue("password"))
	if err != nil {
		if !isClientError(err) {
			h.pages.renderError(w, r, err)
			return
		}
		editing, getErr := h.users.Get(r.Context(), id)
		if getErr != nil {
			h.pages.renderError(w, r, getErr)
			return
		}
		status, _ := statusFor(err)
		h.pages.render(w, r, status, PageRegister, View{
			Title:    "Update user",
			Message:  clientMessage(err),
			IsError:  true,
			Editing:  editing,
			Username: username,
		})
		return
	}

	if current, ok := auth.UserFromContext(r.Context()); ok && current.ID == updated.ID && current.Username != updated.Username {
		if err := h.sessions.Begin(w, updated.Username, false); err != nil {
			h.pages.renderError(w, r, err)
			return
		}
	}

	h.logger.Info("user updated", slog.Int64("id", updated.ID), slog.String("username", updated.Username))
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

// HandleDelete removes an account. Deleting your own account also ends
// your session.
//
// HTTP: GET /user/delete/{id}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := userID(chi.URLParam(r, "id"))
	if err != nil {
		h.pages.renderError(w, r, err)
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		h.pages.renderError(w, r, err)
		return
	}

	if current, ok := auth.UserFromContext(r.Context()); ok && current.ID == id {
		h.sessions.End(w)
	}
	http.Redirect(w, r, "/users", http.StatusFound)
}

// userID parses a path or form id. Anything that is not a positive integer
// cannot name a user, so it is reported as not found.
func userID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NotFound("user", raw)
	}
	return id, nil
}
