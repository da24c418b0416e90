package auth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sakif/mediahub/internal/model"
)

// contextKey is unexported so no other package can read or overwrite the
// values this package stores in a request context.
type contextKey string

const userKey contextKey = "user"

// LoadUser resolves the session cookie on every request and, when it names
// an existing user, stores that user in the request context. It never
// blocks a request; gating is left to RequirePageUser and RequireAPIUser.
//
// Chi applies it once at the top of the router so public pages (home,
// login) can still show who is signed in.
func LoadUser(sessions *SessionManager, lookup UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := sessions.CurrentUser(r, lookup); user != nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePageUser sends anonymous visitors to the login page, carrying the
// requested path in back_url so login can return them there.
func RequirePageUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			http.Redirect(w, r, LoginURL(r.URL.Path), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAPIUser answers anonymous requests with 401 and a JSON body.
// Used on JSON endpoints and on file download/delete links.
func RequireAPIUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","message":"Not Authorized"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginURL builds the login redirect for a protected path.
func LoginURL(backPath string) string {
	if backPath == "" || backPath == "/" {
		return "/login"
	}
	return "/login?back_url=" + url.QueryEscape(backPath)
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the signed-in user, or (nil, false) for an
// anonymous request.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}
