package handler_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/mediahub/internal/auth"
	"github.com/sakif/mediahub/internal/chat"
	"github.com/sakif/mediahub/internal/filestore"
	"github.com/sakif/mediahub/internal/handler"
	"github.com/sakif/mediahub/internal/metrics"
	"github.com/sakif/mediahub/internal/model"
	"github.com/sakif/mediahub/internal/repository/sqldb"
	"github.com/sakif/mediahub/internal/service"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	cookieName = "user_session"
)

var fixedNow = time.Unix(1700000000, 0)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeRenderer records what would have been rendered.
type fakeRenderer struct {
	mu   sync.Mutex
	page string
	view handler.View
}

func (f *fakeRenderer) Render(w io.Writer, page string, v handler.View) error {
	f.mu.Lock()
	f.page, f.view = page, v
	f.mu.Unlock()
	_, err := fmt.Fprintf(w, "<%s>%s", page, v.Message)
	return err
}

func (f *fakeRenderer) last() (string, handler.View) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page, f.view
}

type fakeRecorder struct {
	metrics.Nop
	mu      sync.Mutex
	logins  []string
	uploads []bool
	chats   []string
}

func (f *fakeRecorder) Login(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, outcome)
}

func (f *fakeRecorder) Upload(renamed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, renamed)
}

func (f *fakeRecorder) Chat(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, outcome)
}

type stubProvider struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubProvider) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

var _ chat.Provider = (*stubProvider)(nil)

// harness wires real services over an in-memory database and a temporary
// upload directory.
type harness struct {
	t        *testing.T
	db       *sqldb.DB
	store    *filestore.LocalStore
	sessions *auth.SessionManager
	renderer *fakeRenderer
	rec      *fakeRecorder
	provider *stubProvider

	authSvc *service.AuthService
	users   *service.UserService
	files   *service.FileService
	notes   *service.NoteService
	chat    *service.ChatService
	pages   *handler.Pages
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := testLogger()

	db, err := sqldb.Open(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := filestore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	codec, err := auth.NewTokenCodec(testSecret)
	require.NoError(t, err)

	hasher := auth.NewPasswordHasherWithCost(bcrypt.MinCost)
	provider := &stubProvider{reply: "Hello!"}
	renderer := &fakeRenderer{}

	return &harness{
		t:        t,
		db:       db,
		store:    store,
		sessions: auth.NewSessionManager(codec, auth.SessionConfig{CookieName: cookieName}, logger),
		renderer: renderer,
		rec:      &fakeRecorder{},
		provider: provider,
		authSvc:  service.NewAuthService(db.Users(), hasher, logger),
		users:    service.NewUserService(db.Users(), hasher, logger),
		files:    service.NewFileService(store, filestore.NewNamer(func() time.Time { return fixedNow }), logger),
		notes:    service.NewNoteService(db.Notes(), logger),
		chat:     service.NewChatService(provider, chat.NewReplySanitizer(), logger),
		pages:    handler.NewPages(renderer, "MediaHub Test", logger),
	}
}

func (h *harness) register(username, password string) *model.User {
	h.t.Helper()
	user, err := h.authSvc.Register(context.Background(), username, password)
	require.NoError(h.t, err)
	return user
}

// resolve runs the cookies set on rr back through the session manager, the
// way the next browser request would.
func (h *harness) resolve(rr *httptest.ResponseRecorder) *model.User {
	h.t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rr.Result().Cookies() {
		if c.MaxAge >= 0 && c.Value != "" {
			req.AddCookie(c)
		}
	}
	return h.sessions.CurrentUser(req, h.authSvc.LookupUser)
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

func asUser(req *http.Request, user *model.User) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), user))
}

func withParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	rctx.URLParams.Add(key, value)
	return req
}

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

type part struct {
	name, content string
}

func multipartRequest(t *testing.T, target string, files ...part) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		w, err := mw.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = io.WriteString(w, f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
