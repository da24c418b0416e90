package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/sakif/mediahub/internal/auth"
	"github.com/sakif/mediahub/internal/model"
)

// Page names. Each has a <name>.html in the template directory that
// defines "title" and "content" for base.html.
const (
	PageIndex    = "index"
	PageLogin    = "login"
	PageRegister = "register"
	PageUsers    = "users"
	PageUpload   = "upload"
	PageWebpad   = "webpad"
	PageChatbot  = "chatbot"
	PageError    = "error"
)

var allPages = []string{
	PageIndex, PageLogin, PageRegister, PageUsers,
	PageUpload, PageWebpad, PageChatbot, PageError,
}

// View is the data every page template receives. Handlers fill the fields
// their page uses and leave the rest zero.
type View struct {
	AppName string
	Title   string
	// User is the signed-in user, nil for anonymous visitors.
	User    *model.User
	Message string
	IsError bool

	BackURL     string             // login
	Editing     *model.User        // register page in edit mode
	Username    string             // register and edit form value
	Users       []model.User       // users
	Files       []model.StoredFile // upload
	Note        string             // webpad
	ChatEnabled bool               // chatbot
}

// Renderer turns a page and its view into HTML.
type Renderer interface {
	Render(w io.Writer, page string, v View) error
}

// TemplateRenderer renders html/template pages. Every page is parsed
// together with base.html into its own set, so pages can reuse block
// names without clashing.
type TemplateRenderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"pathEscape": url.PathEscape,
	"humanBytes": humanBytes,
}

// NewTemplateRenderer parses the templates once at startup.
func NewTemplateRenderer(dir string) (*TemplateRenderer, error) {
	r := &TemplateRenderer{pages: make(map[string]*template.Template, len(allPages))}
	for _, page := range allPages {
		t, err := template.New(page).Funcs(funcs).ParseFiles(
			filepath.Join(dir, "base.html"),
			filepath.Join(dir, page+".html"),
		)
		if err != nil {
			return nil, fmt.Errorf("handler: parsing %s template: %w", page, err)
		}
		r.pages[page] = t
	}
	return r, nil
}

func (r *TemplateRenderer) Render(w io.Writer, page string, v View) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("handler: unknown page %q", page)
	}
	return t.ExecuteTemplate(w, "base", v)
}

// Pages renders full HTML pages for the handlers. It fills the fields
// shared by every page and buffers the output, so a template failure
// still produces a clean 500.
type Pages struct {
	renderer Renderer
	appName  string
	logger   *slog.Logger
}

func NewPages(renderer Renderer, appName string, logger *slog.Logger) *Pages {
	return &Pages{renderer: renderer, appName: appName, logger: logger}
}

func (p *Pages) render(w http.ResponseWriter, r *http.Request, status int, page string, v View) {
	v.AppName = p.appName
	if v.Title == "" {
		v.Title = p.appName
	}
	if user, ok := auth.UserFromContext(r.Context()); ok {
		v.User = user
	}

	var buf bytes.Buffer
	if err := p.renderer.Render(&buf, page, v); err != nil {
		p.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderError shows err on the error page with the status it maps to.
func (p *Pages) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := statusFor(err)
	if status == http.StatusInternalServerError {
		p.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	p.render(w, r, status, PageError, View{
		Title:   http.StatusText(status),
		Message: clientMessage(err),
		IsError: true,
	})
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
