// Package server is the composition root: it builds every dependency from
// the configuration, wires handlers to routes and runs the HTTP server with
// graceful shutdown.
//
// ROUTE GROUPS:
//
//	public      /, /login, /register, /logout, /health, /metrics, /static/*
//	pages       redirect anonymous visitors to /login?back_url=...
//	api + files answer anonymous requests with 401 JSON
//
// MIDDLEWARE ORDER:
// RequestID, RealIP, Logger, Recoverer, SecurityHeaders, Metrics, LoadUser.
// The logger wraps the recoverer so a panic is still logged as a 500.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sakif/mediahub/internal/auth"
	"github.com/sakif/mediahub/internal/chat"
	"github.com/sakif/mediahub/internal/config"
	"github.com/sakif/mediahub/internal/filestore"
	"github.com/sakif/mediahub/internal/handler"
	"github.com/sakif/mediahub/internal/metrics"
	"github.com/sakif/mediahub/internal/middleware"
	"github.com/sakif/mediahub/internal/repository/sqldb"
	"github.com/sakif/mediahub/internal/service"
	"github.com/sakif/mediahub/internal/sysinfo"
)

// shutdownTimeout is how long in-flight requests get after SIGINT/SIGTERM.
const shutdownTimeout = 30 * time.Second

// Server owns the router and every resource that must be released on
// shutdown: the database pool, the limiter's cleanup goroutine and the
// Docker client.
type Server struct {
	router  *chi.Mux
	cfg     *config.Config
	logger  *slog.Logger
	db      *sqldb.DB
	limiter *middleware.LoginLimiter
	docker  *sysinfo.DockerProbe
}

// New builds the whole dependency graph. On error, anything already opened
// is closed again.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Server, err error) {
	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	// === STORAGE ===
	s.db, err = sqldb.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store, err := s.openFileStore(ctx)
	if err != nil {
		return nil, err
	}

	// === AUTH ===
	codec, err := auth.NewTokenCodec(cfg.AuthSecretKey)
	if err != nil {
		return nil, fmt.Errorf("creating token codec: %w", err)
	}
	sessions := auth.NewSessionManager(codec, auth.SessionConfig{
		CookieName: cfg.SessionCookie,
		Secure:     cfg.CookieSecure,
	}, logger)
	hasher := auth.NewPasswordHasher()

	// === CHAT ===
	// provider stays an untyped nil when chat is not configured, so
	// ChatService.Enabled reports false.
	var provider chat.Provider
	if cfg.Azure.Enabled() {
		client, err := chat.NewAzureClient(chat.AzureOptions{
			EndpointURL:  cfg.Azure.EndpointURL,
			APIKey:       cfg.Azure.APIKey,
			APIVersion:   cfg.Azure.APIVersion,
			Deployment:   cfg.Azure.Deployment,
			TenantID:     cfg.Azure.TenantID,
			ClientID:     cfg.Azure.ClientID,
			ClientSecret: cfg.Azure.ClientSecret,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating chat client: %w", err)
		}
		provider = client
	}

	// === SYSTEM INFO ===
	if cfg.SysinfoDocker {
		s.docker, err = sysinfo.NewDockerProbe(logger)
		if err != nil {
			return nil, fmt.Errorf("creating docker probe: %w", err)
		}
	}

	// === METRICS ===
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	s.limiter = middleware.NewLoginLimiter(middleware.LoginLimiterConfig{
		PerMinute: cfg.LoginRatePerMinute,
	}, collector, logger)

	renderer, err := handler.NewTemplateRenderer(cfg.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	// === SERVICES ===
	authService := service.NewAuthService(s.db.Users(), hasher, logger)
	userService := service.NewUserService(s.db.Users(), hasher, logger)
	fileService := service.NewFileService(store, filestore.NewNamer(time.Now), logger)
	noteService := service.NewNoteService(s.db.Notes(), logger)
	chatService := service.NewChatService(provider, chat.NewReplySanitizer(), logger)

	// === HANDLERS ===
	pages := handler.NewPages(renderer, cfg.AppName, logger)
	h := handlers{
		auth:   handler.NewAuthHandler(authService, sessions, pages, collector, logger),
		users:  handler.NewUserHandler(userService, sessions, pages, logger),
		files:  handler.NewFileHandler(fileService, pages, collector, cfg.UploadMaxBytes, logger),
		notes:  handler.NewNoteHandler(noteService, pages, logger),
		chat:   handler.NewChatHandler(chatService, pages, collector, logger),
		system: handler.NewSystemHandler(sysinfo.NewCollector(s.docker, logger), cfg.Redacted(), s.db, pages, logger),
	}

	s.routes(h, sessions, authService.LookupUser, collector, registry)
	return s, nil
}

type handlers struct {
	auth   *handler.AuthHandler
	users  *handler.UserHandler
	files  *handler.FileHandler
	notes  *handler.NoteHandler
	chat   *handler.ChatHandler
	system *handler.SystemHandler
}

func (s *Server) openFileStore(ctx context.Context) (filestore.Store, error) {
	if s.cfg.UploadBackend == config.BackendS3 {
		client, err := filestore.NewS3Client(ctx, filestore.S3Options{
			Region:    s.cfg.S3.Region,
			Endpoint:  s.cfg.S3.Endpoint,
			AccessKey: s.cfg.S3.AccessKey,
			SecretKey: s.cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("creating s3 client: %w", err)
		}
		return filestore.NewS3Store(client, s.cfg.S3.Bucket, s.cfg.S3.Prefix), nil
	}

	store, err := filestore.NewLocalStore(s.cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("opening upload directory: %w", err)
	}
	return store, nil
}

func (s *Server) routes(h handlers, sessions *auth.SessionManager, lookup auth.UserLookup, rec metrics.Recorder, gatherer prometheus.Gatherer) {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Metrics(rec))
	r.Use(auth.LoadUser(sessions, lookup))

	// === Public ===
	r.Get("/health", h.system.HandleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))

	staticDir := s.cfg.StaticDir
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(staticDir, "favicon.ico"))
	})

	r.Get("/", h.system.HandleHome)
	r.Get("/login", h.auth.HandleLoginPage)
	r.With(s.limiter.Middleware).Post("/login", h.auth.HandleLogin)
	r.Get("/register", h.auth.HandleRegisterPage)
	r.Post("/register", h.auth.HandleRegister)
	r.Get("/logout", h.auth.HandleLogout)

	// === Pages (login required) ===
	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePageUser)

		r.Get("/users", h.users.HandleList)
		r.Get("/user/update/{id}", h.users.HandleEditPage)
		r.Post("/user/update", h.users.HandleUpdate)
		r.Get("/user/delete/{id}", h.users.HandleDelete)

		r.Get("/upload", h.files.HandlePage)
		r.Post("/file/upload", h.files.HandleUpload)

		r.Get("/webpad", h.notes.HandlePage)
		r.Post("/webpad/save", h.notes.HandleSave)
		r.Post("/webpad/clear", h.notes.HandleClear)

		r.Get("/chatbot", h.chat.HandlePage)
	})

	// === JSON and file links (401 when anonymous) ===
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAPIUser)

		r.Get("/file/download/{name}", h.files.HandleDownload)
		r.Get("/file/delete/{name}", h.files.HandleDelete)

		r.Route("/api", func(r chi.Router) {
			r.Get("/system", h.system.HandleSystem)
			r.Get("/settings", h.system.HandleSettings)
			r.Post("/webpad", h.notes.HandleSaveAPI)
			r.Post("/chat", h.chat.HandleAsk)
		})
	})
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases everything New opened. It is safe on a partly built
// Server.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.docker != nil {
		if err := s.docker.Close(); err != nil {
			s.logger.Warn("closing docker client", slog.String("error", err.Error()))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("closing database", slog.String("error", err.Error()))
		}
	}
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests and
// releases resources.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads and downloads of large files need more than the usual
		// 15s, so the body timeouts are generous.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.cfg.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
