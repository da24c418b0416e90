package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/mediahub/internal/config"
	"github.com/sakif/mediahub/internal/sysinfo"
)

// Pinger checks that a backing service answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves the home page and the JSON status endpoints.
type SystemHandler struct {
	collector *sysinfo.Collector
	settings  config.Public
	db        Pinger
	pages     *Pages
	logger    *slog.Logger
}

func NewSystemHandler(collector *sysinfo.Collector, settings config.Public, db Pinger, pages *Pages, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{
		collector: collector,
		settings:  settings,
		db:        db,
		pages:     pages,
		logger:    logger,
	}
}

// HandleHome serves the landing page. Anonymous visitors see it too.
//
// HTTP: GET /
func (h *SystemHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, r, http.StatusOK, PageIndex, View{})
}

// HandleSystem reports host and runtime details.
//
// HTTP: GET /api/system
func (h *SystemHandler) HandleSystem(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.collector.Collect(r.Context()))
}

// HandleSettings reports the non-secret configuration.
//
// HTTP: GET /api/settings
func (h *SystemHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings)
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HandleHealth is the liveness/readiness probe. It is public and answers
// 503 when the database does not respond.
//
// HTTP: GET /health
func (h *SystemHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Database: "down"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "up"})
}
