// Package handlers implements the public and admin HTTP surface: request
// validation, the share/gallery/rendition routes, and the token-guarded
// analytics admin routes, composed from internal/listing, internal/transform,
// internal/analytics, and internal/backend.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mattborg/galleryedge/internal/analytics"
	"github.com/mattborg/galleryedge/internal/backend"
	"github.com/mattborg/galleryedge/internal/cache"
	"github.com/mattborg/galleryedge/internal/config"
	"github.com/mattborg/galleryedge/internal/httpserver/apierr"
	"github.com/mattborg/galleryedge/internal/listing"
	"github.com/mattborg/galleryedge/internal/transform"
)

// Handlers holds every collaborator the HTTP surface dispatches to.
type Handlers struct {
	cfg       *config.Config
	backend   backend.Client
	listing   *listing.Cache
	transform *transform.Service
	analytics *analytics.Store
	cache     *cache.Cache
	logger    *slog.Logger
	sourceHTTP *http.Client
}

// New wires the HTTP surface onto its collaborators.
func New(cfg *config.Config, b backend.Client, l *listing.Cache, t *transform.Service, a *analytics.Store, c *cache.Cache, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		cfg:        cfg,
		backend:    b,
		listing:    l,
		transform:  t,
		analytics:  a,
		cache:      c,
		logger:     logger,
		sourceHTTP: &http.Client{Timeout: cfg.Backend.Timeout.Duration()},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to an HTTP status. Typed *apierr.Error values carry
// their own status; anything else is a 500 with full detail logged
// server-side only.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apiErr, ok := apierr.As(err); ok {
		if apiErr.Status >= 500 {
			h.logger.ErrorContext(r.Context(), "request failed", slog.String("error", err.Error()), slog.String("path", r.URL.Path))
		}
		writeJSON(w, apiErr.Status, map[string]string{"error": apiErr.Code, "message": apiErr.Message})
		return
	}

	h.logger.ErrorContext(r.Context(), "request failed", slog.String("error", err.Error()), slog.String("path", r.URL.Path))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": "internal error"})
}

// recordEvent inserts an analytics row if the event type is enabled in
// config. Never blocks the response on a logging failure.
func (h *Handlers) recordEvent(r *http.Request, shareHash string, eventType analytics.EventType, filePath string) {
	ac := h.cfg.Analytics
	switch eventType {
	case analytics.EventGalleryView:
		if !ac.EnableGalleryView {
			return
		}
	case analytics.EventFileDownload:
		if !ac.EnableFileDown {
			return
		}
	case analytics.EventZipDownload:
		if !ac.EnableZipDown {
			return
		}
	}

	h.analytics.InsertEvent(r.Context(), &analytics.DownloadEvent{
		ShareHash: shareHash,
		EventType: eventType,
		FilePath:  filePath,
		IP:        eventIP(r, ac.IPMode),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
		CreatedAt: time.Now().Unix(),
	})
}
