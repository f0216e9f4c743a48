package handlers

import (
	"github.com/go-chi/chi/v5"
)

// Routes registers every public and admin route onto router.
func Routes(router chi.Router, h *Handlers) {
	router.Get("/health", h.Health)

	router.Route("/api/share/{hash}", func(r chi.Router) {
		r.Get("/files", h.Files)
		r.Get("/file/*", h.File)
		r.Get("/preview/*", h.Preview)
		r.Get("/proxy/*", h.Proxy)
		r.Get("/hd/*", h.HD)
		r.Get("/video-sources/*", h.VideoSources)
		r.Post("/video-sources/*", h.VideoSources)
		r.Get("/download", h.Download)
	})

	router.Route("/api/analytics", func(r chi.Router) {
		r.Use(h.AdminAuth)
		r.Get("/config", h.Config)
		r.Get("/shares", h.Shares)
		r.Get("/shares/{hash}", h.ShareDetail)
		r.Get("/shares/{hash}/export.csv", h.ExportCSV)
	})
}
