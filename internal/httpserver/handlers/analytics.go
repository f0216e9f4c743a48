package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattborg/galleryedge/internal/analytics"
	"github.com/mattborg/galleryedge/internal/httpserver/apierr"
)

// AdminAuth guards the admin analytics routes. It accepts an exact match
// against the configured static admin token (local/bootstrap use) or
// delegates to the Backend's share-list endpoint, which rejects an invalid
// token with an error.
func (h *Handlers) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := resolveAuthToken(r)
		if token == "" {
			h.writeError(w, r, apierr.Unauthorized("missing auth token"))
			return
		}

		if h.cfg.Server.AdminToken != "" && token == h.cfg.Server.AdminToken {
			next.ServeHTTP(w, r)
			return
		}

		if err := h.backend.ValidateToken(r.Context(), token); err != nil {
			h.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Config implements GET /api/analytics/config: the effective settings
// governing the analytics surface.
func (h *Handlers) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Analytics)
}

type shareSummary struct {
	*analytics.ShareTotals
	Deleted bool `json:"deleted,omitempty"`
}

// Shares implements GET /api/analytics/shares.
func (h *Handlers) Shares(w http.ResponseWriter, r *http.Request) {
	tr, err := rangeFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	includeEmpty := r.URL.Query().Get("include_empty") == "true"
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	liveHashes, err := h.backendShareHashes(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	live := make(map[string]bool, len(liveHashes))
	var summaries []shareSummary

	for _, hash := range liveHashes {
		live[hash] = true
		totals, err := h.analytics.ShareTotalsFor(hash, tr)
		if err != nil {
			h.writeError(w, r, apierr.Internal("querying analytics", err))
			return
		}
		if !includeEmpty && totals.GalleryViews == 0 && totals.FileDownloads == 0 && totals.ZipDownloads == 0 {
			continue
		}
		summaries = append(summaries, shareSummary{ShareTotals: totals})
	}

	if includeDeleted {
		logged, err := h.analytics.DistinctShareHashes()
		if err != nil {
			h.writeError(w, r, apierr.Internal("querying analytics", err))
			return
		}
		for _, hash := range logged {
			if live[hash] {
				continue
			}
			totals, err := h.analytics.ShareTotalsFor(hash, tr)
			if err != nil {
				h.writeError(w, r, apierr.Internal("querying analytics", err))
				return
			}
			summaries = append(summaries, shareSummary{ShareTotals: totals, Deleted: true})
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].LastDownload != summaries[j].LastDownload {
			return summaries[i].LastDownload > summaries[j].LastDownload
		}
		return summaries[i].LastSeen > summaries[j].LastSeen
	})

	writeJSON(w, http.StatusOK, summaries)
}

type shareDetail struct {
	Totals *analytics.ShareTotals          `json:"totals"`
	IPs    []analytics.IPLeaderboardRow     `json:"ips"`
	Recent []analytics.DownloadEvent        `json:"recent"`
}

// ShareDetail implements GET /api/analytics/shares/{hash}.
func (h *Handlers) ShareDetail(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if !validShareHash(hash) {
		h.writeError(w, r, apierr.BadRequest("invalid share hash"))
		return
	}
	tr, err := rangeFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	totals, err := h.analytics.ShareTotalsFor(hash, tr)
	if err != nil {
		h.writeError(w, r, apierr.Internal("querying analytics", err))
		return
	}
	ips, err := h.analytics.IPLeaderboard(hash, tr)
	if err != nil {
		h.writeError(w, r, apierr.Internal("querying analytics", err))
		return
	}
	recent, err := h.analytics.RecentEvents(hash, tr)
	if err != nil {
		h.writeError(w, r, apierr.Internal("querying analytics", err))
		return
	}

	writeJSON(w, http.StatusOK, shareDetail{Totals: totals, IPs: ips, Recent: recent})
}

// ExportCSV implements GET /api/analytics/shares/{hash}/export.csv.
func (h *Handlers) ExportCSV(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if !validShareHash(hash) {
		h.writeError(w, r, apierr.BadRequest("invalid share hash"))
		return
	}
	tr, err := rangeFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	events, err := h.analytics.EventsInRange(hash, tr)
	if err != nil {
		h.writeError(w, r, apierr.Internal("querying analytics", err))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="share_%s_events.csv"`, hash))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"event_type", "file_path", "ip", "user_agent", "referer", "created_at"})
	for _, e := range events {
		_ = cw.Write([]string{
			string(e.EventType), e.FilePath, e.IP, e.UserAgent, e.Referer,
			strconv.FormatInt(e.CreatedAt, 10),
		})
	}
	cw.Flush()
}

func rangeFromQuery(r *http.Request) (analytics.TimeRange, error) {
	q := r.URL.Query()
	days := 0
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return analytics.TimeRange{}, apierr.BadRequest("invalid days parameter")
		}
		days = n
	}
	tr, err := analytics.DeriveTimeRange(days, q.Get("since"), q.Get("until"), time.Now())
	if err != nil {
		return analytics.TimeRange{}, apierr.BadRequest("invalid since/until parameter")
	}
	return tr, nil
}

func (h *Handlers) backendShareHashes(ctx context.Context) ([]string, error) {
	return h.backend.ListShares(ctx)
}
