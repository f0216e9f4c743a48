package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattborg/galleryedge/internal/analytics"
	"github.com/mattborg/galleryedge/internal/ffmpeg"
	"github.com/mattborg/galleryedge/internal/httpserver/apierr"
	"github.com/mattborg/galleryedge/internal/listing"
	"github.com/mattborg/galleryedge/internal/transform"
)

func shareAndPath(r *http.Request) (share, relPath string, err error) {
	share = chi.URLParam(r, "hash")
	relPath = chi.URLParam(r, "*")
	if !validShareHash(share) {
		return "", "", apierr.BadRequest("invalid share hash")
	}
	if relPath != "" && !validSharePath(relPath) {
		return "", "", apierr.BadRequest("invalid path")
	}
	return share, relPath, nil
}

// Files implements GET /api/share/{hash}/files.
func (h *Handlers) Files(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if !validShareHash(hash) {
		h.writeError(w, r, apierr.BadRequest("invalid share hash"))
		return
	}

	opts := listing.Options{ForceRefresh: r.URL.Query().Get("refresh") == "1"}
	if v := r.URL.Query().Get("max_age"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			opts.MaxAge = time.Duration(secs) * time.Second
		}
	}

	files, err := h.listing.GetListing(r.Context(), hash, opts)
	if err != nil {
		if err == listing.ErrNotFound {
			h.writeError(w, r, apierr.NotFound("share not found"))
			return
		}
		h.writeError(w, r, err)
		return
	}

	h.recordEvent(r, hash, analytics.EventGalleryView, "")

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, files)
}

// File implements GET /api/share/{hash}/file/{path}.
func (h *Handlers) File(w http.ResponseWriter, r *http.Request) {
	hash, relPath, err := shareAndPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	download := r.URL.Query().Get("download") == "1"
	mode := "inline=true"
	if download {
		mode = "download=1"
		h.recordEvent(r, hash, analytics.EventFileDownload, relPath)
	}

	location := fmt.Sprintf("/api/public/dl/%s/%s?%s", hash, listing.EncodePath(relPath), mode)
	http.Redirect(w, r, location, http.StatusFound)
}

// Preview implements GET /api/share/{hash}/preview/{path}: a JPEG thumbnail,
// generated synchronously if absent.
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	hash, relPath, err := shareAndPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ext := extOf(relPath)
	isVideo := transform.IsVideo(ext)
	if !isVideo && !transform.IsImage(ext) {
		h.writeError(w, r, apierr.UnsupportedMedia("unsupported extension for preview"))
		return
	}

	sourcePath, err := h.fetchSource(r.Context(), hash, relPath, ext)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer removeNow(sourcePath)

	opts := transform.ThumbnailOptions{
		MaxWidth:       h.cfg.Thumbnail.MaxWidth,
		Quality:        h.cfg.Thumbnail.Quality,
		ProfileVersion: h.cfg.Thumbnail.ProfileVersion,
	}

	artifact, err := h.transform.Thumbnail(r.Context(), hash, relPath, isVideo, sourcePath, opts)
	if err != nil {
		h.writeError(w, r, classifyTransformErr(err))
		return
	}

	serveArtifactFile(w, r, artifact, "image/jpeg")
}

// Proxy implements GET /api/share/{hash}/proxy/{path}: 302 to the fast-proxy
// artifact, generated on demand.
func (h *Handlers) Proxy(w http.ResponseWriter, r *http.Request) {
	h.serveOrRedirectRendition(w, r, transform.TargetFast)
}

// HD implements GET /api/share/{hash}/hd/{path}, the sibling of Proxy the
// video-sources contract's hd.url points at.
func (h *Handlers) HD(w http.ResponseWriter, r *http.Request) {
	h.serveOrRedirectRendition(w, r, transform.TargetHD)
}

func (h *Handlers) serveOrRedirectRendition(w http.ResponseWriter, r *http.Request, target transform.Target) {
	hash, relPath, err := shareAndPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ext := extOf(relPath)
	if !transform.IsVideo(ext) {
		h.writeError(w, r, apierr.UnsupportedMedia("unsupported extension for video rendition"))
		return
	}

	files, err := h.listing.GetListing(r.Context(), hash, listing.Options{})
	if err != nil {
		h.writeError(w, r, translateListingErr(err))
		return
	}
	listed, ok := findListedFile(files, relPath)
	if !ok {
		h.writeError(w, r, apierr.NotFound("file not found in share"))
		return
	}

	if r.URL.Query().Get("stream") == "1" {
		h.streamRendition(w, r, hash, relPath, listed.Size, target)
		return
	}

	sourcePath, err := h.fetchSource(r.Context(), hash, relPath, ext)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer removeNow(sourcePath)

	var buildErr error
	switch target {
	case transform.TargetFast:
		_, buildErr = h.transform.FastProxy(r.Context(), hash, relPath, sourcePath, listed.Size)
	case transform.TargetHD:
		_, buildErr = h.transform.HDProxy(r.Context(), hash, relPath, sourcePath, listed.Size)
	}
	if buildErr != nil {
		h.writeError(w, r, classifyTransformErr(buildErr))
		return
	}

	location := r.URL.Path + "?stream=1"
	http.Redirect(w, r, location, http.StatusFound)
}

func (h *Handlers) streamRendition(w http.ResponseWriter, r *http.Request, hash, relPath string, sourceSize int64, target transform.Target) {
	var artifact string
	var err error
	switch target {
	case transform.TargetFast:
		artifact, err = h.transform.FastProxy(r.Context(), hash, relPath, "", sourceSize)
	case transform.TargetHD:
		artifact, err = h.transform.HDProxy(r.Context(), hash, relPath, "", sourceSize)
	}
	if err != nil {
		h.writeError(w, r, classifyTransformErr(err))
		return
	}
	serveArtifactFile(w, r, artifact, "video/mp4")
}

// VideoSources implements GET|POST /api/share/{hash}/video-sources/{path}.
func (h *Handlers) VideoSources(w http.ResponseWriter, r *http.Request) {
	hash, relPath, err := shareAndPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	targets, err := parsePrepareTargets(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	files, err := h.listing.GetListing(r.Context(), hash, listing.Options{})
	if err != nil {
		h.writeError(w, r, translateListingErr(err))
		return
	}
	listed, ok := findListedFile(files, relPath)
	if !ok {
		h.writeError(w, r, apierr.NotFound("file not found in share"))
		return
	}

	var sourcePath string
	if len(targets) > 0 {
		ext := extOf(relPath)
		sourcePath, err = h.fetchSource(r.Context(), hash, relPath, ext)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		maxTimeout := h.cfg.FastProxy.Timeout.Duration()
		if hd := h.cfg.HDProxy.Timeout.Duration(); hd > maxTimeout {
			maxTimeout = hd
		}
		scheduleSourceCleanup(sourcePath, maxTimeout+30*time.Second)
	}

	result, err := h.transform.VideoSources(r.Context(), hash, relPath, listed.InlineURL,
		transformBuildInputs(sourcePath, listed.Size), targets)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type prepareRequest struct {
	Prepare bool     `json:"prepare"`
	Targets []string `json:"targets"`
	Target  string   `json:"target"`
}

// parsePrepareTargets reads requested preparation targets from the query
// string (GET) or a small tagged JSON body (POST). POST with no explicit
// target defaults to "hd".
func parsePrepareTargets(r *http.Request) ([]transform.Target, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		var targets []transform.Target
		if q.Get("prepare") == "fast" || q.Get("prepare") == "both" {
			targets = append(targets, transform.TargetFast)
		}
		if q.Get("prepare") == "hd" || q.Get("prepare") == "both" {
			targets = append(targets, transform.TargetHD)
		}
		return targets, nil
	}

	var body prepareRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
			return nil, apierr.BadRequest("invalid request body")
		}
	}

	names := body.Targets
	if body.Target != "" {
		names = append(names, body.Target)
	}
	if len(names) == 0 {
		names = []string{"hd"}
	}

	seen := make(map[transform.Target]bool)
	var targets []transform.Target
	for _, n := range names {
		var t transform.Target
		switch n {
		case "fast":
			t = transform.TargetFast
		case "hd":
			t = transform.TargetHD
		default:
			continue
		}
		if !seen[t] {
			seen[t] = true
			targets = append(targets, t)
		}
	}
	return targets, nil
}

// Download implements GET /api/share/{hash}/download.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if !validShareHash(hash) {
		h.writeError(w, r, apierr.BadRequest("invalid share hash"))
		return
	}

	upstreamURL := h.backend.DownloadZipURL(hash)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstreamURL, nil)
	if err != nil {
		h.writeError(w, r, apierr.Internal("building zip download request", err))
		return
	}

	resp, err := h.sourceHTTP.Do(req)
	if err != nil {
		h.writeError(w, r, apierr.Upstream("downloading zip from backend", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		h.writeError(w, r, apierr.NotFound("share not found"))
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.writeError(w, r, apierr.Upstream(fmt.Sprintf("backend returned status %d", resp.StatusCode), nil))
		return
	}

	h.recordEvent(r, hash, analytics.EventZipDownload, "")

	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		w.Header().Set("Content-Disposition", cd)
	} else {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="share_%s.zip"`, hash))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, resp.Body)
}

func extOf(relPath string) string {
	ext := path.Ext(relPath)
	if ext == "" {
		return ""
	}
	return ext[1:]
}

func translateListingErr(err error) error {
	if err == listing.ErrNotFound {
		return apierr.NotFound("share not found")
	}
	return err
}

// classifyTransformErr maps a build failure to 504 when it was a timeout,
// else 500.
func classifyTransformErr(err error) error {
	if apiErr, ok := apierr.As(err); ok {
		return apiErr
	}
	if isDeadlineErr(err) {
		return apierr.Timeout("rendition build timed out", err)
	}
	return apierr.Internal("rendition build failed", err)
}

func isDeadlineErr(err error) bool {
	if errors.Is(err, ffmpeg.ErrTimeout) {
		return true
	}
	type deadlineErr interface{ Timeout() bool }
	var d deadlineErr
	for e := err; e != nil; {
		if de, ok := e.(deadlineErr); ok {
			d = de
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return d != nil && d.Timeout()
}

func serveArtifactFile(w http.ResponseWriter, r *http.Request, artifactPath, contentType string) {
	f, err := openArtifact(artifactPath)
	if err != nil {
		http.Error(w, "artifact unavailable", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, path.Base(artifactPath), statModTime(f), f)
}
