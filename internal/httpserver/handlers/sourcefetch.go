package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mattborg/galleryedge/internal/httpserver/apierr"
	"github.com/mattborg/galleryedge/internal/listing"
	"github.com/mattborg/galleryedge/internal/transform"
)

// findListedFile locates the entry matching relPath within a share's
// flattened listing.
func findListedFile(files []listing.ListedFile, relPath string) (listing.ListedFile, bool) {
	for _, f := range files {
		if f.Path == relPath {
			return f, true
		}
	}
	return listing.ListedFile{}, false
}

// fetchSource downloads the Backend's raw bytes for share/path into a fresh
// temporary file and returns its local path. The caller owns cleanup.
func (h *Handlers) fetchSource(ctx context.Context, share, relPath, extension string) (string, error) {
	srcURL := h.backend.DownloadFileURL(share, relPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", apierr.Internal("building source fetch request", err)
	}

	resp, err := h.sourceHTTP.Do(req)
	if err != nil {
		return "", apierr.Upstream("fetching source from backend", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", apierr.NotFound("source file not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apierr.Upstream(fmt.Sprintf("backend returned status %d fetching source", resp.StatusCode), nil)
	}

	tmp, err := os.CreateTemp("", "galleryedge-src-*."+extension)
	if err != nil {
		return "", apierr.Internal("creating source temp file", err)
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", apierr.Upstream("downloading source body", err)
	}

	return tmp.Name(), nil
}

// scheduleSourceCleanup removes path once delay has elapsed, long enough
// for any background preparation the caller fired off to finish reading it.
func scheduleSourceCleanup(path string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		_ = os.Remove(path)
	})
}

// removeNow deletes a downloaded source immediately; used on the
// synchronous request paths (preview/proxy/hd) once the build has returned.
func removeNow(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

func transformBuildInputs(sourcePath string, sourceSize int64) transform.BuildInputs {
	return transform.BuildInputs{SourcePath: sourcePath, SourceSize: sourceSize}
}

// openArtifact opens a cache artifact file for streaming.
func openArtifact(path string) (*os.File, error) {
	return os.Open(path)
}

func statModTime(f *os.File) time.Time {
	info, err := f.Stat()
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
