package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattborg/galleryedge/internal/backend"
)

func TestFiles_ReturnsFlattenedListing(t *testing.T) {
	fb := &fakeBackend{tree: map[string]*backend.ListResult{
		"": {
			Item: backend.Item{Name: "root", IsDir: true},
			Items: []backend.Item{
				{Name: "a.jpg", Path: "a.jpg", Type: "image", Size: 10},
			},
		},
	}}
	h := newTestHandlers(t, fb)

	r := httptest.NewRequest("GET", "/api/share/abc123/files", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("hash", "abc123")
	r = withChiContext(r, rctx)
	w := httptest.NewRecorder()

	h.Files(w, r)

	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "a.jpg")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestFiles_InvalidHashRejected(t *testing.T) {
	h := newTestHandlers(t, &fakeBackend{})

	r := httptest.NewRequest("GET", "/api/share/bad hash/files", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("hash", "bad hash")
	r = withChiContext(r, rctx)
	w := httptest.NewRecorder()

	h.Files(w, r)

	require.Equal(t, 400, w.Code)
}

func TestFile_RedirectsToRelativeDownloadURL(t *testing.T) {
	fb := &fakeBackend{downloadBase: "http://backend/api/public/dl"}
	h := newTestHandlers(t, fb)

	r := httptest.NewRequest("GET", "/api/share/abc123/file/a.jpg", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("hash", "abc123")
	rctx.URLParams.Add("*", "a.jpg")
	r = withChiContext(r, rctx)
	w := httptest.NewRecorder()

	h.File(w, r)

	require.Equal(t, 302, w.Code)
	assert.Equal(t, "/api/public/dl/abc123/a.jpg?inline=true", w.Header().Get("Location"))
}

func TestFile_DownloadModeRecordsEvent(t *testing.T) {
	fb := &fakeBackend{downloadBase: "http://backend/api/public/dl"}
	h := newTestHandlers(t, fb)

	r := httptest.NewRequest("GET", "/api/share/abc123/file/a.jpg?download=1", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("hash", "abc123")
	rctx.URLParams.Add("*", "a.jpg")
	r = withChiContext(r, rctx)
	w := httptest.NewRecorder()

	h.File(w, r)

	require.Equal(t, 302, w.Code)
	assert.Equal(t, "/api/public/dl/abc123/a.jpg?download=1", w.Header().Get("Location"))
}

func TestDownload_BackendUnreachable(t *testing.T) {
	fb := &fakeBackend{zipURL: "http://127.0.0.1:1/no-such-host"}
	h := newTestHandlers(t, fb)

	r := httptest.NewRequest("GET", "/api/share/abc123/download", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("hash", "abc123")
	r = withChiContext(r, rctx)
	w := httptest.NewRecorder()

	h.Download(w, r)

	assert.NotEqual(t, 200, w.Code)
}
