package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminAuth_MissingTokenRejected(t *testing.T) {
	h := newTestHandlers(t, &fakeBackend{})
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	r := httptest.NewRequest("GET", "/api/analytics/config", nil)
	w := httptest.NewRecorder()

	h.AdminAuth(next).ServeHTTP(w, r)

	require.Equal(t, 401, w.Code)
	assert.False(t, called)
}

func TestAdminAuth_StaticTokenBypassesBackendValidation(t *testing.T) {
	fb := &fakeBackend{validTokens: map[string]bool{}}
	h := newTestHandlers(t, fb)
	h.cfg.Server.AdminToken = "local-secret"
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	r := httptest.NewRequest("GET", "/api/analytics/config", nil)
	r.Header.Set("X-Auth", "local-secret")
	w := httptest.NewRecorder()

	h.AdminAuth(next).ServeHTTP(w, r)

	assert.True(t, called)
	assert.Equal(t, 200, w.Code)
}

func TestAdminAuth_DelegatesToBackendValidateToken(t *testing.T) {
	fb := &fakeBackend{validTokens: map[string]bool{"good": true}}
	h := newTestHandlers(t, fb)
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	r := httptest.NewRequest("GET", "/api/analytics/config", nil)
	r.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	h.AdminAuth(next).ServeHTTP(w, r)
	assert.True(t, called)

	called = false
	r2 := httptest.NewRequest("GET", "/api/analytics/config", nil)
	r2.Header.Set("Authorization", "Bearer bad")
	w2 := httptest.NewRecorder()
	h.AdminAuth(next).ServeHTTP(w2, r2)
	assert.False(t, called)
	assert.Equal(t, 401, w2.Code)
}

func TestConfig_ReturnsAnalyticsSettings(t *testing.T) {
	h := newTestHandlers(t, &fakeBackend{})

	r := httptest.NewRequest("GET", "/api/analytics/config", nil)
	w := httptest.NewRecorder()

	h.Config(w, r)

	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "IPMode")
}

func TestShares_MergesLiveAndDeletedShares(t *testing.T) {
	fb := &fakeBackend{shares: []string{"live1"}}
	h := newTestHandlers(t, fb)

	h.recordEvent(httptest.NewRequest("GET", "/", nil), "live1", "gallery_view", "")
	h.recordEvent(httptest.NewRequest("GET", "/", nil), "gone", "gallery_view", "")

	r := httptest.NewRequest("GET", "/api/analytics/shares?include_deleted=true", nil)
	w := httptest.NewRecorder()

	h.Shares(w, r)

	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "live1")
	assert.Contains(t, w.Body.String(), "gone")
	assert.Contains(t, w.Body.String(), `"deleted":true`)
}

func TestShares_OmitsEmptyByDefault(t *testing.T) {
	fb := &fakeBackend{shares: []string{"quiet"}}
	h := newTestHandlers(t, fb)

	r := httptest.NewRequest("GET", "/api/analytics/shares", nil)
	w := httptest.NewRecorder()

	h.Shares(w, r)

	require.Equal(t, 200, w.Code)
	assert.Equal(t, "null\n", w.Body.String())
}

func TestShareDetail_InvalidHash(t *testing.T) {
	h := newTestHandlers(t, &fakeBackend{})

	r := httptest.NewRequest("GET", "/api/analytics/shares/bad hash", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("hash", "bad hash")
	r = withChiContext(r, rctx)
	w := httptest.NewRecorder()

	h.ShareDetail(w, r)

	require.Equal(t, 400, w.Code)
}

func TestExportCSV_WritesHeaderAndRows(t *testing.T) {
	fb := &fakeBackend{}
	h := newTestHandlers(t, fb)
	h.recordEvent(httptest.NewRequest("GET", "/", nil), "abc", "file_download", "a.jpg")

	r := httptest.NewRequest("GET", "/api/analytics/shares/abc/export.csv", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("hash", "abc")
	r = withChiContext(r, rctx)
	w := httptest.NewRecorder()

	h.ExportCSV(w, r)

	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "event_type,file_path,ip,user_agent,referer,created_at")
	assert.Contains(t, w.Body.String(), "file_download,a.jpg")
}
