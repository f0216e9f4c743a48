package handlers

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mattborg/galleryedge/internal/analytics"
	"github.com/mattborg/galleryedge/internal/backend"
	"github.com/mattborg/galleryedge/internal/config"
	"github.com/mattborg/galleryedge/internal/database"
	"github.com/mattborg/galleryedge/internal/httpserver/apierr"
	"github.com/mattborg/galleryedge/internal/listing"
	"github.com/mattborg/galleryedge/internal/transform"
)

// fakeBackend is a test double implementing backend.Client without any
// network calls.
type fakeBackend struct {
	tree         map[string]*backend.ListResult
	validTokens  map[string]bool
	shares       []string
	zipURL       string
	downloadBase string
}

func (f *fakeBackend) List(ctx context.Context, share, path string) (*backend.ListResult, error) {
	r, ok := f.tree[path]
	if !ok {
		return nil, apierr.NotFound("missing")
	}
	return r, nil
}

func (f *fakeBackend) DownloadZipURL(share string) string { return f.zipURL }

func (f *fakeBackend) DownloadFileURL(share, path string) string {
	return f.downloadBase + "/" + share + "/" + path
}

func (f *fakeBackend) ValidateToken(ctx context.Context, token string) error {
	if f.validTokens[token] {
		return nil
	}
	return apierr.Unauthorized("invalid admin token")
}

func (f *fakeBackend) ListShares(ctx context.Context) ([]string, error) {
	return f.shares, nil
}

func newTestHandlers(t *testing.T, fb *fakeBackend) *Handlers {
	t.Helper()

	cfg := &config.Config{}
	cfg.Analytics.IPMode = "full"
	cfg.Analytics.EnableGalleryView = true
	cfg.Analytics.EnableFileDown = true
	cfg.Analytics.EnableZipDown = true

	store, err := analytics.Open(database.Config{Path: ":memory:", LogLevel: "silent"}, 90, time.Hour, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	listingCache := listing.New(fb, time.Hour, 1000)
	transformService := transform.New(cfg, nil, "", "", nil)

	return New(cfg, fb, listingCache, transformService, store, nil, nil)
}

func TestHealth(t *testing.T) {
	h := newTestHandlers(t, &fakeBackend{})
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/health", nil)

	h.Health(w, r)

	require.Equal(t, 200, w.Code)
	require.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}
