// Package backend provides a client for the upstream file-share Backend,
// an external collaborator reached through a handful of opaque calls:
// list, download-url, validate-token. This package gives those calls a
// concrete, swappable shape so the listing, analytics, and HTTP layers
// never reach for net/http directly.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mattborg/galleryedge/internal/httpserver/apierr"
)

// Item is one entry in a folder listing response. IsDir distinguishes a
// descendable subfolder from a leaf file; Type, when non-empty, is the
// Backend's own image/video label.
type Item struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Type  string `json:"type,omitempty"`
	Size  int64  `json:"size"`
}

// ListResult is the decoded shape of the Backend's share-list response. A
// folder share sets Items; a single-file share leaves Items nil and
// populates the embedded Item fields directly.
type ListResult struct {
	Item
	Items []Item `json:"items,omitempty"`
}

// IsFolder reports whether the result advertises children.
func (r *ListResult) IsFolder() bool {
	return r.Items != nil
}

// Client is the Backend collaborator surface MTCE consumes.
type Client interface {
	List(ctx context.Context, share, path string) (*ListResult, error)
	DownloadZipURL(share string) string
	DownloadFileURL(share, path string) string
	ValidateToken(ctx context.Context, token string) error
	// ListShares returns every share hash currently live on the Backend, used
	// by the admin surface to distinguish live shares from ones only present
	// in the analytics log.
	ListShares(ctx context.Context) ([]string, error)
}

// HTTPClient implements Client against a real Backend over net/http.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// New creates an HTTPClient pointed at baseURL with the given per-request
// timeout.
func New(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// List issues GET {baseURL}/api/public/share/{share}?path={path} and
// decodes either listing shape.
func (c *HTTPClient) List(ctx context.Context, share, path string) (*ListResult, error) {
	u := fmt.Sprintf("%s/api/public/share/%s", c.baseURL, url.PathEscape(share))
	if path != "" {
		u += "?path=" + url.QueryEscape(path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apierr.Internal("building backend request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.Upstream("backend list request failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotFound:
		return nil, apierr.NotFound("share not found")
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, apierr.Unauthorized("backend rejected credentials")
	default:
		return nil, apierr.Upstream(fmt.Sprintf("backend returned status %d", resp.StatusCode), nil)
	}

	var result ListResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apierr.Upstream("decoding backend list response", err)
	}
	return &result, nil
}

// DownloadZipURL returns the Backend's ZIP-download URL for share.
func (c *HTTPClient) DownloadZipURL(share string) string {
	return fmt.Sprintf("%s/api/public/share/%s?download=1", c.baseURL, url.PathEscape(share))
}

// DownloadFileURL returns the Backend's raw `dl` URL for one share-relative
// path, the same URL family ListedFile.InlineURL/DownloadURL point at.
func (c *HTTPClient) DownloadFileURL(share, path string) string {
	return fmt.Sprintf("%s/api/public/dl/%s/%s", c.baseURL, url.PathEscape(share), pathEscapeSegments(path))
}

func pathEscapeSegments(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// ValidateToken validates an auth token indirectly by calling the Backend's
// own share-list endpoint with it attached.
func (c *HTTPClient) ValidateToken(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/public/shares", nil)
	if err != nil {
		return apierr.Internal("building validate-token request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return apierr.Upstream("backend validate-token request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apierr.Unauthorized("invalid admin token")
	default:
		return apierr.Upstream(fmt.Sprintf("backend returned status %d", resp.StatusCode), nil)
	}
}

// shareListEntry is one element of the Backend's /api/public/shares response.
type shareListEntry struct {
	Hash string `json:"hash"`
}

// ListShares returns every share hash currently live on the Backend.
func (c *HTTPClient) ListShares(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/public/shares", nil)
	if err != nil {
		return nil, apierr.Internal("building list-shares request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.Upstream("backend list-shares request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.Upstream(fmt.Sprintf("backend returned status %d", resp.StatusCode), nil)
	}

	var entries []shareListEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, apierr.Upstream("decoding list-shares response", err)
	}

	hashes := make([]string, len(entries))
	for i, e := range entries {
		hashes[i] = e.Hash
	}
	return hashes, nil
}
