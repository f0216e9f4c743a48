// Package listing implements the share listing cache: a TTL-bounded,
// mutex-guarded map from share hash to its fully flattened, recursively
// resolved file listing, fetched from the Backend on miss or expiry.
package listing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/mattborg/galleryedge/internal/backend"
	"github.com/mattborg/galleryedge/internal/httpserver/apierr"
)

// ErrNotFound is returned when the share does not exist on the Backend.
var ErrNotFound = errors.New("listing: share not found")

var imageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true,
	"bmp": true, "heic": true, "heif": true, "avif": true,
}

var videoExtensions = map[string]bool{
	"mp4": true, "mov": true, "m4v": true, "webm": true, "mkv": true, "avi": true,
}

// ListedFile is one flattened entry of a share's listing.
type ListedFile struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Extension   string `json:"extension"`
	Size        int64  `json:"size"`
	InlineURL   string `json:"inline_url"`
	DownloadURL string `json:"download_url"`
}

func extensionOf(name string) string {
	ext := path.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// classify derives ListedFile.Type: the Backend's own label when it is
// image or video, otherwise inferred from extension.
func classify(backendType, ext string) string {
	if backendType == "image" || backendType == "video" {
		return backendType
	}
	switch {
	case imageExtensions[ext]:
		return "image"
	case videoExtensions[ext]:
		return "video"
	default:
		return "file"
	}
}

func toListedFile(share string, item backend.Item) ListedFile {
	ext := extensionOf(item.Name)
	encodedPath := EncodePath(item.Path)
	return ListedFile{
		Name:        item.Name,
		Path:        item.Path,
		Type:        classify(item.Type, ext),
		Extension:   ext,
		Size:        item.Size,
		InlineURL:   fmt.Sprintf("/api/public/dl/%s/%s?inline=true", share, encodedPath),
		DownloadURL: fmt.Sprintf("/api/share/%s/file/%s?download=1", share, encodedPath),
	}
}

// toSingleFileListedFile builds the one-element listing for a share whose
// root is a single file rather than a folder. Its inline URL has no path
// segment — the Backend serves it straight off the share hash.
func toSingleFileListedFile(share string, item backend.Item) ListedFile {
	ext := extensionOf(item.Name)
	encodedPath := EncodePath(item.Path)
	return ListedFile{
		Name:        item.Name,
		Path:        item.Path,
		Type:        classify(item.Type, ext),
		Extension:   ext,
		Size:        item.Size,
		InlineURL:   fmt.Sprintf("/api/public/file/%s?inline=true", share),
		DownloadURL: fmt.Sprintf("/api/share/%s/file/%s?download=1", share, encodedPath),
	}
}

// EncodePath percent-encodes each path segment, preserving the slashes.
func EncodePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// Options controls a single GetListing call.
type Options struct {
	ForceRefresh bool
	MaxAge       time.Duration // 0 means "use the cache's configured TTL"
}

type entry struct {
	fetchedAt time.Time
	files     []ListedFile
}

// Cache is the process-local share listing cache.
type Cache struct {
	backend  backend.Client
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	entries map[string]entry
}

// New creates a Cache with the given default TTL and capacity.
func New(client backend.Client, ttl time.Duration, capacity int) *Cache {
	return &Cache{
		backend:  client,
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]entry),
	}
}

// GetListing implements getListing(share, opts) → ListedFile[] | ErrNotFound.
func (c *Cache) GetListing(ctx context.Context, share string, opts Options) ([]ListedFile, error) {
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = c.ttl
	}

	if !opts.ForceRefresh {
		c.mu.Lock()
		e, ok := c.entries[share]
		c.mu.Unlock()
		if ok && time.Since(e.fetchedAt) < maxAge {
			return e.files, nil
		}
	}

	files, err := c.fetch(ctx, share)
	if err != nil {
		// Upstream errors other than 404 propagate without evicting a good entry.
		return nil, err
	}

	c.mu.Lock()
	if _, exists := c.entries[share]; !exists && len(c.entries) >= c.capacity {
		c.entries = make(map[string]entry)
	}
	c.entries[share] = entry{fetchedAt: time.Now(), files: files}
	c.mu.Unlock()

	return files, nil
}

// fetch queries the Backend's root for share and flattens it: recursive
// depth-first descent for folders, a synthesized one-element list for
// single-file shares.
func (c *Cache) fetch(ctx context.Context, share string) ([]ListedFile, error) {
	root, err := c.backend.List(ctx, share, "")
	if err != nil {
		if apiErr, ok := apierr.As(err); ok && apiErr.Status == 404 {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !root.IsFolder() {
		name := root.Name
		if name == "" {
			name = path.Base(root.Path)
		}
		single := root.Item
		single.Path = name
		return []ListedFile{toSingleFileListedFile(share, single)}, nil
	}

	var files []ListedFile
	visited := make(map[string]bool)
	// The worklist is a stack; items are pushed in reverse so that they pop
	// in the Backend's listed order.
	var worklist []backend.Item
	for i := len(root.Items) - 1; i >= 0; i-- {
		worklist = append(worklist, root.Items[i])
	}

	for len(worklist) > 0 {
		item := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if visited[item.Path] {
			continue
		}
		visited[item.Path] = true

		if item.IsDir {
			children, err := c.backend.List(ctx, share, item.Path)
			if err != nil {
				return nil, err
			}
			for i := len(children.Items) - 1; i >= 0; i-- {
				worklist = append(worklist, children.Items[i])
			}
			continue
		}

		files = append(files, toListedFile(share, item))
	}

	return files, nil
}
