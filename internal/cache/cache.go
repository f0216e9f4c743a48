// Package cache implements the content-addressed rendition cache: a (kind,
// profile, tuning params, share, path, source size) key maps to an on-disk
// artifact, built at most once across the whole fleet via a per-key
// cross-process file lock.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// Key identifies one rendition. String encodes every field that
// participates in content addressing — changing any of them, including
// SourceSize, changes the key, so stale renditions are naturally bypassed.
type Key struct {
	Kind          string // "thumbnail", "fast_proxy", "hd_proxy"
	ProfileVer    int
	Params        []string // tuning parameters, pre-formatted and ordered by the caller
	Share         string
	Path          string
	SourceSize    int64
	OmitSourceSize bool // thumbnails keep the legacy key shape that excludes source size
}

// String renders the key's canonical encoding prior to hashing.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Kind)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(k.ProfileVer))
	for _, p := range k.Params {
		b.WriteByte('|')
		b.WriteString(p)
	}
	b.WriteByte('|')
	b.WriteString(k.Share)
	b.WriteByte('|')
	b.WriteString(k.Path)
	if !k.OmitSourceSize {
		b.WriteByte('|')
		b.WriteString(strconv.FormatInt(k.SourceSize, 10))
	}
	return b.String()
}

// Hash returns the hex-encoded SHA-256 digest of the key's string encoding.
func (k Key) Hash() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}

// Cache manages on-disk rendition artifacts under a single directory.
type Cache struct {
	dir string
}

// New creates a Cache rooted at dir, creating it if necessary.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Builder writes the rendition's bytes to tmpPath. It must not rename or
// otherwise publish the file itself — the Cache does that once Builder
// returns nil.
type Builder func(ctx context.Context, tmpPath string) error

// path returns the final artifact path for key with the given extension.
func (c *Cache) path(key Key, ext string) string {
	return filepath.Join(c.dir, key.Hash()+"."+ext)
}

// Lookup returns the final path for key if the artifact already exists.
func (c *Cache) Lookup(key Key, ext string) (path string, ok bool) {
	p := c.path(key, ext)
	if _, err := os.Stat(p); err == nil {
		return p, true
	}
	return "", false
}

// GetOrBuild implements the single-flight build protocol:
//  1. fast path: return the final file if it already exists.
//  2. slow path: acquire an exclusive cross-process lock on "<output>.lock",
//     re-check step 1 (another worker may have just finished).
//  3. remove any leftover .tmp, then run builder to write "<output>.tmp".
//  4. on success, atomically rename .tmp to the final path.
//  5. on failure, delete .tmp and surface the error.
//
// The lock is released on every exit path.
func (c *Cache) GetOrBuild(ctx context.Context, key Key, ext string, builder Builder) (string, error) {
	final := c.path(key, ext)

	if _, err := os.Stat(final); err == nil {
		return final, nil
	}

	lockPath := final + ".lock"
	lock := flock.New(lockPath)
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("acquiring cache lock: %w", err)
	}
	defer lock.Unlock()

	if _, err := os.Stat(final); err == nil {
		return final, nil
	}

	tmp := final + ".tmp"
	_ = os.Remove(tmp)

	if err := builder(ctx, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("publishing cache entry: %w", err)
	}

	return final, nil
}
