package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_StringAndHash_Stable(t *testing.T) {
	k := Key{Kind: "thumbnail", ProfileVer: 1, Share: "abc", Path: "a/b.jpg", SourceSize: 100, OmitSourceSize: true}
	k2 := Key{Kind: "thumbnail", ProfileVer: 1, Share: "abc", Path: "a/b.jpg", SourceSize: 999, OmitSourceSize: true}

	assert.Equal(t, k.Hash(), k2.Hash(), "source size is excluded from the thumbnail key")
}

func TestKey_SourceSizeChangesHash(t *testing.T) {
	k := Key{Kind: "fast_proxy", ProfileVer: 1, Share: "abc", Path: "a/b.mp4", SourceSize: 100}
	k2 := Key{Kind: "fast_proxy", ProfileVer: 1, Share: "abc", Path: "a/b.mp4", SourceSize: 200}

	assert.NotEqual(t, k.Hash(), k2.Hash())
}

func TestGetOrBuild_CreatesArtifact(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	key := Key{Kind: "thumbnail", ProfileVer: 1, Share: "s", Path: "p.jpg", OmitSourceSize: true}

	var calls int32
	build := func(ctx context.Context, tmp string) error {
		atomic.AddInt32(&calls, 1)
		return os.WriteFile(tmp, []byte("jpeg-bytes"), 0o644)
	}

	path, err := c.GetOrBuild(context.Background(), key, "jpg", build)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path) || filepath.IsLocal(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
	assert.Equal(t, int32(1), calls)

	// Second call hits the fast path, doesn't invoke builder again.
	_, err = c.GetOrBuild(context.Background(), key, "jpg", build)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls)
}

func TestGetOrBuild_BuilderFailureLeavesNoArtifact(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	key := Key{Kind: "fast_proxy", ProfileVer: 1, Share: "s", Path: "p.mp4", SourceSize: 10}

	build := func(ctx context.Context, tmp string) error {
		_ = os.WriteFile(tmp, []byte("partial"), 0o644)
		return assert.AnError
	}

	_, err = c.GetOrBuild(context.Background(), key, "mp4", build)
	assert.Error(t, err)

	_, ok := c.Lookup(key, "mp4")
	assert.False(t, ok)

	entries, _ := os.ReadDir(c.dir)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "failed build must not leave a .tmp file behind")
	}
}

func TestGetOrBuild_SingleFlightAcrossGoroutines(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	key := Key{Kind: "hd_proxy", ProfileVer: 1, Share: "s", Path: "clip.mp4", SourceSize: 5000}

	var calls int32
	build := func(ctx context.Context, tmp string) error {
		atomic.AddInt32(&calls, 1)
		return os.WriteFile(tmp, []byte("hd-bytes"), 0o644)
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path, err := c.GetOrBuild(context.Background(), key, "mp4", build)
			require.NoError(t, err)
			results[i] = path
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls)
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}
