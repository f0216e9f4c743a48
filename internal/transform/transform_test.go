package transform

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattborg/galleryedge/internal/cache"
	"github.com/mattborg/galleryedge/internal/config"
)

func testConfig() *config.Config {
	var cfg config.Config
	cfg.FastProxy.ProfileVersion = 1
	cfg.FastProxy.MaxDimension = 1280
	cfg.FastProxy.CRF = 28
	cfg.FastProxy.Preset = "veryfast"
	cfg.FastProxy.AudioBitrateKb = 128
	cfg.FastProxy.PoolSize = 1
	cfg.FastProxy.Timeout = config.Duration(10 * time.Second)

	cfg.HDProxy.ProfileVersion = 1
	cfg.HDProxy.MaxDimension = 0
	cfg.HDProxy.CRF = 20
	cfg.HDProxy.Preset = "veryfast"
	cfg.HDProxy.AudioBitrateKb = 128
	cfg.HDProxy.PoolSize = 1
	cfg.HDProxy.Timeout = config.Duration(10 * time.Second)

	cfg.Thumbnail.MaxWidth = 400
	cfg.Thumbnail.Quality = 6
	cfg.Thumbnail.PoolSize = 2
	cfg.Thumbnail.Timeout = config.Duration(10 * time.Second)
	cfg.Thumbnail.ProfileVersion = 1

	return &cfg
}

func newTestService(t *testing.T) (*Service, *cache.Cache) {
	t.Helper()
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	return New(testConfig(), c, "ffmpeg", "ffprobe", nil), c
}

func TestIsImageIsVideo(t *testing.T) {
	assert.True(t, IsImage("JPG"))
	assert.True(t, IsImage("heic"))
	assert.False(t, IsImage("mp4"))

	assert.True(t, IsVideo("MP4"))
	assert.True(t, IsVideo("mkv"))
	assert.False(t, IsVideo("txt"))
}

func TestFastProxyCacheKeyFor_StableAndDimensionSensitive(t *testing.T) {
	cfg := testConfig()
	k1 := fastProxyCacheKeyFor(cfg, "share", "a/b.mp4", 1000)
	k2 := fastProxyCacheKeyFor(cfg, "share", "a/b.mp4", 1000)
	assert.Equal(t, k1.Hash(), k2.Hash())

	cfg2 := testConfig()
	cfg2.FastProxy.MaxDimension = 720
	k3 := fastProxyCacheKeyFor(cfg2, "share", "a/b.mp4", 1000)
	assert.NotEqual(t, k1.Hash(), k3.Hash())
}

func TestHDProxyCacheKeyFor_SourceSizeSensitive(t *testing.T) {
	cfg := testConfig()
	k1 := hdProxyCacheKeyFor(cfg, "share", "a/b.mp4", 1000)
	k2 := hdProxyCacheKeyFor(cfg, "share", "a/b.mp4", 2000)
	assert.NotEqual(t, k1.Hash(), k2.Hash())
}

func TestStartPreparation_DuplicateSuppressed(t *testing.T) {
	s, _ := newTestService(t)

	release := make(chan struct{})
	var calls int32

	build := func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	}

	started1 := s.StartPreparation("fast:abc123", build)
	started2 := s.StartPreparation("fast:abc123", build)

	assert.True(t, started1)
	assert.False(t, started2, "duplicate task_id must be suppressed")

	close(release)
	// Give the background goroutine a moment to remove the task id.
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), calls)
}

func TestStartPreparation_RemovesTaskIDOnCompletion(t *testing.T) {
	s, _ := newTestService(t)

	done := make(chan struct{})
	build := func(ctx context.Context) error {
		close(done)
		return nil
	}

	s.StartPreparation("hd:abc123", build)
	<-done
	time.Sleep(20 * time.Millisecond)

	started := s.StartPreparation("hd:abc123", func(ctx context.Context) error { return nil })
	assert.True(t, started, "task_id must be free again once the first build completes")
}

func TestVideoSources_ReportsReadyFromCache(t *testing.T) {
	s, c := newTestService(t)

	fastKey := fastProxyCacheKeyFor(s.cfg, "share", "clip.mp4", 5000)
	hdKey := hdProxyCacheKeyFor(s.cfg, "share", "clip.mp4", 5000)

	fastPath := filepath.Join(t.TempDir(), "x.mp4")
	_ = fastPath
	_, err := c.GetOrBuild(context.Background(), fastKey, "mp4", func(ctx context.Context, tmp string) error {
		return os.WriteFile(tmp, []byte("fast-bytes"), 0o644)
	})
	require.NoError(t, err)
	_, err = c.GetOrBuild(context.Background(), hdKey, "mp4", func(ctx context.Context, tmp string) error {
		return os.WriteFile(tmp, []byte("hd-bytes-longer"), 0o644)
	})
	require.NoError(t, err)

	result, err := s.VideoSources(context.Background(), "share", "clip.mp4", "/original/clip.mp4",
		BuildInputs{SourcePath: "/src/clip.mp4", SourceSize: 5000}, []Target{TargetFast, TargetHD})
	require.NoError(t, err)

	assert.True(t, result.Fast.Ready)
	assert.True(t, result.HD.Ready)
	assert.Empty(t, result.Prepare.Started, "already-ready targets must not trigger a build")
	assert.Equal(t, int64(len("fast-bytes")), result.Fast.Size)
}
