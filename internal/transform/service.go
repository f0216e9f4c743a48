// Package transform implements the thumbnail, fast-proxy, and HD-proxy
// rendition pipelines, plus source negotiation and the background
// preparation dispatcher.
package transform

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/mattborg/galleryedge/internal/cache"
	"github.com/mattborg/galleryedge/internal/config"
	"github.com/mattborg/galleryedge/internal/ffmpeg"
)

// Target names a rendition preparation target, accepted via the
// video-sources query parameters or JSON body.
type Target string

const (
	TargetFast Target = "fast"
	TargetHD   Target = "hd"
)

var imageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true,
	"bmp": true, "heic": true, "heif": true, "avif": true,
}

var videoExtensions = map[string]bool{
	"mp4": true, "mov": true, "m4v": true, "webm": true, "mkv": true, "avi": true,
}

// IsImage and IsVideo classify a lowercase, dot-free extension.
func IsImage(ext string) bool { return imageExtensions[strings.ToLower(ext)] }
func IsVideo(ext string) bool { return videoExtensions[strings.ToLower(ext)] }

// Service wires the three pipelines onto a shared cache, encoder binaries,
// and bounded pools, and owns the process-local background-task set.
type Service struct {
	cfg         *config.Config
	cache       *cache.Cache
	ffmpegPath  string
	ffprobePath string
	prober      *ffmpeg.Prober
	logger      *slog.Logger

	thumbnailPool *ffmpeg.Pool
	fastProxyPool *ffmpeg.Pool
	hdProxyPool   *ffmpeg.Pool

	tasksMu sync.Mutex
	tasks   map[string]bool
}

// New creates a Service. ffmpegPath/ffprobePath should already be resolved
// (see internal/ffmpeg.ResolveBinaries).
func New(cfg *config.Config, c *cache.Cache, ffmpegPath, ffprobePath string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:           cfg,
		cache:         c,
		ffmpegPath:    ffmpegPath,
		ffprobePath:   ffprobePath,
		prober:        ffmpeg.NewProber(ffprobePath),
		logger:        logger,
		thumbnailPool: ffmpeg.NewPool("thumbnail", int64(cfg.Thumbnail.PoolSize)),
		fastProxyPool: ffmpeg.NewPool("fast_proxy", int64(cfg.FastProxy.PoolSize)),
		hdProxyPool:   ffmpeg.NewPool("hd_proxy", int64(cfg.HDProxy.PoolSize)),
		tasks:         make(map[string]bool),
	}
}

// StartPreparation enqueues a background build under id ("{kind}:{cache_key}")
// if one is not already outstanding. It returns started=false when a
// duplicate task_id is already active. The build runs in a new goroutine;
// failures are logged, never surfaced.
func (s *Service) StartPreparation(id string, build func(ctx context.Context) error) (started bool) {
	s.tasksMu.Lock()
	if s.tasks[id] {
		s.tasksMu.Unlock()
		return false
	}
	s.tasks[id] = true
	s.tasksMu.Unlock()

	go func() {
		defer func() {
			s.tasksMu.Lock()
			delete(s.tasks, id)
			s.tasksMu.Unlock()
		}()

		if err := build(context.Background()); err != nil {
			s.logger.Warn("background preparation failed",
				slog.String("task_id", id), slog.String("error", err.Error()))
		}
	}()

	return true
}
