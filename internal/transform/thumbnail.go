package transform

import (
	"context"
	"fmt"

	"github.com/mattborg/galleryedge/internal/cache"
	"github.com/mattborg/galleryedge/internal/ffmpeg"
)

const thumbnailCacheKind = "thumbnail"

// ThumbnailOptions carries the per-rendition knobs from config needed to
// build and key a thumbnail.
type ThumbnailOptions struct {
	MaxWidth       int
	Quality        int
	ProfileVersion int
}

// Thumbnail builds (or reuses) a JPEG thumbnail for share/path. The cache
// key deliberately omits source size — a documented legacy policy — so
// OmitSourceSize is always set here.
func (s *Service) Thumbnail(ctx context.Context, share, path string, isVideo bool, sourcePath string, opts ThumbnailOptions) (string, error) {
	key := cache.Key{
		Kind:           thumbnailCacheKind,
		ProfileVer:     opts.ProfileVersion,
		Params:         []string{fmt.Sprintf("w%d", opts.MaxWidth), fmt.Sprintf("q%d", opts.Quality)},
		Share:          share,
		Path:           path,
		OmitSourceSize: true,
	}

	return s.cache.GetOrBuild(ctx, key, "jpg", func(ctx context.Context, tmp string) error {
		return s.buildThumbnail(ctx, sourcePath, tmp, isVideo, opts)
	})
}

func (s *Service) buildThumbnail(ctx context.Context, sourcePath, tmp string, isVideo bool, opts ThumbnailOptions) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Thumbnail.Timeout.Duration())
	defer cancel()

	scale := fmt.Sprintf("scale=min(%d\\,iw):-2", opts.MaxWidth)

	build := func(seek float64) *ffmpeg.Command {
		b := ffmpeg.NewCommandBuilder(s.ffmpegPath).HideBanner().Overwrite()
		if isVideo {
			b = b.Seek(seek).Input(sourcePath).Frames(1)
		} else {
			b = b.Input(sourcePath).Frames(1)
		}
		return b.VideoFilter(scale).ImageQuality(opts.Quality).Output(tmp).Build()
	}

	_, err := s.thumbnailPool.Run(ctx, build(1))
	if err == nil {
		return nil
	}
	if !isVideo {
		return fmt.Errorf("encoding thumbnail: %w", err)
	}

	// Video seek=1s failed; retry once with seek=0.
	_, err2 := s.thumbnailPool.Run(ctx, build(0))
	if err2 != nil {
		return fmt.Errorf("encoding thumbnail (seek=1 and seek=0 both failed): %w", err2)
	}
	return nil
}
