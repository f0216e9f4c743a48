package transform

import (
	"context"
	"fmt"

	"github.com/mattborg/galleryedge/internal/cache"
	"github.com/mattborg/galleryedge/internal/config"
	"github.com/mattborg/galleryedge/internal/ffmpeg"
)

const fastProxyCacheKind = "fast_proxy"

func fastProxyCacheKeyFor(cfg *config.Config, share, path string, sourceSize int64) cache.Key {
	c := cfg.FastProxy
	return cache.Key{
		Kind:       fastProxyCacheKind,
		ProfileVer: c.ProfileVersion,
		Params: []string{
			fmt.Sprintf("dim%d", c.MaxDimension),
			fmt.Sprintf("crf%d", c.CRF),
			c.Preset,
		},
		Share:      share,
		Path:       path,
		SourceSize: sourceSize,
	}
}

// FastProxy builds (or reuses) the bandwidth rendition for a video:
// one-shot H.264 main-profile/yuv420p transcode, fixed GOP, AAC audio, no
// fallback ladder — failure is failure.
func (s *Service) FastProxy(ctx context.Context, share, path, sourcePath string, sourceSize int64) (string, error) {
	key := fastProxyCacheKeyFor(s.cfg, share, path, sourceSize)

	return s.cache.GetOrBuild(ctx, key, "mp4", func(ctx context.Context, tmp string) error {
		return s.buildFastProxy(ctx, sourcePath, tmp)
	})
}

func (s *Service) buildFastProxy(ctx context.Context, sourcePath, tmp string) error {
	cfg := s.cfg.FastProxy

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout.Duration())
	defer cancel()

	scale := fmt.Sprintf("scale='if(gt(iw,ih),min(iw\\,%d),-2)':'if(gt(iw,ih),-2,min(ih\\,%d))'", cfg.MaxDimension, cfg.MaxDimension)

	cmd := ffmpeg.NewCommandBuilder(s.ffmpegPath).
		HideBanner().Overwrite().
		Input(sourcePath).
		Map("0:v:0").Map("0:a:0?").
		VideoCodec("libx264").VideoProfile("main").PixelFormat("yuv420p").
		GOP(60).CRF(cfg.CRF).VideoPreset(cfg.Preset).
		VideoFilter(scale).
		AudioCodec("aac").AudioBitrate(fmt.Sprintf("%dk", cfg.AudioBitrateKb)).
		Faststart().
		Output(tmp).
		Build()

	_, err := s.fastProxyPool.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("encoding fast proxy: %w", err)
	}
	return nil
}
