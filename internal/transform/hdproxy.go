package transform

import (
	"context"
	"fmt"
	"os"

	"github.com/mattborg/galleryedge/internal/cache"
	"github.com/mattborg/galleryedge/internal/config"
	"github.com/mattborg/galleryedge/internal/ffmpeg"
)

const hdProxyCacheKind = "hd_proxy"

func hdProxyCacheKeyFor(cfg *config.Config, share, path string, sourceSize int64) cache.Key {
	c := cfg.HDProxy
	return cache.Key{
		Kind:       hdProxyCacheKind,
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

// HDProxy builds (or reuses) the quality rendition for a video: a
// three-step fallback ladder (remux, copy-video/re-encode-audio, full
// transcode) sharing one bounded pool slot and one temporary path. The
// first attempt to return success terminates the ladder; each failed
// attempt deletes its temporary output before the next is tried.
func (s *Service) HDProxy(ctx context.Context, share, path, sourcePath string, sourceSize int64) (string, error) {
	key := hdProxyCacheKeyFor(s.cfg, share, path, sourceSize)

	return s.cache.GetOrBuild(ctx, key, "mp4", func(ctx context.Context, tmp string) error {
		return s.buildHDProxy(ctx, sourcePath, tmp)
	})
}

func (s *Service) buildHDProxy(parentCtx context.Context, sourcePath, tmp string) error {
	cfg := s.cfg.HDProxy

	attempts := []func() *ffmpeg.Command{
		func() *ffmpeg.Command { // 1. remux: stream-copy both tracks
			return ffmpeg.NewCommandBuilder(s.ffmpegPath).
				HideBanner().Overwrite().Input(sourcePath).
				Map("0:v:0").Map("0:a:0?").
				VideoCodec("copy").AudioCodec("copy").
				Faststart().Output(tmp).Build()
		},
		func() *ffmpeg.Command { // 2. copy-video: re-encode audio only
			return ffmpeg.NewCommandBuilder(s.ffmpegPath).
				HideBanner().Overwrite().Input(sourcePath).
				Map("0:v:0").Map("0:a:0?").
				VideoCodec("copy").
				AudioCodec("aac").AudioBitrate(fmt.Sprintf("%dk", cfg.AudioBitrateKb)).
				Faststart().Output(tmp).Build()
		},
		func() *ffmpeg.Command { // 3. full transcode with HD parameters
			b := ffmpeg.NewCommandBuilder(s.ffmpegPath).
				HideBanner().Overwrite().Input(sourcePath).
				Map("0:v:0").Map("0:a:0?").
				VideoCodec("libx264").VideoProfile("high").PixelFormat("yuv420p").
				GOP(60).CRF(cfg.CRF).VideoPreset(cfg.Preset)
			if cfg.MaxDimension > 0 {
				scale := fmt.Sprintf("scale='if(gt(iw,ih),min(iw\\,%d),-2)':'if(gt(iw,ih),-2,min(ih\\,%d))'", cfg.MaxDimension, cfg.MaxDimension)
				b = b.VideoFilter(scale)
			}
			return b.AudioCodec("aac").AudioBitrate(fmt.Sprintf("%dk", cfg.AudioBitrateKb)).
				Faststart().Output(tmp).Build()
		},
	}

	if err := s.hdProxyPool.Acquire(parentCtx); err != nil {
		return err
	}
	defer s.hdProxyPool.Release()

	var lastErr error
	for i, build := range attempts {
		cmd := build()

		attemptCtx, cancel := context.WithTimeout(parentCtx, cfg.Timeout.Duration())
		_, err := cmd.Run(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("hd proxy attempt %d/%d: %w", i+1, len(attempts), err)
		os.Remove(tmp)
	}
	return lastErr
}
