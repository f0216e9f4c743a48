// Package faststart implements the offline Faststart Post-Processor: given
// a candidate media file path, it waits for the file to stop growing, then
// runs a short decision ladder (HEVC transcode, stream-mapping re-encode,
// timestamp-error re-encode, or a plain remux) so the file streams cleanly
// in a browser without a full download first.
//
// Every step replaces the source atomically: write to a hidden sibling,
// then rename over the original. A failure at any step leaves the source
// untouched and is logged, never fatal to the caller.
package faststart

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattborg/galleryedge/internal/atom"
	"github.com/mattborg/galleryedge/internal/ffmpeg"
)

const (
	stabilizePollInterval = 2 * time.Second
	stabilizeTimeout      = 120 * time.Second

	transcodeTimeout  = 3600 * time.Second
	diagnosticTimeout = 60 * time.Second
)

// Processor runs the faststart decision ladder against a single file.
type Processor struct {
	ffmpegPath  string
	ffprobePath string
	prober      *ffmpeg.Prober
	logger      *slog.Logger
}

// NewProcessor creates a Processor bound to the given ffmpeg/ffprobe binaries.
func NewProcessor(ffmpegPath, ffprobePath string, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		prober:      ffmpeg.NewProber(ffprobePath).WithTimeout(diagnosticTimeout),
		logger:      logger,
	}
}

// Process runs the full faststart ladder for path. It never returns an
// error for ordinary skip conditions (file gone, not yet stable, already
// optimized) — those are logged and treated as success, matching the
// source utility's "always exit 0" contract. The bool result reports
// whether the file was rewritten.
func (p *Processor) Process(ctx context.Context, path string) (rewritten bool, err error) {
	info, statErr := os.Stat(path)
	if statErr != nil || !info.Mode().IsRegular() {
		return false, nil
	}

	if !p.waitForStableSize(path) {
		p.logger.Info("skipping (file not stable)", slog.String("path", path))
		return false, nil
	}

	offsets, scanErr := atom.ScanTopLevelAtoms(path)
	if scanErr != nil {
		p.logger.Warn("skipping (failed to inspect atoms)", slog.String("path", path), slog.String("error", scanErr.Error()))
		return false, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, diagnosticTimeout)
	codec, codecErr := p.prober.VideoCodec(probeCtx, path)
	cancel()
	if codecErr == nil && (codec == "hevc" || codec == "h265") {
		p.logger.Info("detected HEVC codec, transcoding to H.264", slog.String("path", path))
		if err := p.reencode(ctx, path, nil); err != nil {
			p.logger.Warn("transcode failed", slog.String("path", path), slog.String("error", err.Error()))
			return false, nil
		}
		return true, nil
	}

	probeCtx2, cancel2 := context.WithTimeout(ctx, diagnosticTimeout)
	hasExtra, extraErr := p.prober.HasExtraDataStreams(probeCtx2, path)
	cancel2()
	if extraErr == nil && hasExtra {
		p.logger.Info("detected extra data streams", slog.String("path", path))
		mapSpec := []string{"0:v:0", "0:a:0?"}
		if err := p.reencode(ctx, path, mapSpec); err != nil {
			p.logger.Warn("re-encode failed", slog.String("path", path), slog.String("error", err.Error()))
			return false, nil
		}
		return true, nil
	}

	if p.hasTimestampErrors(ctx, path) {
		p.logger.Info("detected timestamp errors", slog.String("path", path))
		mapSpec := []string{"0:v:0", "0:a:0?"}
		if err := p.reencode(ctx, path, mapSpec); err != nil {
			p.logger.Warn("re-encode failed", slog.String("path", path), slog.String("error", err.Error()))
			return false, nil
		}
		return true, nil
	}

	moovOffset, hasMoov := offsets["moov"]
	mdatOffset, hasMdat := offsets["mdat"]
	if hasMoov && hasMdat && moovOffset < mdatOffset {
		return false, nil
	}

	p.logger.Info("optimizing for streaming (moov after mdat)", slog.String("path", path))
	if err := p.remux(ctx, path); err != nil {
		p.logger.Warn("faststart remux failed", slog.String("path", path), slog.String("error", err.Error()))
		return false, nil
	}
	p.logger.Info("done", slog.String("path", path))
	return true, nil
}

// waitForStableSize polls the file's size until two consecutive
// non-zero readings match, or the stabilization timeout elapses.
func (p *Processor) waitForStableSize(path string) bool {
	deadline := time.Now().Add(stabilizeTimeout)
	var lastSize int64 = -1
	stableCount := 0

	for time.Now().Before(deadline) {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		size := info.Size()

		if size == lastSize && size > 0 {
			stableCount++
			if stableCount >= 2 {
				return true
			}
		} else {
			stableCount = 0
			lastSize = size
		}

		time.Sleep(stabilizePollInterval)
	}
	return false
}

// hasTimestampErrors runs a short decode and scans stderr diagnostics for
// known timestamp/DTS anomaly markers.
func (p *Processor) hasTimestampErrors(ctx context.Context, path string) bool {
	ctx, cancel := context.WithTimeout(ctx, diagnosticTimeout)
	defer cancel()

	cmd := ffmpeg.NewCommandBuilder(p.ffmpegPath).
		HideBanner().
		Input(path).
		OutputArgs("-f", "null", "-t", "10").
		Output("-").
		Build()

	stderr, _ := cmd.Run(ctx)
	text := strings.ToLower(ffmpeg.StderrText(stderr))

	for _, marker := range []string{
		"non monotonically increasing dts",
		"invalid dts",
		"discarding invalid",
	} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// reencode re-encodes to H.264/AAC with the given stream mapping (nil passes
// no -map, leaving ffmpeg's default stream selection) and atomically replaces
// the source.
func (p *Processor) reencode(ctx context.Context, path string, mapSpec []string) error {
	return p.replaceAtomically(ctx, path, "fixed", transcodeTimeout, func(b *ffmpeg.CommandBuilder, tmp string) *ffmpeg.Command {
		b = b.HideBanner().Overwrite().Input(path)
		for _, m := range mapSpec {
			b = b.Map(m)
		}
		return b.
			VideoCodec("libx264").VideoPreset("fast").CRF(23).
			AudioCodec("aac").
			Faststart().
			Output(tmp).
			Build()
	})
}

// remux stream-copies both tracks into a new container with the index
// moved to the front.
func (p *Processor) remux(ctx context.Context, path string) error {
	return p.replaceAtomically(ctx, path, "faststart", transcodeTimeout, func(b *ffmpeg.CommandBuilder, tmp string) *ffmpeg.Command {
		return b.HideBanner().Overwrite().Input(path).
			Map("0").
			VideoCodec("copy").AudioCodec("copy").
			Faststart().
			Output(tmp).
			Build()
	})
}

// replaceAtomically builds and runs an FFmpeg command writing to a hidden
// sibling file, then renames it over the source on success. The mode and
// modification time are preserved. Any failure removes the temp file and
// leaves the source untouched.
func (p *Processor) replaceAtomically(ctx context.Context, path, tag string, timeout time.Duration, build func(*ffmpeg.CommandBuilder, string) *ffmpeg.Command) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s%s", stem, tag, ext))

	defer os.Remove(tmp)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := build(ffmpeg.NewCommandBuilder(p.ffmpegPath), tmp)
	stderr, runErr := cmd.Run(runCtx)
	if runErr != nil {
		return fmt.Errorf("%s: %w (stderr: %s)", tag, runErr, truncate(ffmpeg.StderrText(stderr), 500))
	}

	if err := os.Chmod(tmp, info.Mode()); err != nil {
		return err
	}
	if err := os.Chtimes(tmp, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated)"
}
