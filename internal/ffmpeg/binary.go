package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/mattborg/galleryedge/internal/util"
)

// BinaryInfo identifies the resolved FFmpeg/FFprobe binaries and FFmpeg's
// reported version.
type BinaryInfo struct {
	FFmpegPath   string `json:"ffmpeg_path"`
	FFprobePath  string `json:"ffprobe_path"`
	Version      string `json:"version"`
	MajorVersion int    `json:"major_version"`
	MinorVersion int    `json:"minor_version"`
}

// ResolveBinaries locates the ffmpeg and ffprobe binaries, preferring an
// explicit override path, falling back to util.FindBinary's env-var/./name/
// $PATH search order, and reads FFmpeg's version string.
func ResolveBinaries(ctx context.Context, ffmpegOverride, ffprobeOverride string) (*BinaryInfo, error) {
	ffmpegPath := ffmpegOverride
	if ffmpegPath == "" {
		resolved, err := util.FindBinary("ffmpeg", "GALLERYEDGE_FFMPEG_BINARY")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found: %w", err)
		}
		ffmpegPath = resolved
	}

	ffprobePath := ffprobeOverride
	if ffprobePath == "" {
		resolved, err := util.FindBinary("ffprobe", "GALLERYEDGE_FFPROBE_BINARY")
		if err != nil {
			return nil, fmt.Errorf("ffprobe not found: %w", err)
		}
		ffprobePath = resolved
	}

	major, minor, full, err := version(ctx, ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}

	return &BinaryInfo{
		FFmpegPath:   ffmpegPath,
		FFprobePath:  ffprobePath,
		Version:      full,
		MajorVersion: major,
		MinorVersion: minor,
	}, nil
}

var versionPattern = regexp.MustCompile(`^n?(\d+)\.(\d+)`)

// version extracts the FFmpeg version string by running "ffmpeg -version".
func version(ctx context.Context, ffmpegPath string) (major, minor int, full string, err error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return 0, 0, "", err
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) == 0 {
		return 0, 0, "", fmt.Errorf("empty ffmpeg -version output")
	}

	parts := strings.Fields(lines[0])
	if len(parts) < 3 || !strings.HasPrefix(lines[0], "ffmpeg version") {
		return 0, 0, "", fmt.Errorf("unrecognized ffmpeg -version output")
	}

	full = parts[2]
	if matches := versionPattern.FindStringSubmatch(full); len(matches) >= 3 {
		major, _ = strconv.Atoi(matches[1])
		minor, _ = strconv.Atoi(matches[2])
	}

	return major, minor, full, nil
}

// SupportsMinVersion returns true if FFmpeg version meets minimum requirement.
func (info *BinaryInfo) SupportsMinVersion(major, minor int) bool {
	if info.MajorVersion > major {
		return true
	}
	return info.MajorVersion == major && info.MinorVersion >= minor
}
