// Package ffmpeg provides a fluent FFmpeg command builder and ffprobe
// decoder used by the transform pipelines and the faststart post-processor.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Command represents a fully-built FFmpeg invocation.
type Command struct {
	Binary string
	Args   []string
}

// CommandBuilder builds FFmpeg commands with a fluent API. Only the verbs
// the transform pipelines and faststart post-processor actually need are
// kept: one-shot encode/remux, never a long-running relay.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputArgs  []string
	input      string
	filterArgs []string
	mapArgs    []string
	outputArgs []string
	output     string
	logLevel   string
	overwrite  bool
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Input sets the input source.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// Seek sets an input-side seek position in seconds (applied before -i, so
// FFmpeg can use it for fast keyframe-accurate seeking).
func (b *CommandBuilder) Seek(seconds float64) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-ss", strconv.FormatFloat(seconds, 'f', 3, 64))
	return b
}

// Frames limits the number of output frames (used to grab a single
// thumbnail frame).
func (b *CommandBuilder) Frames(n int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-frames:v", strconv.Itoa(n))
	return b
}

// Map adds an explicit stream mapping, e.g. "0:v:0" or "0:a:0?".
func (b *CommandBuilder) Map(spec string) *CommandBuilder {
	b.mapArgs = append(b.mapArgs, "-map", spec)
	return b
}

// VideoCodec sets the video codec ("copy" for stream-copy).
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec ("copy" for stream-copy).
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// VideoProfile sets the H.264 profile (main, high).
func (b *CommandBuilder) VideoProfile(profile string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-profile:v", profile)
	return b
}

// PixelFormat sets the output pixel format.
func (b *CommandBuilder) PixelFormat(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-pix_fmt", format)
	return b
}

// GOP sets a fixed group-of-pictures size with scene-cut detection disabled,
// so segment boundaries stay predictable.
func (b *CommandBuilder) GOP(size int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-g", strconv.Itoa(size), "-sc_threshold", "0")
	return b
}

// CRF sets the constant rate factor for the video encoder.
func (b *CommandBuilder) CRF(value int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-crf", strconv.Itoa(value))
	return b
}

// VideoPreset sets the encoding preset (e.g. "veryfast", "fast").
func (b *CommandBuilder) VideoPreset(preset string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-preset", preset)
	return b
}

// AudioBitrate sets the audio bitrate, e.g. "128k".
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:a", bitrate)
	return b
}

// VideoFilter adds a video filter; multiple calls are joined with commas.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, filter)
	return b
}

// ImageQuality sets the JPEG/MJPEG quality scale (2 = best, 31 = worst).
func (b *CommandBuilder) ImageQuality(qscale int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-q:v", strconv.Itoa(qscale))
	return b
}

// Faststart sets the MP4 index-first movflag.
func (b *CommandBuilder) Faststart() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-movflags", "+faststart")
	return b
}

// OutputArgs adds arbitrary output arguments not covered by a named verb.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build assembles the final argument list.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	if b.overwrite {
		args = append(args, "-y")
	}

	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)

	args = append(args, b.mapArgs...)

	if len(b.filterArgs) > 0 {
		args = append(args, "-vf", strings.Join(b.filterArgs, ","))
	}

	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary: b.binary,
		Args:   args,
	}
}

// String returns the command as a displayable string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// ErrTimeout indicates the subprocess was killed because the provided
// context deadline elapsed before it exited.
var ErrTimeout = errors.New("ffmpeg: timed out")

// Run executes the command to completion, returning captured stderr bytes
// regardless of success. A context deadline exceeded is reported as
// ErrTimeout (wrapped) so callers can distinguish it from a non-zero exit.
func (c *Command) Run(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdin = nil

	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		return stderr.Bytes(), fmt.Errorf("%w: %s", ErrTimeout, c.String())
	}
	return stderr.Bytes(), err
}

// StderrText decodes captured stderr bytes to a display string, replacing
// invalid UTF-8 sequences rather than failing.
func StderrText(raw []byte) string {
	return strings.ToValidUTF8(string(raw), "�")
}
