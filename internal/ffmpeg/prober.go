package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult contains the complete ffprobe output for a local file.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	NumStreams int    `json:"nb_streams"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// ProbeStream contains stream information relevant to the rendition decision
// ladder (codec/stream-type checks) and thumbnail frame selection.
type ProbeStream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	Profile    string `json:"profile"`
	CodecType  string `json:"codec_type"` // video, audio, subtitle, data, unknown
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	PixFmt     string `json:"pix_fmt,omitempty"`
	Duration   string `json:"duration,omitempty"`
}

// Prober handles ffprobe operations against local files.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a new stream prober.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe probes a local file and returns its format/stream metadata.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	return &result, nil
}

// VideoCodec returns the codec name of the first video stream, or "" if none.
func (p *Prober) VideoCodec(ctx context.Context, path string) (string, error) {
	result, err := p.Probe(ctx, path)
	if err != nil {
		return "", err
	}
	if v := result.GetVideoStream(); v != nil {
		return strings.ToLower(v.CodecName), nil
	}
	return "", nil
}

// HasExtraDataStreams reports whether the file carries any "data" or
// "unknown" typed streams (seen on some iPhone exports, causes playback
// issues downstream).
func (p *Prober) HasExtraDataStreams(ctx context.Context, path string) (bool, error) {
	result, err := p.Probe(ctx, path)
	if err != nil {
		return false, err
	}
	for _, s := range result.Streams {
		if s.CodecType == "data" || s.CodecType == "unknown" {
			return true, nil
		}
	}
	return false, nil
}

// GetVideoStream returns the first video stream from probe result.
func (r *ProbeResult) GetVideoStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "video" {
			return &r.Streams[i]
		}
	}
	return nil
}

// GetAudioStream returns the first audio stream from probe result.
func (r *ProbeResult) GetAudioStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "audio" {
			return &r.Streams[i]
		}
	}
	return nil
}

// Duration returns the container duration in seconds, or 0 if unknown.
func (r *ProbeResult) Duration() float64 {
	if r.Format.Duration == "" {
		return 0
	}
	if dur, err := strconv.ParseFloat(r.Format.Duration, 64); err == nil {
		return dur
	}
	return 0
}
