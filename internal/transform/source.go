package transform

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// RenditionInfo describes one URL in the video-sources response.
type RenditionInfo struct {
	URL   string `json:"url"`
	Ready bool   `json:"ready,omitempty"`
	Size  int64  `json:"size,omitempty"`
}

// PrepareResult reports which preparation targets were requested and which
// of those actually started a new background build (duplicates suppressed).
type PrepareResult struct {
	Requested []Target `json:"requested"`
	Started   []Target `json:"started"`
}

// VideoSourcesResult is the full video-sources response shape.
type VideoSourcesResult struct {
	Share    string        `json:"share"`
	Path     string        `json:"path"`
	Original RenditionInfo `json:"original"`
	Fast     RenditionInfo `json:"fast"`
	HD       RenditionInfo `json:"hd"`
	Prepare  PrepareResult `json:"prepare"`
}

// BuildInputs holds everything a background build closure needs to
// reconstruct the source side of a rendition.
type BuildInputs struct {
	SourcePath string
	SourceSize int64
}

// VideoSources reports the current state of every rendition for a video
// and, for each requested target not already ready, fires off a background
// build (deduplicated by task_id).
func (s *Service) VideoSources(ctx context.Context, share, path, originalURL string, in BuildInputs, targets []Target) (*VideoSourcesResult, error) {
	fastKey := fastProxyCacheKeyFor(s.cfg, share, path, in.SourceSize)
	hdKey := hdProxyCacheKeyFor(s.cfg, share, path, in.SourceSize)

	result := &VideoSourcesResult{
		Share:    share,
		Path:     path,
		Original: RenditionInfo{URL: originalURL, Ready: true, Size: in.SourceSize},
		Prepare:  PrepareResult{Requested: targets},
	}

	encodedPath := strings.Join(pathSegmentsEscaped(path), "/")
	result.Fast.URL = fmt.Sprintf("/api/share/%s/proxy/%s", share, encodedPath)
	result.HD.URL = fmt.Sprintf("/api/share/%s/hd/%s", share, encodedPath)

	if p, ok := s.cache.Lookup(fastKey, "mp4"); ok {
		result.Fast.Ready = true
		if info, err := os.Stat(p); err == nil {
			result.Fast.Size = info.Size()
		}
	}
	if p, ok := s.cache.Lookup(hdKey, "mp4"); ok {
		result.HD.Ready = true
		if info, err := os.Stat(p); err == nil {
			result.HD.Size = info.Size()
		}
	}

	for _, target := range targets {
		switch target {
		case TargetFast:
			if result.Fast.Ready {
				continue
			}
			id := fmt.Sprintf("fast:%s", fastKey.Hash())
			started := s.StartPreparation(id, func(ctx context.Context) error {
				_, err := s.FastProxy(ctx, share, path, in.SourcePath, in.SourceSize)
				return err
			})
			if started {
				result.Prepare.Started = append(result.Prepare.Started, TargetFast)
			}
		case TargetHD:
			if result.HD.Ready {
				continue
			}
			id := fmt.Sprintf("hd:%s", hdKey.Hash())
			started := s.StartPreparation(id, func(ctx context.Context) error {
				_, err := s.HDProxy(ctx, share, path, in.SourcePath, in.SourceSize)
				return err
			})
			if started {
				result.Prepare.Started = append(result.Prepare.Started, TargetHD)
			}
		}
	}

	return result, nil
}

func pathSegmentsEscaped(p string) []string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return segments
}
