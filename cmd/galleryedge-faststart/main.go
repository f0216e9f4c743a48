// Command galleryedge-faststart runs the offline faststart post-processor
// against a single media file, intended to be invoked by an external watcher
// right after a file finishes writing to the Backend's storage.
//
// Usage: galleryedge-faststart <path>
//
// Exit codes:
//
//	0  processed (rewritten or legitimately skipped)
//	2  bad invocation or ffmpeg/ffprobe could not be resolved
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattborg/galleryedge/internal/faststart"
	"github.com/mattborg/galleryedge/internal/ffmpeg"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: galleryedge-faststart <path>")
		return 2
	}
	path := args[0]

	logger := slog.Default()

	ctx := context.Background()
	binaries, err := ffmpeg.ResolveBinaries(ctx, "", "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolving ffmpeg binaries: %v\n", err)
		return 2
	}

	processor := faststart.NewProcessor(binaries.FFmpegPath, binaries.FFprobePath, logger)
	rewritten, err := processor.Process(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "processing %s: %v\n", path, err)
		return 2
	}

	if rewritten {
		logger.Info("rewrote file for streaming", slog.String("path", path))
	}
	return 0
}
