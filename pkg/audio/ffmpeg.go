package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/gabriel-vasile/mimetype"
)

// ffmpegBackend handles compressed formats by shelling out. Segments are stream
// copied, so boundaries land on the nearest encoded frame.
type ffmpegBackend struct {
	runner      Runner
	ffmpegPath  string
	ffprobePath string
}

func (b ffmpegBackend) duration(ctx context.Context, path string) (time.Duration, error) {
	stdout, stderr, err := b.runner.Run(ctx, b.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, commandError(b.ffprobePath, err, stderr)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(stdout)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", strings.TrimSpace(string(stdout)), err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("ffprobe reported negative duration %f", seconds)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func (b ffmpegBackend) split(ctx context.Context, path string, spans []Span, workDir string) ([]string, error) {
	err := ensureDir(workDir)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		ext = ".mp3"
	}

	paths := make([]string, 0, len(spans))
	for i, sp := range spans {
		out := chunkPath(workDir, i, ext)
		_, stderr, err := b.runner.Run(ctx, b.ffmpegPath,
			"-v", "error",
			"-y",
			"-ss", formatSeconds(sp.Start),
			"-t", formatSeconds(sp.Duration),
			"-i", path,
			"-c", "copy",
			out,
		)
		if err != nil {
			return nil, commandError(b.ffmpegPath, err, stderr)
		}
		paths = append(paths, out)
	}
	return paths, nil
}

func (ffmpegBackend) outputMIME(source *mimetype.MIME) string {
	return source.String()
}

// commandError separates a missing binary (a deployment problem) from a tool that ran
// and rejected the input.
func commandError(name string, err error, stderr []byte) error {
	if errors.Is(err, exec.ErrNotFound) {
		return failure.New(failure.KindConfiguration, "audio.ffmpeg", fmt.Errorf("%s not found in PATH: %w", name, err))
	}
	msg := strings.TrimSpace(truncate(string(stderr), 512))
	if msg == "" {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return fmt.Errorf("%s failed: %w: %s", name, err, msg)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
