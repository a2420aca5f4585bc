package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/gabriel-vasile/mimetype"
)

// Chunk is one contiguous slice of the source. For the single-chunk fast path Path is
// the source itself and nothing was re-encoded.
type Chunk struct {
	Index    int
	Start    time.Duration
	Duration time.Duration
	Path     string
	MIMEType string
}

type backend interface {
	duration(ctx context.Context, path string) (time.Duration, error)
	split(ctx context.Context, path string, spans []Span, workDir string) ([]string, error)
	outputMIME(source *mimetype.MIME) string
}

type Chunker struct {
	maxDuration time.Duration
	runner      Runner
	ffmpegPath  string
	ffprobePath string
}

type Option func(*Chunker)

func WithMaxDuration(d time.Duration) Option {
	return func(c *Chunker) {
		if d > 0 {
			c.maxDuration = d
		}
	}
}

// WithRunner replaces the command runner used for ffmpeg and ffprobe.
func WithRunner(r Runner) Option {
	return func(c *Chunker) {
		if r != nil {
			c.runner = r
		}
	}
}

func WithFFmpegPaths(ffmpeg string, ffprobe string) Option {
	return func(c *Chunker) {
		if strings.TrimSpace(ffmpeg) != "" {
			c.ffmpegPath = ffmpeg
		}
		if strings.TrimSpace(ffprobe) != "" {
			c.ffprobePath = ffprobe
		}
	}
}

func NewChunker(opts ...Option) *Chunker {
	c := &Chunker{
		maxDuration: DefaultMaxChunkDuration,
		runner:      execRunner{},
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chunker) MaxDuration() time.Duration {
	return c.maxDuration
}

// Split cuts the audio at sourcePath into chunks no longer than the configured maximum.
// Chunk files are written to workDir, which the caller owns and must remove.
func (c *Chunker) Split(ctx context.Context, sourcePath string, workDir string) ([]Chunk, error) {
	const op = "audio.Chunker.Split"
	log := logging.NewLogger(ctx)

	mt, err := mimetype.DetectFile(sourcePath)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, failure.New(failure.KindDecode, op, fmt.Errorf("read %s: %w", filepath.Base(sourcePath), err))
	}
	if !IsAudioMIME(mt) {
		err = fmt.Errorf("%s is %s, not audio", filepath.Base(sourcePath), mt.String())
		log.Errorf("error: %v", err)
		return nil, failure.New(failure.KindDecode, op, err)
	}

	b := c.backendFor(mt)
	total, err := b.duration(ctx, sourcePath)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, asDecodeError(op, sourcePath, err)
	}

	spans, err := PlanChunks(total, c.maxDuration)
	if err != nil {
		return nil, failure.New(failure.KindConfiguration, op, err)
	}
	log.Infof("audio source=%q mime=%s duration=%s chunks=%d", filepath.Base(sourcePath), mt.String(), total, len(spans))

	if len(spans) == 1 {
		return []Chunk{{
			Index:    0,
			Start:    0,
			Duration: total,
			Path:     sourcePath,
			MIMEType: mt.String(),
		}}, nil
	}

	paths, err := b.split(ctx, sourcePath, spans, workDir)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, asDecodeError(op, sourcePath, err)
	}

	chunks := make([]Chunk, len(spans))
	for i, sp := range spans {
		chunks[i] = Chunk{
			Index:    i,
			Start:    sp.Start,
			Duration: sp.Duration,
			Path:     paths[i],
			MIMEType: b.outputMIME(mt),
		}
	}
	return chunks, nil
}

func (c *Chunker) backendFor(mt *mimetype.MIME) backend {
	if isWAV(mt) {
		return &wavBackend{}
	}
	return ffmpegBackend{runner: c.runner, ffmpegPath: c.ffmpegPath, ffprobePath: c.ffprobePath}
}

// asDecodeError keeps already classified errors and marks everything else as a decode
// failure naming the source.
func asDecodeError(op string, sourcePath string, err error) error {
	var fe *failure.Error
	if errors.As(err, &fe) {
		return err
	}
	return failure.New(failure.KindDecode, op, fmt.Errorf("decode %s: %w", filepath.Base(sourcePath), err))
}

func chunkPath(workDir string, index int, ext string) string {
	return filepath.Join(workDir, fmt.Sprintf("chunk_%03d%s", index, ext))
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o700)
}
