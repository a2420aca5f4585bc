package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavBackend splits PCM WAV files in process on exact frame boundaries.
type wavBackend struct {
	buf      *goaudio.IntBuffer
	bitDepth int
}

func (b *wavBackend) duration(_ context.Context, path string) (time.Duration, error) {
	err := b.load(path)
	if err != nil {
		return 0, err
	}
	return framesToDuration(b.frames(), b.buf.Format.SampleRate), nil
}

func (b *wavBackend) load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		if dec.Err() != nil {
			return fmt.Errorf("invalid wav file: %w", dec.Err())
		}
		return errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return err
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate < 1 {
		return errors.New("wav file has no usable format chunk")
	}

	b.buf = buf
	b.bitDepth = int(dec.BitDepth)
	return nil
}

func (b *wavBackend) frames() int64 {
	return int64(len(b.buf.Data) / b.buf.Format.NumChannels)
}

func (b *wavBackend) split(_ context.Context, _ string, spans []Span, workDir string) ([]string, error) {
	if b.buf == nil {
		return nil, errors.New("wav source not loaded")
	}
	err := ensureDir(workDir)
	if err != nil {
		return nil, err
	}

	rate := b.buf.Format.SampleRate
	channels := b.buf.Format.NumChannels
	total := b.frames()

	paths := make([]string, 0, len(spans))
	for i, sp := range spans {
		startFrame := durationToFrames(sp.Start, rate)
		endFrame := durationToFrames(sp.Start+sp.Duration, rate)
		if i == len(spans)-1 || endFrame > total {
			endFrame = total
		}

		out := chunkPath(workDir, i, ".wav")
		err = b.writeRange(out, startFrame*int64(channels), endFrame*int64(channels))
		if err != nil {
			return nil, err
		}
		paths = append(paths, out)
	}
	return paths, nil
}

func (b *wavBackend) writeRange(path string, from int64, to int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	enc := wav.NewEncoder(f, b.buf.Format.SampleRate, b.bitDepth, b.buf.Format.NumChannels, 1)
	err = enc.Write(&goaudio.IntBuffer{
		Format:         b.buf.Format,
		Data:           b.buf.Data[from:to],
		SourceBitDepth: b.bitDepth,
	})
	if err != nil {
		return err
	}
	return enc.Close()
}

func (*wavBackend) outputMIME(*mimetype.MIME) string {
	return "audio/wav"
}

func framesToDuration(frames int64, sampleRate int) time.Duration {
	return time.Duration(frames * int64(time.Second) / int64(sampleRate))
}

func durationToFrames(d time.Duration, sampleRate int) int64 {
	return (int64(d)*int64(sampleRate) + int64(time.Second)/2) / int64(time.Second)
}
