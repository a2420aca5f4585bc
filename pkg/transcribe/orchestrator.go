// Package transcribe drives a speech-to-text provider over chunked audio.
package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/audio"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/utils"
)

type Input struct {
	Data     []byte
	FileName string
	// MIMEType is sniffed from Data when empty.
	MIMEType string
	Keywords []model.AudioKeyword
}

type Transcript struct {
	Text     string
	Chunks   int
	Metadata model.GenerationMetadata
}

type Orchestrator struct {
	transcriber model.Transcriber
	chunker     *audio.Chunker
	workRoot    string
}

type Option func(*Orchestrator)

func WithChunker(c *audio.Chunker) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.chunker = c
		}
	}
}

// WithWorkRoot sets the parent directory for per-call scratch directories.
// The default is os.TempDir.
func WithWorkRoot(dir string) Option {
	return func(o *Orchestrator) {
		o.workRoot = dir
	}
}

func NewOrchestrator(transcriber model.Transcriber, opts ...Option) (*Orchestrator, error) {
	if transcriber == nil {
		return nil, failure.New(failure.KindConfiguration, "transcribe.NewOrchestrator", errors.New("transcriber is required"))
	}
	o := &Orchestrator{
		transcriber: transcriber,
		chunker:     audio.NewChunker(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Transcribe chunks the input, transcribes every chunk in order and joins the trimmed
// chunk texts with single spaces. Provider errors are classified and returned as is;
// retrying is left to the caller. All chunk files are removed before returning.
func (o *Orchestrator) Transcribe(ctx context.Context, in Input) (*Transcript, error) {
	const op = "transcribe.Orchestrator.Transcribe"
	log := logging.NewLogger(ctx)

	if len(in.Data) == 0 {
		return nil, failure.New(failure.KindDecode, op, errors.New("audio input is empty"))
	}

	workDir, err := os.MkdirTemp(o.workRoot, "transcribe-*")
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, utils.WrapIfNotNil(err)
	}
	defer func() {
		rmErr := os.RemoveAll(workDir)
		if rmErr != nil {
			log.Warnf("failed to remove chunk directory %s: %v", workDir, rmErr)
		}
	}()

	mime := in.MIMEType
	if strings.TrimSpace(mime) == "" {
		mime = audio.DetectMIME(in.Data, in.FileName)
	}
	ext := strings.ToLower(filepath.Ext(in.FileName))
	if ext == "" {
		ext = audio.ExtensionFor(mime)
	}

	sourcePath := filepath.Join(workDir, "source"+ext)
	err = os.WriteFile(sourcePath, in.Data, 0o600)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, utils.WrapIfNotNil(err)
	}

	chunks, err := o.chunker.Split(ctx, sourcePath, filepath.Join(workDir, "chunks"))
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, utils.WrapIfNotNil(err)
	}

	meta := model.GenerationMetadata{}
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		text, chunkMeta, err := o.transcribeChunk(ctx, chunk, in)
		if err != nil {
			log.Errorf("error: chunk %d/%d: %v", chunk.Index+1, len(chunks), err)
			return nil, utils.WrapIfNotNil(err, "chunk "+strconv.Itoa(chunk.Index))
		}
		meta.Merge(chunkMeta)

		text = strings.TrimSpace(text)
		if text != "" {
			parts = append(parts, text)
		}
		log.Debugf("transcribed chunk=%d start=%s duration=%s chars=%d", chunk.Index, chunk.Start, chunk.Duration, len(text))
	}
	meta[model.MetadataKeyChunks] = strconv.Itoa(len(chunks))

	return &Transcript{
		Text:     strings.Join(parts, " "),
		Chunks:   len(chunks),
		Metadata: meta,
	}, nil
}

func (o *Orchestrator) transcribeChunk(ctx context.Context, chunk audio.Chunk, in Input) (string, model.GenerationMetadata, error) {
	data, err := os.ReadFile(chunk.Path)
	if err != nil {
		return "", nil, utils.WrapIfNotNil(err)
	}

	// Providers pick a decoder from the extension, which changes when WAV chunks are re-encoded.
	fileName := filepath.Base(chunk.Path)
	if in.FileName != "" {
		base := filepath.Base(in.FileName)
		fileName = strings.TrimSuffix(base, filepath.Ext(base)) + filepath.Ext(chunk.Path)
	}

	text, meta, err := o.transcriber.Transcribe(ctx, model.Audio{
		Data:     data,
		MIMEType: chunk.MIMEType,
		FileName: fileName,
		Keywords: in.Keywords,
	})
	if err != nil {
		return "", meta, failure.Classify(err)
	}
	return text, meta, nil
}
