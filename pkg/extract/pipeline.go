// Package extract turns text, audio or images into records that satisfy a schema.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/audio"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/prompt"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/retry"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/schema"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/transcribe"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/utils"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/validate"
	"github.com/abadojack/whatlanggo"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	// DefaultMaxAudioBytes caps uploads at 500 MB.
	DefaultMaxAudioBytes int64 = 500 << 20

	summaryFallbackWords = 50

	minLanguageConfidence = 0.5
)

// Pipeline holds only immutable collaborators, so one instance can serve concurrent
// requests.
type Pipeline struct {
	generator     model.TextGenerator
	orchestrator  *transcribe.Orchestrator
	imageReader   model.ImageTextExtractor
	store         model.SchemaStore
	builder       *prompt.Builder
	controller    *retry.Controller
	maxAudioBytes int64
}

type Option func(*Pipeline) error

// WithTranscriber enables audio sources.
func WithTranscriber(t model.Transcriber, opts ...transcribe.Option) Option {
	return func(p *Pipeline) error {
		o, err := transcribe.NewOrchestrator(t, opts...)
		if err != nil {
			return err
		}
		p.orchestrator = o
		return nil
	}
}

// WithImageReader enables image sources.
func WithImageReader(r model.ImageTextExtractor) Option {
	return func(p *Pipeline) error {
		p.imageReader = r
		return nil
	}
}

func WithSchemaStore(store model.SchemaStore) Option {
	return func(p *Pipeline) error {
		p.store = store
		return nil
	}
}

func WithPromptBuilder(b *prompt.Builder) Option {
	return func(p *Pipeline) error {
		if b != nil {
			p.builder = b
		}
		return nil
	}
}

func WithRetryController(c *retry.Controller) Option {
	return func(p *Pipeline) error {
		if c != nil {
			p.controller = c
		}
		return nil
	}
}

func WithMaxAudioBytes(n int64) Option {
	return func(p *Pipeline) error {
		if n > 0 {
			p.maxAudioBytes = n
		}
		return nil
	}
}

func New(generator model.TextGenerator, opts ...Option) (*Pipeline, error) {
	if generator == nil {
		return nil, failure.New(failure.KindConfiguration, "extract.New", errors.New("text generator is required"))
	}
	controller, err := retry.NewController(retry.DefaultPolicy())
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	p := &Pipeline{
		generator:     generator,
		builder:       prompt.NewBuilder(),
		controller:    controller,
		maxAudioBytes: DefaultMaxAudioBytes,
	}
	for _, opt := range opts {
		err = opt(p)
		if err != nil {
			return nil, utils.WrapIfNotNil(err)
		}
	}
	return p, nil
}

// ExtractTemplate resolves templateID from the schema store and runs Extract.
func (p *Pipeline) ExtractTemplate(ctx context.Context, src Source, templateID string) (*model.ExtractionResult, error) {
	if p.store == nil {
		return nil, failure.New(failure.KindConfiguration, "extract.Pipeline.ExtractTemplate", errors.New("no schema store configured"))
	}
	sch, err := p.store.Schema(ctx, templateID)
	if err != nil {
		logging.NewLogger(ctx).Errorf("error: %v", err)
		return nil, utils.WrapIfNotNil(err)
	}
	return p.Extract(ctx, src, sch)
}

// TemplateIDs lists the templates the schema store can resolve, or nil when the
// store cannot enumerate them.
func (p *Pipeline) TemplateIDs() []string {
	lister, ok := p.store.(interface{ IDs() []string })
	if !ok {
		return nil
	}
	return lister.IDs()
}

// Extract normalizes src to text, then prompts the generator until its response
// validates against sch or the retry budget is spent.
func (p *Pipeline) Extract(ctx context.Context, src Source, sch *schema.Schema) (*model.ExtractionResult, error) {
	const op = "extract.Pipeline.Extract"
	if sch == nil {
		return nil, failure.New(failure.KindConfiguration, op, errors.New("schema is required"))
	}

	requestID := uuid.NewString()
	ctx = logging.ContextWithField(ctx, "request_id", requestID)
	log := logging.NewLogger(ctx)
	log.Infof("extraction started source=%s schema=%q fields=%d", src.Kind, sch.Name(), sch.Len())

	meta := model.GenerationMetadata{model.MetadataKeyRequestID: requestID}

	text, err := p.normalize(ctx, src, meta)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, utils.WrapIfNotNil(err)
	}
	if lang := detectLanguage(text); lang != "" {
		meta[model.MetadataKeySourceLanguage] = lang
		log.Debugf("source language %s", lang)
	}

	payload, err := p.builder.Build(text, sch)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, utils.WrapIfNotNil(err)
	}

	type outcome struct {
		summary string
		values  []model.FieldValue
	}
	out, attempts, err := retry.Do(ctx, p.controller, func(ctx context.Context, attempt int) (outcome, error) {
		raw, genMeta, err := p.generator.Generate(ctx, payload.Request())
		meta.Merge(genMeta)
		if err != nil {
			return outcome{}, err
		}
		candidate, err := validate.ParseResponse(raw)
		if err != nil {
			log.Debugf("attempt %d returned unusable output: %q", attempt, truncate(raw, 500))
			return outcome{}, err
		}
		values, err := validate.Validate(candidate, sch)
		if err != nil {
			return outcome{}, err
		}
		return outcome{summary: candidate.Summary, values: values}, nil
	})
	meta[model.MetadataKeyAttempts] = strconv.Itoa(attempts)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, utils.WrapIfNotNil(err)
	}

	summary := out.summary
	if summary == "" {
		summary = fallbackSummary(text)
	}
	log.Infof("extraction finished attempts=%d fields=%d", attempts, len(out.values))

	return &model.ExtractionResult{
		Summary:    summary,
		Fields:     out.values,
		SourceText: text,
		Attempts:   attempts,
		Metadata:   meta,
	}, nil
}

func (p *Pipeline) normalize(ctx context.Context, src Source, meta model.GenerationMetadata) (string, error) {
	const op = "extract.Pipeline.normalize"

	var text string
	var err error
	switch src.Kind {
	case SourceText:
		text = src.Text
	case SourceAudio:
		text, err = p.transcribe(ctx, src, meta)
	case SourceImage:
		text, err = p.readImage(ctx, src, meta)
	default:
		err = failure.Newf(failure.KindUnsupportedFormat, op, "unknown source kind %q", src.Kind)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", failure.Newf(failure.KindDecode, op, "%s source produced no text", src.Kind)
	}
	return text, nil
}

func (p *Pipeline) transcribe(ctx context.Context, src Source, meta model.GenerationMetadata) (string, error) {
	const op = "extract.Pipeline.transcribe"
	if p.orchestrator == nil {
		return "", failure.New(failure.KindConfiguration, op, errors.New("audio sources need a transcriber"))
	}
	if src.FileName != "" && !audio.IsAllowedExtension(src.FileName) {
		return "", failure.Newf(failure.KindUnsupportedFormat, op, "%q is not one of %s",
			src.FileName, strings.Join(audio.AllowedExtensions, ", "))
	}
	if int64(len(src.Data)) > p.maxAudioBytes {
		return "", failure.Newf(failure.KindUnsupportedFormat, op, "audio is %d bytes, limit is %d", len(src.Data), p.maxAudioBytes)
	}

	transcript, _, err := retry.Do(ctx, p.controller, func(ctx context.Context, _ int) (*transcribe.Transcript, error) {
		return p.orchestrator.Transcribe(ctx, transcribe.Input{
			Data:     src.Data,
			FileName: src.FileName,
			MIMEType: src.MIMEType,
			Keywords: src.Keywords,
		})
	})
	if err != nil {
		return "", err
	}
	meta.Merge(transcript.Metadata)
	return transcript.Text, nil
}

func (p *Pipeline) readImage(ctx context.Context, src Source, meta model.GenerationMetadata) (string, error) {
	const op = "extract.Pipeline.readImage"
	if p.imageReader == nil {
		return "", failure.New(failure.KindConfiguration, op, errors.New("image sources need an image reader"))
	}

	mt := mimetype.Detect(src.Data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", failure.Newf(failure.KindUnsupportedFormat, op, "expected an image, got %s", mt.String())
	}

	text, _, err := retry.Do(ctx, p.controller, func(ctx context.Context, _ int) (string, error) {
		text, readMeta, err := p.imageReader.ExtractText(ctx, model.Image{
			Data:     src.Data,
			MIMEType: mt.String(),
			FileName: src.FileName,
		})
		meta.Merge(readMeta)
		return text, err
	})
	return text, err
}

// detectLanguage returns the ISO 639-1 code of text, or "" when detection is not
// confident enough to report.
func detectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if info.Confidence < minLanguageConfidence {
		return ""
	}
	return info.Lang.Iso6391()
}

func fallbackSummary(text string) string {
	words := strings.Fields(text)
	if len(words) <= summaryFallbackWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:summaryFallbackWords], " ") + "..."
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return fmt.Sprintf("%s...(%d more bytes)", s[:max], len(s)-max)
}
