// Package providers builds model providers and the extraction pipeline from Config.
package providers

import (
	"context"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/audio"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/config"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/extract"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/llms/anthropic"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/llms/bedrock"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/llms/gemini"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/llms/huggingface"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/llms/ollama"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/llms/openai"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/retry"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/schema"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/transcribe"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/utils"
)

const None = "none"

// NewGenerator returns the text generator registered under cfg.Generator.
func NewGenerator(cfg *config.Config) (model.TextGenerator, error) {
	opts := []model.GeneratorOption{
		model.WithTemperature(cfg.Temperature),
		model.WithMaxTokens(cfg.MaxTokens),
		model.WithModel(cfg.GeneratorModel),
	}

	switch cfg.Generator {
	case "openai":
		return openai.NewGenerator(append(opts, model.WithAuthToken(cfg.OpenAIToken))...), nil
	case "gemini":
		return gemini.NewGenerator(append(opts, model.WithAuthToken(cfg.GeminiKey))...), nil
	case "bedrock":
		return bedrock.NewGenerator(opts...), nil
	case "ollama":
		return ollama.NewGenerator(append(opts, model.WithURL(cfg.OllamaBaseURL))...), nil
	case "anthropic":
		return anthropic.NewGenerator(append(opts, model.WithAuthToken(cfg.AnthropicKey))...), nil
	case "huggingface":
		return huggingface.NewGenerator(append(opts, model.WithAuthToken(cfg.HuggingFaceKey))...), nil
	default:
		return nil, failure.Newf(failure.KindConfiguration, "providers.NewGenerator", "unknown generator %q", cfg.Generator)
	}
}

// NewTranscriber returns nil when transcription is disabled.
func NewTranscriber(cfg *config.Config) (model.Transcriber, error) {
	opts := []model.GeneratorOption{model.WithModel(cfg.TranscriberModel)}

	switch cfg.Transcriber {
	case None, "":
		return nil, nil
	case "openai":
		return openai.NewTranscriber(append(opts, model.WithAuthToken(cfg.OpenAIToken))...), nil
	case "gemini":
		return gemini.NewTranscriber(append(opts, model.WithAuthToken(cfg.GeminiKey))...), nil
	default:
		return nil, failure.Newf(failure.KindConfiguration, "providers.NewTranscriber", "unknown transcriber %q", cfg.Transcriber)
	}
}

// NewImageReader returns nil when image sources are disabled.
func NewImageReader(cfg *config.Config) (model.ImageTextExtractor, error) {
	opts := []model.GeneratorOption{
		model.WithMaxTokens(cfg.MaxTokens),
		model.WithModel(cfg.ImageReaderModel),
	}

	switch cfg.ImageReader {
	case None, "":
		return nil, nil
	case "openai":
		return openai.NewImageReader(append(opts, model.WithAuthToken(cfg.OpenAIToken))...), nil
	case "gemini":
		return gemini.NewImageReader(append(opts, model.WithAuthToken(cfg.GeminiKey))...), nil
	case "bedrock":
		return bedrock.NewImageReader(opts...), nil
	case "ollama":
		return ollama.NewImageReader(append(opts, model.WithURL(cfg.OllamaBaseURL))...), nil
	case "anthropic":
		return anthropic.NewImageReader(append(opts, model.WithAuthToken(cfg.AnthropicKey))...), nil
	default:
		return nil, failure.Newf(failure.KindConfiguration, "providers.NewImageReader", "unknown image reader %q", cfg.ImageReader)
	}
}

// NewPipeline wires every configured provider, the retry policy, chunking limits and
// the template directory into one pipeline.
func NewPipeline(ctx context.Context, cfg *config.Config) (*extract.Pipeline, error) {
	log := logging.NewLogger(ctx)

	generator, err := NewGenerator(cfg)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, err
	}
	controller, err := retry.NewController(cfg.RetryPolicy())
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, err
	}

	opts := []extract.Option{
		extract.WithRetryController(controller),
		extract.WithMaxAudioBytes(cfg.MaxAudioBytes),
	}

	transcriber, err := NewTranscriber(cfg)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, err
	}
	if transcriber != nil {
		chunker := audio.NewChunker(
			audio.WithMaxDuration(cfg.ChunkDuration),
			audio.WithFFmpegPaths(cfg.FFmpegPath, cfg.FFprobePath),
		)
		transcribeOpts := []transcribe.Option{transcribe.WithChunker(chunker)}
		if strings.TrimSpace(cfg.WorkDir) != "" {
			transcribeOpts = append(transcribeOpts, transcribe.WithWorkRoot(cfg.WorkDir))
		}
		opts = append(opts, extract.WithTranscriber(transcriber, transcribeOpts...))
	}

	imageReader, err := NewImageReader(cfg)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, err
	}
	if imageReader != nil {
		opts = append(opts, extract.WithImageReader(imageReader))
	}

	if strings.TrimSpace(cfg.TemplatesDir) != "" {
		store, err := schema.LoadDir(ctx, cfg.TemplatesDir)
		if err != nil {
			log.Errorf("error: %v", err)
			return nil, utils.WrapIfNotNil(err)
		}
		if cfg.WatchTemplates {
			_, err = schema.WatchDir(ctx, cfg.TemplatesDir, store)
			if err != nil {
				log.Errorf("error: %v", err)
				return nil, err
			}
		}
		opts = append(opts, extract.WithSchemaStore(store))
	}

	log.Infof("pipeline generator=%s transcriber=%s image_reader=%s max_attempts=%d",
		cfg.Generator, cfg.Transcriber, cfg.ImageReader, cfg.MaxAttempts)
	return extract.New(generator, opts...)
}
