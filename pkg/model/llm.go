package model

import (
	"context"
	"strconv"
)

// TextGenerator is implemented by every generative provider. A non-nil ResponseSchema
// asks the provider to constrain its output to that JSON schema when it can.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, GenerationMetadata, error)
}

type GenerationRequest struct {
	SystemPrompt string
	Prompt       string
	// ResponseName labels ResponseSchema for providers that require a schema name.
	ResponseName   string
	ResponseSchema JSONSchema
}

type JSONSchema map[string]any

type GenerationMetadata map[string]string

const (
	MetadataKeyProvider          = "provider"
	MetadataKeyModel             = "model"
	MetadataKeyLatencyMs         = "latency_ms"
	MetadataKeyInputTokens       = "input_tokens"
	MetadataKeyOutputTokens      = "output_tokens"
	MetadataKeyTotalTokens       = "total_tokens"
	MetadataKeyCachedInputTokens = "cached_input_tokens"
	MetadataKeyReasoningTokens   = "reasoning_tokens"
	MetadataKeyAPICalls          = "api_calls"
	MetadataKeyResponseID        = "response_id"
	MetadataKeyResponseStatus    = "response_status"
	MetadataKeyAttempts          = "attempts"
	MetadataKeyChunks            = "chunks"
	MetadataKeyRequestID         = "request_id"
	MetadataKeySourceLanguage    = "source_language"
)

var summedMetadataKeys = map[string]struct{}{
	MetadataKeyLatencyMs:         {},
	MetadataKeyInputTokens:       {},
	MetadataKeyOutputTokens:      {},
	MetadataKeyTotalTokens:       {},
	MetadataKeyCachedInputTokens: {},
	MetadataKeyReasoningTokens:   {},
	MetadataKeyAPICalls:          {},
}

// Merge folds src into m. Counters (tokens, latency, api calls) are summed; every other
// key is overwritten by src.
func (m GenerationMetadata) Merge(src GenerationMetadata) {
	if m == nil {
		return
	}
	for key, value := range src {
		if _, summed := summedMetadataKeys[key]; summed {
			current, errCur := strconv.ParseInt(m[key], 10, 64)
			add, errAdd := strconv.ParseInt(value, 10, 64)
			if errCur == nil && errAdd == nil {
				m[key] = strconv.FormatInt(current+add, 10)
				continue
			}
		}
		m[key] = value
	}
}

type GeneratorOption interface {
	apply(*GeneratorConfig)
}

type generatorOptionFunc func(*GeneratorConfig)

func (f generatorOptionFunc) apply(cfg *GeneratorConfig) {
	f(cfg)
}

type GeneratorConfig struct {
	URL         string
	AuthToken   string
	Temperature *float64
	MaxTokens   *int
	Model       *string
}

func ResolveGeneratorOpts(opts ...GeneratorOption) GeneratorConfig {
	cfg := GeneratorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}
	return cfg
}

func WithURL(value string) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.URL = value
	})
}

func WithAuthToken(value string) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.AuthToken = value
	})
}

func WithTemperature(value float64) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.Temperature = &value
	})
}

func WithMaxTokens(value int) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.MaxTokens = &value
	})
}

// WithModel overrides the provider default model. Blank values are ignored by providers.
func WithModel(value string) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.Model = &value
	})
}
