// Package config loads runtime settings from the environment.
package config

import (
	"os"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/retry"
	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

type Config struct {
	Generator   string `env:"EXTRACT_GENERATOR,default=openai" validate:"oneof=openai gemini bedrock ollama anthropic huggingface"`
	Transcriber string `env:"EXTRACT_TRANSCRIBER,default=openai" validate:"oneof=openai gemini none"`
	ImageReader string `env:"EXTRACT_IMAGE_READER,default=openai" validate:"oneof=openai gemini bedrock ollama anthropic none"`

	GeneratorModel   string `env:"EXTRACT_GENERATOR_MODEL"`
	TranscriberModel string `env:"EXTRACT_TRANSCRIBER_MODEL"`
	ImageReaderModel string `env:"EXTRACT_IMAGE_READER_MODEL"`

	Temperature float64 `env:"EXTRACT_TEMPERATURE,default=0.3" validate:"gte=0,lte=2"`
	MaxTokens   int     `env:"EXTRACT_MAX_TOKENS,default=4096" validate:"gt=0"`

	OpenAIToken    string `env:"OPEN_API_TOKEN"`
	GeminiKey      string `env:"GEMINI_KEY"`
	AnthropicKey   string `env:"ANTHROPIC_API_KEY"`
	HuggingFaceKey string `env:"HF_TOKEN"`
	OllamaBaseURL  string `env:"OLLAMA_BASE_URL"`

	MaxAttempts   int           `env:"EXTRACT_MAX_ATTEMPTS,default=3" validate:"gte=1,lte=10"`
	BaseDelay     time.Duration `env:"EXTRACT_BASE_DELAY,default=1s" validate:"gt=0"`
	ThrottleDelay time.Duration `env:"EXTRACT_THROTTLE_DELAY,default=5s" validate:"gt=0"`

	ChunkDuration time.Duration `env:"EXTRACT_CHUNK_DURATION,default=5m" validate:"gt=0"`
	MaxAudioBytes int64         `env:"EXTRACT_MAX_AUDIO_BYTES,default=524288000" validate:"gt=0"`
	FFmpegPath    string        `env:"EXTRACT_FFMPEG_PATH,default=ffmpeg" validate:"required"`
	FFprobePath   string        `env:"EXTRACT_FFPROBE_PATH,default=ffprobe" validate:"required"`
	WorkDir       string        `env:"EXTRACT_WORK_DIR"`
	TemplatesDir  string        `env:"EXTRACT_TEMPLATES_DIR"`

	// WatchTemplates reloads TemplatesDir when a template file changes.
	WatchTemplates bool `env:"EXTRACT_WATCH_TEMPLATES,default=false"`

	LogLevel  string `env:"LOG_LEVEL,default=info" validate:"oneof=trace debug info warn warning error"`
	LogFormat string `env:"LOG_FORMAT,default=text" validate:"oneof=text json"`
}

// Load reads a .env file when one exists, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return nil, failure.New(failure.KindConfiguration, "config.Load", err)
	}
	return LoadFrom(es)
}

// LoadFrom decodes and validates cfg from an explicit set of variables.
func LoadFrom(es env.EnvSet) (*Config, error) {
	var cfg Config
	err := env.Unmarshal(es, &cfg)
	if err != nil {
		return nil, failure.New(failure.KindConfiguration, "config.LoadFrom", err)
	}
	err = validate.Struct(cfg)
	if err != nil {
		return nil, failure.New(failure.KindConfiguration, "config.LoadFrom", err)
	}
	return &cfg, nil
}

// RetryPolicy maps the configured delays onto the extraction backoff policy.
func (c *Config) RetryPolicy() retry.Policy {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = c.MaxAttempts
	policy.Default.Base = c.BaseDelay
	policy.ByKind[failure.KindThrottled] = retry.Backoff{Base: c.ThrottleDelay, Multiplier: 2}
	return policy
}
