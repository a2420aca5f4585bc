package openai

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	providerName                       = "openai"
	defaultModelName                   = "gpt-4.1-mini"
	defaultAudioTranscriptionModelName = "whisper-1"
)

type client struct {
	apiClient openai.Client
}

// newClient disables SDK-level retries; the extraction retry controller owns pacing.
func newClient(cfg model.GeneratorConfig) *client {
	requestOpts := make([]option.RequestOption, 0, 3)
	requestOpts = append(requestOpts, option.WithMaxRetries(0))
	if strings.TrimSpace(cfg.URL) != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(strings.TrimSpace(cfg.URL)))
	}

	token := strings.TrimSpace(cfg.AuthToken)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("OPEN_API_TOKEN"))
	}
	if token != "" {
		requestOpts = append(requestOpts, option.WithAPIKey(token))
	}

	return &client{apiClient: openai.NewClient(requestOpts...)}
}

func resolveModelName(cfg model.GeneratorConfig, fallback string) string {
	if cfg.Model != nil {
		name := strings.TrimSpace(*cfg.Model)
		if name != "" {
			return name
		}
	}
	return fallback
}

func isReasoningModel(modelName string) bool {
	name := strings.ToLower(strings.TrimSpace(modelName))
	if name == "" {
		return false
	}

	return strings.HasPrefix(name, "o1") ||
		strings.HasPrefix(name, "o3") ||
		strings.HasPrefix(name, "o4") ||
		strings.HasPrefix(name, "gpt-5")
}

// temperatureFor drops the temperature for reasoning models, which reject it.
func temperatureFor(modelName string, cfg model.GeneratorConfig, log logging.Logger) *float64 {
	if cfg.Temperature == nil {
		return nil
	}
	if isReasoningModel(modelName) {
		log.Warnf("ignoring temperature for reasoning model %q", modelName)
		return nil
	}
	return cfg.Temperature
}

func initMetadata(modelName string) model.GenerationMetadata {
	if strings.TrimSpace(modelName) == "" {
		modelName = "unknown"
	}

	return model.GenerationMetadata{
		model.MetadataKeyProvider: providerName,
		model.MetadataKeyModel:    modelName,
	}
}

func setLatencyMetadata(meta model.GenerationMetadata, start time.Time) {
	if meta == nil {
		return
	}
	meta[model.MetadataKeyLatencyMs] = strconv.FormatInt(time.Since(start).Milliseconds(), 10)
}
