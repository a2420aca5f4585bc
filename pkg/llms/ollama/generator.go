package ollama

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
)

// Generator calls /api/chat with the response schema passed as the format constraint.
type Generator struct {
	client *client
	cfg    model.GeneratorConfig
}

func NewGenerator(opts ...model.GeneratorOption) *Generator {
	cfg := model.ResolveGeneratorOpts(opts...)
	return &Generator{client: newClient(cfg), cfg: cfg}
}

func (g *Generator) Generate(ctx context.Context, req model.GenerationRequest) (string, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveModelName(g.cfg, defaultGenerationModelName)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	if strings.TrimSpace(req.Prompt) == "" {
		err := failure.New(failure.KindConfiguration, "ollama.Generator.Generate", errors.New("prompt is required"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}

	request := ollamaChatRequest{
		Model:    modelName,
		Messages: toChatMessages(buildMessages(req.SystemPrompt, req.Prompt)),
		Options:  buildOllamaChatOptions(g.cfg),
	}
	if req.ResponseSchema != nil {
		request.Format = map[string]any(req.ResponseSchema)
	}

	log.Infof("model=%q prompt_chars=%d structured=%t base_url=%q", modelName, len(req.Prompt), req.ResponseSchema != nil, g.client.baseURL)
	response, err := g.client.chat(ctx, request)
	if err != nil {
		err = classifyError("ollama.Generator.Generate", err)
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	applyOllamaMetadata(meta, response)

	text := strings.TrimSpace(response.Message.Content)
	if text == "" {
		err = failure.New(failure.KindMalformedOutput, "ollama.Generator.Generate", errors.New("response output is empty"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	return text, meta, nil
}
