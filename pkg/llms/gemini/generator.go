package gemini

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"google.golang.org/genai"
)

// Generator asks Gemini for JSON output constrained by the request's response schema.
type Generator struct {
	cfg model.GeneratorConfig
}

func NewGenerator(opts ...model.GeneratorOption) *Generator {
	return &Generator{cfg: model.ResolveGeneratorOpts(opts...)}
}

func (g *Generator) Generate(ctx context.Context, req model.GenerationRequest) (string, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveGenerationModelName(g.cfg)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	if strings.TrimSpace(req.Prompt) == "" {
		err := failure.New(failure.KindConfiguration, "gemini.Generator.Generate", errors.New("prompt is required"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}

	config := buildGenerateContentConfig(g.cfg, req.SystemPrompt)
	if req.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseJsonSchema = map[string]any(req.ResponseSchema)
	}
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	log.Infof("model=%q prompt_chars=%d structured=%t temperature=%v max_tokens=%v",
		modelName, len(req.Prompt), req.ResponseSchema != nil, g.cfg.Temperature, g.cfg.MaxTokens)

	text, err := generateText(ctx, g.cfg, "gemini.Generator.Generate", contents, config, meta)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	if text == "" {
		err = failure.New(failure.KindMalformedOutput, "gemini.Generator.Generate", errors.New("response output is empty"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	return text, meta, nil
}
