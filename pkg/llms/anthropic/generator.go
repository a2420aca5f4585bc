package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/utils"
)

// Generator calls the Messages API. The response schema is appended to the prompt.
type Generator struct {
	cfg model.GeneratorConfig
}

func NewGenerator(opts ...model.GeneratorOption) *Generator {
	return &Generator{cfg: model.ResolveGeneratorOpts(opts...)}
}

func (g *Generator) Generate(ctx context.Context, req model.GenerationRequest) (string, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveModelName(g.cfg)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	if strings.TrimSpace(req.Prompt) == "" {
		err := failure.New(failure.KindConfiguration, "anthropic.Generator.Generate", errors.New("prompt is required"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}

	prompt := req.Prompt
	if req.ResponseSchema != nil {
		schemaBytes, err := json.Marshal(req.ResponseSchema)
		if err != nil {
			log.Errorf("error: %v", err)
			return "", meta, utils.WrapIfNotNil(err)
		}
		prompt += "\n\nReturn ONLY valid JSON matching this schema. Do not include markdown fences.\n" + string(schemaBytes)
	}

	log.Infof("model=%q prompt_chars=%d structured=%t temperature=%v max_tokens=%d",
		modelName, len(prompt), req.ResponseSchema != nil, g.cfg.Temperature, resolveMaxTokens(g.cfg))

	text, err := send(ctx, g.cfg, "anthropic.Generator.Generate", req.SystemPrompt,
		[]anthropicContentBlock{{Type: "text", Text: prompt}}, meta)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}
	if text == "" {
		err = failure.New(failure.KindMalformedOutput, "anthropic.Generator.Generate", errors.New("response output is empty"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	return text, meta, nil
}
