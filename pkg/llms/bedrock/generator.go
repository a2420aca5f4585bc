package bedrock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// Generator calls the Bedrock Converse API.
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
		err := failure.New(failure.KindConfiguration, "bedrock.Generator.Generate", errors.New("prompt is required"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}

	prompt, err := withSchemaInstruction(req.Prompt, req.ResponseSchema)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	var system []bedrocktypes.SystemContentBlock
	if strings.TrimSpace(req.SystemPrompt) != "" {
		system = append(system, &bedrocktypes.SystemContentBlockMemberText{Value: req.SystemPrompt})
	}

	log.Infof("model=%q prompt_chars=%d structured=%t temperature=%v max_tokens=%v",
		modelName, len(prompt), req.ResponseSchema != nil, g.cfg.Temperature, g.cfg.MaxTokens)

	text, err := converse(ctx, g.cfg, "bedrock.Generator.Generate", system,
		[]bedrocktypes.ContentBlock{&bedrocktypes.ContentBlockMemberText{Value: prompt}}, meta)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	if text == "" {
		err = failure.New(failure.KindMalformedOutput, "bedrock.Generator.Generate", errors.New("response output is empty"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	return text, meta, nil
}
