package huggingface

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
)

// Generator calls the OpenAI-compatible chat completions router with a json_schema
// response format.
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
		err := failure.New(failure.KindConfiguration, "huggingface.Generator.Generate", errors.New("prompt is required"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}

	client, err := newAPIClient(g.cfg)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, err
	}

	request := chatCompletionRequest{
		Model:       modelName,
		Messages:    buildMessages(req.SystemPrompt, req.Prompt),
		MaxTokens:   resolveMaxTokens(g.cfg),
		Temperature: g.cfg.Temperature,
	}
	if req.ResponseSchema != nil {
		name := req.ResponseName
		if name == "" {
			name = "structured_output"
		}
		request.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaFormat{Name: name, Schema: req.ResponseSchema},
		}
	}

	log.Infof("model=%q prompt_chars=%d structured=%t max_tokens=%d", modelName, len(req.Prompt), req.ResponseSchema != nil, request.MaxTokens)
	response, err := client.createChatCompletion(ctx, request)
	if err != nil {
		err = classifyError("huggingface.Generator.Generate", err)
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	applyHuggingFaceMetadata(meta, response)

	text := extractTextFromResponse(response)
	if text == "" {
		err = failure.New(failure.KindMalformedOutput, "huggingface.Generator.Generate", errors.New("response output is empty"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	return text, meta, nil
}

func buildMessages(systemPrompt, prompt string) []chatMessage {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	return append(messages, chatMessage{Role: "user", Content: prompt})
}

func extractTextFromResponse(response *chatCompletionResponse) string {
	if response == nil || len(response.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(response.Choices[0].Message.Content)
}
