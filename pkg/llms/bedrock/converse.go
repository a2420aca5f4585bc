package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/utils"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// converse runs one Converse round trip and returns the assistant text.
func converse(
	ctx context.Context,
	cfg model.GeneratorConfig,
	op string,
	system []bedrocktypes.SystemContentBlock,
	content []bedrocktypes.ContentBlock,
	meta model.GenerationMetadata,
) (string, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return "", err
	}

	output, err := client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(resolveModelName(cfg)),
		Messages: []bedrocktypes.Message{{
			Role:    bedrocktypes.ConversationRoleUser,
			Content: content,
		}},
		System:          system,
		InferenceConfig: buildInferenceConfig(cfg),
	})
	if err != nil {
		return "", utils.WrapIfNotNil(classifyError(op, err))
	}
	applyConverseMetadata(meta, output)

	message, err := extractOutputMessage(output.Output)
	if err != nil {
		return "", utils.WrapIfNotNil(failure.New(failure.KindMalformedOutput, op, err))
	}
	return strings.TrimSpace(extractTextFromMessage(message)), nil
}

func buildInferenceConfig(cfg model.GeneratorConfig) *bedrocktypes.InferenceConfiguration {
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}

	inference := &bedrocktypes.InferenceConfiguration{}
	if cfg.MaxTokens != nil {
		inference.MaxTokens = aws.Int32(int32(*cfg.MaxTokens))
	}
	if cfg.Temperature != nil {
		inference.Temperature = aws.Float32(float32(*cfg.Temperature))
	}
	return inference
}

// withSchemaInstruction appends the response schema to the prompt; Converse has no
// native structured output mode.
func withSchemaInstruction(prompt string, schema model.JSONSchema) (string, error) {
	if schema == nil {
		return prompt, nil
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return "", utils.WrapIfNotNil(err)
	}
	return prompt + "\n\nReturn ONLY valid JSON that matches this schema:\n" + string(schemaJSON), nil
}

func extractOutputMessage(output bedrocktypes.ConverseOutput) (bedrocktypes.Message, error) {
	if output == nil {
		return bedrocktypes.Message{}, errors.New("converse output is nil")
	}

	messageOutput, ok := output.(*bedrocktypes.ConverseOutputMemberMessage)
	if !ok || messageOutput == nil {
		return bedrocktypes.Message{}, errors.New("converse output is not a message")
	}
	return messageOutput.Value, nil
}

func extractTextFromMessage(message bedrocktypes.Message) string {
	parts := make([]string, 0, len(message.Content))
	for _, block := range message.Content {
		textBlock, ok := block.(*bedrocktypes.ContentBlockMemberText)
		if !ok || textBlock == nil {
			continue
		}
		value := strings.TrimSpace(textBlock.Value)
		if value == "" {
			continue
		}
		parts = append(parts, value)
	}
	return strings.Join(parts, "\n")
}
