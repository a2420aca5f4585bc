package ollama

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
)

const imageTextPrompt = "Read every piece of text in this image exactly as written, preserving line breaks. " +
	"Return only the text."

// ImageReader reads document images with a local vision model.
type ImageReader struct {
	client *client
	cfg    model.GeneratorConfig
}

func NewImageReader(opts ...model.GeneratorOption) *ImageReader {
	cfg := model.ResolveGeneratorOpts(opts...)
	return &ImageReader{client: newClient(cfg), cfg: cfg}
}

func (r *ImageReader) ExtractText(ctx context.Context, image model.Image) (string, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveModelName(r.cfg, defaultVisionModelName)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	if len(image.Data) == 0 {
		err := failure.New(failure.KindDecode, "ollama.ImageReader.ExtractText", errors.New("image payload is empty"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}

	request := ollamaChatRequest{
		Model: modelName,
		Messages: []ollamaChatMessage{{
			Role:    "user",
			Content: imageTextPrompt,
			Images:  []string{base64.StdEncoding.EncodeToString(image.Data)},
		}},
		Options: buildOllamaChatOptions(r.cfg),
	}

	log.Infof("image_text_request model=%q bytes=%d", modelName, len(image.Data))
	response, err := r.client.chat(ctx, request)
	if err != nil {
		err = classifyError("ollama.ImageReader.ExtractText", err)
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	applyOllamaMetadata(meta, response)
	return strings.TrimSpace(response.Message.Content), meta, nil
}
