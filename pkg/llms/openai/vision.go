package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/utils"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

const imageTextPrompt = "Read every piece of text in this image exactly as written, preserving line breaks. " +
	"Return only the text. If the image contains no text, return an empty response."

// ImageReader transcribes the text content of a document image with a vision model.
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
	modelName := resolveModelName(r.cfg, defaultModelName)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	if len(image.Data) == 0 {
		err := failure.New(failure.KindDecode, "openai.ImageReader.ExtractText", errors.New("image payload is empty"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}

	content := responses.ResponseInputMessageContentListParam{
		{OfInputText: &responses.ResponseInputTextParam{Text: imageTextPrompt}},
		{OfInputImage: &responses.ResponseInputImageParam{
			ImageURL: openai.String(dataURL(image)),
			Detail:   responses.ResponseInputImageDetailHigh,
		}},
	}
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(modelName),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(content, responses.EasyInputMessageRoleUser),
			},
		},
	}
	if r.cfg.MaxTokens != nil {
		params.MaxOutputTokens = openai.Int(int64(*r.cfg.MaxTokens))
	}

	log.Infof("image_text_request model=%q mime=%q bytes=%d", modelName, image.MIMEType, len(image.Data))
	response, err := r.client.apiClient.Responses.New(ctx, params)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(classifyError("openai.ImageReader.ExtractText", err))
	}
	if response == nil {
		err = errors.New("responses API returned nil response")
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	applyResponseMetadata(meta, response)
	return strings.TrimSpace(response.OutputText()), meta, nil
}

func dataURL(image model.Image) string {
	mimeType := strings.TrimSpace(image.MIMEType)
	if mimeType == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image.Data)
}
