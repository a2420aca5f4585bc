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

const imageTextPrompt = "Read every piece of text in this image exactly as written, preserving line breaks. " +
	"Return only the text."

// ImageReader transcribes the text of a document image.
type ImageReader struct {
	cfg model.GeneratorConfig
}

func NewImageReader(opts ...model.GeneratorOption) *ImageReader {
	return &ImageReader{cfg: model.ResolveGeneratorOpts(opts...)}
}

func (r *ImageReader) ExtractText(ctx context.Context, image model.Image) (string, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveGenerationModelName(r.cfg)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	if len(image.Data) == 0 {
		err := failure.New(failure.KindDecode, "gemini.ImageReader.ExtractText", errors.New("image payload is empty"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	mimeType := strings.TrimSpace(image.MIMEType)
	if mimeType == "" {
		mimeType = "image/png"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(
			[]*genai.Part{
				genai.NewPartFromText(imageTextPrompt),
				genai.NewPartFromBytes(image.Data, mimeType),
			},
			genai.RoleUser,
		),
	}

	log.Infof("image_text_request model=%q mime=%q bytes=%d", modelName, mimeType, len(image.Data))
	text, err := generateText(ctx, r.cfg, "gemini.ImageReader.ExtractText", contents, buildGenerateContentConfig(r.cfg, ""), meta)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	return text, meta, nil
}
