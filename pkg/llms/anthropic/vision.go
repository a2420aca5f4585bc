package anthropic

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
)

const imageTextPrompt = "Read every piece of text in this image exactly as written, preserving line breaks. " +
	"Return only the text."

var supportedImageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

type ImageReader struct {
	cfg model.GeneratorConfig
}

func NewImageReader(opts ...model.GeneratorOption) *ImageReader {
	return &ImageReader{cfg: model.ResolveGeneratorOpts(opts...)}
}

func (r *ImageReader) ExtractText(ctx context.Context, image model.Image) (string, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveModelName(r.cfg)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	if len(image.Data) == 0 {
		err := failure.New(failure.KindDecode, "anthropic.ImageReader.ExtractText", errors.New("image payload is empty"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	mediaType := strings.ToLower(strings.TrimSpace(image.MIMEType))
	if _, ok := supportedImageTypes[mediaType]; !ok {
		err := failure.Newf(failure.KindUnsupportedFormat, "anthropic.ImageReader.ExtractText",
			"image type %q is not supported", image.MIMEType)
		log.Errorf("error: %v", err)
		return "", meta, err
	}

	content := []anthropicContentBlock{
		{
			Type: "image",
			Source: &anthropicImageSource{
				Type:      "base64",
				MediaType: mediaType,
				Data:      base64.StdEncoding.EncodeToString(image.Data),
			},
		},
		{Type: "text", Text: imageTextPrompt},
	}

	log.Infof("image_text_request model=%q mime=%q bytes=%d", modelName, mediaType, len(image.Data))
	text, err := send(ctx, r.cfg, "anthropic.ImageReader.ExtractText", "", content, meta)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}
	return text, meta, nil
}
