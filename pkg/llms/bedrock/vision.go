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

const imageTextPrompt = "Read every piece of text in this image exactly as written, preserving line breaks. " +
	"Return only the text."

var imageFormats = map[string]bedrocktypes.ImageFormat{
	"image/png":  bedrocktypes.ImageFormatPng,
	"image/jpeg": bedrocktypes.ImageFormatJpeg,
	"image/gif":  bedrocktypes.ImageFormatGif,
	"image/webp": bedrocktypes.ImageFormatWebp,
}

// ImageReader sends a document image to a multimodal Converse model.
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
		err := failure.New(failure.KindDecode, "bedrock.ImageReader.ExtractText", errors.New("image payload is empty"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	format, ok := imageFormats[strings.ToLower(strings.TrimSpace(image.MIMEType))]
	if !ok {
		err := failure.Newf(failure.KindUnsupportedFormat, "bedrock.ImageReader.ExtractText",
			"image type %q is not supported by the Converse API", image.MIMEType)
		log.Errorf("error: %v", err)
		return "", meta, err
	}

	content := []bedrocktypes.ContentBlock{
		&bedrocktypes.ContentBlockMemberText{Value: imageTextPrompt},
		&bedrocktypes.ContentBlockMemberImage{
			Value: bedrocktypes.ImageBlock{
				Format: format,
				Source: &bedrocktypes.ImageSourceMemberBytes{Value: image.Data},
			},
		},
	}

	log.Infof("image_text_request model=%q format=%q bytes=%d", modelName, format, len(image.Data))
	text, err := converse(ctx, r.cfg, "bedrock.ImageReader.ExtractText", nil, content, meta)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	return text, meta, nil
}
