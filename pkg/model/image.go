package model

import "context"

type Image struct {
	Data     []byte
	MIMEType string
	FileName string
}

// ImageTextExtractor reads the text out of a photographed or scanned document.
type ImageTextExtractor interface {
	ExtractText(ctx context.Context, image Image) (string, GenerationMetadata, error)
}
