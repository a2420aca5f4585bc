package extract

import (
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
)

type SourceKind string

const (
	SourceText  SourceKind = "text"
	SourceAudio SourceKind = "audio"
	SourceImage SourceKind = "image"
)

// Source is the unstructured input of one extraction. Build it with TextSource,
// AudioSource or ImageSource.
type Source struct {
	Kind     SourceKind
	Text     string
	Data     []byte
	FileName string
	MIMEType string
	Keywords []model.AudioKeyword
}

func TextSource(text string) Source {
	return Source{Kind: SourceText, Text: text}
}

// AudioSource wraps recorded speech. fileName is used for the extension allow-list and
// may be empty when the bytes alone identify the format.
func AudioSource(data []byte, fileName string, keywords ...model.AudioKeyword) Source {
	return Source{Kind: SourceAudio, Data: data, FileName: fileName, Keywords: keywords}
}

func ImageSource(data []byte, fileName string) Source {
	return Source{Kind: SourceImage, Data: data, FileName: fileName}
}
