package model

import (
	"context"
	"strings"
)

type AudioKeyword struct {
	Word           string   `json:"word,omitempty"`
	CommonMistypes []string `json:"common_mistypes,omitempty"`
	Definition     string   `json:"definition,omitempty"`
}

// Audio is one bounded audio payload handed to a transcription provider.
type Audio struct {
	Data     []byte
	MIMEType string
	// FileName carries the extension some providers use to pick a decoder.
	FileName string
	// Keywords provides domain terms that may be missed in transcription.
	Keywords []AudioKeyword
}

// Transcriber turns one audio payload into plain text. It is never asked to handle
// audio longer than the configured chunk duration.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, GenerationMetadata, error)
}

// NormalizeKeywords trims every keyword and drops entries left with no content.
func NormalizeKeywords(keywords []AudioKeyword) []AudioKeyword {
	if len(keywords) == 0 {
		return nil
	}

	normalized := make([]AudioKeyword, 0, len(keywords))
	for _, keyword := range keywords {
		word := strings.TrimSpace(keyword.Word)
		definition := strings.TrimSpace(keyword.Definition)
		mistypes := make([]string, 0, len(keyword.CommonMistypes))
		for _, candidate := range keyword.CommonMistypes {
			if candidate = strings.TrimSpace(candidate); candidate != "" {
				mistypes = append(mistypes, candidate)
			}
		}
		if word == "" && definition == "" && len(mistypes) == 0 {
			continue
		}
		if len(mistypes) == 0 {
			mistypes = nil
		}

		normalized = append(normalized, AudioKeyword{
			Word:           word,
			CommonMistypes: mistypes,
			Definition:     definition,
		})
	}

	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
