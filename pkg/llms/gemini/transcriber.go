package gemini

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"google.golang.org/genai"
)

// Transcriber sends audio inline to a multimodal Gemini model.
type Transcriber struct {
	cfg model.GeneratorConfig
}

func NewTranscriber(opts ...model.GeneratorOption) *Transcriber {
	return &Transcriber{cfg: model.ResolveGeneratorOpts(opts...)}
}

func (t *Transcriber) Transcribe(ctx context.Context, audio model.Audio) (string, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveGenerationModelName(t.cfg)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	if len(audio.Data) == 0 {
		err := failure.New(failure.KindDecode, "gemini.Transcriber.Transcribe", errors.New("audio payload is empty"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	mimeType := strings.TrimSpace(audio.MIMEType)
	if !strings.HasPrefix(mimeType, "audio/") {
		err := failure.Newf(failure.KindUnsupportedFormat, "gemini.Transcriber.Transcribe", "unsupported audio mime type %q", mimeType)
		log.Errorf("error: %v", err)
		return "", meta, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(
			[]*genai.Part{
				genai.NewPartFromText(buildAudioTranscriptionPrompt(audio.Keywords)),
				genai.NewPartFromBytes(audio.Data, mimeType),
			},
			genai.RoleUser,
		),
	}

	log.Infof("audio_transcription_request model=%q mime=%q bytes=%d", modelName, mimeType, len(audio.Data))
	text, err := generateText(ctx, t.cfg, "gemini.Transcriber.Transcribe", contents, &genai.GenerateContentConfig{}, meta)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, err
	}
	return text, meta, nil
}

func buildAudioTranscriptionPrompt(keywords []model.AudioKeyword) string {
	base := "Transcribe this audio accurately. Return only the transcript text."
	words := buildWordsToWatchPrompt(keywords)
	if words == "" {
		return base
	}
	return base + " Prioritize these terms if present: " + words + "."
}

func buildWordsToWatchPrompt(keywords []model.AudioKeyword) string {
	normalized := model.NormalizeKeywords(keywords)
	words := make([]string, 0, len(normalized))
	for _, keyword := range normalized {
		if keyword.Word != "" {
			words = append(words, keyword.Word)
		}
	}
	if len(words) == 0 {
		return ""
	}

	sort.Strings(words)
	return strings.Join(words, ", ")
}
