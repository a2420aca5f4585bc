package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/utils"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"
)

// Transcriber sends one audio chunk per call to the audio transcriptions endpoint.
type Transcriber struct {
	client *client
	cfg    model.GeneratorConfig
}

func NewTranscriber(opts ...model.GeneratorOption) *Transcriber {
	cfg := model.ResolveGeneratorOpts(opts...)
	return &Transcriber{client: newClient(cfg), cfg: cfg}
}

func (t *Transcriber) Transcribe(ctx context.Context, audio model.Audio) (string, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveModelName(t.cfg, defaultAudioTranscriptionModelName)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	if len(audio.Data) == 0 {
		err := failure.New(failure.KindDecode, "openai.Transcriber.Transcribe", errors.New("audio payload is empty"))
		log.Errorf("error: %v", err)
		return "", meta, err
	}

	fileName := audio.FileName
	if strings.TrimSpace(fileName) == "" {
		fileName = "audio"
	}
	params := openai.AudioTranscriptionNewParams{
		File:           openai.File(bytes.NewReader(audio.Data), fileName, audio.MIMEType),
		Model:          openai.AudioModel(modelName),
		ResponseFormat: openai.AudioResponseFormatJSON,
	}
	prompt, err := buildCommonMissedWordsPrompt(audio.Keywords)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}
	if prompt != "" {
		params.Prompt = param.NewOpt(prompt)
	}

	log.Infof("audio_transcription_request model=%q file=%q bytes=%d", modelName, fileName, len(audio.Data))
	response, err := t.client.apiClient.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(classifyError("openai.Transcriber.Transcribe", err))
	}
	if response == nil {
		err = errors.New("audio transcriptions API returned nil response")
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	applyTranscriptionMetadata(meta, response)
	return strings.TrimSpace(response.Text), meta, nil
}

func buildCommonMissedWordsPrompt(keywords []model.AudioKeyword) (string, error) {
	normalized := model.NormalizeKeywords(keywords)
	if len(normalized) == 0 {
		return "", nil
	}

	keywordsJSON, err := json.Marshal(normalized)
	if err != nil {
		return "", err
	}
	return "Common missed words: " + string(keywordsJSON), nil
}

func applyTranscriptionMetadata(meta model.GenerationMetadata, response *openai.AudioTranscriptionNewResponseUnion) {
	if meta == nil || response == nil {
		return
	}

	meta[model.MetadataKeyAPICalls] = "1"
	if response.Usage.InputTokens > 0 || response.Usage.OutputTokens > 0 {
		meta[model.MetadataKeyInputTokens] = strconv.FormatInt(response.Usage.InputTokens, 10)
		meta[model.MetadataKeyOutputTokens] = strconv.FormatInt(response.Usage.OutputTokens, 10)
		meta[model.MetadataKeyTotalTokens] = strconv.FormatInt(response.Usage.TotalTokens, 10)
	}
}
