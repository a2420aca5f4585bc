package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/extract"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/mcp"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/providers"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/schema"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	extractTemplateID   string
	extractTemplateFile string
	extractText         string
	extractAudioPath    string
	extractImagePath    string
	extractKeywords     []string
	extractRemoteURL    string
	extractRemoteToken  string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract one record from a text, audio or image source",
	Long: `Extract one record and print it.

The template is either an id resolved from --templates-dir or a single template
file given with --template-file. Exactly one source flag is required; --text - reads
the text from stdin.

Examples:
  polyglot-extract extract --templates-dir ./templates --template intake --text "..."
  polyglot-extract extract --template-file intake.yaml --audio call.mp3 --keyword eGFR
  polyglot-extract extract --remote http://localhost:8080/mcp --template intake --image form.png`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		defer recoverPanic(cmd, &err)
		ctx := cmd.Context()

		src, err := readSource(cmd.InOrStdin())
		if err != nil {
			return err
		}

		var result *model.ExtractionResult
		switch {
		case extractRemoteURL != "":
			if extractTemplateID == "" {
				return errors.New("--remote requires --template")
			}
			remote, err := mcp.NewRemoteExtractor(ctx, extractRemoteURL, extractRemoteToken)
			if err != nil {
				return err
			}
			defer func() {
				_ = remote.Close()
			}()
			result, err = remote.ExtractTemplate(ctx, src, extractTemplateID)
			if err != nil {
				return err
			}
		default:
			pipeline, err := providers.NewPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			result, err = runLocal(cmd, pipeline, src)
			if err != nil {
				return err
			}
		}

		return writeOutput(cmd.OutOrStdout(), result)
	},
}

func init() {
	f := extractCmd.Flags()
	f.StringVarP(&extractTemplateID, "template", "t", "", "template id to resolve from the templates directory")
	f.StringVar(&extractTemplateFile, "template-file", "", "path to a single YAML or JSON template")
	f.StringVar(&extractText, "text", "", "text source, or - to read stdin")
	f.StringVar(&extractAudioPath, "audio", "", "path to an audio recording")
	f.StringVar(&extractImagePath, "image", "", "path to an image of a form or document")
	f.StringSliceVar(&extractKeywords, "keyword", nil, "domain term the transcriber should favor (repeatable)")
	f.StringVar(&extractRemoteURL, "remote", "", "run on a remote polyglot-extract MCP server instead of locally")
	f.StringVar(&extractRemoteToken, "remote-token", "", "Authorization header for --remote")
	extractCmd.MarkFlagsMutuallyExclusive("template", "template-file")
	extractCmd.MarkFlagsOneRequired("template", "template-file")
	extractCmd.MarkFlagsMutuallyExclusive("text", "audio", "image")
	extractCmd.MarkFlagsOneRequired("text", "audio", "image")
	extractCmd.MarkFlagsMutuallyExclusive("remote", "template-file")
}

func runLocal(cmd *cobra.Command, pipeline *extract.Pipeline, src extract.Source) (*model.ExtractionResult, error) {
	if extractTemplateFile == "" {
		return pipeline.ExtractTemplate(cmd.Context(), src, extractTemplateID)
	}

	data, err := os.ReadFile(extractTemplateFile)
	if err != nil {
		return nil, failure.New(failure.KindConfiguration, "extract", err)
	}
	_, sch, err := schema.ParseTemplate(data)
	if err != nil {
		return nil, err
	}
	return pipeline.Extract(cmd.Context(), src, sch)
}

func readSource(stdin io.Reader) (extract.Source, error) {
	switch {
	case extractAudioPath != "":
		data, err := os.ReadFile(extractAudioPath)
		if err != nil {
			return extract.Source{}, failure.New(failure.KindDecode, "extract", err)
		}
		keywords := lo.Map(extractKeywords, func(word string, _ int) model.AudioKeyword {
			return model.AudioKeyword{Word: word}
		})
		return extract.AudioSource(data, filepath.Base(extractAudioPath), model.NormalizeKeywords(keywords)...), nil
	case extractImagePath != "":
		data, err := os.ReadFile(extractImagePath)
		if err != nil {
			return extract.Source{}, failure.New(failure.KindDecode, "extract", err)
		}
		return extract.ImageSource(data, filepath.Base(extractImagePath)), nil
	case strings.TrimSpace(extractText) == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return extract.Source{}, failure.New(failure.KindDecode, "extract", err)
		}
		return extract.TextSource(string(data)), nil
	default:
		return extract.TextSource(extractText), nil
	}
}

func writeOutput(w io.Writer, v any) error {
	if strings.EqualFold(outputFormat, "yaml") {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer func() {
			_ = enc.Close()
		}()
		return enc.Encode(v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
