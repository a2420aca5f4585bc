package main

import (
	"fmt"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/config"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/utils"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	templatesDir string
	outputFormat string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "polyglot-extract",
	Short: "Turn text, audio and images into records that match a template",
	Long: `polyglot-extract normalizes an unstructured source to text, asks a language model
for the fields a template describes, and validates the answer before returning it.

Providers, models, retry pacing and audio limits come from the environment
(see EXTRACT_* variables); a .env file in the working directory is loaded first.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if templatesDir != "" {
			loaded.TemplatesDir = templatesDir
		}
		logging.Configure(loaded.LogLevel, loaded.LogFormat)
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&templatesDir, "templates-dir", "", "directory of YAML or JSON templates (overrides EXTRACT_TEMPLATES_DIR)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "json", "output format: json, yaml or table (templates only)",
	)

	rootCmd.AddCommand(extractCmd, serveCmd, templatesCmd)
}

// recoverPanic logs the stack of a panic in a command and turns it into an error.
func recoverPanic(cmd *cobra.Command, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	log := logging.NewLogger(cmd.Context())
	log.Errorf("panic: %v", r)
	utils.PrintStack(cmd.Name(), log)
	*errp = fmt.Errorf("%s: panic: %v", cmd.Name(), r)
}
